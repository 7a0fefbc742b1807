package util

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrValidation 请求体未通过校验
var ErrValidation = errors.New("validation failed")

var validate = newValidator()

// newValidator 错误信息里使用 json 字段名，与请求体保持一致
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return fld.Name
		}
		return name
	})
	return v
}

// ValidateDTO 按 validate 标签校验，返回第一条失败的字段
func ValidateDTO(dto any) error {
	err := validate.Struct(dto)
	if err == nil {
		return nil
	}
	var vErrs validator.ValidationErrors
	if errors.As(err, &vErrs) && len(vErrs) > 0 {
		first := vErrs[0]
		return fmt.Errorf("%w: 字段 [%s] 校验失败，规则 [%s]", ErrValidation, first.Field(), first.Tag())
	}
	return err
}
