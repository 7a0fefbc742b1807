package middleware

import (
	"Homestead/internal/pkg/consts"
	"Homestead/internal/pkg/security"

	"github.com/gin-gonic/gin"
)

// AuthOptionalMiddleware 可选鉴权：解析成功注入身份，失败或缺失则 user_id 为空串
func AuthOptionalMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(consts.CtxUserID, "")

		if token, ok := bearerToken(c); ok {
			if claims, err := security.ValidateToken(token); err == nil {
				setIdentity(c, claims)
			}
		}

		c.Next()
	}
}
