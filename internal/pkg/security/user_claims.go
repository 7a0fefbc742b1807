package security

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	jwtSecret         = []byte("Homestead")
	jwtIssuer         = "Homestead"
	jwtExpirationTime = time.Hour * 24
)

// UserClaims 上游业务系统签发的身份，UserID 为租户 ID 或房东 ID
type UserClaims struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// Configure 使用配置覆盖默认签名参数，空值保持默认
func Configure(secret, issuer string, expire time.Duration) {
	if secret != "" {
		jwtSecret = []byte(secret)
	}
	if issuer != "" {
		jwtIssuer = issuer
	}
	if expire > 0 {
		jwtExpirationTime = expire
	}
}
