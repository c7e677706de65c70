package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/GroupChat/middleware/jwt"
)

// IdentityKey gin.Context 中保存当前身份的键
const IdentityKey = "identity"

// TokenVerifier 校验 Bearer 令牌
type TokenVerifier interface {
	Verify(token string) (*jwt.Identity, error)
}

// RequireAuth JWT 认证中间件, 令牌缺失或无效时返回 401
func RequireAuth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := jwt.ExtractBearer(c.GetHeader("Authorization"))
		if token == "" {
			abortWithError(c, http.StatusUnauthorized, "unauthenticated", "未提供认证 Token")
			return
		}

		identity, err := verifier.Verify(token)
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, "unauthenticated", "Token 无效或已过期")
			return
		}

		c.Set(IdentityKey, identity)
		c.Next()
	}
}

// OptionalAuth 有合法令牌时设置身份, 否则以匿名继续
func OptionalAuth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := jwt.ExtractBearer(c.GetHeader("Authorization")); token != "" {
			if identity, err := verifier.Verify(token); err == nil {
				c.Set(IdentityKey, identity)
			}
		}
		c.Next()
	}
}

// GetIdentity 取当前请求的身份
func GetIdentity(c *gin.Context) (*jwt.Identity, bool) {
	v, ok := c.Get(IdentityKey)
	if !ok {
		return nil, false
	}
	identity, ok := v.(*jwt.Identity)
	return identity, ok && identity != nil
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"ok": false, "error": code, "message": message})
}
