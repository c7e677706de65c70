package middlewares

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/GroupChat/utils/ratelimit"
)

// RateLimit 按用户限流, 匿名请求按客户端 IP; scope 区分不同的操作
func RateLimit(limiter ratelimit.Limiter, scope string, rule ratelimit.Rule) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || rule.Limit <= 0 {
			c.Next()
			return
		}

		subject := c.ClientIP()
		if identity, ok := GetIdentity(c); ok {
			subject = identity.UserID
		}

		key := scope + ":" + subject
		allowed, err := limiter.Allow(c.Request.Context(), key, rule)
		if err != nil {
			abortWithError(c, http.StatusInternalServerError, "internal", "服务器内部错误")
			return
		}
		// 读取失败 (例如 Redis 放行降级) 时不返回配额头
		if left, err := limiter.Remaining(c.Request.Context(), key, rule); err == nil {
			c.Header("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(left))
		}
		if !allowed {
			abortWithError(c, http.StatusTooManyRequests, "rate-limited", "操作过于频繁, 请稍后再试")
			return
		}
		c.Next()
	}
}
