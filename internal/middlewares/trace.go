package middlewares

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	logger "github.com/Gopher0727/GroupChat/middleware/log"
)

// TraceHeader 请求与响应中携带 trace id 的头
const TraceHeader = "X-Trace-ID"

// Trace 为每个请求分配 trace id (沿用客户端传入的值) 并记录访问日志
func Trace(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		ctx := logger.WithTraceID(c.Request.Context(), c.GetHeader(TraceHeader))
		c.Request = c.Request.WithContext(ctx)
		c.Header(TraceHeader, logger.GetTraceID(ctx))

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		switch {
		case c.Writer.Status() >= 500:
			log.ErrorContext(ctx, "request", fields...)
		case c.Writer.Status() >= 400:
			log.WarnContext(ctx, "request", fields...)
		default:
			log.InfoContext(ctx, "request", fields...)
		}
	}
}
