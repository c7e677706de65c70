package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Gopher0727/GroupChat/internal/middlewares"
	"github.com/Gopher0727/GroupChat/internal/services"
	"github.com/Gopher0727/GroupChat/middleware/jwt"
	logger "github.com/Gopher0727/GroupChat/middleware/log"
)

var kindStatus = map[services.Kind]int{
	services.KindValidation:      http.StatusBadRequest,
	services.KindNotFound:        http.StatusNotFound,
	services.KindPermission:      http.StatusForbidden,
	services.KindConflict:        http.StatusConflict,
	services.KindUnauthenticated: http.StatusUnauthorized,
	services.KindRateLimited:     http.StatusTooManyRequests,
	services.KindInternal:        http.StatusInternalServerError,
}

// StatusOf 错误类别对应的 HTTP 状态码
func StatusOf(err error) int {
	return kindStatus[services.KindOf(err)]
}

// respondError 写出统一的失败响应, 内部错误只记录日志不暴露细节
func respondError(c *gin.Context, log *logger.Logger, err error) {
	appErr := services.ErrInternal
	var e *services.Error
	if errors.As(err, &e) {
		appErr = e
	} else {
		log.ErrorContext(c.Request.Context(), "request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(kindStatus[appErr.Kind], gin.H{
		"ok":      false,
		"error":   appErr.Code,
		"message": appErr.Message,
	})
}

// bindJSON 解析请求体, 失败时已写出响应
func bindJSON(c *gin.Context, log *logger.Logger, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		log.DebugContext(c.Request.Context(), "invalid request body", zap.Error(err))
		respondError(c, log, services.ErrInvalidBody)
		return false
	}
	return true
}

// identityOf 受保护路由中取身份, 缺失时已写出 401
func identityOf(c *gin.Context, log *logger.Logger) (*jwt.Identity, bool) {
	identity, ok := middlewares.GetIdentity(c)
	if !ok {
		respondError(c, log, services.ErrUnauthenticated)
		return nil, false
	}
	return identity, true
}
