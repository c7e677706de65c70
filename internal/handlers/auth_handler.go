package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/GroupChat/internal/services"
	logger "github.com/Gopher0727/GroupChat/middleware/log"
)

// AuthHandler 账号相关接口
type AuthHandler struct {
	users *services.UserService
	log   *logger.Logger
}

func NewAuthHandler(users *services.UserService, log *logger.Logger) *AuthHandler {
	return &AuthHandler{users: users, log: log}
}

// Signup 注册
func (h *AuthHandler) Signup(c *gin.Context) {
	var req services.SignupRequest
	if !bindJSON(c, h.log, &req) {
		return
	}
	resp, err := h.users.Signup(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Login 登录
func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if !bindJSON(c, h.log, &req) {
		return
	}
	resp, err := h.users.Login(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Me 当前用户
func (h *AuthHandler) Me(c *gin.Context) {
	identity, ok := identityOf(c, h.log)
	if !ok {
		return
	}
	user, err := h.users.Me(c.Request.Context(), identity.UserID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateMe 修改资料
func (h *AuthHandler) UpdateMe(c *gin.Context) {
	identity, ok := identityOf(c, h.log)
	if !ok {
		return
	}
	var req services.UpdateProfileRequest
	if !bindJSON(c, h.log, &req) {
		return
	}
	user, err := h.users.UpdateMe(c.Request.Context(), identity.UserID, &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *AuthHandler) ListUsers(c *gin.Context) {
	users, err := h.users.ListUsers(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, users)
}
