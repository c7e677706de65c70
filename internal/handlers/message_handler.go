package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/GroupChat/internal/metrics"
	"github.com/Gopher0727/GroupChat/internal/services"
	logger "github.com/Gopher0727/GroupChat/middleware/log"
)

// MessageHandler 消息接口
type MessageHandler struct {
	messages *services.MessageService
	log      *logger.Logger
}

func NewMessageHandler(messages *services.MessageService, log *logger.Logger) *MessageHandler {
	return &MessageHandler{messages: messages, log: log}
}

// Send 发送消息
func (h *MessageHandler) Send(c *gin.Context) {
	identity, ok := identityOf(c, h.log)
	if !ok {
		return
	}
	var req services.SendMessageRequest
	if !bindJSON(c, h.log, &req) {
		return
	}
	author := services.Author{ID: identity.UserID, DisplayName: identity.DisplayName, Email: identity.Email}
	msg, err := h.messages.SendMessage(c.Request.Context(), author, &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	metrics.MessagesSent.Inc()
	c.JSON(http.StatusCreated, msg)
}

// List 房间历史消息
func (h *MessageHandler) List(c *gin.Context) {
	msgs, err := h.messages.ListMessages(c.Request.Context(), c.Param("chatroomId"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// React 切换表情
func (h *MessageHandler) React(c *gin.Context) {
	identity, ok := identityOf(c, h.log)
	if !ok {
		return
	}
	var req services.ReactRequest
	if !bindJSON(c, h.log, &req) {
		return
	}
	msg, err := h.messages.ToggleReaction(c.Request.Context(), c.Param("id"), identity.UserID, req.Emoji)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// Unsend 撤回
func (h *MessageHandler) Unsend(c *gin.Context) {
	identity, ok := identityOf(c, h.log)
	if !ok {
		return
	}
	msg, err := h.messages.UnsendMessage(c.Request.Context(), c.Param("id"), identity.UserID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}
