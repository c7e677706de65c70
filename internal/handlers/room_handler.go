package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/GroupChat/internal/services"
	logger "github.com/Gopher0727/GroupChat/middleware/log"
)

// RoomHandler 房间接口
type RoomHandler struct {
	rooms *services.RoomService
	log   *logger.Logger
}

func NewRoomHandler(rooms *services.RoomService, log *logger.Logger) *RoomHandler {
	return &RoomHandler{rooms: rooms, log: log}
}

// Create 创建房间
func (h *RoomHandler) Create(c *gin.Context) {
	identity, ok := identityOf(c, h.log)
	if !ok {
		return
	}
	var req services.CreateRoomRequest
	if !bindJSON(c, h.log, &req) {
		return
	}
	room, err := h.rooms.CreateRoom(c.Request.Context(), identity.UserID, &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, room)
}

// List 当前用户的房间
func (h *RoomHandler) List(c *gin.Context) {
	identity, ok := identityOf(c, h.log)
	if !ok {
		return
	}
	rooms, err := h.rooms.ListRoomsForUser(c.Request.Context(), identity.UserID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, rooms)
}

// Get 房间详情, 不存在时响应体为 null
func (h *RoomHandler) Get(c *gin.Context) {
	room, err := h.rooms.GetRoom(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *RoomHandler) Join(c *gin.Context) {
	identity, ok := identityOf(c, h.log)
	if !ok {
		return
	}
	resp, err := h.rooms.JoinRoom(c.Request.Context(), c.Param("id"), identity.UserID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *RoomHandler) Leave(c *gin.Context) {
	identity, ok := identityOf(c, h.log)
	if !ok {
		return
	}
	resp, err := h.rooms.LeaveRoom(c.Request.Context(), c.Param("id"), identity.UserID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Kick 房主踢出成员
func (h *RoomHandler) Kick(c *gin.Context) {
	identity, ok := identityOf(c, h.log)
	if !ok {
		return
	}
	var req services.KickMemberRequest
	if !bindJSON(c, h.log, &req) {
		return
	}
	resp, err := h.rooms.KickMember(c.Request.Context(), c.Param("id"), req.TargetUserID, identity.UserID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *RoomHandler) Delete(c *gin.Context) {
	identity, ok := identityOf(c, h.log)
	if !ok {
		return
	}
	resp, err := h.rooms.DeleteRoom(c.Request.Context(), c.Param("id"), identity.UserID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
