package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Gopher0727/GroupChat/internal/dtos"
	"github.com/Gopher0727/GroupChat/internal/events"
	"github.com/Gopher0727/GroupChat/internal/models"
	"github.com/Gopher0727/GroupChat/internal/repositories"
	"github.com/Gopher0727/GroupChat/internal/utils"
	logger "github.com/Gopher0727/GroupChat/middleware/log"
)

// 用户房间列表上限
const roomListCap = 100

type RoomService struct {
	rooms repositories.RoomRepository
	hub   Broadcaster
	ids   IDGenerator
	log   *logger.Logger
	locks *roomLocks
}

func NewRoomService(rooms repositories.RoomRepository, hub Broadcaster, ids IDGenerator, log *logger.Logger) *RoomService {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &RoomService{rooms: rooms, hub: orNop(hub), ids: ids, log: log.Named("rooms"), locks: newRoomLocks()}
}

type CreateRoomRequest struct {
	Name string `json:"name"`
}

type KickMemberRequest struct {
	TargetUserID string `json:"targetUserId"`
}

type JoinRoomResponse struct {
	OK   bool   `json:"ok"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

type LeaveRoomResponse struct {
	OK      bool `json:"ok"`
	Deleted bool `json:"deleted"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

// CreateRoom 创建房间, 创建者成为唯一成员和房主
func (s *RoomService) CreateRoom(ctx context.Context, ownerID string, req *CreateRoomRequest) (*dtos.RoomDetail, error) {
	name := strings.TrimSpace(req.Name)
	if ownerID == "" {
		return nil, ErrMissingParams
	}
	if name == "" {
		return nil, ErrInvalidName
	}

	id, err := s.ids.NextString()
	if err != nil {
		return nil, fmt.Errorf("generate room id: %w", err)
	}
	room := &models.Chatroom{ID: id, Name: name, OwnerID: ownerID}
	if err := s.rooms.Create(ctx, room); err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}

	s.hub.Publish(ctx, events.RoomCreated{ID: room.ID, RoomName: room.Name})
	return dtos.NewRoomDetail(room), nil
}

// ListRoomsForUser 用户是成员或房主的房间, 没有公开列表
func (s *RoomService) ListRoomsForUser(ctx context.Context, userID string) ([]dtos.RoomSummary, error) {
	out := []dtos.RoomSummary{}
	if userID == "" {
		return out, nil
	}
	rooms, err := s.rooms.ListForUser(ctx, userID, roomListCap)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	for i := range rooms {
		out = append(out, dtos.NewRoomSummary(&rooms[i]))
	}
	return out, nil
}

// GetRoom 不存在或 ID 非法时返回 nil
func (s *RoomService) GetRoom(ctx context.Context, rawRoomID string) (*dtos.RoomDetail, error) {
	roomID := utils.NormalizeID(rawRoomID)
	if !utils.ValidID(roomID) {
		return nil, nil
	}
	room, err := s.rooms.GetByID(ctx, roomID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	return dtos.NewRoomDetail(room), nil
}

// JoinRoom 幂等加入, 只有新加入时广播
func (s *RoomService) JoinRoom(ctx context.Context, rawRoomID, userID string) (*JoinRoomResponse, error) {
	roomID, err := parseRoomID(rawRoomID, userID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(roomID)
	defer unlock()

	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, mapRoomErr(err)
	}
	added, err := s.rooms.AddMember(ctx, roomID, userID)
	if err != nil {
		return nil, mapRoomErr(err)
	}
	if added {
		s.hub.Publish(ctx, events.MemberJoined{ChatroomID: roomID, UserID: userID})
	}
	return &JoinRoomResponse{OK: true, ID: room.ID, Name: room.Name}, nil
}

// LeaveRoom 离开房间; 房间清空则删除, 房主离开则转移
func (s *RoomService) LeaveRoom(ctx context.Context, rawRoomID, userID string) (*LeaveRoomResponse, error) {
	roomID, err := parseRoomID(rawRoomID, userID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(roomID)
	defer unlock()

	res, err := s.rooms.RemoveMember(ctx, roomID, userID, "")
	if err != nil {
		return nil, mapRoomErr(err)
	}
	s.publishRemoval(ctx, roomID, res, events.MemberLeft{ChatroomID: roomID, UserID: userID})
	return &LeaveRoomResponse{OK: true, Deleted: res.RoomDeleted}, nil
}

// KickMember 房主踢人, 被踢用户的所有连接会收到定向通知
func (s *RoomService) KickMember(ctx context.Context, rawRoomID, rawTargetID, requesterID string) (*OKResponse, error) {
	roomID, err := parseRoomID(rawRoomID, requesterID)
	if err != nil {
		return nil, err
	}
	targetID := utils.NormalizeID(rawTargetID)
	if targetID == "" {
		return nil, ErrMissingParams
	}
	if !utils.ValidID(targetID) {
		return nil, ErrInvalidID
	}

	unlock := s.locks.lock(roomID)
	defer unlock()

	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, mapRoomErr(err)
	}
	if room.OwnerID != requesterID {
		return nil, ErrNotOwner
	}

	// 写入时再次以房主为条件, 防止期间发生转移
	res, err := s.rooms.RemoveMember(ctx, roomID, targetID, requesterID)
	if err != nil {
		return nil, mapRoomErr(err)
	}
	s.publishRemoval(ctx, roomID, res, events.MemberKicked{ChatroomID: roomID, UserID: targetID})
	if res.Removed {
		s.hub.Publish(ctx, events.Kicked{ChatroomID: roomID, UserID: targetID})
		s.log.InfoContext(ctx, "member kicked",
			zap.String("chatroom_id", roomID),
			zap.String("user_id", targetID),
			zap.String("by", requesterID),
		)
	}
	return &OKResponse{OK: true}, nil
}

// DeleteRoom 房主删除房间
func (s *RoomService) DeleteRoom(ctx context.Context, rawRoomID, requesterID string) (*OKResponse, error) {
	roomID, err := parseRoomID(rawRoomID, requesterID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(roomID)
	defer unlock()

	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, mapRoomErr(err)
	}
	if room.OwnerID != requesterID {
		return nil, ErrNotOwner
	}
	if err := s.rooms.Delete(ctx, roomID, requesterID); err != nil {
		return nil, mapRoomErr(err)
	}
	s.hub.Publish(ctx, events.RoomDeleted{ChatroomID: roomID})
	return &OKResponse{OK: true}, nil
}

// publishRemoval 按提交顺序发布移除成员后的事件
func (s *RoomService) publishRemoval(ctx context.Context, roomID string, res *repositories.Removal, removed events.Event) {
	if res.RoomDeleted {
		s.hub.Publish(ctx, events.RoomDeleted{ChatroomID: roomID})
		return
	}
	if !res.Removed {
		return
	}
	if res.NewOwnerID != "" {
		s.hub.Publish(ctx, events.OwnerChanged{ChatroomID: roomID, OwnerID: res.NewOwnerID})
	}
	s.hub.Publish(ctx, removed)
}

func parseRoomID(raw, actorID string) (string, error) {
	roomID := utils.NormalizeID(raw)
	if roomID == "" || actorID == "" {
		return "", ErrMissingParams
	}
	if !utils.ValidID(roomID) {
		return "", ErrInvalidID
	}
	return roomID, nil
}

func mapRoomErr(err error) error {
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		return ErrRoomNotFound
	case errors.Is(err, repositories.ErrOwnerMismatch):
		return ErrNotOwner
	default:
		return fmt.Errorf("room store: %w", err)
	}
}
