package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/Gopher0727/GroupChat/internal/dtos"
	"github.com/Gopher0727/GroupChat/internal/events"
	"github.com/Gopher0727/GroupChat/internal/models"
	"github.com/Gopher0727/GroupChat/internal/repositories"
	"github.com/Gopher0727/GroupChat/internal/utils"
	logger "github.com/Gopher0727/GroupChat/middleware/log"
)

const (
	// 单条消息最大字符数
	MaxTextLength = 5000
	// 历史消息一次最多返回的条数
	messageListCap = 500
)

// SenderDirectory 发送者资料查询, 用于消息展示
type SenderDirectory interface {
	Lookup(ctx context.Context, ids []string) (map[string]dtos.Sender, error)
}

type MessageOptions struct {
	// 只允许作者本人撤回
	RestrictUnsendToAuthor bool
}

type MessageService struct {
	rooms     repositories.RoomRepository
	messages  repositories.MessageRepository
	directory SenderDirectory
	hub       Broadcaster
	ids       IDGenerator
	log       *logger.Logger
	opts      MessageOptions
	locks     *roomLocks
}

func NewMessageService(
	rooms repositories.RoomRepository,
	messages repositories.MessageRepository,
	directory SenderDirectory,
	hub Broadcaster,
	ids IDGenerator,
	log *logger.Logger,
	opts MessageOptions,
) *MessageService {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &MessageService{
		rooms:     rooms,
		messages:  messages,
		directory: directory,
		hub:       orNop(hub),
		ids:       ids,
		log:       log.Named("messages"),
		opts:      opts,
		locks:     newRoomLocks(),
	}
}

// Author 发送者身份, 来自令牌
type Author struct {
	ID          string
	DisplayName string
	Email       string
}

type SendMessageRequest struct {
	ChatroomID  string            `json:"chatroomId"`
	Text        *string           `json:"text"`
	Attachments []dtos.Attachment `json:"attachments"`
}

type ReactRequest struct {
	Emoji *string `json:"emoji"`
}

// SendMessage 成员在房间内发送消息
func (s *MessageService) SendMessage(ctx context.Context, author Author, req *SendMessageRequest) (*dtos.Message, error) {
	roomID := utils.NormalizeID(req.ChatroomID)
	if roomID == "" || author.ID == "" {
		return nil, ErrMissingParams
	}
	if !utils.ValidID(roomID) {
		return nil, ErrInvalidID
	}

	var text *string
	if req.Text != nil {
		trimmed := strings.TrimSpace(*req.Text)
		if utf8.RuneCountInString(trimmed) > MaxTextLength {
			return nil, ErrTextTooLong
		}
		if trimmed != "" {
			text = &trimmed
		}
	}
	attachments := make([]models.Attachment, 0, len(req.Attachments))
	for _, a := range req.Attachments {
		if strings.TrimSpace(a.URL) == "" {
			continue
		}
		attachments = append(attachments, models.Attachment(a))
	}

	if _, err := s.rooms.GetByID(ctx, roomID); err != nil {
		return nil, mapRoomErr(err)
	}
	member, err := s.rooms.IsMember(ctx, roomID, author.ID)
	if err != nil {
		return nil, mapRoomErr(err)
	}
	if !member {
		return nil, ErrNotMember
	}

	// 同一房间内 ID 顺序与 message:new 的发布顺序一致
	unlock := s.locks.lock("room:" + roomID)
	defer unlock()

	id, err := s.ids.NextString()
	if err != nil {
		return nil, fmt.Errorf("generate message id: %w", err)
	}
	msg := &models.Message{
		ID:          id,
		ChatroomID:  roomID,
		Text:        text,
		UserID:      author.ID,
		UserName:    snapshotName(author),
		Attachments: attachments,
		Reactions:   map[string]string{},
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	out := s.enrichOne(ctx, msg)
	s.hub.Publish(ctx, events.MessageNew{Message: out})
	return out, nil
}

// ListMessages 房间历史消息, 房间 ID 非法时返回空列表
func (s *MessageService) ListMessages(ctx context.Context, rawRoomID string) ([]*dtos.Message, error) {
	out := []*dtos.Message{}
	roomID := utils.NormalizeID(rawRoomID)
	if !utils.ValidID(roomID) {
		return out, nil
	}

	msgs, err := s.messages.ListByRoom(ctx, roomID, messageListCap)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	for i := range msgs {
		out = append(out, dtos.NewMessage(&msgs[i]))
	}
	s.enrich(ctx, out)
	return out, nil
}

// ToggleReaction 同一表情再次点击即取消, emoji 为空也表示取消
func (s *MessageService) ToggleReaction(ctx context.Context, rawMessageID, userID string, emoji *string) (*dtos.Message, error) {
	messageID, err := parseMessageID(rawMessageID, userID)
	if err != nil {
		return nil, err
	}
	e := ""
	if emoji != nil {
		e = strings.TrimSpace(*emoji)
	}

	unlock := s.locks.lock("message:" + messageID)
	defer unlock()

	msg, err := s.messages.ToggleReaction(ctx, messageID, userID, e)
	if err != nil {
		return nil, mapMessageErr(err)
	}

	out := s.enrichOne(ctx, msg)
	s.hub.Publish(ctx, events.MessageReact{Message: out})
	return out, nil
}

// UnsendMessage 撤回消息, 记录保留但清空内容
func (s *MessageService) UnsendMessage(ctx context.Context, rawMessageID, requesterID string) (*dtos.Message, error) {
	messageID, err := parseMessageID(rawMessageID, requesterID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock("message:" + messageID)
	defer unlock()

	if s.opts.RestrictUnsendToAuthor {
		existing, err := s.messages.GetByID(ctx, messageID)
		if err != nil {
			return nil, mapMessageErr(err)
		}
		if existing.UserID != requesterID {
			return nil, ErrNotAuthor
		}
	}

	msg, err := s.messages.MarkDeleted(ctx, messageID, requesterID)
	if err != nil {
		return nil, mapMessageErr(err)
	}

	out := s.enrichOne(ctx, msg)
	s.hub.Publish(ctx, events.MessageUpdated{Message: out})
	return out, nil
}

func (s *MessageService) enrichOne(ctx context.Context, msg *models.Message) *dtos.Message {
	out := dtos.NewMessage(msg)
	s.enrich(ctx, []*dtos.Message{out})
	return out
}

// enrich 批量补充发送者资料, 查询失败只记录日志
func (s *MessageService) enrich(ctx context.Context, msgs []*dtos.Message) {
	if s.directory == nil || len(msgs) == 0 {
		return
	}
	ids := make([]string, 0, len(msgs))
	seen := make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		if _, ok := seen[m.UserID]; ok || m.UserID == "" {
			continue
		}
		seen[m.UserID] = struct{}{}
		ids = append(ids, m.UserID)
	}

	senders, err := s.directory.Lookup(ctx, ids)
	if err != nil {
		s.log.WarnContext(ctx, "sender enrichment failed", zap.Int("authors", len(ids)), zap.Error(err))
		return
	}
	for _, m := range msgs {
		if sender, ok := senders[m.UserID]; ok {
			sender := sender
			m.Sender = &sender
		}
	}
}

func snapshotName(a Author) string {
	switch {
	case strings.TrimSpace(a.DisplayName) != "":
		return a.DisplayName
	case a.Email != "":
		return a.Email
	default:
		return "Unknown"
	}
}

func parseMessageID(raw, actorID string) (string, error) {
	id := utils.NormalizeID(raw)
	if id == "" || actorID == "" {
		return "", ErrMissingParams
	}
	if !utils.ValidID(id) {
		return "", ErrInvalidID
	}
	return id, nil
}

func mapMessageErr(err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrMessageNotFound
	}
	return fmt.Errorf("message store: %w", err)
}
