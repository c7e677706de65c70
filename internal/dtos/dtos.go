// Package dtos 定义对外 (HTTP 与实时推送) 共用的响应结构
package dtos

import (
	"time"

	"github.com/Gopher0727/GroupChat/internal/models"
)

type Attachment struct {
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
	Mime string `json:"mime,omitempty"`
}

// Sender 发送者的当前资料, 查询失败时省略
type Sender struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Username    string `json:"username,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

type Message struct {
	ID          string            `json:"id"`
	ChatroomID  string            `json:"chatroomId"`
	Text        *string           `json:"text"`
	UserID      string            `json:"userId"`
	UserName    string            `json:"userName"`
	Attachments []Attachment      `json:"attachments"`
	Reactions   map[string]string `json:"reactions"`
	CreatedAt   time.Time         `json:"createdAt"`
	Deleted     bool              `json:"deleted"`
	DeletedBy   *string           `json:"deletedBy"`
	Sender      *Sender           `json:"sender,omitempty"`
}

type RoomSummary struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Members []string `json:"members"`
	OwnerID *string  `json:"ownerId"`
}

type RoomDetail struct {
	RoomSummary
	CreatedAt time.Time `json:"createdAt"`
}

type User struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	DisplayName     string    `json:"displayName"`
	Username        string    `json:"username"`
	AvatarURL       string    `json:"avatarUrl"`
	JoinedChatrooms []string  `json:"joinedChatrooms"`
	CreatedAt       time.Time `json:"createdAt"`
}

// PublicUser 用户列表中的精简信息
type PublicUser struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Username    string `json:"username"`
	AvatarURL   string `json:"avatarUrl"`
}

func NewMessage(m *models.Message) *Message {
	out := &Message{
		ID:         m.ID,
		ChatroomID: m.ChatroomID,
		Text:       m.Text,
		UserID:     m.UserID,
		UserName:   m.UserName,
		Reactions:  make(map[string]string, len(m.Reactions)),
		CreatedAt:  m.CreatedAt,
		Deleted:    m.Deleted,
		DeletedBy:  m.DeletedBy,
	}
	out.Attachments = make([]Attachment, len(m.Attachments))
	for i, a := range m.Attachments {
		out.Attachments[i] = Attachment(a)
	}
	for k, v := range m.Reactions {
		out.Reactions[k] = v
	}
	return out
}

func NewRoomSummary(c *models.Chatroom) RoomSummary {
	s := RoomSummary{ID: c.ID, Name: c.Name, Members: c.Members}
	if s.Members == nil {
		s.Members = []string{}
	}
	if c.OwnerID != "" {
		owner := c.OwnerID
		s.OwnerID = &owner
	}
	return s
}

func NewRoomDetail(c *models.Chatroom) *RoomDetail {
	return &RoomDetail{RoomSummary: NewRoomSummary(c), CreatedAt: c.CreatedAt}
}

func NewUser(u *models.User) *User {
	joined := u.JoinedChatrooms
	if joined == nil {
		joined = []string{}
	}
	return &User{
		ID:              u.ID,
		Email:           u.Email,
		DisplayName:     u.DisplayName,
		Username:        u.Username,
		AvatarURL:       u.AvatarURL,
		JoinedChatrooms: joined,
		CreatedAt:       u.CreatedAt,
	}
}

func NewPublicUser(u *models.User) PublicUser {
	return PublicUser{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Username:    u.Username,
		AvatarURL:   u.AvatarURL,
	}
}
