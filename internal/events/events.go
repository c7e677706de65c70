// Package events 定义实时推送的全部事件类型, 每个事件名对应一个 Go 类型
package events

import "github.com/Gopher0727/GroupChat/internal/dtos"

// ScopeKind 事件投递范围
type ScopeKind int

const (
	ScopeGlobal ScopeKind = iota // 所有连接
	ScopeRoom                    // 订阅了该房间的连接
	ScopeUser                    // 该用户的全部连接
)

type Scope struct {
	Kind ScopeKind
	ID   string
}

// Key 作为分片路由与消息流分区键
func (s Scope) Key() string {
	switch s.Kind {
	case ScopeRoom:
		return "room:" + s.ID
	case ScopeUser:
		return "user:" + s.ID
	default:
		return "global"
	}
}

func Global() Scope        { return Scope{Kind: ScopeGlobal} }
func Room(id string) Scope { return Scope{Kind: ScopeRoom, ID: id} }
func User(id string) Scope { return Scope{Kind: ScopeUser, ID: id} }

// Event 封闭的事件集合, 只有本包内的类型可以实现
type Event interface {
	Name() string
	Scope() Scope
	sealed()
}

// Frame 下行帧
type Frame struct {
	Event string `json:"event"`
	Data  Event  `json:"data"`
}

func NewFrame(ev Event) Frame {
	return Frame{Event: ev.Name(), Data: ev}
}

// 事件名
const (
	NameRoomCreated   = "chatroom:created"
	NameRoomDeleted   = "chatroom:deleted"
	NameMemberJoined  = "chatroom:member:joined"
	NameMemberLeft    = "chatroom:member:left"
	NameMemberKicked  = "chatroom:member:kicked"
	NameOwnerChanged  = "chatroom:owner:changed"
	NameKicked        = "chatroom:kicked"
	NameMessageNew    = "message:new"
	NameMessageUpdate = "message:updated"
	NameMessageReact  = "message:react"
	NameUserOnline    = "user:online"
	NameUserOffline   = "user:offline"
)

type RoomCreated struct {
	ID       string `json:"id"`
	RoomName string `json:"name"`
}

func (RoomCreated) Name() string { return NameRoomCreated }
func (RoomCreated) Scope() Scope { return Global() }
func (RoomCreated) sealed()      {}

type RoomDeleted struct {
	ChatroomID string `json:"chatroomId"`
}

func (RoomDeleted) Name() string { return NameRoomDeleted }
func (RoomDeleted) Scope() Scope { return Global() }
func (RoomDeleted) sealed()      {}

// Member 连接订阅房间时附带的用户信息
type Member struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayName"`
}

type MemberJoined struct {
	ChatroomID string  `json:"chatroomId"`
	UserID     string  `json:"userId"`
	User       *Member `json:"user,omitempty"`
}

func (MemberJoined) Name() string   { return NameMemberJoined }
func (e MemberJoined) Scope() Scope { return Room(e.ChatroomID) }
func (MemberJoined) sealed()        {}

type MemberLeft struct {
	ChatroomID string  `json:"chatroomId"`
	UserID     string  `json:"userId"`
	User       *Member `json:"user,omitempty"`
}

func (MemberLeft) Name() string   { return NameMemberLeft }
func (e MemberLeft) Scope() Scope { return Room(e.ChatroomID) }
func (MemberLeft) sealed()        {}

type MemberKicked struct {
	ChatroomID string `json:"chatroomId"`
	UserID     string `json:"userId"`
}

func (MemberKicked) Name() string   { return NameMemberKicked }
func (e MemberKicked) Scope() Scope { return Room(e.ChatroomID) }
func (MemberKicked) sealed()        {}

type OwnerChanged struct {
	ChatroomID string `json:"chatroomId"`
	OwnerID    string `json:"ownerId"`
}

func (OwnerChanged) Name() string   { return NameOwnerChanged }
func (e OwnerChanged) Scope() Scope { return Room(e.ChatroomID) }
func (OwnerChanged) sealed()        {}

// Kicked 定向发给被踢用户的所有连接
type Kicked struct {
	ChatroomID string `json:"chatroomId"`
	UserID     string `json:"-"`
}

func (Kicked) Name() string   { return NameKicked }
func (e Kicked) Scope() Scope { return User(e.UserID) }
func (Kicked) sealed()        {}

type MessageNew struct {
	*dtos.Message
}

func (MessageNew) Name() string   { return NameMessageNew }
func (e MessageNew) Scope() Scope { return Room(e.ChatroomID) }
func (MessageNew) sealed()        {}

type MessageUpdated struct {
	*dtos.Message
}

func (MessageUpdated) Name() string   { return NameMessageUpdate }
func (e MessageUpdated) Scope() Scope { return Room(e.ChatroomID) }
func (MessageUpdated) sealed()        {}

type MessageReact struct {
	*dtos.Message
}

func (MessageReact) Name() string   { return NameMessageReact }
func (e MessageReact) Scope() Scope { return Room(e.ChatroomID) }
func (MessageReact) sealed()        {}

type UserOnline struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayName"`
}

func (UserOnline) Name() string { return NameUserOnline }
func (UserOnline) Scope() Scope { return Global() }
func (UserOnline) sealed()      {}

type UserOffline struct {
	UID string `json:"uid"`
}

func (UserOffline) Name() string { return NameUserOffline }
func (UserOffline) Scope() Scope { return Global() }
func (UserOffline) sealed()      {}
