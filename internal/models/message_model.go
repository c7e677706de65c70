package models

import "time"

// Attachment 附件只保存 URL, 文件本身在 blob 存储中
type Attachment struct {
	URL  string `bson:"url" json:"url"`
	Name string `bson:"name,omitempty" json:"name,omitempty"`
	Mime string `bson:"mime,omitempty" json:"mime,omitempty"`
}

// Message 消息模型, 撤回后保留记录并清空内容
type Message struct {
	ID          string       `gorm:"primaryKey;size:20" bson:"_id" json:"id"`
	ChatroomID  string       `gorm:"not null;size:20;index:idx_messages_room_time,priority:1" bson:"chatroom_id" json:"chatroomId"`
	Text        *string      `bson:"text" json:"text"`
	UserID      string       `gorm:"not null;size:20" bson:"user_id" json:"userId"`
	UserName    string       `gorm:"size:320" bson:"user_name" json:"userName"`
	Attachments []Attachment `gorm:"serializer:json" bson:"attachments" json:"attachments"`
	CreatedAt   time.Time    `gorm:"index:idx_messages_room_time,priority:2" bson:"created_at" json:"createdAt"`
	Deleted     bool         `gorm:"not null;default:false" bson:"deleted" json:"deleted"`
	DeletedBy   *string      `gorm:"size:20" bson:"deleted_by" json:"deletedBy"`

	// userId -> emoji, 关系型后端存于 message_reactions
	Reactions map[string]string `gorm:"-" bson:"reactions" json:"reactions"`
}

func (Message) TableName() string {
	return "messages"
}

// MessageReaction 每个用户对一条消息至多一个表情
type MessageReaction struct {
	MessageID string `gorm:"primaryKey;size:20"`
	UserID    string `gorm:"primaryKey;size:20"`
	Emoji     string `gorm:"not null;size:64"`
	UpdatedAt time.Time
}

func (MessageReaction) TableName() string {
	return "message_reactions"
}

// All 返回需要迁移的全部模型
func All() []any {
	return []any{
		&User{},
		&UserChatroom{},
		&Chatroom{},
		&ChatroomMember{},
		&Message{},
		&MessageReaction{},
	}
}
