package models

import "time"

// Chatroom 聊天室
type Chatroom struct {
	ID        string    `gorm:"primaryKey;size:20" bson:"_id" json:"id"`
	Name      string    `gorm:"not null;size:200" bson:"name" json:"name"`
	OwnerID   string    `gorm:"size:20;index" bson:"owner_id" json:"ownerId"` // 空串表示无房主
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`

	// 按加入顺序排列
	Members []string `gorm:"-" bson:"members" json:"members"`
}

func (Chatroom) TableName() string {
	return "chatrooms"
}

// ChatroomMember 房间成员
type ChatroomMember struct {
	ChatroomID string    `gorm:"primaryKey;size:20"`
	UserID     string    `gorm:"primaryKey;size:20;index"`
	JoinedAt   time.Time `gorm:"not null;index"`
}

func (ChatroomMember) TableName() string {
	return "chatroom_members"
}
