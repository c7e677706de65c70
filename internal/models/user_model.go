package models

import "time"

// User 用户模型
type User struct {
	ID           string    `gorm:"primaryKey;size:20" bson:"_id" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null;size:320" bson:"email" json:"email"`
	PasswordHash string    `gorm:"not null" bson:"password_hash" json:"-"`
	DisplayName  string    `gorm:"size:100" bson:"display_name" json:"displayName"`
	Username     string    `gorm:"size:100" bson:"username" json:"username"`
	AvatarURL    string    `gorm:"size:1024" bson:"avatar_url" json:"avatarUrl"`
	CreatedAt    time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updatedAt"`

	// 关系型后端由 user_chatrooms 表维护, 文档型后端直接内嵌
	JoinedChatrooms []string `gorm:"-" bson:"joined_chatrooms" json:"joinedChatrooms"`
}

func (User) TableName() string {
	return "users"
}

// ProfileUpdate 资料修改, nil 表示不修改该字段
type ProfileUpdate struct {
	DisplayName *string
	Username    *string
	AvatarURL   *string
}

// Empty 没有任何字段需要修改
func (p ProfileUpdate) Empty() bool {
	return p.DisplayName == nil && p.Username == nil && p.AvatarURL == nil
}

// UserChatroom 用户已加入房间的冗余缓存, 与 chatroom_members 在同一事务内维护
type UserChatroom struct {
	UserID     string `gorm:"primaryKey;size:20"`
	ChatroomID string `gorm:"primaryKey;size:20;index"`
}

func (UserChatroom) TableName() string {
	return "user_chatrooms"
}
