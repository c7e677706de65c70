package repositories

import (
	"context"
	"errors"
	"strings"

	"github.com/Gopher0727/GroupChat/internal/models"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("record not found")
	// ErrOwnerMismatch 条件写入要求的房主与当前房主不一致
	ErrOwnerMismatch = errors.New("owner mismatch")
)

// DuplicateError 唯一约束冲突, Fields 为冲突字段
type DuplicateError struct {
	Fields []string
}

func (e *DuplicateError) Error() string {
	return "duplicate value for " + strings.Join(e.Fields, ", ")
}

// Removal 移除成员后的结果
type Removal struct {
	Removed     bool   // 用户确实是成员并已移除
	RoomDeleted bool   // 房间因无人而被删除
	NewOwnerID  string // 发生了房主转移时为新房主
}

// RoomRepository 房间与成员关系存储
type RoomRepository interface {
	Create(ctx context.Context, room *models.Chatroom) error
	GetByID(ctx context.Context, id string) (*models.Chatroom, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]models.Chatroom, error)
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
	// AddMember 幂等加入, 返回是否新加入
	AddMember(ctx context.Context, roomID, userID string) (bool, error)
	// RemoveMember 移除成员并处理清空删除与房主转移, requiredOwner 非空时要求其为当前房主
	RemoveMember(ctx context.Context, roomID, userID, requiredOwner string) (*Removal, error)
	// Delete 删除房间, requiredOwner 非空时要求其为当前房主
	Delete(ctx context.Context, roomID, requiredOwner string) error
	// ReconcileMemberships 依据房间成员重建用户的已加入房间缓存, 返回修正条数
	ReconcileMemberships(ctx context.Context) (int64, error)
}

// MessageRepository 消息存储
type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	GetByID(ctx context.Context, id string) (*models.Message, error)
	// ListByRoom 按 createdAt 升序, id 作为次序键
	ListByRoom(ctx context.Context, roomID string, limit int) ([]models.Message, error)
	// ToggleReaction emoji 为空或与现有相同则移除, 否则设置
	ToggleReaction(ctx context.Context, messageID, userID, emoji string) (*models.Message, error)
	MarkDeleted(ctx context.Context, messageID, deletedBy string) (*models.Message, error)
}

// UserRepository 用户存储
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]*models.User, error)
	UpdateProfile(ctx context.Context, id string, upd models.ProfileUpdate) (*models.User, error)
	List(ctx context.Context, limit int) ([]models.User, error)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
