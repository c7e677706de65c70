package repositories

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Gopher0727/GroupChat/internal/models"
)

// RoomRepository 的 gorm 实现, 成员写入与 user_chatrooms 缓存在同一事务内完成
type GormRoomRepository struct {
	db *gorm.DB
}

func NewRoomRepository(db *gorm.DB) *GormRoomRepository {
	return &GormRoomRepository{db: db}
}

// Create 创建房间, 创建者成为唯一成员与房主
func (r *GormRoomRepository) Create(ctx context.Context, room *models.Chatroom) error {
	now := time.Now().UTC()
	if room.CreatedAt.IsZero() {
		room.CreatedAt = now
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(room).Error; err != nil {
			return err
		}
		if err := tx.Create(&models.ChatroomMember{ChatroomID: room.ID, UserID: room.OwnerID, JoinedAt: now}).Error; err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.UserChatroom{UserID: room.OwnerID, ChatroomID: room.ID}).Error
	})
	if err != nil {
		return err
	}
	room.Members = []string{room.OwnerID}
	return nil
}

func (r *GormRoomRepository) GetByID(ctx context.Context, id string) (*models.Chatroom, error) {
	db := r.db.WithContext(ctx)
	var room models.Chatroom
	if err := db.Where("id = ?", id).Take(&room).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rooms := []models.Chatroom{room}
	if err := loadMembers(db, rooms); err != nil {
		return nil, err
	}
	return &rooms[0], nil
}

// ListForUser 用户是成员或房主的房间
func (r *GormRoomRepository) ListForUser(ctx context.Context, userID string, limit int) ([]models.Chatroom, error) {
	db := r.db.WithContext(ctx)
	joined := db.Model(&models.ChatroomMember{}).Select("chatroom_id").Where("user_id = ?", userID)

	var rooms []models.Chatroom
	err := db.Where("id IN (?) OR owner_id = ?", joined, userID).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&rooms).Error
	if err != nil {
		return nil, err
	}
	if err := loadMembers(db, rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

func (r *GormRoomRepository) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ChatroomMember{}).
		Where("chatroom_id = ? AND user_id = ?", roomID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *GormRoomRepository) AddMember(ctx context.Context, roomID, userID string) (bool, error) {
	var added bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockRoom(tx, roomID); err != nil {
			return err
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.ChatroomMember{ChatroomID: roomID, UserID: userID, JoinedAt: time.Now().UTC()})
		if res.Error != nil {
			return res.Error
		}
		added = res.RowsAffected > 0
		return tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.UserChatroom{UserID: userID, ChatroomID: roomID}).Error
	})
	return added, err
}

func (r *GormRoomRepository) RemoveMember(ctx context.Context, roomID, userID, requiredOwner string) (*Removal, error) {
	out := &Removal{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		room, err := lockRoom(tx, roomID)
		if err != nil {
			return err
		}
		if requiredOwner != "" && room.OwnerID != requiredOwner {
			return ErrOwnerMismatch
		}

		res := tx.Where("chatroom_id = ? AND user_id = ?", roomID, userID).Delete(&models.ChatroomMember{})
		if res.Error != nil {
			return res.Error
		}
		// 缓存无论如何都清理一次, 修正历史不一致
		if err := tx.Where("user_id = ? AND chatroom_id = ?", userID, roomID).Delete(&models.UserChatroom{}).Error; err != nil {
			return err
		}
		if res.RowsAffected == 0 {
			return nil
		}
		out.Removed = true

		var next models.ChatroomMember
		err = tx.Where("chatroom_id = ?", roomID).Order("joined_at ASC, user_id ASC").Take(&next).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			out.RoomDeleted = true
			return deleteRoomTx(tx, roomID)
		}
		if err != nil {
			return err
		}

		if room.OwnerID == userID {
			if err := tx.Model(&models.Chatroom{}).Where("id = ?", roomID).Update("owner_id", next.UserID).Error; err != nil {
				return err
			}
			out.NewOwnerID = next.UserID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *GormRoomRepository) Delete(ctx context.Context, roomID, requiredOwner string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		room, err := lockRoom(tx, roomID)
		if err != nil {
			return err
		}
		if requiredOwner != "" && room.OwnerID != requiredOwner {
			return ErrOwnerMismatch
		}
		return deleteRoomTx(tx, roomID)
	})
}

func (r *GormRoomRepository) ReconcileMemberships(ctx context.Context) (int64, error) {
	var fixed int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Exec(`DELETE FROM user_chatrooms WHERE NOT EXISTS (
			SELECT 1 FROM chatroom_members m
			WHERE m.chatroom_id = user_chatrooms.chatroom_id AND m.user_id = user_chatrooms.user_id)`)
		if res.Error != nil {
			return res.Error
		}
		fixed += res.RowsAffected

		res = tx.Exec(`INSERT INTO user_chatrooms (user_id, chatroom_id)
			SELECT user_id, chatroom_id FROM chatroom_members WHERE true
			ON CONFLICT DO NOTHING`)
		if res.Error != nil {
			return res.Error
		}
		fixed += res.RowsAffected
		return nil
	})
	return fixed, err
}

// lockRoom 读取并锁定房间行 (SQLite 忽略行锁, 依赖单连接串行)
func lockRoom(tx *gorm.DB, roomID string) (*models.Chatroom, error) {
	var room models.Chatroom
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", roomID).Take(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func deleteRoomTx(tx *gorm.DB, roomID string) error {
	if err := tx.Where("chatroom_id = ?", roomID).Delete(&models.ChatroomMember{}).Error; err != nil {
		return err
	}
	if err := tx.Where("chatroom_id = ?", roomID).Delete(&models.UserChatroom{}).Error; err != nil {
		return err
	}
	return tx.Where("id = ?", roomID).Delete(&models.Chatroom{}).Error
}

func loadMembers(db *gorm.DB, rooms []models.Chatroom) error {
	if len(rooms) == 0 {
		return nil
	}
	ids := make([]string, len(rooms))
	for i := range rooms {
		ids[i] = rooms[i].ID
	}

	var rows []models.ChatroomMember
	if err := db.Where("chatroom_id IN ?", ids).Order("joined_at ASC, user_id ASC").Find(&rows).Error; err != nil {
		return err
	}
	byRoom := make(map[string][]string, len(rooms))
	for _, m := range rows {
		byRoom[m.ChatroomID] = append(byRoom[m.ChatroomID], m.UserID)
	}
	for i := range rooms {
		rooms[i].Members = byRoom[rooms[i].ID]
		if rooms[i].Members == nil {
			rooms[i].Members = []string{}
		}
	}
	return nil
}
