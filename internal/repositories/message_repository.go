package repositories

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Gopher0727/GroupChat/internal/models"
)

type GormMessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

func (r *GormMessageRepository) Create(ctx context.Context, msg *models.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return err
	}
	if msg.Reactions == nil {
		msg.Reactions = map[string]string{}
	}
	return nil
}

func (r *GormMessageRepository) GetByID(ctx context.Context, id string) (*models.Message, error) {
	return getMessage(r.db.WithContext(ctx), id)
}

// ListByRoom 返回房间内最早的 limit 条消息
func (r *GormMessageRepository) ListByRoom(ctx context.Context, roomID string, limit int) ([]models.Message, error) {
	db := r.db.WithContext(ctx)
	var msgs []models.Message
	err := db.Where("chatroom_id = ?", roomID).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	if err := loadReactions(db, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *GormMessageRepository) ToggleReaction(ctx context.Context, messageID, userID, emoji string) (*models.Message, error) {
	var out *models.Message
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var msg models.Message
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", messageID).Take(&msg).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var current models.MessageReaction
		err = tx.Where("message_id = ? AND user_id = ?", messageID, userID).Take(&current).Error
		exists := err == nil
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if emoji == "" || (exists && current.Emoji == emoji) {
			if err := tx.Where("message_id = ? AND user_id = ?", messageID, userID).Delete(&models.MessageReaction{}).Error; err != nil {
				return err
			}
		} else {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"emoji", "updated_at"}),
			}).Create(&models.MessageReaction{MessageID: messageID, UserID: userID, Emoji: emoji}).Error
			if err != nil {
				return err
			}
		}

		out, err = getMessage(tx, messageID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkDeleted 撤回: 保留记录, 清空文本与附件
func (r *GormMessageRepository) MarkDeleted(ctx context.Context, messageID, deletedBy string) (*models.Message, error) {
	var out *models.Message
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Message{}).
			Where("id = ?", messageID).
			Select("Deleted", "DeletedBy", "Text", "Attachments").
			Updates(&models.Message{
				Deleted:     true,
				DeletedBy:   &deletedBy,
				Text:        nil,
				Attachments: []models.Attachment{},
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		var err error
		out, err = getMessage(tx, messageID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func getMessage(db *gorm.DB, id string) (*models.Message, error) {
	var msg models.Message
	if err := db.Where("id = ?", id).Take(&msg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	msgs := []models.Message{msg}
	if err := loadReactions(db, msgs); err != nil {
		return nil, err
	}
	return &msgs[0], nil
}

func loadReactions(db *gorm.DB, msgs []models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]string, len(msgs))
	for i := range msgs {
		ids[i] = msgs[i].ID
		msgs[i].Reactions = map[string]string{}
	}

	var rows []models.MessageReaction
	if err := db.Where("message_id IN ?", ids).Find(&rows).Error; err != nil {
		return err
	}
	idx := make(map[string]int, len(msgs))
	for i := range msgs {
		idx[msgs[i].ID] = i
	}
	for _, row := range rows {
		if i, ok := idx[row.MessageID]; ok {
			msgs[i].Reactions[row.UserID] = row.Emoji
		}
	}
	return nil
}
