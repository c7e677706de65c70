package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/Gopher0727/GroupChat/internal/models"
)

type GormUserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

// Create 创建用户, 邮箱冲突返回 *DuplicateError
func (r *GormUserRepository) Create(ctx context.Context, user *models.User) error {
	err := r.db.WithContext(ctx).Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &DuplicateError{Fields: []string{"email"}}
	}
	if err != nil {
		return err
	}
	if user.JoinedChatrooms == nil {
		user.JoinedChatrooms = []string{}
	}
	return nil
}

// GetByID 返回用户及其已加入的房间
func (r *GormUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	db := r.db.WithContext(ctx)
	var user models.User
	if err := db.Where("id = ?", id).Take(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var joined []string
	if err := db.Model(&models.UserChatroom{}).Where("user_id = ?", id).Order("chatroom_id").Pluck("chatroom_id", &joined).Error; err != nil {
		return nil, err
	}
	if joined == nil {
		joined = []string{}
	}
	user.JoinedChatrooms = joined
	return &user, nil
}

func (r *GormUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).Take(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetByIDs 批量获取, 不存在的 id 不出现在结果中
func (r *GormUserRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*models.User, error) {
	ids = dedupe(ids)
	result := make(map[string]*models.User, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var users []models.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for i := range users {
		result[users[i].ID] = &users[i]
	}
	return result, nil
}

func (r *GormUserRepository) UpdateProfile(ctx context.Context, id string, upd models.ProfileUpdate) (*models.User, error) {
	updates := map[string]any{}
	if upd.DisplayName != nil {
		updates["display_name"] = *upd.DisplayName
	}
	if upd.Username != nil {
		updates["username"] = *upd.Username
	}
	if upd.AvatarURL != nil {
		updates["avatar_url"] = *upd.AvatarURL
	}
	if len(updates) > 0 {
		res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, ErrNotFound
		}
	}
	return r.GetByID(ctx, id)
}

func (r *GormUserRepository) List(ctx context.Context, limit int) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).Order("created_at ASC, id ASC").Limit(limit).Find(&users).Error
	return users, err
}
