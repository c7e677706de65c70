package repositories

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/Gopher0727/GroupChat/internal/models"
)

const (
	userCacheKeyPrefix = "user:profile:" // Redis String, 值为资料 JSON
	userCacheTTL       = 1 * time.Hour
)

// cachedProfile 只缓存资料字段, 成员关系与密码哈希不进缓存
type cachedProfile struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Username    string `json:"username"`
	AvatarURL   string `json:"avatarUrl"`
}

// CachedUserRepository 在 GetByIDs 前加一层 Redis 缓存, 其余方法直接透传
type CachedUserRepository struct {
	UserRepository
	redis *redis.Client
}

func NewCachedUserRepository(inner UserRepository, rdb *redis.Client) *CachedUserRepository {
	return &CachedUserRepository{UserRepository: inner, redis: rdb}
}

func userCacheKey(id string) string {
	return userCacheKeyPrefix + id
}

// GetByIDs 先 MGet 缓存, 缺失部分回源后用 pipeline 回填
func (r *CachedUserRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*models.User, error) {
	ids = dedupe(ids)
	if r.redis == nil || len(ids) == 0 {
		return r.UserRepository.GetByIDs(ctx, ids)
	}

	result := make(map[string]*models.User, len(ids))
	var missing []string

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = userCacheKey(id)
	}
	vals, err := r.redis.MGet(ctx, keys...).Result()
	if err != nil {
		missing = ids
	} else {
		for i, val := range vals {
			s, ok := val.(string)
			var p cachedProfile
			if !ok || json.Unmarshal([]byte(s), &p) != nil {
				missing = append(missing, ids[i])
				continue
			}
			result[ids[i]] = &models.User{
				ID:          p.ID,
				Email:       p.Email,
				DisplayName: p.DisplayName,
				Username:    p.Username,
				AvatarURL:   p.AvatarURL,
			}
		}
	}

	if len(missing) == 0 {
		return result, nil
	}
	fetched, err := r.UserRepository.GetByIDs(ctx, missing)
	if err != nil {
		return result, err
	}

	pipe := r.redis.Pipeline()
	for id, u := range fetched {
		result[id] = u
		data, err := json.Marshal(cachedProfile{
			ID:          u.ID,
			Email:       u.Email,
			DisplayName: u.DisplayName,
			Username:    u.Username,
			AvatarURL:   u.AvatarURL,
		})
		if err == nil {
			pipe.Set(ctx, userCacheKey(id), data, userCacheTTL)
		}
	}
	// 回填失败不影响结果
	_, _ = pipe.Exec(ctx)
	return result, nil
}

// UpdateProfile 更新后清除缓存
func (r *CachedUserRepository) UpdateProfile(ctx context.Context, id string, upd models.ProfileUpdate) (*models.User, error) {
	user, err := r.UserRepository.UpdateProfile(ctx, id, upd)
	if err != nil {
		return nil, err
	}
	if r.redis != nil {
		r.redis.Del(ctx, userCacheKey(id))
	}
	return user, nil
}
