package ratelimit

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Limiter decides whether an action identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string, rule Rule) (bool, error)
	Remaining(ctx context.Context, key string, rule Rule) (int, error)
}

// Rule is a fixed window quota.
type Rule struct {
	Limit  int
	Window time.Duration
}

// PerMinute builds a one minute rule; limit <= 0 disables limiting.
func PerMinute(limit int) Rule {
	return Rule{Limit: limit, Window: time.Minute}
}

// WindowLimiter counts actions per fixed time window in Redis with
// INCRBY + EXPIRE in one pipeline.
type WindowLimiter struct {
	client   *redis.Client
	logger   *zap.Logger
	failOpen bool
	now      func() time.Time
}

// NewWindowLimiter creates a Redis backed limiter.
//
// Parameters:
//   - client: Redis client, nil disables limiting entirely
//   - logger: used for limit hits and Redis failures
//   - failOpen: when true a Redis error lets the action through
//
// Returns:
//   - *WindowLimiter: ready to use limiter
func NewWindowLimiter(client *redis.Client, logger *zap.Logger, failOpen bool) *WindowLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WindowLimiter{client: client, logger: logger, failOpen: failOpen, now: time.Now}
}

// Allow consumes one unit of the quota for key.
//
// Returns:
//   - bool: false once more than rule.Limit actions happened in the window
//   - error: Redis failure when the limiter is fail-closed
func (l *WindowLimiter) Allow(ctx context.Context, key string, rule Rule) (bool, error) {
	if l.client == nil || rule.Limit <= 0 {
		return true, nil
	}
	bucket := l.bucketKey(key, rule.Window)

	pipe := l.client.Pipeline()
	incr := pipe.IncrBy(ctx, bucket, 1)
	pipe.Expire(ctx, bucket, rule.Window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		if l.failOpen {
			l.logger.Warn("rate limit check failed, allowing request", zap.String("key", key), zap.Error(err))
			return true, nil
		}
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}

	if count := incr.Val(); count > int64(rule.Limit) {
		l.logger.Info("rate limit exceeded",
			zap.String("key", key),
			zap.Int64("count", count),
			zap.Int("limit", rule.Limit),
		)
		return false, nil
	}
	return true, nil
}

// Remaining reports how many actions are left in the current window.
func (l *WindowLimiter) Remaining(ctx context.Context, key string, rule Rule) (int, error) {
	if l.client == nil || rule.Limit <= 0 {
		return rule.Limit, nil
	}
	count, err := l.client.Get(ctx, l.bucketKey(key, rule.Window)).Int()
	if err == redis.Nil {
		return rule.Limit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read rate limit: %w", err)
	}
	return max(rule.Limit-count, 0), nil
}

func (l *WindowLimiter) bucketKey(key string, window time.Duration) string {
	secs := int64(window / time.Second)
	if secs <= 0 {
		secs = 1
	}
	return fmt.Sprintf("ratelimit:%s:%d", key, l.now().Unix()/secs)
}
