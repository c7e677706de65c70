package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func fixedClock(l *WindowLimiter, at time.Time) {
	l.now = func() time.Time { return at }
}

func TestAllowWithinLimit(t *testing.T) {
	client, _ := setupTestRedis(t)
	l := NewWindowLimiter(client, zap.NewNop(), false)
	fixedClock(l, time.Unix(1_700_000_000, 0))
	ctx := context.Background()
	rule := PerMinute(3)

	for i := range 3 {
		ok, err := l.Allow(ctx, "message:1", rule)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i+1)
	}
	ok, err := l.Allow(ctx, "message:1", rule)
	require.NoError(t, err)
	assert.False(t, ok)

	// 其他用户不受影响
	ok, err = l.Allow(ctx, "message:2", rule)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWindowRollsOver(t *testing.T) {
	client, _ := setupTestRedis(t)
	l := NewWindowLimiter(client, zap.NewNop(), false)
	start := time.Unix(1_700_000_000, 0)
	fixedClock(l, start)
	ctx := context.Background()
	rule := PerMinute(1)

	ok, _ := l.Allow(ctx, "k", rule)
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, "k", rule)
	assert.False(t, ok)

	fixedClock(l, start.Add(time.Minute))
	ok, _ = l.Allow(ctx, "k", rule)
	assert.True(t, ok)
}

func TestRemaining(t *testing.T) {
	client, _ := setupTestRedis(t)
	l := NewWindowLimiter(client, zap.NewNop(), false)
	ctx := context.Background()
	rule := PerMinute(5)

	left, err := l.Remaining(ctx, "k", rule)
	require.NoError(t, err)
	assert.Equal(t, 5, left)

	for range 7 {
		_, _ = l.Allow(ctx, "k", rule)
	}
	left, err = l.Remaining(ctx, "k", rule)
	require.NoError(t, err)
	assert.Equal(t, 0, left)

	left, err = l.Remaining(ctx, "other", rule)
	require.NoError(t, err)
	assert.Equal(t, 5, left)
}

func TestBucketExpires(t *testing.T) {
	client, mr := setupTestRedis(t)
	l := NewWindowLimiter(client, zap.NewNop(), false)
	ctx := context.Background()

	_, err := l.Allow(ctx, "k", PerMinute(1))
	require.NoError(t, err)
	key := l.bucketKey("k", time.Minute)
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Minute+time.Second, mr.TTL(key))
}

func TestRedisDown(t *testing.T) {
	client, mr := setupTestRedis(t)
	mr.Close()
	ctx := context.Background()

	open := NewWindowLimiter(client, zap.NewNop(), true)
	ok, err := open.Allow(ctx, "k", PerMinute(1))
	assert.NoError(t, err)
	assert.True(t, ok)

	closed := NewWindowLimiter(client, zap.NewNop(), false)
	ok, err = closed.Allow(ctx, "k", PerMinute(1))
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestDisabled(t *testing.T) {
	l := NewWindowLimiter(nil, nil, false)
	for range 100 {
		ok, err := l.Allow(context.Background(), "k", PerMinute(1))
		require.NoError(t, err)
		require.True(t, ok)
	}

	client, _ := setupTestRedis(t)
	unlimited := NewWindowLimiter(client, nil, false)
	ok, err := unlimited.Allow(context.Background(), "k", PerMinute(0))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConcurrentAllowNeverExceedsLimit(t *testing.T) {
	client, _ := setupTestRedis(t)
	l := NewWindowLimiter(client, zap.NewNop(), false)
	fixedClock(l, time.Unix(1_700_000_000, 0))
	rule := PerMinute(20)

	var (
		wg      sync.WaitGroup
		allowed atomic.Int32
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := l.Allow(context.Background(), "burst", rule); err == nil && ok {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(20), allowed.Load())
}
