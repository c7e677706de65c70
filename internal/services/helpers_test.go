package services

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Gopher0727/GroupChat/internal/events"
	"github.com/Gopher0727/GroupChat/internal/repositories"
	"github.com/Gopher0727/GroupChat/internal/storage"
	"github.com/Gopher0727/GroupChat/middleware/jwt"
	"github.com/Gopher0727/GroupChat/utils/snowflake"
)

// recordingHub 按发布顺序记录事件
type recordingHub struct {
	mu     sync.Mutex
	events []events.Event
}

func (h *recordingHub) Publish(_ context.Context, ev events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *recordingHub) names() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.events))
	for _, ev := range h.events {
		out = append(out, ev.Name())
	}
	return out
}

func (h *recordingHub) all() []events.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]events.Event(nil), h.events...)
}

func (h *recordingHub) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = nil
}

type testEnv struct {
	db       *gorm.DB
	hub      *recordingHub
	tokens   *jwt.TokenManager
	rooms    *RoomService
	messages *MessageService
	users    *UserService
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := storage.InitSQLiteMemory(uuid.NewString())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newTestEnv(t *testing.T, opts MessageOptions) *testEnv {
	t.Helper()
	db := newTestDB(t)
	ids, err := snowflake.NewGenerator(1)
	require.NoError(t, err)

	hub := &recordingHub{}
	tokens := jwt.NewTokenManager("test-secret", 1)
	roomRepo := repositories.NewRoomRepository(db)
	users := NewUserService(repositories.NewUserRepository(db), tokens, ids, nil)

	return &testEnv{
		db:       db,
		hub:      hub,
		tokens:   tokens,
		rooms:    NewRoomService(roomRepo, hub, ids, nil),
		messages: NewMessageService(roomRepo, repositories.NewMessageRepository(db), users, hub, ids, nil, opts),
		users:    users,
	}
}

// signup 注册用户并返回其 ID
func (e *testEnv) signup(t *testing.T, name string) string {
	t.Helper()
	resp, err := e.users.Signup(context.Background(), &SignupRequest{
		Email:       name + "-" + uuid.NewString()[:8] + "@example.com",
		Password:    "secret123",
		DisplayName: name,
	})
	require.NoError(t, err)
	return resp.User.ID
}

// createRoom 创建房间并清空事件记录
func (e *testEnv) createRoom(t *testing.T, ownerID, name string) string {
	t.Helper()
	room, err := e.rooms.CreateRoom(context.Background(), ownerID, &CreateRoomRequest{Name: name})
	require.NoError(t, err)
	e.hub.reset()
	return room.ID
}

func (e *testEnv) join(t *testing.T, roomID, userID string) {
	t.Helper()
	_, err := e.rooms.JoinRoom(context.Background(), roomID, userID)
	require.NoError(t, err)
	e.hub.reset()
}

func strPtr(s string) *string { return &s }
