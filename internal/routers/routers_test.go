package routers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/GroupChat/internal/handlers"
	"github.com/Gopher0727/GroupChat/internal/repositories"
	"github.com/Gopher0727/GroupChat/internal/services"
	"github.com/Gopher0727/GroupChat/internal/storage"
	"github.com/Gopher0727/GroupChat/internal/utils"
	"github.com/Gopher0727/GroupChat/middleware/jwt"
	logger "github.com/Gopher0727/GroupChat/middleware/log"
	"github.com/Gopher0727/GroupChat/pkg/ws"
	"github.com/Gopher0727/GroupChat/utils/ratelimit"
	"github.com/Gopher0727/GroupChat/utils/snowflake"
)

type api struct {
	t *testing.T
	r *gin.Engine
}

func newAPI(t *testing.T) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := storage.InitSQLiteMemory(uuid.NewString())
	require.NoError(t, err)
	ids, err := snowflake.NewGenerator(6)
	require.NoError(t, err)
	blobs, err := storage.NewLocalBlobStore(t.TempDir(), "/uploads")
	require.NoError(t, err)

	log := logger.NewNopLogger()
	tokens := jwt.NewTokenManager("router-secret", 1)
	hub := ws.NewHub(ws.Options{}, log)
	hub.Start()
	t.Cleanup(hub.Stop)
	pool := utils.NewWorkerPool(4, 16, log)
	pool.Start()
	t.Cleanup(pool.Stop)

	roomRepo := repositories.NewRoomRepository(db)
	users := services.NewUserService(repositories.NewUserRepository(db), tokens, ids, log)
	rooms := services.NewRoomService(roomRepo, hub, ids, log)
	messages := services.NewMessageService(roomRepo, repositories.NewMessageRepository(db), users, hub, ids, log, services.MessageOptions{})

	r := gin.New()
	SetupRoutes(r, Deps{
		Auth:        handlers.NewAuthHandler(users, log),
		Rooms:       handlers.NewRoomHandler(rooms, log),
		Messages:    handlers.NewMessageHandler(messages, log),
		Files:       handlers.NewFileHandler(blobs, log),
		Hub:         hub,
		Verifier:    tokens,
		Pool:        pool,
		Limiter:     ratelimit.NewWindowLimiter(nil, nil, true),
		MessageRule: ratelimit.PerMinute(60),
		Log:         log,
	})
	return &api{t: t, r: r}
}

func (a *api) call(method, path, token string, body any, out any) int {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	if out != nil {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w.Code
}

func (a *api) signup(email, name string) services.AuthResponse {
	a.t.Helper()
	var resp services.AuthResponse
	code := a.call(http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"email": email, "password": "pw-" + name, "displayName": name,
	}, &resp)
	require.Equal(a.t, http.StatusCreated, code)
	return resp
}

type errorBody struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func TestAuthRoutes(t *testing.T) {
	a := newAPI(t)
	alice := a.signup("alice@example.com", "Alice")
	require.NotEmpty(t, alice.Token)

	var dup errorBody
	code := a.call(http.MethodPost, "/api/v1/auth/signup", "", map[string]string{"email": "alice@example.com", "password": "x"}, &dup)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, errorBody{OK: false, Error: "conflict", Message: dup.Message}, dup)

	var login services.AuthResponse
	code = a.call(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "alice@example.com", "password": "pw-Alice"}, &login)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, alice.User.ID, login.User.ID)

	var bad errorBody
	code = a.call(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "alice@example.com", "password": "nope"}, &bad)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "invalid-credentials", bad.Error)

	var me map[string]any
	code = a.call(http.MethodGet, "/api/v1/auth/me", alice.Token, nil, &me)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Alice", me["displayName"])
	assert.NotContains(t, me, "passwordHash")

	code = a.call(http.MethodPatch, "/api/v1/auth/me", alice.Token, map[string]string{"username": "al"}, &me)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "al", me["username"])

	code = a.call(http.MethodGet, "/api/v1/auth/me", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	var users []map[string]any
	code = a.call(http.MethodGet, "/api/v1/auth/users", "", nil, &users)
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, users, 1)
}

func TestRoomAndMessageRoutes(t *testing.T) {
	a := newAPI(t)
	alice := a.signup("alice@example.com", "Alice")
	bob := a.signup("bob@example.com", "Bob")

	var room struct {
		ID      string   `json:"id"`
		Name    string   `json:"name"`
		Members []string `json:"members"`
		OwnerID string   `json:"ownerId"`
	}
	code := a.call(http.MethodPost, "/api/v1/chatrooms", alice.Token, map[string]string{"name": "Lobby"}, &room)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, alice.User.ID, room.OwnerID)

	var denied errorBody
	code = a.call(http.MethodPost, "/api/v1/messages", bob.Token, map[string]any{"chatroomId": room.ID, "text": "hi"}, &denied)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "not-member", denied.Error)

	var joined services.JoinRoomResponse
	code = a.call(http.MethodPost, "/api/v1/chatrooms/"+room.ID+"/join", bob.Token, nil, &joined)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, services.JoinRoomResponse{OK: true, ID: room.ID, Name: "Lobby"}, joined)

	var msg struct {
		ID        string            `json:"id"`
		Text      string            `json:"text"`
		Reactions map[string]string `json:"reactions"`
		Deleted   bool              `json:"deleted"`
	}
	code = a.call(http.MethodPost, "/api/v1/messages", bob.Token, map[string]any{"chatroomId": room.ID, "text": "hi"}, &msg)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "hi", msg.Text)

	code = a.call(http.MethodPost, "/api/v1/messages/"+msg.ID+"/react", alice.Token, map[string]any{"emoji": "👍"}, &msg)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]string{alice.User.ID: "👍"}, msg.Reactions)

	code = a.call(http.MethodPost, "/api/v1/messages/"+msg.ID+"/unsend", bob.Token, nil, &msg)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, msg.Deleted)

	var list []map[string]any
	code = a.call(http.MethodGet, "/api/v1/messages/chatroom/"+room.ID, "", nil, &list)
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, list, 1)
	assert.Nil(t, list[0]["text"])

	var forbidden errorBody
	code = a.call(http.MethodPost, "/api/v1/chatrooms/"+room.ID+"/kick", bob.Token, map[string]string{"targetUserId": alice.User.ID}, &forbidden)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "not-owner", forbidden.Error)

	code = a.call(http.MethodPost, "/api/v1/chatrooms/"+room.ID+"/kick", alice.Token, map[string]string{"targetUserId": bob.User.ID}, nil)
	assert.Equal(t, http.StatusOK, code)

	code = a.call(http.MethodGet, "/api/v1/chatrooms/"+room.ID, "", nil, &room)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{alice.User.ID}, room.Members)

	var mine []map[string]any
	code = a.call(http.MethodGet, "/api/v1/chatrooms", bob.Token, nil, &mine)
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, mine)

	var left services.LeaveRoomResponse
	code = a.call(http.MethodPost, "/api/v1/chatrooms/"+room.ID+"/leave", alice.Token, nil, &left)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, left.Deleted)

	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/chatrooms/"+room.ID, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "null", w.Body.String())

	var missing errorBody
	code = a.call(http.MethodDelete, "/api/v1/chatrooms/"+room.ID, alice.Token, nil, &missing)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not-found", missing.Error)

	var invalid errorBody
	code = a.call(http.MethodPost, "/api/v1/chatrooms/abc/join", alice.Token, nil, &invalid)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid-id", invalid.Error)
}

func TestHealth(t *testing.T) {
	a := newAPI(t)
	var body map[string]any
	code := a.call(http.MethodGet, "/health", "", nil, &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "groupchat_ws_connections")
}
