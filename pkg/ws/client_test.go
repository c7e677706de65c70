package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/GroupChat/internal/events"
	"github.com/Gopher0727/GroupChat/middleware/jwt"
)

func newWsServer(t *testing.T, h *Hub, tokens *jwt.TokenManager) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ServeWs(h, tokens, c) })
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn, name string) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var f frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Event == name {
			return f
		}
	}
}

func TestServeWsAuthenticatedSession(t *testing.T) {
	h := newTestHub(t, Options{})
	tokens := jwt.NewTokenManager("ws-secret", 1)
	url := newWsServer(t, h, tokens)

	token, err := tokens.GenerateToken(jwt.Subject{UserID: "42", Email: "a@example.com", DisplayName: "Alice"})
	require.NoError(t, err)

	conn := dial(t, url+"?token="+token, nil)
	f := readFrame(t, conn, events.NameUserOnline)
	assert.JSONEq(t, `{"uid":"42","displayName":"Alice"}`, string(f.Data))

	// 订阅者自己也会收到加入广播
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "join", "room": "100"}))
	f = readFrame(t, conn, events.NameMemberJoined)
	assert.JSONEq(t, `{"chatroomId":"100","userId":"42","user":{"uid":"42","displayName":"Alice"}}`, string(f.Data))
	assert.Equal(t, 1, h.RoomSubscribers("100"))

	h.Publish(context.Background(), events.MemberJoined{ChatroomID: "100", UserID: "7"})
	f = readFrame(t, conn, events.NameMemberJoined)
	assert.JSONEq(t, `{"chatroomId":"100","userId":"7"}`, string(f.Data))

	h.Publish(context.Background(), events.Kicked{ChatroomID: "100", UserID: "42"})
	readFrame(t, conn, events.NameKicked)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "leave", "room": "100"}))
	require.Eventually(t, func() bool { return h.RoomSubscribers("100") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServeWsBearerHeader(t *testing.T) {
	h := newTestHub(t, Options{})
	tokens := jwt.NewTokenManager("ws-secret", 1)
	url := newWsServer(t, h, tokens)

	token, err := tokens.GenerateToken(jwt.Subject{UserID: "9", Email: "b@example.com"})
	require.NoError(t, err)

	conn := dial(t, url, http.Header{"Authorization": []string{"Bearer " + token}})
	f := readFrame(t, conn, events.NameUserOnline)
	assert.JSONEq(t, `{"uid":"9","displayName":"b@example.com"}`, string(f.Data))
}

func TestServeWsBadTokenDegradesToAnonymous(t *testing.T) {
	h := newTestHub(t, Options{})
	tokens := jwt.NewTokenManager("ws-secret", 1)
	url := newWsServer(t, h, tokens)

	conn := dial(t, url+"?token=garbage", nil)
	require.Eventually(t, func() bool { return h.ConnectionCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	// 匿名连接也能订阅房间
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "join", "room": "5"}))
	require.Eventually(t, func() bool { return h.RoomSubscribers("5") == 1 }, 2*time.Second, 10*time.Millisecond)

	h.Publish(context.Background(), events.RoomDeleted{ChatroomID: "5"})
	readFrame(t, conn, events.NameRoomDeleted)

	conn.Close()
	require.Eventually(t, func() bool { return h.ConnectionCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHandleSignalIgnoresJunk(t *testing.T) {
	h := newTestHub(t, Options{})
	c := connect(h, "1")

	c.handleSignal([]byte(`not json`))
	c.handleSignal([]byte(`{"type":"join","room":"abc"}`))
	c.handleSignal([]byte(`{"type":"dance","room":"12"}`))
	assert.Equal(t, 0, h.RoomSubscribers("12"))

	c.handleSignal([]byte(`{"type":"join","room":" 12 "}`))
	assert.Equal(t, 1, h.RoomSubscribers("12"))
}

func TestSignalBroadcastsRoomPresence(t *testing.T) {
	h := newTestHub(t, Options{Shards: 4})
	alice, watcher, anon := connect(h, "1"), connect(h, ""), connect(h, "")
	h.Subscribe(watcher, "12")

	alice.handleSignal([]byte(`{"type":"join","room":"12"}`))
	f := recvEvent(t, watcher, events.NameMemberJoined)
	assert.JSONEq(t, `{"chatroomId":"12","userId":"1","user":{"uid":"1","displayName":"user-1"}}`, string(f.Data))

	alice.handleSignal([]byte(`{"type":"leave","room":"12"}`))
	f = recvEvent(t, watcher, events.NameMemberLeft)
	assert.JSONEq(t, `{"chatroomId":"12","userId":"1","user":{"uid":"1","displayName":"user-1"}}`, string(f.Data))

	// 匿名连接只订阅, 不广播
	anon.handleSignal([]byte(`{"type":"join","room":"12"}`))
	anon.handleSignal([]byte(`{"type":"leave","room":"12"}`))
	assertSilent(t, watcher, events.NameUserOnline)
}
