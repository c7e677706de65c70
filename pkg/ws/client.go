package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Gopher0727/GroupChat/internal/events"
	"github.com/Gopher0727/GroupChat/internal/utils"
	"github.com/Gopher0727/GroupChat/middleware/jwt"
)

const (
	writeWait      = 10 * time.Second    // 允许写入消息到对端的最大时间
	pongWait       = 60 * time.Second    // 允许读取下一个 pong 消息的最大时间
	pingPeriod     = (pongWait * 9) / 10 // 发送 ping 到对端的周期。必须小于 pongWait
	maxMessageSize = 4096                // 允许来自对端的最大消息大小
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// 上行信令类型
const (
	signalJoin  = "join"
	signalLeave = "leave"
)

// inbound 上行帧 {"type": "join", "room": "<id>"}
type inbound struct {
	Type string `json:"type"`
	Room string `json:"room"`
}

// TokenVerifier 校验握手令牌
type TokenVerifier interface {
	Verify(token string) (*jwt.Identity, error)
}

// Client 代表一个 WebSocket 连接; identity 为 nil 表示匿名
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	identity *jwt.Identity

	// 已订阅的房间, 由 hub.mu 保护
	rooms map[string]struct{}

	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(hub *Hub, conn *websocket.Conn, identity *jwt.Identity) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, hub.sendBuffer),
		identity: identity,
		done:     make(chan struct{}),
	}
}

// UserID 匿名连接返回空串
func (c *Client) UserID() string {
	if c.identity == nil {
		return ""
	}
	return c.identity.UserID
}

// enqueue 非阻塞写入发送缓冲, 缓冲已满时返回 false
func (c *Client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) member() *events.Member {
	return &events.Member{UID: c.identity.UserID, DisplayName: c.identity.DisplayName}
}

// handleSignal 处理上行的订阅信令, 非法房间 ID 被忽略;
// 已认证连接订阅或退订时向房间广播 member:joined / member:left
func (c *Client) handleSignal(raw []byte) {
	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.hub.log.Debug("invalid inbound frame", zap.Error(err))
		return
	}
	roomID := utils.NormalizeID(msg.Room)
	if !utils.ValidID(roomID) {
		return
	}
	switch msg.Type {
	case signalJoin:
		if c.hub.Subscribe(c, roomID) && c.identity != nil {
			c.hub.Publish(context.Background(), events.MemberJoined{ChatroomID: roomID, UserID: c.identity.UserID, User: c.member()})
		}
	case signalLeave:
		c.hub.Unsubscribe(c, roomID)
		if c.identity != nil {
			c.hub.Publish(context.Background(), events.MemberLeft{ChatroomID: roomID, UserID: c.identity.UserID, User: c.member()})
		}
	default:
		c.hub.log.Debug("unknown signal", zap.String("type", msg.Type))
	}
}

// readPump 读取上行信令, 连接断开时注销
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("websocket closed", zap.String("user_id", c.UserID()), zap.Error(err))
			}
			return
		}
		c.handleSignal(message)
	}
}

// writePump 把发送缓冲中的帧写到连接, 并定期发送 ping
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			// Hub 注销了该连接
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// ServeWs 升级连接; 令牌缺失或无效时以匿名身份接入
func ServeWs(hub *Hub, verifier TokenVerifier, c *gin.Context) {
	token := jwt.ExtractBearer(c.GetHeader("Authorization"))
	if token == "" {
		token = c.Query("token")
	}

	var identity *jwt.Identity
	if token != "" {
		id, err := verifier.Verify(token)
		if err != nil {
			hub.log.Debug("websocket token rejected, continuing anonymously", zap.Error(err))
		} else {
			identity = id
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hub.log.Warn("升级 websocket 失败", zap.Error(err))
		return
	}

	client := NewClient(hub, conn, identity)
	hub.Register(client)
	go client.writePump()
	go client.readPump()
}
