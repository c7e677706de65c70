package ws

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/Gopher0727/GroupChat/internal/events"
	"github.com/Gopher0727/GroupChat/internal/metrics"
	logger "github.com/Gopher0727/GroupChat/middleware/log"
	"github.com/Gopher0727/GroupChat/utils/consistenthash"
)

// EventSink 事件镜像目标, 例如 Kafka
type EventSink interface {
	SendMessage(key string, message any) error
}

type Options struct {
	Shards     int       // 分发协程数
	QueueSize  int       // 每个分片的队列长度
	SendBuffer int       // 每个连接的发送缓冲
	Sink       EventSink // 可选
}

// Hub 维护活跃连接与订阅关系, 并把事件分发到对应连接
type Hub struct {
	// 注册的客户端
	clients map[*Client]struct{}

	// 房间 ID -> 订阅了该房间的客户端
	rooms map[string]map[*Client]struct{}

	// 用户 ID -> 该用户的全部客户端, 只包含已认证连接
	users map[string]map[*Client]struct{}

	// 保护以上 map 与 Client.rooms
	mu sync.RWMutex

	// 分片队列, 同一 scope 的事件总是进入同一分片, 保证顺序
	shards     []chan events.Event
	ring       *consistenthash.Ring
	shardIndex map[string]int

	sink      EventSink
	sinkQueue chan events.Event

	sendBuffer int
	log        *logger.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

func NewHub(opts Options, log *logger.Logger) *Hub {
	if opts.Shards <= 0 {
		opts.Shards = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	h := &Hub{
		clients:    make(map[*Client]struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
		users:      make(map[string]map[*Client]struct{}),
		shards:     make([]chan events.Event, opts.Shards),
		ring:       consistenthash.New(0, nil),
		shardIndex: make(map[string]int, opts.Shards),
		sink:       opts.Sink,
		sendBuffer: opts.SendBuffer,
		log:        log.Named("hub"),
		done:       make(chan struct{}),
	}
	for i := range h.shards {
		name := "shard-" + strconv.Itoa(i)
		h.shards[i] = make(chan events.Event, opts.QueueSize)
		h.shardIndex[name] = i
		h.ring.Add(name)
	}
	if h.sink != nil {
		h.sinkQueue = make(chan events.Event, opts.QueueSize)
	}
	return h
}

// Start 启动分发协程, 多次调用只生效一次
func (h *Hub) Start() {
	h.startOnce.Do(func() {
		for i := range h.shards {
			h.wg.Add(1)
			go h.runShard(h.shards[i])
		}
		if h.sink != nil {
			h.wg.Add(1)
			go h.runSink()
		}
	})
}

// Stop 停止分发并断开所有连接, 之后的 Publish 直接丢弃
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		h.mu.RLock()
		clients := make([]*Client, 0, len(h.clients))
		for c := range h.clients {
			clients = append(clients, c)
		}
		h.mu.RUnlock()
		for _, c := range clients {
			h.Unregister(c)
		}
	})
}

// Publish 非阻塞投递事件; 分片队列已满时丢弃并计数
func (h *Hub) Publish(ctx context.Context, ev events.Event) {
	if !h.dispatch(ctx, ev) {
		return
	}

	if h.sinkQueue != nil {
		select {
		case h.sinkQueue <- ev:
		default:
			h.log.WarnContext(ctx, "sink queue full, event not mirrored", zap.String("event", ev.Name()))
		}
	}
}

// dispatch 放入分片队列, hub 已停止时返回 false
func (h *Hub) dispatch(ctx context.Context, ev events.Event) bool {
	select {
	case <-h.done:
		return false
	default:
	}

	key := ev.Scope().Key()
	select {
	case h.shards[h.shardFor(key)] <- ev:
		metrics.EventsPublished.WithLabelValues(ev.Name()).Inc()
	default:
		metrics.EventsDropped.Inc()
		h.log.WarnContext(ctx, "dispatcher queue full, event dropped",
			zap.String("event", ev.Name()),
			zap.String("scope", key),
		)
	}
	return true
}

func (h *Hub) shardFor(key string) int {
	return h.shardIndex[h.ring.Get(key)]
}

// Register 登记连接; 已认证连接广播上线
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	if uid := c.UserID(); uid != "" {
		addTo(h.users, uid, c)
	}
	h.mu.Unlock()

	metrics.WsConnections.Inc()
	if c.identity != nil {
		h.Publish(context.Background(), events.UserOnline{UID: c.identity.UserID, DisplayName: c.identity.DisplayName})
	}
}

// Unregister 注销连接并退出全部房间, 重复调用无副作用
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for roomID := range c.rooms {
		removeFrom(h.rooms, roomID, c)
	}
	c.rooms = nil
	if uid := c.UserID(); uid != "" {
		removeFrom(h.users, uid, c)
	}
	h.mu.Unlock()

	c.close()
	metrics.WsConnections.Dec()
	if uid := c.UserID(); uid != "" {
		h.Publish(context.Background(), events.UserOffline{UID: uid})
	}
}

// Subscribe 订阅房间事件, 幂等; 未注册的连接返回 false
func (h *Hub) Subscribe(c *Client, roomID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return false
	}
	if c.rooms == nil {
		c.rooms = make(map[string]struct{})
	}
	c.rooms[roomID] = struct{}{}
	addTo(h.rooms, roomID, c)
	return true
}

// Unsubscribe 取消订阅, 未订阅时什么也不做
func (h *Hub) Unsubscribe(c *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(c.rooms, roomID)
	removeFrom(h.rooms, roomID, c)
}

// ConnectionCount 当前连接数
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSubscribers 房间的订阅连接数
func (h *Hub) RoomSubscribers(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

func (h *Hub) runShard(queue chan events.Event) {
	defer h.wg.Done()
	for {
		select {
		case <-h.done:
			return
		case ev := <-queue:
			h.deliver(ev)
		}
	}
}

func (h *Hub) runSink() {
	defer h.wg.Done()
	for {
		select {
		case <-h.done:
			return
		case ev := <-h.sinkQueue:
			if err := h.sink.SendMessage(ev.Scope().Key(), events.NewFrame(ev)); err != nil {
				h.log.Warn("mirror event failed", zap.String("event", ev.Name()), zap.Error(err))
			}
		}
	}
}

// deliver 把事件写入目标连接的发送缓冲, 缓冲已满的连接被断开
func (h *Hub) deliver(ev events.Event) {
	data, err := json.Marshal(events.NewFrame(ev))
	if err != nil {
		h.log.Error("encode event failed", zap.String("event", ev.Name()), zap.Error(err))
		return
	}

	var slow []*Client

	h.mu.RLock()
	scope := ev.Scope()
	switch scope.Kind {
	case events.ScopeRoom:
		for c := range h.rooms[scope.ID] {
			if !c.enqueue(data) {
				slow = append(slow, c)
			}
		}
	case events.ScopeUser:
		for c := range h.users[scope.ID] {
			if !c.enqueue(data) {
				slow = append(slow, c)
			}
		}
	default:
		for c := range h.clients {
			if !c.enqueue(data) {
				slow = append(slow, c)
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		metrics.SlowClientsDropped.Inc()
		h.log.Warn("send buffer full, dropping connection", zap.String("user_id", c.UserID()))
		h.Unregister(c)
	}
}

func addTo(index map[string]map[*Client]struct{}, key string, c *Client) {
	set, ok := index[key]
	if !ok {
		set = make(map[*Client]struct{})
		index[key] = set
	}
	set[c] = struct{}{}
}

func removeFrom(index map[string]map[*Client]struct{}, key string, c *Client) {
	set, ok := index[key]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(index, key)
	}
}
