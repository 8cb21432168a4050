package stream

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/BaSui01/agora/internal/metrics"
	"github.com/BaSui01/agora/ranking"
)

// UpdateTypeStatus 状态推送消息类型
const UpdateTypeStatus = "status"

// StatusSource 提供房间状态并负责缓存失效，由 ranking.Engine 实现
type StatusSource interface {
	RoomStatus(ctx context.Context, roomID uint) ([]ranking.PersonaStatus, error)
	Invalidate(ctx context.Context, roomIDs ...uint)
	InvalidateAll(ctx context.Context)
}

// Update 推送给订阅者的房间状态快照
type Update struct {
	Type     string                  `json:"type"`
	RoomID   uint                    `json:"room_id"`
	Personas []ranking.PersonaStatus `json:"personas"`
	LEDs     []ranking.LEDStatus     `json:"leds"`
	At       time.Time               `json:"at"`
}

// Config Hub 参数
type Config struct {
	// SendBuffer 每个连接的待发送队列长度，满时丢弃最旧的一条
	SendBuffer   int
	WriteTimeout time.Duration
	// OriginPatterns 允许跨域连接的来源，空表示仅同源
	OriginPatterns []string
}

// DefaultConfig 返回默认 Hub 参数
func DefaultConfig() Config {
	return Config{SendBuffer: 8, WriteTimeout: 5 * time.Second}
}

type client struct {
	roomID uint
	send   chan Update
}

// Hub 维护各房间的 WebSocket 订阅者，状态变化时推送最新快照
type Hub struct {
	source    StatusSource
	config    Config
	collector *metrics.Collector
	logger    *zap.Logger

	mu      sync.RWMutex
	rooms   map[uint]map[*client]struct{}
	closing chan struct{}
	once    sync.Once
}

// NewHub 创建 Hub
func NewHub(source StatusSource, cfg Config, collector *metrics.Collector, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	return &Hub{
		source:    source,
		config:    cfg,
		collector: collector,
		logger:    logger.With(zap.String("component", "stream_hub")),
		rooms:     make(map[uint]map[*client]struct{}),
		closing:   make(chan struct{}),
	}
}

// Publish 使房间状态缓存失效，并向该房间的订阅者推送新状态
func (h *Hub) Publish(ctx context.Context, roomID uint) {
	h.source.Invalidate(ctx, roomID)
	if h.subscribers(roomID) == 0 {
		return
	}
	h.broadcast(ctx, roomID)
}

// PublishAll 全部房间状态失效（人格倍率或配置变化），并推送给所有订阅者
func (h *Hub) PublishAll(ctx context.Context) {
	h.source.InvalidateAll(ctx)

	h.mu.RLock()
	ids := make([]uint, 0, len(h.rooms))
	for id := range h.rooms {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.broadcast(ctx, id)
	}
}

// ClientCount 当前订阅连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, cs := range h.rooms {
		n += len(cs)
	}
	return n
}

// Close 通知所有连接退出
func (h *Hub) Close() {
	h.once.Do(func() { close(h.closing) })
}

// ServeRoom 将请求升级为 WebSocket 并持续推送房间状态，直到连接断开。
// 连接建立后立即发送一次当前状态；客户端发来的消息被忽略。
func (h *Hub) ServeRoom(w http.ResponseWriter, r *http.Request, roomID uint) {
	// 服务端的读写超时会保留在被劫持的连接上，长连接需要清除
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.config.OriginPatterns})
	if err != nil {
		h.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	c := &client{roomID: roomID, send: make(chan Update, h.config.SendBuffer)}
	h.register(c)
	defer h.unregister(c)

	ctx := conn.CloseRead(r.Context())

	if u, err := h.snapshot(ctx, roomID); err == nil {
		c.push(u)
	} else {
		h.logger.Warn("initial status failed", zap.Uint("room_id", roomID), zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.closing:
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case u := <-c.send:
			if err := h.write(ctx, conn, u); err != nil {
				h.logger.Debug("websocket write failed", zap.Uint("room_id", roomID), zap.Error(err))
				return
			}
		}
	}
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, u Update) error {
	ctx, cancel := context.WithTimeout(ctx, h.config.WriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, u)
}

func (h *Hub) broadcast(ctx context.Context, roomID uint) {
	u, err := h.snapshot(ctx, roomID)
	if err != nil {
		h.logger.Warn("status snapshot failed", zap.Uint("room_id", roomID), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[roomID] {
		c.push(u)
	}
}

func (h *Hub) snapshot(ctx context.Context, roomID uint) (Update, error) {
	statuses, err := h.source.RoomStatus(ctx, roomID)
	if err != nil {
		return Update{}, err
	}
	return Update{
		Type:     UpdateTypeStatus,
		RoomID:   roomID,
		Personas: statuses,
		LEDs:     ranking.LEDStatuses(statuses),
		At:       time.Now().UTC(),
	}, nil
}

func (h *Hub) subscribers(roomID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	cs, ok := h.rooms[c.roomID]
	if !ok {
		cs = make(map[*client]struct{})
		h.rooms[c.roomID] = cs
	}
	cs[c] = struct{}{}
	h.mu.Unlock()
	h.reportClients()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if cs, ok := h.rooms[c.roomID]; ok {
		delete(cs, c)
		if len(cs) == 0 {
			delete(h.rooms, c.roomID)
		}
	}
	h.mu.Unlock()
	h.reportClients()
}

func (h *Hub) reportClients() {
	if h.collector != nil {
		h.collector.SetStreamClients(h.ClientCount())
	}
}

// push 非阻塞入队；队列满时丢弃最旧的快照
func (c *client) push(u Update) {
	for {
		select {
		case c.send <- u:
			return
		default:
		}
		select {
		case <-c.send:
		default:
		}
	}
}
