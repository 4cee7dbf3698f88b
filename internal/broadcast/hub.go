package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lancaster971/pilotproOS-sub003/internal/metrics"
	"github.com/lancaster971/pilotproOS-sub003/internal/model"
	"github.com/lancaster971/pilotproOS-sub003/internal/web"
)

// 推送协议中的事件名
const (
	EventStatusUpdate    = "status-update"
	EventNewEvent        = "new-event"
	EventRestartProgress = "service-restart-progress"
	EventRefreshStatus   = "refresh-status"
)

// DefaultInterval 默认推送间隔
const DefaultInterval = 5 * time.Second

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Message 推送消息信封
type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// Source 提供监控器缓存的快照; 推送不会触发新的轮询
type Source interface {
	Snapshot() model.Snapshot
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub 管理订阅者并推送快照, 事件和 restart 进度
type Hub struct {
	source   Source
	logger   *zap.Logger
	interval time.Duration

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func NewHub(source Source, logger *zap.Logger, interval time.Duration) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Hub{
		source:   source,
		logger:   logger,
		interval: interval,
		clients:  make(map[*client]struct{}),
	}
}

// ServeHTTP 升级为 WebSocket 连接, 并立即发送一次快照
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("error upgrading to websocket", zap.Error(err))
		return
	}

	c := &client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	h.register(c)
	h.logger.Info("subscriber connected", zap.String("client", c.id), zap.String("remote", r.RemoteAddr))

	if b, err := h.statusMessage(); err == nil {
		h.sendTo(c, b)
	}

	go c.writePump()
	go c.readPump()
}

// Run 按固定间隔推送缓存快照, ctx 结束时断开全部订阅者
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.BroadcastStatus()
		case <-ctx.Done():
			h.Close()
			return
		}
	}
}

// BroadcastStatus 推送当前缓存快照
func (h *Hub) BroadcastStatus() {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("status broadcast panicked", zap.Any("panic", r))
		}
	}()
	b, err := h.statusMessage()
	if err != nil {
		h.logger.Error("error encoding status update", zap.Error(err))
		return
	}
	h.broadcast(b)
}

// PublishEvent 转发新记录的事件
func (h *Hub) PublishEvent(e model.Event) {
	b, err := json.Marshal(Message{Event: EventNewEvent, Data: web.NewEventView(e)})
	if err != nil {
		h.logger.Error("error encoding event", zap.Error(err))
		return
	}
	h.broadcast(b)
}

// PublishProgress 原样转发 restart 进度, 以 serviceId 区分并发的 restart
func (h *Hub) PublishProgress(p model.RestartProgress) {
	b, err := json.Marshal(Message{Event: EventRestartProgress, Data: web.NewProgressView(p)})
	if err != nil {
		h.logger.Error("error encoding restart progress", zap.Error(err))
		return
	}
	h.broadcast(b)
}

// Clients 当前订阅者数量
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close 断开全部订阅者
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.unregister(c)
	}
}

func (h *Hub) statusMessage() ([]byte, error) {
	return json.Marshal(Message{Event: EventStatusUpdate, Data: web.NewSystemStatus(h.source.Snapshot())})
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.SetSubscribers(n)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	n := len(h.clients)
	h.mu.Unlock()

	metrics.SetSubscribers(n)
	h.logger.Info("subscriber disconnected", zap.String("client", c.id))
}

// broadcast 非阻塞发送; 缓冲已满的订阅者被断开
func (h *Hub) broadcast(b []byte) {
	h.mu.Lock()
	var slow []*client
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow subscriber", zap.String("client", c.id))
		h.unregister(c)
	}
}

func (h *Hub) sendTo(c *client, b []byte) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	select {
	case c.send <- b:
		h.mu.Unlock()
	default:
		h.mu.Unlock()
		h.unregister(c)
	}
}

// readPump 处理客户端请求; 只支持 refresh-status
func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("error reading from websocket", zap.String("client", c.id), zap.Error(err))
			}
			return
		}
		switch msg.Event {
		case EventRefreshStatus:
			b, err := c.hub.statusMessage()
			if err != nil {
				c.hub.logger.Error("error encoding status update", zap.Error(err))
				continue
			}
			c.hub.sendTo(c, b)
		default:
			c.hub.logger.Debug("ignoring unknown client event", zap.String("client", c.id), zap.String("event", msg.Event))
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case b, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				c.hub.logger.Debug("error writing to websocket", zap.String("client", c.id), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
