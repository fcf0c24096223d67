// Package watch streams channel results to websocket clients by running the
// poll loop on their behalf.
package watch

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultInterval = 500 * time.Millisecond
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = (pongWait * 9) / 10
	sendBufferSize  = 64
)

// Poller는 채널의 최신 결과를 읽고 비우는 연산입니다
type Poller interface {
	Poll(port int) (string, bool, error)
}

// Message는 클라이언트로 보내는 메시지입니다
type Message struct {
	Type string    `json:"type"` // "event", "error"
	Port int       `json:"port"`
	Text string    `json:"text,omitempty"`
	Time time.Time `json:"time"`
}

// HubConfig는 웹소켓 허브 설정
type HubConfig struct {
	Logger   *zap.Logger
	Poller   Poller
	Interval time.Duration
}

// Hub는 채널 결과를 구독하는 웹소켓 클라이언트를 관리합니다.
// 결과는 읽는 순간 비워지므로 같은 포트의 클라이언트끼리는 이벤트를 나눠 받습니다.
type Hub struct {
	logger   *zap.Logger
	poller   Poller
	interval time.Duration
	upgrader websocket.Upgrader

	clients map[*Client]bool
	mutex   sync.RWMutex
}

// Client는 웹소켓 클라이언트 하나입니다
type Client struct {
	id     string
	port   int
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub는 새로운 허브를 생성합니다
func NewHub(config HubConfig) *Hub {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Interval <= 0 {
		config.Interval = defaultInterval
	}
	return &Hub{
		logger:   config.Logger,
		poller:   config.Poller,
		interval: config.Interval,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[*Client]bool),
	}
}

// HandleWebSocket은 연결을 업그레이드하고 port 채널의 폴링을 시작합니다
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request, port int) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	clientID := uuid.NewString()
	client := &Client{
		id:     clientID,
		port:   port,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		hub:    h,
		logger: h.logger.With(zap.String("client_id", clientID), zap.Int("port", port)),
		ctx:    ctx,
		cancel: cancel,
	}

	h.registerClient(client)

	go client.writePump()
	go client.readPump()
	go client.pollLoop()

	client.logger.Info("WebSocket client connected", zap.String("remote_addr", r.RemoteAddr))
}

// ClientCount는 연결된 클라이언트 수를 반환합니다
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Close는 모든 클라이언트 연결을 종료합니다
func (h *Hub) Close() {
	h.mutex.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mutex.RUnlock()

	for _, c := range clients {
		c.cancel()
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.clients[client] = true

	h.logger.Debug("Client registered",
		zap.String("client_id", client.id),
		zap.Int("total_clients", len(h.clients)),
	)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, exists := h.clients[client]; exists {
		delete(h.clients, client)
		h.logger.Debug("Client unregistered",
			zap.String("client_id", client.id),
			zap.Int("total_clients", len(h.clients)),
		)
	}
}

// pollLoop는 send 채널의 유일한 송신자이며 종료 시 채널을 닫습니다
func (c *Client) pollLoop() {
	defer close(c.send)

	ticker := time.NewTicker(c.hub.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
		}

		text, ok, err := c.hub.poller.Poll(c.port)
		if err != nil {
			c.logger.Info("Channel unavailable, closing stream", zap.Error(err))
			c.enqueue(Message{Type: "error", Port: c.port, Text: err.Error(), Time: time.Now()})
			return
		}
		if !ok {
			continue
		}

		if !c.enqueue(Message{Type: "event", Port: c.port, Text: text, Time: time.Now()}) {
			// 느린 클라이언트: 이벤트는 이미 슬롯에서 빠졌으므로 버림
			c.logger.Warn("Client send buffer full, dropping event", zap.String("text", text))
		}
	}
}

func (c *Client) enqueue(msg Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("Failed to marshal message", zap.Error(err))
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// readPump은 클라이언트 종료를 감지합니다. 수신 메시지는 무시합니다.
func (c *Client) readPump() {
	defer func() {
		c.cancel()
		c.hub.unregisterClient(c)
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) &&
				!errors.Is(err, net.ErrClosed) {
				c.logger.Warn("WebSocket error", zap.Error(err))
			}
			return
		}
	}
}

// writePump은 send 채널이 닫힐 때까지 메시지를 쓰고 연결을 닫습니다
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.cancel()
		_ = c.conn.Close()
		c.logger.Info("WebSocket client disconnected")
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("Failed to write message", zap.Error(err))
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
