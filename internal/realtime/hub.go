package realtime

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GarrettBeatty/doublecube.gg-sub001/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10

	sendBufferSize = 64
)

// Message is one JSON event pushed to a client.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// MessageHandler receives every inbound text frame from a connection.
type MessageHandler func(connID string, payload []byte)

// DisconnectHandler runs once when a connection goes away for any reason.
type DisconnectHandler func(connID string)

// Hub owns every live WebSocket connection, keyed by a server-assigned
// connection ID. Outbound delivery never blocks: a client that cannot keep
// up with its send buffer is closed.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*connection

	onMessage    MessageHandler
	onDisconnect DisconnectHandler

	upgrader websocket.Upgrader
	log      *zap.Logger
}

// HubOption customises the hub.
type HubOption func(*Hub)

// WithMessageHandler wires inbound frame dispatch.
func WithMessageHandler(h MessageHandler) HubOption {
	return func(hub *Hub) { hub.onMessage = h }
}

// WithDisconnectHandler wires connection teardown.
func WithDisconnectHandler(h DisconnectHandler) HubOption {
	return func(hub *Hub) { hub.onDisconnect = h }
}

// NewHub constructs the connection registry.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		conns: make(map[string]*connection),
		log:   logger.WithModule("realtime"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Allow same-origin requests and localhost development.
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				originHost := hostWithoutPort(origin)
				return originHost == hostWithoutPort(r.Host) || isLoopback(originHost)
			},
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetHandlers rebinds dispatch after construction. The API layer needs the
// hub before it can build the handlers that consume it.
func (h *Hub) SetHandlers(onMessage MessageHandler, onDisconnect DisconnectHandler) {
	h.onMessage = onMessage
	h.onDisconnect = onDisconnect
}

// Serve upgrades the request, registers the connection, and pumps frames
// until the client goes away. onReady runs with the new connection ID before
// any frame is read, so the caller can seat the connection first.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, onReady func(connID string)) {
	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &connection{
		hub:    h,
		id:     uuid.NewString(),
		socket: socket,
		send:   make(chan Message, sendBufferSize),
	}

	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()

	if onReady != nil {
		onReady(c.id)
	}

	go c.writeLoop()
	c.readLoop()
}

// Send implements the game layer's broadcaster: one event to one connection.
// Unknown connection IDs are ignored.
func (h *Hub) Send(connID, event string, payload any) {
	h.mu.RLock()
	c, ok := h.conns[connID]
	if !ok {
		h.mu.RUnlock()
		return
	}

	// The registry lock is held across the enqueue so the connection cannot
	// be torn down (and its channel closed) mid-send.
	var backpressured bool
	select {
	case c.send <- Message{Event: event, Data: payload}:
	default:
		backpressured = true
	}
	h.mu.RUnlock()

	if backpressured {
		h.log.Warn("closing backpressured connection", zap.String("conn_id", connID))
		c.close()
	}
}

// ConnectionCount reports live connections, for health reporting.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Shutdown closes every live connection.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	conns := make([]*connection, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.close()
	}
}

func (h *Hub) unregister(c *connection) {
	h.mu.Lock()
	delete(h.conns, c.id)
	h.mu.Unlock()

	if h.onDisconnect != nil {
		h.onDisconnect(c.id)
	}
}

type connection struct {
	hub    *Hub
	id     string
	socket *websocket.Conn
	send   chan Message
	once   sync.Once
}

func (c *connection) readLoop() {
	defer c.close()

	c.socket.SetReadLimit(maxMessageSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("unexpected close", zap.String("conn_id", c.id), zap.Error(err))
			}
			return
		}
		if len(payload) == 0 || c.hub.onMessage == nil {
			continue
		}
		c.hub.onMessage(c.id, payload)
	}
}

func (c *connection) writeLoop() {
	defer c.close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.socket.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *connection) close() {
	c.once.Do(func() {
		c.hub.unregister(c)
		close(c.send)
		_ = c.socket.Close()
	})
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		if req, err := http.NewRequest(http.MethodGet, host, nil); err == nil {
			return hostWithoutPort(req.URL.Host)
		}
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}
