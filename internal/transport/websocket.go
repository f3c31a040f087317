package transport

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ganot/promptsync/internal/metrics"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 4 * 1024
	sendBuffer     = 16
)

// EventBalance is the Type of a BalanceEvent.
const EventBalance = "balance"

// BalanceEvent is pushed to websocket listeners whenever the ledger confirms a
// new balance.
type BalanceEvent struct {
	Type    string `json:"type"`
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
}

// Hub fans confirmed balances out to the websocket connections of each user.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu     sync.Mutex
	conns  map[string]map[*wsConn]struct{}
	closed bool
}

type wsConn struct {
	ws        *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (c *wsConn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// NewHub creates an empty Hub. m may be nil.
func NewHub(logger *slog.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:  logger,
		metrics: m,
		conns:   make(map[string]map[*wsConn]struct{}),
	}
}

// PublishBalance sends balance to every connection of userID. Slow listeners
// miss events rather than block the ledger.
func (h *Hub) PublishBalance(userID string, balance int64) {
	data, err := json.Marshal(BalanceEvent{Type: EventBalance, UserID: userID, Balance: balance})
	if err != nil {
		h.logger.Error("failed to encode balance event", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns[userID] {
		select {
		case c.send <- data:
		default:
			h.logger.Debug("dropping balance event for slow listener", "user_id", userID)
		}
	}
}

// Listeners returns the number of open connections for userID.
func (h *Hub) Listeners(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns[userID])
}

// Close disconnects every listener.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, set := range h.conns {
		for c := range set {
			c.close()
		}
	}
}

// ServeHTTP upgrades an authenticated request and streams balance events for
// the request's tenant until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := TenantFromContext(r.Context())
	if !ok || userID == "" {
		http.Error(w, "missing tenant", http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	c := &wsConn{ws: ws, send: make(chan []byte, sendBuffer), done: make(chan struct{})}
	if !h.register(userID, c) {
		return
	}
	defer h.unregister(userID, c)

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) register(userID string, c *wsConn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	set, ok := h.conns[userID]
	if !ok {
		set = make(map[*wsConn]struct{})
		h.conns[userID] = set
		h.metrics.ChannelOpened()
	}
	set[c] = struct{}{}
	return true
}

func (h *Hub) unregister(userID string, c *wsConn) {
	c.close()
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[userID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.conns, userID)
		h.metrics.ChannelClosed()
	}
}

// readPump only services control frames; listeners never send data.
func (h *Hub) readPump(c *wsConn) {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", "error", err)
			}
			c.close()
			return
		}
	}
}

func (h *Hub) writePump(c *wsConn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			_ = c.ws.Close()
			return
		}
	}
}
