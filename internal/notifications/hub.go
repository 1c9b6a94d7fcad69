// Package notifications fans post mutation events out to websocket subscribers.
package notifications

import (
	"context"
	"errors"
	"sync"

	"github.com/gofiber/websocket/v2"

	"feedhub/internal/observability"
)

const (
	// Max connections per user
	maxConnsPerUser = 12
	// Max total connections
	maxTotalConns = 10000
)

var (
	ErrServerFull = errors.New("server connection limit reached")
	ErrUserFull   = errors.New("user connection limit reached")
	ErrHubClosed  = errors.New("hub is shut down")
)

// Hub is the registry of live feed subscribers, keyed by user id.
// Anonymous subscribers share user id 0.
type Hub struct {
	mu         sync.RWMutex
	conns      map[uint]map[*Client]struct{}
	totalConns int
	maxTotal   int
	closeOnce  sync.Once
	closed     bool
	log        *observability.WSLogger
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		conns:    make(map[uint]map[*Client]struct{}),
		maxTotal: maxTotalConns,
		log:      observability.NewWSLogger("feed hub"),
	}
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "feed hub" }

// Register a connection for a given userID. Returns the Client or error if limits exceeded.
func (h *Hub) Register(userID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	if h.totalConns >= h.maxTotal {
		h.mu.Unlock()
		return nil, ErrServerFull
	}

	m, ok := h.conns[userID]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[userID] = m
	}
	if userID != 0 && len(m) >= maxConnsPerUser {
		h.mu.Unlock()
		return nil, ErrUserFull
	}

	client := NewClient(h, conn, userID)
	m[client] = struct{}{}
	h.totalConns++
	active := h.totalConns
	h.mu.Unlock()

	observability.WebSocketConnectionsTotal.Inc()
	h.log.LogConnect(context.Background(), userID, active)
	return client, nil
}

// UnregisterClient removes c and closes its send queue. Safe to call twice.
func (h *Hub) UnregisterClient(c *Client) {
	h.mu.Lock()
	removed := false
	if m, ok := h.conns[c.UserID]; ok {
		if _, exists := m[c]; exists {
			delete(m, c)
			h.totalConns--
			removed = true
		}
		if len(m) == 0 {
			delete(h.conns, c.UserID)
		}
	}
	h.mu.Unlock()

	if removed {
		c.closeSend()
		observability.WebSocketConnectionsTotal.Dec()
		h.log.LogDisconnect(context.Background(), c.UserID, "unregistered")
	}
}

// BroadcastAll sends message to every connected websocket client.
func (h *Hub) BroadcastAll(message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	data := []byte(message)
	for _, clients := range h.conns {
		for c := range clients {
			c.TrySend(data)
		}
	}
}

// Count returns the number of registered clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalConns
}

// Shutdown closes every connection and refuses new ones.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		conns := h.conns
		h.conns = make(map[uint]map[*Client]struct{})
		h.totalConns = 0
		h.mu.Unlock()

		for userID, clients := range conns {
			for c := range clients {
				observability.WebSocketConnectionsTotal.Dec()
				c.closeSend()
				if c.Conn == nil {
					continue
				}
				if err := c.Conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")); err != nil {
					h.log.LogLifecycle(ctx, "close_message_failed", map[string]interface{}{"user_id": userID, "error": err.Error()})
				}
				_ = c.Conn.Close()
			}
		}
		h.log.LogLifecycle(ctx, "shutdown", nil)
	})
	return nil
}
