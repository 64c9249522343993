package notifications

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"shutter/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	maxConnsPerUser = 8
	maxTotalConns   = 10000
)

var (
	ErrUserConnLimit   = errors.New("user connection limit reached")
	ErrServerConnLimit = errors.New("server connection limit reached")
)

// Hub maps user ids to their live websocket clients.
type Hub struct {
	mu    sync.RWMutex
	conns map[uint]map[string]*Client
	total int
}

func NewHub() *Hub {
	return &Hub{conns: make(map[uint]map[string]*Client)}
}

// Register adds a connection for userID. conn may be nil in tests.
func (h *Hub) Register(userID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.total >= maxTotalConns {
		return nil, ErrServerConnLimit
	}
	m, ok := h.conns[userID]
	if !ok {
		m = make(map[string]*Client)
		h.conns[userID] = m
	}
	if len(m) >= maxConnsPerUser {
		return nil, ErrUserConnLimit
	}

	c := newClient(h, conn, userID)
	m[c.ID] = c
	h.total++
	observability.ActiveWebSockets.Inc()
	return c, nil
}

// Unregister removes c and closes its send channel. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.conns[c.UserID]
	if !ok {
		return
	}
	if _, exists := m[c.ID]; !exists {
		return
	}
	delete(m, c.ID)
	if len(m) == 0 {
		delete(h.conns, c.UserID)
	}
	h.total--
	observability.ActiveWebSockets.Dec()
	close(c.Send)
}

// Broadcast queues message on every connection of userID.
func (h *Hub) Broadcast(userID uint, message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	data := []byte(message)
	for _, c := range h.conns[userID] {
		c.trySend(data)
	}
}

// Connections reports how many live clients userID has.
func (h *Hub) Connections(userID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

// StartWiring forwards Redis user-channel messages to local connections.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartPatternSubscriber(ctx, func(channel, payload string) {
		userID, ok := ParseUserChannel(channel)
		if !ok {
			observability.Logger.Warn("invalid notification channel", slog.String("channel", channel))
			return
		}
		h.Broadcast(userID, payload)
	})
}

// Shutdown closes every client's send channel so write pumps send a close
// frame and exit.
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range h.conns {
		for _, c := range m {
			close(c.Send)
			observability.ActiveWebSockets.Dec()
		}
	}
	h.conns = make(map[uint]map[string]*Client)
	h.total = 0
	return nil
}
