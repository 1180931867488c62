// Package hub routes new notifications to the live stream of the member
// they are addressed to.
package hub

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/nhle/blogbell/internal/model"
)

// Client is one member's open stream.
type Client struct {
	UserID string

	events chan []byte
	done   chan struct{}
	once   sync.Once
}

// Events yields JSON-encoded notifications for the stream.
func (c *Client) Events() <-chan []byte {
	return c.events
}

// Done is closed when the client has been removed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub keeps every open stream of every member. A member signed in from
// several places gets one stream per session, and pushes fan out to all
// of them.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]map[*Client]struct{}
	bufferSize int
	logger     *zap.SugaredLogger
}

// New creates a hub whose per-stream queues hold bufferSize notifications.
func New(bufferSize int, logger *zap.SugaredLogger) *Hub {
	if bufferSize <= 0 {
		bufferSize = 10
	}
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// Register adds a stream for userID alongside any it already has.
func (h *Hub) Register(userID string) *Client {
	c := &Client{
		UserID: userID,
		events: make(chan []byte, h.bufferSize),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	set, ok := h.clients[userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[userID] = set
	}
	set[c] = struct{}{}
	streams := len(set)
	h.mu.Unlock()

	h.logger.Debugw("notification stream registered", "user_id", userID, "streams", streams)
	return c
}

// Unregister removes c and closes it. Other streams of the same member
// are untouched.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if set, ok := h.clients[c.UserID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.UserID)
		}
	}
	h.mu.Unlock()

	c.close()
}

// Connected reports whether userID has an open stream.
func (h *Hub) Connected(userID string) bool {
	return h.Streams(userID) > 0
}

// Streams returns how many streams userID has open.
func (h *Hub) Streams(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Send queues n for its member's streams. It never blocks: when the
// member is offline or a queue is full the notification is dropped for
// that stream. It reports whether any stream accepted it. History still
// has it.
func (h *Hub) Send(n model.Notification) (bool, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return false, fmt.Errorf("encoding notification %s: %w", n.ID, err)
	}
	return h.SendRaw(n.UserID, payload), nil
}

// SendRaw queues an already encoded notification for every stream of
// userID.
func (h *Hub) SendRaw(userID string, payload []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := false
	for c := range h.clients[userID] {
		select {
		case c.events <- payload:
			delivered = true
		default:
			h.logger.Warnw("notification stream queue full, dropping push", "user_id", userID)
		}
	}
	return delivered
}

// CloseAll ends every registered stream.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]map[*Client]struct{})
	h.mu.Unlock()

	for _, set := range clients {
		for c := range set {
			c.close()
		}
	}
}
