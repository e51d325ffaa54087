package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/inantubek/rmnist/internal/anneal"
	"github.com/inantubek/rmnist/internal/runner"
	"github.com/inantubek/rmnist/pkg/logger"
)

const (
	writeTimeout   = 10 * time.Second
	pingInterval   = 30 * time.Second
	subscriberSize = 64
)

// StreamMessage is one websocket frame sent to watchers
type StreamMessage struct {
	Type   string         `json:"type"` // "record" or "status"
	Record *anneal.Record `json:"record,omitempty"`
	Status *runner.Status `json:"status,omitempty"`
}

type subscriber struct {
	send chan []byte
}

// Hub fans iteration records out to websocket watchers. A watcher that
// falls behind loses messages rather than slowing the search down.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*subscriber]struct{}
	closed  bool
	dropped int
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*subscriber]struct{}),
	}
}

// Observe implements anneal.Observer
func (h *Hub) Observe(rec anneal.Record) {
	h.publish(StreamMessage{Type: "record", Record: &rec})
}

// PublishStatus sends a run status to every watcher
func (h *Hub) PublishStatus(st runner.Status) {
	h.publish(StreamMessage{Type: "status", Status: &st})
}

func (h *Hub) publish(msg StreamMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error("failed to marshal stream message", "error", err)
		return
	}
	h.Broadcast(data)
}

// Broadcast sends a raw frame to every watcher
func (h *Hub) Broadcast(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.dropped++
		}
	}
}

// Clients returns the number of connected watchers
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many frames were discarded for slow watchers
func (h *Hub) Dropped() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// Close disconnects every watcher and refuses new ones
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) subscribe() (*subscriber, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	c := &subscriber{send: make(chan []byte, subscriberSize)}
	h.clients[c] = struct{}{}
	return c, true
}

func (h *Hub) unsubscribe(c *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// ServeWS upgrades the request and streams frames until either side closes
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	c, ok := h.subscribe()
	if !ok {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		return
	}
	defer h.unsubscribe(c)
	logger.Debug("watcher connected", "remote", r.RemoteAddr)

	// Reads only detect the peer going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-gone:
			return
		case data, ok := <-c.send:
			if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
