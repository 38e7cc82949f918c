package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	name   string
	logger *slog.Logger

	clients    map[*Client]struct{}
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client

	// mu guards count reads from outside the run loop.
	mu    sync.RWMutex
	count int

	running atomic.Bool
	dropped atomic.Int64
	stopped chan struct{}
}

// New creates a Hub. Call Run to start delivering.
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		name:       name,
		logger:     logger.With("component", "hub", "hub", name),
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopped:    make(chan struct{}),
	}
}

// Run delivers messages until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		for c := range h.clients {
			h.remove(c)
		}
		h.running.Store(false)
		close(h.stopped)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.setCount()
			h.logger.Debug("client connected", "client", c.id, "clients", len(h.clients))
			for _, m := range c.greeting {
				h.offer(c, m)
			}

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.remove(c)
				h.logger.Debug("client disconnected", "client", c.id, "clients", len(h.clients))
			}

		case m := <-h.broadcast:
			for c := range h.clients {
				h.offer(c, m)
			}
		}
	}
}

// offer queues m for c, dropping c if it cannot keep up.
func (h *Hub) offer(c *Client, m Message) {
	select {
	case c.send <- m:
	default:
		h.remove(c)
		h.logger.Warn("dropped slow client", "client", c.id)
	}
}

func (h *Hub) remove(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.setCount()
}

func (h *Hub) setCount() {
	h.mu.Lock()
	h.count = len(h.clients)
	h.mu.Unlock()
}

// Broadcast queues msg for every client. It never blocks; when the queue
// is full the message is dropped.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.dropped.Add(1)
		h.logger.Warn("broadcast queue full, dropping message")
	}
}

// BroadcastJSON encodes and broadcasts v.
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(NewJSONMessage(data))
	return nil
}

// BroadcastEvent broadcasts a typed dashboard event.
func (h *Hub) BroadcastEvent(typ string, data any) error {
	m, err := NewEvent(typ, data).Encode()
	if err != nil {
		return err
	}
	h.Broadcast(m)
	return nil
}

// BroadcastBinary broadcasts binary data.
func (h *Hub) BroadcastBinary(data []byte) {
	h.Broadcast(NewBinaryMessage(data))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Dropped returns the number of broadcasts dropped on a full queue.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// IsRunning reports whether Run is active.
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}

// Name returns the hub name.
func (h *Hub) Name() string {
	return h.name
}
