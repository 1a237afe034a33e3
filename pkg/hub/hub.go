package hub

import (
	"log/slog"
	"sync"

	"github.com/teslashibe/parcelcam/internal/log"
)

// SlowPolicy decides what happens when a client's queue is full.
type SlowPolicy int

const (
	// DropClient disconnects the client. Used where every message matters
	// (status, logs); the client reconnects and gets a fresh snapshot.
	DropClient SlowPolicy = iota

	// SkipMessage drops the message for that client only. Used for the
	// preview, where the next frame supersedes the missed one.
	SkipMessage
)

// DefaultQueue is the per-client queue length.
const DefaultQueue = 64

// Hub tracks the clients of one feed and broadcasts to them.
type Hub struct {
	name   string
	policy SlowPolicy
	queue  int
	logger *slog.Logger

	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	closeOnce  sync.Once

	// clients is owned by Run; mu only guards reads from other goroutines.
	mu      sync.RWMutex
	clients map[*Client]struct{}
	running bool
	skipped uint64
}

// New creates a hub that disconnects slow clients.
func New(name string) *Hub {
	return NewWithPolicy(name, DropClient)
}

// NewWithPolicy creates a hub with the given slow-client policy.
func NewWithPolicy(name string, policy SlowPolicy) *Hub {
	return &Hub{
		name:       name,
		policy:     policy,
		queue:      DefaultQueue,
		logger:     log.With("component", "hub", "hub", name),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
	}
}

// Run serves registrations and broadcasts until Close. Call it on its own
// goroutine.
func (h *Hub) Run() {
	h.mu.Lock()
	h.running = true
	h.mu.Unlock()

	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for c := range h.clients {
				h.remove(c)
			}
			h.running = false
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client connected", "total", n)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				h.remove(c)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client disconnected", "remaining", n)

		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

func (h *Hub) fanOut(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
			continue
		default:
		}
		if h.policy == SkipMessage {
			h.skipped++
			continue
		}
		h.remove(c)
		h.logger.Warn("dropped slow client")
	}
}

// remove closes a client's queue. Callers hold mu.
func (h *Hub) remove(c *Client) {
	delete(h.clients, c)
	close(c.send)
}

// Close stops Run and disconnects every client. Safe to call more than once.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Broadcast queues msg for every client. A full broadcast queue drops it.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Debug("broadcast queue full, dropping message")
	}
}

// BroadcastJSON encodes v and broadcasts it.
func (h *Hub) BroadcastJSON(v interface{}) error {
	msg, err := EncodeJSON(v)
	if err != nil {
		return err
	}
	h.Broadcast(msg)
	return nil
}

// BroadcastBinary broadcasts data as a binary frame.
func (h *Hub) BroadcastBinary(data []byte) {
	h.Broadcast(NewBinaryMessage(data))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Skipped returns how many per-client messages a SkipMessage hub dropped.
func (h *Hub) Skipped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.skipped
}

// IsRunning reports whether Run is active.
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}
