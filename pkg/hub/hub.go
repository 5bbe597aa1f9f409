// Package hub fans JSON messages out to dashboard WebSocket clients.
//
// One goroutine (Run) owns the client set. Clients register and unregister
// over channels, and a client that cannot keep up is dropped rather than
// allowed to stall the rest.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
)

// ErrStopped indicates the hub is no longer running.
var ErrStopped = errors.New("hub: stopped")

const (
	broadcastBuffer = 256
	clientBuffer    = 64
)

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	name   string
	logger *slog.Logger

	clients    map[*Client]struct{}
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	stopped    chan struct{}

	// Guards clients for ClientCount; Run is the only writer.
	mu sync.RWMutex

	// onRegister, if set, returns the first message a new client receives.
	onRegister func() []byte

	running  atomic.Bool
	sent     atomic.Int64
	dropped  atomic.Int64
	evicted  atomic.Int64
	stopOnce sync.Once
}

// New creates a hub. name tags its log lines.
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		name:       name,
		logger:     logger.With("component", "hub", "hub", name),
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopped:    make(chan struct{}),
	}
}

// OnRegister sets a function producing the greeting each new client gets,
// typically the current state. Call before Run.
func (h *Hub) OnRegister(greeting func() []byte) {
	h.onRegister = greeting
}

// Run owns the client set until ctx ends, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		h.running.Store(false)
		h.stopOnce.Do(func() { close(h.stopped) })
		h.mu.Lock()
		for c := range h.clients {
			delete(h.clients, c)
			close(c.send)
		}
		h.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			count := len(h.clients)
			h.mu.Unlock()

			if h.onRegister != nil {
				if msg := h.onRegister(); msg != nil {
					c.send <- msg
				}
			}
			h.logger.Info("client connected", "client", c.id, "addr", c.addr, "clients", count)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", "client", c.id, "clients", count)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
					h.sent.Add(1)
				default:
					close(c.send)
					delete(h.clients, c)
					h.evicted.Add(1)
					h.logger.Warn("dropped slow client", "client", c.id)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues data for every client. It never blocks; when the queue
// is full the message is dropped and false is returned.
func (h *Hub) Broadcast(data []byte) bool {
	select {
	case h.broadcast <- data:
		return true
	default:
		h.dropped.Add(1)
		h.logger.Debug("broadcast queue full, dropping message")
		return false
	}
}

// BroadcastJSON encodes v and broadcasts it.
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(data)
	return nil
}

func (h *Hub) join(c *Client) error {
	select {
	case h.register <- c:
		return nil
	case <-h.stopped:
		return ErrStopped
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Clients describes the connected clients, oldest first.
func (h *Hub) Clients() []ClientInfo {
	h.mu.RLock()
	infos := make([]ClientInfo, 0, len(h.clients))
	for c := range h.clients {
		infos = append(infos, c.info())
	}
	h.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Connected.Before(infos[j].Connected)
	})
	return infos
}

// IsRunning returns whether Run is active.
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}

// Stats contains hub counters.
type Stats struct {
	Name    string `json:"name"`
	Clients int    `json:"clients"`
	Sent    int64  `json:"sent"`
	Dropped int64  `json:"dropped"`
	Evicted int64  `json:"evicted"`

	Connected []ClientInfo `json:"connected,omitempty"`
}

// Stats returns hub counters.
func (h *Hub) Stats() Stats {
	return Stats{
		Name:    h.name,
		Clients: h.ClientCount(),
		Sent:    h.sent.Load(),
		Dropped: h.dropped.Load(),
		Evicted: h.evicted.Load(),

		Connected: h.Clients(),
	}
}
