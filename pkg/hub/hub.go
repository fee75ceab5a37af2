package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
)

const (
	broadcastBuffer = 64
	clientBuffer    = 16
)

// Hub tracks clients and broadcasts messages to them.
type Hub struct {
	name   string
	logger *slog.Logger

	clients map[*Client]struct{}
	count   atomic.Int32

	broadcast  chan Message
	register   chan *Client
	unregister chan *Client

	done    chan struct{}
	running atomic.Bool
	once    sync.Once
}

// New creates a hub. Call Run to start it.
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		name:       name,
		logger:     logger.With("component", "hub", "hub", name),
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan Message, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until ctx is cancelled. On exit every client
// send channel is closed so their write pumps send a close frame.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		h.running.Store(false)
		for c := range h.clients {
			h.drop(c)
		}
		h.once.Do(func() { close(h.done) })
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.count.Store(int32(len(h.clients)))
			h.logger.Debug("client connected", "clients", len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
			}
			h.logger.Debug("client disconnected", "clients", len(h.clients))

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.drop(c)
					h.logger.Warn("dropped slow client", "clients", len(h.clients))
				}
			}
		}
	}
}

func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	close(c.send)
	h.count.Store(int32(len(h.clients)))
}

// Broadcast queues msg for every client. It never blocks; when the queue is
// full or nobody is listening the message is dropped.
func (h *Hub) Broadcast(msg Message) {
	if h.count.Load() == 0 {
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Debug("broadcast queue full, dropping message")
	}
}

// BroadcastJSON encodes v and broadcasts it as a text frame.
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(NewJSONMessage(data))
	return nil
}

// BroadcastBinary broadcasts data as a binary frame.
func (h *Hub) BroadcastBinary(data []byte) {
	h.Broadcast(NewBinaryMessage(data))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// IsRunning reports whether Run is active.
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}

// Done is closed when Run returns.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}
