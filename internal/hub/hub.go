// Package hub implements a generic fan-out broadcaster with a configurable
// backpressure policy, used by the gateway (internal/gateway) to distribute
// transfer-progress events to any number of watching connections.
package hub

import (
	"sync"

	"github.com/kstaniek/go-xmodem/internal/logging"
	"github.com/kstaniek/go-xmodem/internal/metrics"
)

type BackpressurePolicy int

const (
	PolicyDrop BackpressurePolicy = iota
	PolicyKick
)

// Client is one registered observer of a Hub[T]. Out delivers broadcast
// values; Closed signals the client should stop reading (kicked, or the
// connection it backs went away).
type Client[T any] struct {
	Out       chan T
	Closed    chan struct{}
	closeOnce sync.Once
}

// Close signals the client is closed (idempotent).
func (c *Client[T]) Close() {
	c.closeOnce.Do(func() {
		close(c.Closed)
	})
}

// Hub broadcasts values of type T to every registered client, applying
// Policy when a client's buffer is full.
type Hub[T any] struct {
	mu         sync.RWMutex
	clients    map[*Client[T]]struct{}
	OutBufSize int
	Policy     BackpressurePolicy
}

// New creates a Hub with default settings.
func New[T any]() *Hub[T] { return &Hub[T]{clients: make(map[*Client[T]]struct{})} }

// Add registers a client with the hub.
func (h *Hub[T]) Add(c *Client[T]) {
	h.mu.Lock()
	prev := len(h.clients)
	h.clients[c] = struct{}{}
	cur := len(h.clients)
	h.mu.Unlock()
	if prev == 0 && cur == 1 {
		logging.L().Info("watchers_first_connected")
	}
}

// Remove unregisters a client and updates metrics; safe to call multiple times.
func (h *Hub[T]) Remove(c *Client[T]) {
	h.mu.Lock()
	_, existed := h.clients[c]
	if existed {
		delete(h.clients, c)
	}
	cur := len(h.clients)
	h.mu.Unlock()
	select {
	case <-c.Closed:
	default:
		c.Close()
	}
	metrics.SetWatcherClients(cur)
	if existed && cur == 0 {
		logging.L().Info("watchers_last_disconnected")
	}
}

// Broadcast sends v to all connected clients honoring the backpressure policy.
func (h *Hub[T]) Broadcast(v T) {
	clients := h.Snapshot()
	metrics.SetBroadcastFanout(len(clients))
	metrics.SetWatcherClients(len(clients))
	if len(clients) > 0 {
		max := 0
		sum := 0
		for _, c := range clients {
			l := len(c.Out)
			if l > max {
				max = l
			}
			sum += l
		}
		metrics.SetQueueDepth(max, sum/len(clients))
	}
	for _, c := range clients {
		select {
		case c.Out <- v:
		default:
			if h.Policy == PolicyKick {
				metrics.IncHubKick()
				c.Close() // signal writer to exit; server will Remove on disconnect
			} else {
				metrics.IncHubDrop()
			}
		}
	}
}

// Snapshot returns a slice copy of current clients (read-only use).
func (h *Hub[T]) Snapshot() []*Client[T] {
	h.mu.RLock()
	clients := make([]*Client[T], 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	return clients
}

// Count returns the number of active clients.
func (h *Hub[T]) Count() int { h.mu.RLock(); n := len(h.clients); h.mu.RUnlock(); return n }
