package handlers

import (
	"sync"

	"kiln_console/internal/logger"
	"kiln_console/internal/telemetry"
)

// Hub fans telemetry views out to /ws subscribers. Each subscriber holds
// only the newest view: a slow client skips intermediate ones.
type Hub struct {
	log *logger.Logger

	mu      sync.Mutex
	clients map[chan telemetry.View]struct{}
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{log: logger.OrNop(log), clients: make(map[chan telemetry.View]struct{})}
}

// Publish implements telemetry.Sink. It never blocks.
func (h *Hub) Publish(v telemetry.View) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- v:
			continue
		default:
		}
		// Replace the stale pending view.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

// Subscribe registers a client. The returned func unregisters it and
// closes the channel.
func (h *Hub) Subscribe() (<-chan telemetry.View, func()) {
	ch := make(chan telemetry.View, 1)

	h.mu.Lock()
	h.clients[ch] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Debugw("ws_client_registered", "clients", n)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients, ch)
			close(ch)
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debugw("ws_client_unregistered", "clients", n)
		})
	}
}

// Len reports the number of subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
