package notify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/storefront/internal/ledger"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

// Hub is an in-process broadcast topic.
//
// Each subscriber owns a buffered channel. A subscriber whose buffer is
// full misses that event; other subscribers are unaffected and Publish
// never blocks.
type Hub struct {
	mu      sync.RWMutex
	subs    map[int]chan ledger.ChangeEvent
	nextID  int
	buffer  int
	dropped atomic.Int64
}

// NewHub creates a Hub. A buffer below 1 uses DefaultBuffer.
func NewHub(buffer int) *Hub {
	if buffer < 1 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subs:   make(map[int]chan ledger.ChangeEvent),
		buffer: buffer,
	}
}

// Subscribe registers a subscriber. The returned cancel func unregisters
// it and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe() (<-chan ledger.ChangeEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan ledger.ChangeEvent, h.buffer)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			close(ch)
		})
	}
}

// Publish offers ev to every subscriber without blocking.
func (h *Hub) Publish(_ context.Context, ev ledger.ChangeEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.dropped.Add(1)
			slog.Warn("subscriber buffer full, event dropped", "subscriber", id, "model", ev.Kind)
		}
	}
	return nil
}

// Subscribers returns the number of registered subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many per-subscriber deliveries were skipped.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}
