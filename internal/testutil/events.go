package testutil

import (
	"sync"

	"github.com/roach88/storefront/internal/ledger"
)

// EventRecorder is a synchronous publisher that keeps every event it is given.
type EventRecorder struct {
	mu     sync.Mutex
	events []ledger.ChangeEvent
}

// Publish records ev.
func (r *EventRecorder) Publish(ev ledger.ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events in publish order.
func (r *EventRecorder) Events() []ledger.ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ledger.ChangeEvent(nil), r.events...)
}

// Reset discards recorded events.
func (r *EventRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
