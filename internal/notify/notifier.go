package notify

import (
	"context"
	"log/slog"

	"github.com/roach88/storefront/internal/ledger"
)

// DefaultTopic is the broadcast channel name subscribers listen on.
const DefaultTopic = "site_updates"

// Topic is a broadcast destination for change events.
type Topic interface {
	Publish(ctx context.Context, ev ledger.ChangeEvent) error
}

// Notifier queues events and dispatches them to a Topic in order.
type Notifier struct {
	topic Topic
	queue *eventQueue
}

// New creates a Notifier. Call Run in its own goroutine to start delivery.
func New(topic Topic) *Notifier {
	return &Notifier{
		topic: topic,
		queue: newEventQueue(),
	}
}

// Publish enqueues ev and returns immediately.
// Events published after Close are dropped.
func (n *Notifier) Publish(ev ledger.ChangeEvent) {
	if !n.queue.Enqueue(ev) {
		slog.Warn("notifier closed, dropping event", "action", ev.Action, "model", ev.Kind)
	}
}

// Pending returns the number of events not yet dispatched.
func (n *Notifier) Pending() int {
	return n.queue.Len()
}

// Run dispatches queued events until ctx is cancelled or the notifier is
// closed and drained. It must be called from exactly one goroutine.
//
// Returns ctx.Err() on cancellation and nil after Close.
func (n *Notifier) Run(ctx context.Context) error {
	slog.Debug("notifier starting")

	for {
		if ev, ok := n.queue.TryDequeue(); ok {
			n.dispatch(ctx, ev)
			continue
		}

		if n.queue.Drained() {
			slog.Debug("notifier stopping: queue closed")
			return nil
		}

		select {
		case <-ctx.Done():
			slog.Debug("notifier stopping: context cancelled", "dropped", n.queue.Len())
			n.queue.Close()
			return ctx.Err()
		case <-n.queue.Wait():
		}
	}
}

// Close stops accepting events. Run delivers what is already queued, then returns.
func (n *Notifier) Close() {
	n.queue.Close()
}

func (n *Notifier) dispatch(ctx context.Context, ev ledger.ChangeEvent) {
	if err := n.topic.Publish(ctx, ev); err != nil {
		slog.Warn("change event dropped",
			"action", ev.Action,
			"model", ev.Kind,
			"error", err,
		)
	}
}
