package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/storefront/internal/ledger"
)

// RedisTopic publishes events to a Redis pub/sub channel.
type RedisTopic struct {
	client  *redis.Client
	channel string
}

// NewRedisTopic creates a topic on channel. An empty channel uses DefaultTopic.
func NewRedisTopic(client *redis.Client, channel string) *RedisTopic {
	if channel == "" {
		channel = DefaultTopic
	}
	return &RedisTopic{client: client, channel: channel}
}

// Channel returns the pub/sub channel name.
func (t *RedisTopic) Channel() string {
	return t.channel
}

// Publish sends ev as canonical JSON.
func (t *RedisTopic) Publish(ctx context.Context, ev ledger.ChangeEvent) error {
	data, err := Encode(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := t.client.Publish(ctx, t.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish failed: %w", err)
	}
	return nil
}

// Subscribe listens on the channel and decodes events until ctx is done.
// The returned channel is closed when the subscription ends. Messages that
// fail to decode are logged and skipped.
func (t *RedisTopic) Subscribe(ctx context.Context) (<-chan ledger.ChangeEvent, error) {
	sub := t.client.Subscribe(ctx, t.channel)
	// Wait for the subscription confirmation so no publish is missed after return.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("redis subscribe failed: %w", err)
	}

	out := make(chan ledger.ChangeEvent)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				ev, err := Decode([]byte(msg.Payload))
				if err != nil {
					slog.Warn("undecodable change event", "channel", msg.Channel, "error", err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
