package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Bus fans Message out across every process instance so a user connected
// to instance A still receives an event emitted by a worker on instance
// B. Grounded on the corpus's Redis pub/sub forwarder: Publish pushes,
// StartForwarder drives a background goroutine that re-delivers to the
// local Hub.
type Bus struct {
	rdb     *redis.Client
	channel string
}

// NewBus creates a Bus bound to a single pub/sub channel.
func NewBus(rdb *redis.Client, channel string) *Bus {
	return &Bus{rdb: rdb, channel: channel}
}

// Publish broadcasts msg to every subscribed instance, including this
// one (the local Hub also subscribes via StartForwarder).
func (b *Bus) Publish(ctx context.Context, msg Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal realtime message: %w", err)
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

// StartForwarder subscribes to the channel and invokes onMsg for every
// message received, until ctx is canceled.
func (b *Bus) StartForwarder(ctx context.Context, onMsg func(Message)) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe realtime channel: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					slog.Warn("bad realtime bus payload", "error", err)
					continue
				}
				onMsg(msg)
			}
		}
	}()

	return nil
}

// Close releases the bus's Redis connection.
func (b *Bus) Close() error {
	return b.rdb.Close()
}
