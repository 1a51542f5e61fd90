package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultChannelPrefix is prepended to the wheel id to form the pub/sub channel.
const DefaultChannelPrefix = "wheel8:spins:"

// Publisher is the subset of *redis.Client used for notifications.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisNotifier publishes events on a per-wheel Redis channel.
type RedisNotifier struct {
	client Publisher
	prefix string
}

func NewRedisNotifier(client Publisher, prefix string) *RedisNotifier {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisNotifier{client: client, prefix: prefix}
}

// Channel returns the channel events of wheelID are published on.
func (n *RedisNotifier) Channel(wheelID string) string {
	return n.prefix + wheelID
}

func (n *RedisNotifier) Notify(ctx context.Context, ev Event) error {
	if err := n.client.Publish(ctx, n.Channel(ev.WheelID), ev.Payload()).Err(); err != nil {
		return fmt.Errorf("notify.redis: publish spin %s: %w", ev.SpinID, err)
	}
	return nil
}
