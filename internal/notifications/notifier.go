package notifications

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/redis/go-redis/v9"

	"feedhub/internal/observability"
)

// PostsChannel is the Redis channel carrying feed events.
const PostsChannel = "posts"

// Notifier publishes feed events to Redis and relays them back to a handler.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a Notifier. A nil client disables Redis fan-out.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// Enabled reports whether a Redis client is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && n.rdb != nil
}

// Publish sends payload on the posts channel.
func (n *Notifier) Publish(ctx context.Context, payload string) error {
	if !n.Enabled() {
		return nil
	}
	if err := n.rdb.Publish(ctx, PostsChannel, payload).Err(); err != nil {
		observability.RedisErrorRate.WithLabelValues("publish").Inc()
		return fmt.Errorf("publish %s: %w", PostsChannel, err)
	}
	return nil
}

// Subscribe listens on the posts channel and calls onMessage for each
// payload until ctx is done. It returns once the subscription is confirmed.
func (n *Notifier) Subscribe(ctx context.Context, onMessage func(payload string)) error {
	if !n.Enabled() {
		return nil
	}
	sub := n.rdb.Subscribe(ctx, PostsChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		observability.RedisErrorRate.WithLabelValues("subscribe").Inc()
		return fmt.Errorf("subscribe %s: %w", PostsChannel, err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							observability.L().Error("panic in posts subscriber",
								"panic", fmt.Sprint(r),
								"stack", string(debug.Stack()),
							)
						}
					}()
					onMessage(msg.Payload)
				}()
			}
		}
	}()

	return nil
}
