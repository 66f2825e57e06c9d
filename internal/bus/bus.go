// Package bus is the fan-out adapter: it publishes envelopes to a shared
// broadcast channel keyed by conversation and feeds frames published by other
// nodes back to the router. Delivery from the bus is at-least-once with no
// cross-channel ordering; dedup and echo suppression live in the router.
package bus

import (
	"context"
	"time"
)

// Handler is invoked once per frame received on a subscribed channel.
type Handler func(channel string, payload []byte)

// Bus is the broadcast surface the router consumes.
type Bus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channels ...string) error
	Unsubscribe(ctx context.Context, channels ...string) error
	Close() error
}

// ConversationChannel names the bus channel for a conversation.
func ConversationChannel(conversationID string) string {
	return "conv:" + conversationID
}

// retryBackoff is the base delay between publish attempts; it doubles per
// attempt.
const retryBackoff = 100 * time.Millisecond

// withRetry runs fn up to attempts times with doubling backoff. It returns
// the last error once the attempt ceiling is exhausted or the context ends.
func withRetry(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	delay := base
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
