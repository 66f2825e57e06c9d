package bus

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/meshchat-protocol/meshchat/internal/metrics"
)

// RedisBus implements Bus over Redis Pub/Sub. One PubSub connection carries
// all conversation channels; subscriptions are added and removed dynamically.
type RedisBus struct {
	client   *redis.Client
	attempts int
	logger   zerolog.Logger

	mu  sync.Mutex
	sub *redis.PubSub

	done chan struct{}
}

// NewRedisBus connects the bus and starts the receive loop. Every frame
// received on any subscribed channel is handed to handler.
func NewRedisBus(ctx context.Context, client *redis.Client, attempts int, handler Handler, logger zerolog.Logger) (*RedisBus, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	b := &RedisBus{
		client:   client,
		attempts: attempts,
		logger:   logger,
		sub:      client.Subscribe(ctx),
		done:     make(chan struct{}),
	}

	go b.receiveLoop(handler)
	return b, nil
}

// receiveLoop pumps bus frames into the handler until Close.
func (b *RedisBus) receiveLoop(handler Handler) {
	defer close(b.done)
	for msg := range b.sub.Channel() {
		handler(msg.Channel, []byte(msg.Payload))
	}
}

// Publish sends a frame to a channel, retrying with bounded backoff. After
// the attempt ceiling the error is returned; the caller treats exhausted
// fan-out as degraded, not fatal.
func (b *RedisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	err := withRetry(ctx, b.attempts, retryBackoff, func() error {
		return b.client.Publish(ctx, channel, payload).Err()
	})
	if err != nil {
		metrics.BusPublishFailures.Inc()
		b.logger.Warn().Err(err).Str("channel", channel).Msg("bus publish failed after retries")
		return err
	}
	metrics.BusPublished.Inc()
	return nil
}

// Subscribe adds channels to the shared PubSub connection.
func (b *RedisBus) Subscribe(ctx context.Context, channels ...string) error {
	if len(channels) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sub.Subscribe(ctx, channels...)
}

// Unsubscribe drops channels. Over-subscription is harmless, so failures are
// logged but not propagated to disconnect paths.
func (b *RedisBus) Unsubscribe(ctx context.Context, channels ...string) error {
	if len(channels) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sub.Unsubscribe(ctx, channels...)
}

// Close tears down the PubSub connection and waits for the receive loop.
func (b *RedisBus) Close() error {
	err := b.sub.Close()
	<-b.done
	return err
}
