package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meshchat-protocol/meshchat/internal/metrics"
	"github.com/meshchat-protocol/meshchat/internal/models"
)

// RedisStore handles Redis operations: the session store consumed by the
// validator and the per-user quota counters that back the quota gate.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Client exposes the underlying client for middleware that shares the
// connection (HTTP rate limiting).
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// sessionKey returns the key for a session token.
func sessionKey(token string) string {
	return "session:" + token
}

// quotaKey returns the counter key for a user in the window bucket that
// contains now. Bucketing by window start means counters reset by key
// rollover and TTL eviction, with no reset job.
func quotaKey(userID string, window time.Duration, now time.Time) string {
	bucket := now.Unix() / int64(window.Seconds())
	return fmt.Sprintf("quota:%s:%d", userID, bucket)
}

// PutSession stores a session record with the given TTL. Expiry is the
// store's responsibility via TTL eviction.
func (s *RedisStore) PutSession(ctx context.Context, token string, rec *models.SessionRecord, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	start := time.Now()
	err = s.client.Set(ctx, sessionKey(token), data, ttl).Err()
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
	return err
}

// GetSession retrieves a session record, nil if absent or expired.
func (s *RedisStore) GetSession(ctx context.Context, token string) (*models.SessionRecord, error) {
	start := time.Now()
	data, err := s.client.Get(ctx, sessionKey(token)).Bytes()
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	rec := &models.SessionRecord{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// DeleteSession removes a session (forced revocation).
func (s *RedisStore) DeleteSession(ctx context.Context, token string) error {
	return s.client.Del(ctx, sessionKey(token)).Err()
}

// MessageCount returns the user's message count for the current window.
func (s *RedisStore) MessageCount(ctx context.Context, userID string, window time.Duration) (int, error) {
	start := time.Now()
	count, err := s.client.Get(ctx, quotaKey(userID, window, time.Now())).Int()
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, err
	}
	return count, nil
}

// IncrMessageCount increments the user's counter for the current window and
// refreshes the key TTL. Returns the count after the increment.
func (s *RedisStore) IncrMessageCount(ctx context.Context, userID string, window time.Duration) (int, error) {
	key := quotaKey(userID, window, time.Now())

	start := time.Now()
	pipe := s.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	_, err := pipe.Exec(ctx)
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return 0, err
	}
	return int(incr.Val()), nil
}
