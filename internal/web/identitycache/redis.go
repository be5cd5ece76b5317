package identitycache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "myidoru:cache"

// Redis stores cache entries in Redis under "{prefix}:{key}".
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// RedisOption customises the Redis store.
type RedisOption func(*Redis)

// WithTTL expires entries after d. Zero keeps entries indefinitely.
func WithTTL(d time.Duration) RedisOption {
	return func(r *Redis) {
		if d > 0 {
			r.ttl = d
		}
	}
}

// WithKeyPrefix overrides the key prefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		if p := strings.TrimRight(strings.TrimSpace(prefix), ":"); p != "" {
			r.prefix = p
		}
	}
}

// NewRedis wraps a go-redis client.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{client: client, prefix: defaultKeyPrefix}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Set writes the value, applying the configured TTL.
func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.key(key), value, r.ttl).Err(); err != nil {
		return fmt.Errorf("identitycache: redis set: %w", err)
	}
	return nil
}

// Get reads the value or returns ErrNotFound.
func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("identitycache: redis get: %w", err)
	}
	return value, nil
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) key(key string) string {
	return r.prefix + ":" + key
}
