package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Store backed by a Redis instance. Server-side hosts use it
// as profile-scoped storage (contact tokens, request-id cache) that
// survives process restarts.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis wraps an existing go-redis client. All keys are namespaced
// under prefix (default "calemly").
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "calemly"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(key string) string {
	return r.prefix + ":" + key
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return value, nil
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
