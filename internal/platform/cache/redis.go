package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache wraps a go-redis client with the hash operations the gateway needs.
// Implementations must be safe for concurrent use.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// HGetAll returns every field of key; a missing key yields an empty map.
func (c *RedisCache) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return c.client.HGetAll(ctx, key).Result()
}

// HSetWithExpiry writes fields to key and refreshes its TTL in one transaction.
func (c *RedisCache) HSetWithExpiry(ctx context.Context, key string, fields map[string]any, expiry time.Duration) error {
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if expiry > 0 {
		pipe.Expire(ctx, key, expiry)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Delete removes key; a missing key is not an error.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
