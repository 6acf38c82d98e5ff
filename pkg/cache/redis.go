package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is a Redis-based cache implementation.
type RedisCache struct {
	client  *redis.Client
	options *Options
}

// NewRedisCache creates a new Redis cache.
func NewRedisCache(addr string, password string, db int, opts *Options) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return NewRedisCacheWithClient(client, opts)
}

// NewRedisCacheWithClient wraps an existing Redis client.
func NewRedisCacheWithClient(client *redis.Client, opts *Options) *RedisCache {
	if opts == nil {
		opts = &Options{
			DefaultTTL: 5 * time.Minute,
		}
	}

	return &RedisCache{
		client:  client,
		options: opts,
	}
}

// makeKey 生成带前缀的键
func (c *RedisCache) makeKey(key string) string {
	if c.options.KeyPrefix != "" {
		return fmt.Sprintf("%s:%s", c.options.KeyPrefix, key)
	}
	return key
}

// Get gets a value from cache.
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, c.makeKey(key)).Result()
	if err == redis.Nil {
		return "", ErrMiss
	}
	return val, err
}

// Set sets a value in cache with TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.options.DefaultTTL
	}
	return c.client.Set(ctx, c.makeKey(key), value, ttl).Err()
}

// Delete deletes a key from cache.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.makeKey(key)).Err()
}

// Close closes the Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
