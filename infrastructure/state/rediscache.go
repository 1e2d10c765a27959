package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisCache wraps another PersistenceBackend (typically PostgresBackend)
// and serves the most recently written entries out of Redis before
// falling back to it, mirroring the engine's own in-process snapshot ring
// but at the persistence layer: hot (recent) snapshots stay in Redis, cold
// ones live durably behind the wrapped backend.
type RedisCache struct {
	client *redis.Client
	next   PersistenceBackend
	ttl    time.Duration
	prefix string
}

// NewRedisCache constructs a cache-aside PersistenceBackend in front of
// next. ttl bounds how long a cached entry survives before a Load falls
// through to next again; 0 means entries never expire from Redis on their
// own (only explicit Delete removes them).
func NewRedisCache(client *redis.Client, next PersistenceBackend, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, next: next, ttl: ttl, prefix: "keind:snapshot:"}
}

func (c *RedisCache) redisKey(key string) string {
	return c.prefix + key
}

func (c *RedisCache) Save(ctx context.Context, key string, data []byte) error {
	if err := c.next.Save(ctx, key, data); err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.redisKey(key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("state: redis cache write %q: %w", key, err)
	}
	return nil
}

func (c *RedisCache) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, c.redisKey(key)).Bytes()
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("state: redis cache read %q: %w", key, err)
	}

	data, err = c.next.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if setErr := c.client.Set(ctx, c.redisKey(key), data, c.ttl).Err(); setErr != nil {
		return data, nil
	}
	return data, nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.next.Delete(ctx, key); err != nil {
		return err
	}
	if err := c.client.Del(ctx, c.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("state: redis cache delete %q: %w", key, err)
	}
	return nil
}

func (c *RedisCache) List(ctx context.Context, prefix string) ([]string, error) {
	return c.next.List(ctx, prefix)
}

func (c *RedisCache) Close(ctx context.Context) error {
	if err := c.client.Close(); err != nil {
		return err
	}
	return c.next.Close(ctx)
}
