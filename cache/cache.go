package cache

import (
	"context"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// GetAs retrieves a typed value from the cache. Local values come back by
// direct type assertion; values served from the Remote tier arrive as
// msgpack bytes and are decoded into T. A value that is neither T nor
// decodable bytes counts as a miss.
func GetAs[T any](ctx context.Context, c *TieredCache, key string) (bool, T) {
	var zero T
	found, val := c.Get(ctx, key)
	if !found {
		return false, zero
	}
	if typed, ok := val.(T); ok {
		return true, typed
	}
	if data, ok := val.([]byte); ok {
		var result T
		if err := msgpack.Unmarshal(data, &result); err != nil {
			c.logger.Warn("failed to unmarshal %s: %s", key, err)
			return false, zero
		}
		return true, result
	}
	return false, zero
}

// Computer produces the value for a key on a cache miss.
type Computer[T any] func(ctx context.Context) (T, error)

// Fetch is the read-through entry point: it returns the cached value for
// key, or invokes compute, stores the result under key with the given TTL
// and tags, and returns it. A compute error is returned without caching
// anything. ttl <= 0 uses the configured default.
func Fetch[T any](ctx context.Context, c *TieredCache, key string, ttl time.Duration, tags []string, compute Computer[T]) (T, error) {
	if found, val := GetAs[T](ctx, c, key); found {
		return val, nil
	}
	val, err := compute(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	c.Put(ctx, key, val, ttl, tags...)
	return val, nil
}
