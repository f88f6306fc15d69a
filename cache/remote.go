package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// remoteTier is the shared Redis cache level. Values live at
// {prefix}data:{key} with native TTL; tag membership sets live at
// {prefix}tag:{tag}. The tier stores opaque bytes — serialization belongs
// to the orchestrator.
type remoteTier struct {
	client       *redis.Client
	prefix       string
	queryTimeout time.Duration
}

// defaultQueryTimeout bounds each Redis round trip so remote slowness
// degrades to a miss instead of stalling callers.
const defaultQueryTimeout = 5 * time.Second

func newRemoteTier(client *redis.Client, prefix string) *remoteTier {
	return &remoteTier{
		client:       client,
		prefix:       prefix,
		queryTimeout: defaultQueryTimeout,
	}
}

func (r *remoteTier) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, r.queryTimeout)
}

func (r *remoteTier) dataKey(key string) string {
	return r.prefix + "data:" + key
}

func (r *remoteTier) tagKey(tag string) string {
	return r.prefix + "tag:" + tag
}

func (r *remoteTier) get(ctx context.Context, key string) ([]byte, bool, error) {
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	data, err := r.client.Get(qctx, r.dataKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (r *remoteTier) set(ctx context.Context, key string, data []byte, ttl time.Duration, tags []string) error {
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	pipe := r.client.Pipeline()
	pipe.Set(qctx, r.dataKey(key), data, ttl)
	for _, tag := range tags {
		pipe.SAdd(qctx, r.tagKey(tag), key)
	}
	_, err := pipe.Exec(qctx)
	return err
}

func (r *remoteTier) delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	dataKeys := make([]string, len(keys))
	for i, key := range keys {
		dataKeys[i] = r.dataKey(key)
	}
	return r.client.Del(qctx, dataKeys...).Err()
}

// deleteTag removes the tag set and every member's value, returning the
// member keys.
func (r *remoteTier) deleteTag(ctx context.Context, tag string) ([]string, error) {
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	members, err := r.client.SMembers(qctx, r.tagKey(tag)).Result()
	if err != nil {
		return nil, err
	}
	pipe := r.client.Pipeline()
	for _, key := range members {
		pipe.Del(qctx, r.dataKey(key))
	}
	pipe.Del(qctx, r.tagKey(tag))
	if _, err := pipe.Exec(qctx); err != nil {
		return members, err
	}
	return members, nil
}

// deleteAll removes every key under this tier's prefix, values and tag
// sets alike.
func (r *remoteTier) deleteAll(ctx context.Context) error {
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(qctx, cursor, r.prefix+"*", 200).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := r.client.Del(qctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
