package depgraph

import (
	"context"
	"time"

	"github.com/agentuity/go-common/logger"
	"github.com/redis/go-redis/v9"
)

// DefaultQueryTimeout bounds each Redis round trip so a slow store cannot
// stall the caller's eviction path.
const DefaultQueryTimeout = 5 * time.Second

type redisConfig struct {
	prefix       string
	queryTimeout time.Duration
}

// RedisOption configures the Redis-backed Graph.
type RedisOption func(*redisConfig)

// WithPrefix sets the key prefix for namespacing graph keys.
func WithPrefix(p string) RedisOption {
	return func(c *redisConfig) { c.prefix = p }
}

// WithQueryTimeout sets the per-operation timeout. Defaults to
// DefaultQueryTimeout.
func WithQueryTimeout(d time.Duration) RedisOption {
	return func(c *redisConfig) { c.queryTimeout = d }
}

type redisGraph struct {
	client *redis.Client
	logger logger.Logger
	cfg    redisConfig
}

var _ Graph = (*redisGraph)(nil)

// NewRedis returns a Graph persisted as Redis sets, shared by every
// instance pointed at the same prefix. Failures are logged and degrade to
// empty results; the graph never propagates storage errors to callers.
// The caller owns the redis.Client lifecycle.
func NewRedis(client *redis.Client, log logger.Logger, opts ...RedisOption) Graph {
	cfg := redisConfig{queryTimeout: DefaultQueryTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &redisGraph{
		client: client,
		logger: log.With(map[string]interface{}{"component": "depgraph"}),
		cfg:    cfg,
	}
}

func (g *redisGraph) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, g.cfg.queryTimeout)
}

func (g *redisGraph) forwardKey(cacheKey string) string {
	return g.cfg.prefix + "deps:" + cacheKey
}

func (g *redisGraph) reverseKey(dependencyKey string) string {
	return g.cfg.prefix + "rev-deps:" + dependencyKey
}

func (g *redisGraph) Track(ctx context.Context, cacheKey, dependencyKey string) {
	if cacheKey == dependencyKey {
		return
	}
	qctx, cancel := g.queryCtx(ctx)
	defer cancel()
	// Both sides of the edge go through one pipeline so a partial write is
	// a single network failure, not an interleaving.
	pipe := g.client.Pipeline()
	pipe.SAdd(qctx, g.forwardKey(cacheKey), dependencyKey)
	pipe.SAdd(qctx, g.reverseKey(dependencyKey), cacheKey)
	if _, err := pipe.Exec(qctx); err != nil {
		g.logger.Warn("failed to track dependency %s -> %s: %s", cacheKey, dependencyKey, err)
	}
}

func (g *redisGraph) Dependencies(ctx context.Context, cacheKey string) []string {
	return g.members(ctx, g.forwardKey(cacheKey))
}

func (g *redisGraph) Dependents(ctx context.Context, dependencyKey string) []string {
	return g.members(ctx, g.reverseKey(dependencyKey))
}

func (g *redisGraph) members(ctx context.Context, key string) []string {
	qctx, cancel := g.queryCtx(ctx)
	defer cancel()
	members, err := g.client.SMembers(qctx, key).Result()
	if err != nil {
		g.logger.Warn("failed to read %s: %s", key, err)
		return nil
	}
	if len(members) == 0 {
		return nil
	}
	return members
}

func (g *redisGraph) InvalidateDependents(ctx context.Context, dependencyKey string) []string {
	dependents := g.Dependents(ctx, dependencyKey)
	if len(dependents) == 0 {
		return nil
	}
	qctx, cancel := g.queryCtx(ctx)
	defer cancel()
	pipe := g.client.Pipeline()
	for _, dep := range dependents {
		pipe.SRem(qctx, g.forwardKey(dep), dependencyKey)
	}
	pipe.Del(qctx, g.reverseKey(dependencyKey))
	if _, err := pipe.Exec(qctx); err != nil {
		g.logger.Warn("failed to invalidate dependents of %s: %s", dependencyKey, err)
	}
	return dependents
}

func (g *redisGraph) Remove(ctx context.Context, cacheKey, dependencyKey string) {
	qctx, cancel := g.queryCtx(ctx)
	defer cancel()
	pipe := g.client.Pipeline()
	pipe.SRem(qctx, g.forwardKey(cacheKey), dependencyKey)
	pipe.SRem(qctx, g.reverseKey(dependencyKey), cacheKey)
	if _, err := pipe.Exec(qctx); err != nil {
		g.logger.Warn("failed to remove dependency %s -> %s: %s", cacheKey, dependencyKey, err)
	}
}

func (g *redisGraph) Clear(ctx context.Context, cacheKey string) {
	deps := g.Dependencies(ctx, cacheKey)
	qctx, cancel := g.queryCtx(ctx)
	defer cancel()
	pipe := g.client.Pipeline()
	for _, dependencyKey := range deps {
		pipe.SRem(qctx, g.reverseKey(dependencyKey), cacheKey)
	}
	pipe.Del(qctx, g.forwardKey(cacheKey))
	if _, err := pipe.Exec(qctx); err != nil {
		g.logger.Warn("failed to clear dependencies of %s: %s", cacheKey, err)
	}
}

// HasCycles always reports false in distributed mode. Walking the whole
// keyspace over the network on every diagnostic call is cost-prohibitive.
func (g *redisGraph) HasCycles(_ context.Context) bool {
	return false
}
