package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentuity/go-common/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/agentuity/edgecache/bus"
	"github.com/agentuity/edgecache/depgraph"
	"github.com/agentuity/edgecache/provider"
)

// expiryCheckInterval is how often the Local janitor sweeps expired
// entries.
const expiryCheckInterval = time.Minute

type options struct {
	redis      *redis.Client
	providers  []provider.Provider
	graph      depgraph.Graph
	bus        bus.Bus
	instanceID string
}

// Option configures a TieredCache.
type Option func(*options)

// WithRedis supplies the client backing the Remote tier and the
// invalidation bus. Required for the redis and cloudflare storage modes;
// the caller owns the client lifecycle.
func WithRedis(client *redis.Client) Option {
	return func(o *options) { o.redis = client }
}

// WithProviders supplies the edge providers purges fan out to. Required
// for the cloudflare storage mode.
func WithProviders(providers ...provider.Provider) Option {
	return func(o *options) { o.providers = providers }
}

// WithGraph overrides the dependency graph. Defaults to the in-memory
// graph; pass depgraph.NewRedis to share edges across instances.
func WithGraph(g depgraph.Graph) Option {
	return func(o *options) { o.graph = g }
}

// WithBus overrides the invalidation bus. Defaults to Redis pub/sub when
// the Remote tier is active.
func WithBus(b bus.Bus) Option {
	return func(o *options) { o.bus = b }
}

// WithInstanceID fixes the identity used to discard self-originated bus
// messages. Defaults to a random UUID per TieredCache.
func WithInstanceID(id string) Option {
	return func(o *options) { o.instanceID = id }
}

type statsCounters struct {
	hits            atomic.Int64
	misses          atomic.Int64
	remoteErrors    atomic.Int64
	busErrors       atomic.Int64
	busApplied      atomic.Int64
	edgePurges      atomic.Int64
	edgeFailures    atomic.Int64
	edgeRateLimited atomic.Int64
}

// Stats is a point-in-time snapshot of orchestrator counters. Remote and
// edge failures never surface as errors, so the counters are the only
// place degradation is visible.
type Stats struct {
	Hits            int64
	Misses          int64
	RemoteErrors    int64
	BusErrors       int64
	BusApplied      int64
	EdgePurges      int64
	EdgeFailures    int64
	EdgeRateLimited int64
}

// TieredCache composes the Local, Remote, and Edge tiers behind one
// get/put/evict API. The Local tier is synchronous and authoritative for
// this instance; Remote is write-through and best-effort; Edge purges are
// dispatched asynchronously and never awaited. Peer instances converge
// through the invalidation bus.
type TieredCache struct {
	ctx        context.Context
	cancel     context.CancelFunc
	cfg        Config
	logger     logger.Logger
	instanceID string

	local  *localTier
	remote *remoteTier
	graph  depgraph.Graph
	bus    bus.Bus
	sub    bus.Subscriber
	edge   *edgePurger

	waitGroup sync.WaitGroup
	closeOnce sync.Once
	stats     statsCounters
}

// New creates a TieredCache for the given configuration. The storage mode
// decides the topology: in_memory/caffeine run Local only, redis layers
// the shared Remote tier (and the bus) underneath, cloudflare adds the
// Edge tier on top.
func New(ctx context.Context, cfg Config, log logger.Logger, opts ...Option) (*TieredCache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.instanceID == "" {
		o.instanceID = uuid.NewString()
	}
	if o.graph == nil {
		o.graph = depgraph.NewMemory()
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &TieredCache{
		ctx:        ctx,
		cancel:     cancel,
		cfg:        cfg,
		logger:     log.With(map[string]interface{}{"component": "tiered-cache", "instance": o.instanceID}),
		instanceID: o.instanceID,
		local:      newLocalTier(ctx, cfg.MaxSize, expiryCheckInterval),
		graph:      o.graph,
	}

	remoteMode := cfg.Storage == StorageRedis || cfg.Storage == StorageCloudflare
	if remoteMode && o.redis != nil {
		c.remote = newRemoteTier(o.redis, cfg.Redis.KeyPrefix)
		c.bus = o.bus
		if c.bus == nil {
			c.bus = bus.NewRedis(ctx, log, o.redis)
		}
		sub, err := c.bus.Subscribe(ctx, c.handleMessage)
		if err != nil {
			c.local.close()
			cancel()
			return nil, err
		}
		c.sub = sub
	}

	if cfg.Storage == StorageCloudflare && len(o.providers) > 0 {
		registry := provider.NewRegistry(log, o.providers,
			provider.WithMaxConcurrency(cfg.Batching.MaxConcurrency))
		c.edge = newEdgePurger(ctx, cfg, log, registry, &c.stats)
	}

	return c, nil
}

// InstanceID returns the identity used for bus origin filtering.
func (c *TieredCache) InstanceID() string {
	return c.instanceID
}

// Get checks Local first, then Remote. A Remote hit backfills Local with
// the default TTL; the entry's tag memberships are not reconstructed on
// backfill, so a backfilled entry is invisible to tag eviction until the
// next Put. Remote errors are counted and reported as a miss.
func (c *TieredCache) Get(ctx context.Context, key string) (bool, any) {
	if !c.cfg.Enabled {
		return false, nil
	}
	if val, ok := c.local.get(key); ok {
		c.stats.hits.Add(1)
		return true, val
	}
	if c.remote != nil {
		data, found, err := c.remote.get(ctx, key)
		if err != nil {
			c.stats.remoteErrors.Add(1)
			c.stats.misses.Add(1)
			c.logger.Warn("remote get %s failed: %s", key, err)
			return false, nil
		}
		if found {
			c.local.set(key, data, time.Duration(c.cfg.DefaultTTL), nil)
			c.stats.hits.Add(1)
			return true, data
		}
	}
	c.stats.misses.Add(1)
	return false, nil
}

// Put writes Local synchronously and Remote write-through. A Remote
// failure is logged and counted; the Local write stands regardless.
func (c *TieredCache) Put(ctx context.Context, key string, val any, ttl time.Duration, tags ...string) {
	if !c.cfg.Enabled {
		return
	}
	if ttl <= 0 {
		ttl = time.Duration(c.cfg.DefaultTTL)
	}
	c.local.set(key, val, ttl, tags)
	if c.remote == nil {
		return
	}
	data, err := msgpack.Marshal(val)
	if err != nil {
		c.logger.Warn("failed to marshal %s for remote tier: %s", key, err)
		return
	}
	if err := c.remote.set(ctx, key, data, ttl, tags); err != nil {
		c.stats.remoteErrors.Add(1)
		c.logger.Warn("remote set %s failed: %s", key, err)
	}
}

// Evict removes key from every tier and tells peers to do the same.
// Remote and Edge legs are best-effort; the Local removal always wins.
func (c *TieredCache) Evict(ctx context.Context, key string) {
	if !c.cfg.Enabled {
		return
	}
	c.local.delete(key)
	c.graph.Clear(ctx, key)
	if c.remote != nil {
		if err := c.remote.delete(ctx, key); err != nil {
			c.stats.remoteErrors.Add(1)
			c.logger.Warn("remote delete %s failed: %s", key, err)
		}
		c.publish(ctx, bus.Message{Type: bus.TypeEvict, Keys: []string{key}, Origin: c.instanceID})
	}
	if c.edge != nil {
		c.edge.enqueueKey(key)
	}
}

// EvictAll clears Local, deletes every Remote key under the tier prefix,
// and purges the edge.
func (c *TieredCache) EvictAll(ctx context.Context) {
	if !c.cfg.Enabled {
		return
	}
	c.local.clear()
	if c.remote != nil {
		if err := c.remote.deleteAll(ctx); err != nil {
			c.stats.remoteErrors.Add(1)
			c.logger.Warn("remote clear failed: %s", err)
		}
		c.publish(ctx, bus.Message{Type: bus.TypeEvictAll, Origin: c.instanceID})
	}
	if c.edge != nil {
		c.async(func(ctx context.Context) {
			c.edge.purgeAll(ctx)
		})
	}
}

// EvictByTags removes every entry registered under each tag. The Remote
// tag set and its members are deleted together; on partial failure the
// Local and Remote tag indexes can diverge until the entries expire — a
// known cross-tier consistency gap, visible through Stats.
func (c *TieredCache) EvictByTags(ctx context.Context, tags ...string) {
	if !c.cfg.Enabled || len(tags) == 0 {
		return
	}
	for _, tag := range tags {
		c.local.deleteByTag(tag)
		if c.remote != nil {
			if _, err := c.remote.deleteTag(ctx, tag); err != nil {
				c.stats.remoteErrors.Add(1)
				c.logger.Warn("remote tag eviction %s failed: %s", tag, err)
			}
		}
		if c.edge != nil {
			c.async(func(ctx context.Context) {
				c.edge.purgeTag(ctx, tag)
			})
		}
	}
	if c.remote != nil {
		c.publish(ctx, bus.Message{Type: bus.TypeEvictByTags, Tags: tags, Origin: c.instanceID})
	}
}

// TrackDependency records that cacheKey was computed from dependencyKey.
func (c *TieredCache) TrackDependency(ctx context.Context, cacheKey, dependencyKey string) {
	c.graph.Track(ctx, cacheKey, dependencyKey)
}

// InvalidateDependents evicts the direct dependents of dependencyKey and
// returns them. The walk is a single hop: dependents-of-dependents stay
// cached until their own dependency is invalidated.
func (c *TieredCache) InvalidateDependents(ctx context.Context, dependencyKey string) []string {
	keys := c.graph.InvalidateDependents(ctx, dependencyKey)
	for _, key := range keys {
		c.Evict(ctx, key)
	}
	return keys
}

// Keys returns the unexpired keys resident in the Local tier.
func (c *TieredCache) Keys() []string {
	return c.local.keys()
}

// Len returns the number of entries resident in the Local tier.
func (c *TieredCache) Len() int {
	return c.local.len()
}

// Stats returns a snapshot of the orchestrator counters.
func (c *TieredCache) Stats() Stats {
	return Stats{
		Hits:            c.stats.hits.Load(),
		Misses:          c.stats.misses.Load(),
		RemoteErrors:    c.stats.remoteErrors.Load(),
		BusErrors:       c.stats.busErrors.Load(),
		BusApplied:      c.stats.busApplied.Load(),
		EdgePurges:      c.stats.edgePurges.Load(),
		EdgeFailures:    c.stats.edgeFailures.Load(),
		EdgeRateLimited: c.stats.edgeRateLimited.Load(),
	}
}

// Close stops background activity: the bus subscription, the edge
// batcher, in-flight edge dispatches, and the Local janitor.
func (c *TieredCache) Close() {
	c.closeOnce.Do(func() {
		if c.sub != nil {
			c.sub.Close()
		}
		if c.edge != nil {
			c.edge.close()
		}
		c.cancel()
		c.waitGroup.Wait()
		if c.bus != nil {
			c.bus.Close()
		}
		c.local.close()
	})
}

func (c *TieredCache) publish(ctx context.Context, msg bus.Message) {
	if c.bus == nil {
		return
	}
	if err := c.bus.Publish(ctx, msg); err != nil {
		c.stats.busErrors.Add(1)
		c.logger.Warn("failed to publish %s: %s", msg.Type, err)
	}
}

// async runs fn in the background, detached from the caller but bounded
// by the cache lifecycle.
func (c *TieredCache) async(fn func(ctx context.Context)) {
	c.waitGroup.Add(1)
	go func() {
		defer c.waitGroup.Done()
		fn(c.ctx)
	}()
}

// handleMessage applies a peer's invalidation as a Local-only mutation.
// Self-originated echoes are dropped; every mutation is idempotent, so
// duplicate or reordered delivery is harmless.
func (c *TieredCache) handleMessage(_ context.Context, msg bus.Message) {
	if msg.Origin == c.instanceID {
		return
	}
	switch msg.Type {
	case bus.TypeEvict:
		for _, key := range msg.Keys {
			c.local.delete(key)
		}
	case bus.TypeEvictAll:
		c.local.clear()
	case bus.TypeEvictByTags:
		for _, tag := range msg.Tags {
			c.local.deleteByTag(tag)
		}
	default:
		c.logger.Warn("ignoring unknown invalidation type %q", msg.Type)
		return
	}
	c.stats.busApplied.Add(1)
}
