// Package cache is the tier orchestration engine: a Local in-process
// cache, a shared Remote tier on Redis, and a best-effort Edge tier
// composed behind one get/put/evict API.
//
// # Tiers
//
// The Local tier is an LRU bounded by maxSize with per-entry TTL and a
// tag index. It is synchronous and authoritative for the writing
// instance: a Put or Evict that reaches Local has happened, whatever the
// other tiers do.
//
// The Remote tier stores msgpack-encoded values at {prefix}data:{key}
// with native Redis TTL and tag membership sets at {prefix}tag:{tag}.
// Writes are write-through and best-effort; reads that fail degrade to a
// miss. A Remote hit backfills Local, but tag metadata is not
// reconstructed on backfill — a backfilled entry cannot be found by tag
// eviction until the next Put.
//
// The Edge tier is purge-only. Evictions derive a URL from baseUrl and
// the key and hand it to a batcher; batches fan out to every healthy
// provider through a rate limiter and a circuit breaker. Edge calls are
// dispatched asynchronously and never awaited by the eviction path.
//
// # Consistency
//
// Instances sharing a Remote tier converge through the invalidation bus:
// every evict publishes a message, and peers apply the equivalent
// Local-only mutation. Receivers discard messages carrying their own
// instance id. The design is eventually consistent across instances;
// strictness is bounded only by message delivery latency.
//
// Remote and Edge failures are absorbed at the boundary, logged, and
// counted in [Stats]. An eviction whose Remote or Edge leg fails still
// succeeds locally, which can leave other tiers stale until the entries
// expire — an intentional, observable trade-off.
//
// # Typed access
//
// [TieredCache.Get] returns any because Go interfaces cannot carry
// generic methods. [GetAs] provides type-safe reads over both tiers, and
// [Fetch] is the read-through helper combining lookup, compute, and Put:
//
//	user, err := cache.Fetch(ctx, c, "user:123", time.Minute, []string{"users"},
//	    func(ctx context.Context) (User, error) {
//	        return queries.GetUser(ctx, id)
//	    },
//	)
//
// # Dependencies
//
// TrackDependency records that one key was computed from another;
// InvalidateDependents evicts the direct dependents of a key. The walk
// is deliberately single-hop — callers needing a transitive cascade
// re-walk the returned keys.
package cache
