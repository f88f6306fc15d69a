// Package depgraph tracks which cache keys were computed from which other
// keys, so that invalidating a value can cascade to the values derived
// from it.
//
// Two implementations are provided: [NewMemory], a per-instance graph held
// in two mutually consistent maps, and [NewRedis], a distributed graph
// persisted as Redis sets so that instances sharing a remote cache tier
// also share dependency edges.
//
// Invalidation is deliberately single-hop: [Graph.InvalidateDependents]
// returns only the direct dependents of a key. Callers that want a
// transitive cascade must re-walk the result themselves.
package depgraph

import "context"

// Graph is a bidirectional dependency index between cache keys.
//
// An edge (cacheKey, dependencyKey) means cacheKey was computed from
// dependencyKey. Edges exist in both the forward and reverse index or in
// neither. Self-edges are rejected at insertion.
type Graph interface {
	// Track records that cacheKey depends on dependencyKey. Idempotent;
	// a no-op when the two keys are equal.
	Track(ctx context.Context, cacheKey, dependencyKey string)

	// Dependencies returns a snapshot of the keys cacheKey depends on.
	Dependencies(ctx context.Context, cacheKey string) []string

	// Dependents returns a snapshot of the keys that depend on dependencyKey.
	Dependents(ctx context.Context, dependencyKey string) []string

	// InvalidateDependents returns the direct dependents of dependencyKey
	// and removes their edges to it. Single hop only.
	InvalidateDependents(ctx context.Context, dependencyKey string) []string

	// Remove deletes one edge from both indexes.
	Remove(ctx context.Context, cacheKey, dependencyKey string)

	// Clear removes every forward edge of cacheKey along with the matching
	// reverse entries.
	Clear(ctx context.Context, cacheKey string)

	// HasCycles reports whether the forward graph contains a cycle.
	// Diagnostic only; it never blocks a write. The distributed
	// implementation always reports false.
	HasCycles(ctx context.Context) bool
}
