package depgraph

import (
	"context"
	"sync"
)

type memoryGraph struct {
	mutex   sync.RWMutex
	forward map[string]map[string]struct{} // cacheKey -> dependency keys
	reverse map[string]map[string]struct{} // dependencyKey -> dependent keys
}

var _ Graph = (*memoryGraph)(nil)

// NewMemory returns an in-process Graph guarded by a single read/write lock.
func NewMemory() Graph {
	return &memoryGraph{
		forward: make(map[string]map[string]struct{}),
		reverse: make(map[string]map[string]struct{}),
	}
}

func (g *memoryGraph) Track(_ context.Context, cacheKey, dependencyKey string) {
	if cacheKey == dependencyKey {
		return
	}
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if g.forward[cacheKey] == nil {
		g.forward[cacheKey] = make(map[string]struct{})
	}
	g.forward[cacheKey][dependencyKey] = struct{}{}
	if g.reverse[dependencyKey] == nil {
		g.reverse[dependencyKey] = make(map[string]struct{})
	}
	g.reverse[dependencyKey][cacheKey] = struct{}{}
}

func (g *memoryGraph) Dependencies(_ context.Context, cacheKey string) []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return snapshot(g.forward[cacheKey])
}

func (g *memoryGraph) Dependents(_ context.Context, dependencyKey string) []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return snapshot(g.reverse[dependencyKey])
}

func (g *memoryGraph) InvalidateDependents(_ context.Context, dependencyKey string) []string {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	dependents := snapshot(g.reverse[dependencyKey])
	for _, dep := range dependents {
		delete(g.forward[dep], dependencyKey)
		if len(g.forward[dep]) == 0 {
			delete(g.forward, dep)
		}
	}
	delete(g.reverse, dependencyKey)
	return dependents
}

func (g *memoryGraph) Remove(_ context.Context, cacheKey, dependencyKey string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.removeLocked(cacheKey, dependencyKey)
}

func (g *memoryGraph) Clear(_ context.Context, cacheKey string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	for dependencyKey := range g.forward[cacheKey] {
		g.removeLocked(cacheKey, dependencyKey)
	}
}

func (g *memoryGraph) removeLocked(cacheKey, dependencyKey string) {
	if deps, ok := g.forward[cacheKey]; ok {
		delete(deps, dependencyKey)
		if len(deps) == 0 {
			delete(g.forward, cacheKey)
		}
	}
	if dependents, ok := g.reverse[dependencyKey]; ok {
		delete(dependents, cacheKey)
		if len(dependents) == 0 {
			delete(g.reverse, dependencyKey)
		}
	}
}

// HasCycles runs a DFS over the forward edges with recursion-stack marking.
// Self-edges cannot exist (Track rejects them) but longer cycles can form.
func (g *memoryGraph) HasCycles(_ context.Context) bool {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	visited := make(map[string]bool, len(g.forward))
	onStack := make(map[string]bool)
	var visit func(key string) bool
	visit = func(key string) bool {
		visited[key] = true
		onStack[key] = true
		for dep := range g.forward[key] {
			if onStack[dep] {
				return true
			}
			if !visited[dep] && visit(dep) {
				return true
			}
		}
		onStack[key] = false
		return false
	}
	for key := range g.forward {
		if !visited[key] && visit(key) {
			return true
		}
	}
	return false
}

func snapshot(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	return keys
}
