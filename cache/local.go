package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type entry struct {
	value   any
	expires time.Time
	tags    []string
}

// localTier is the in-process cache level: an LRU bounded by maxSize with
// per-entry absolute expiry and a tag index. The entry map and the tag
// index mutate together under one mutex so readers never observe a
// half-updated pair. Expired entries are dropped lazily on read and swept
// by a background janitor.
type localTier struct {
	ctx       context.Context
	cancel    context.CancelFunc
	waitGroup sync.WaitGroup
	once      sync.Once

	mutex    sync.Mutex
	entries  *lru.Cache[string, *entry]
	tagIndex map[string]map[string]struct{}
}

func newLocalTier(parent context.Context, maxSize int, expiryCheck time.Duration) *localTier {
	ctx, cancel := context.WithCancel(parent)
	l := &localTier{
		ctx:      ctx,
		cancel:   cancel,
		tagIndex: make(map[string]map[string]struct{}),
	}
	// The eviction callback runs while l.mutex is held: every LRU
	// mutation happens under it.
	l.entries, _ = lru.NewWithEvict(maxSize, func(key string, e *entry) {
		l.deindex(key, e.tags)
	})
	l.waitGroup.Add(1)
	go l.run(expiryCheck)
	return l
}

// deindex removes key from the tag sets it belongs to. Callers hold l.mutex.
func (l *localTier) deindex(key string, tags []string) {
	for _, tag := range tags {
		if set, ok := l.tagIndex[tag]; ok {
			delete(set, key)
			if len(set) == 0 {
				delete(l.tagIndex, tag)
			}
		}
	}
}

func (l *localTier) get(key string) (any, bool) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	e, ok := l.entries.Get(key)
	if !ok {
		return nil, false
	}
	if e.expires.Before(time.Now()) {
		// Removing triggers the eviction callback, which deindexes.
		l.entries.Remove(key)
		return nil, false
	}
	return e.value, true
}

func (l *localTier) set(key string, val any, ttl time.Duration, tags []string) {
	e := &entry{value: val, expires: time.Now().Add(ttl), tags: tags}
	l.mutex.Lock()
	defer l.mutex.Unlock()
	// An overwrite does not fire the eviction callback, so clear the old
	// tag membership by hand before indexing the new one.
	if old, ok := l.entries.Peek(key); ok {
		l.deindex(key, old.tags)
	}
	l.entries.Add(key, e)
	for _, tag := range tags {
		if l.tagIndex[tag] == nil {
			l.tagIndex[tag] = make(map[string]struct{})
		}
		l.tagIndex[tag][key] = struct{}{}
	}
}

func (l *localTier) delete(key string) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.entries.Remove(key)
}

// deleteByTag removes every entry registered under tag and returns the
// removed keys.
func (l *localTier) deleteByTag(tag string) []string {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	set := l.tagIndex[tag]
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	for _, key := range keys {
		l.entries.Remove(key)
	}
	return keys
}

func (l *localTier) clear() {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.entries.Purge()
	l.tagIndex = make(map[string]map[string]struct{})
}

// keys returns the unexpired keys currently resident in the tier.
func (l *localTier) keys() []string {
	now := time.Now()
	l.mutex.Lock()
	defer l.mutex.Unlock()
	all := l.entries.Keys()
	out := make([]string, 0, len(all))
	for _, key := range all {
		if e, ok := l.entries.Peek(key); ok && !e.expires.Before(now) {
			out = append(out, key)
		}
	}
	return out
}

func (l *localTier) len() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.entries.Len()
}

func (l *localTier) run(interval time.Duration) {
	defer l.waitGroup.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			l.mutex.Lock()
			for _, key := range l.entries.Keys() {
				if e, ok := l.entries.Peek(key); ok && e.expires.Before(now) {
					l.entries.Remove(key)
				}
			}
			l.mutex.Unlock()
		}
	}
}

func (l *localTier) close() {
	l.once.Do(func() {
		l.cancel()
		l.waitGroup.Wait()
	})
}
