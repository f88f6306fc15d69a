package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestLocal(t *testing.T, maxSize int) *localTier {
	t.Helper()
	l := newLocalTier(context.Background(), maxSize, time.Minute)
	t.Cleanup(l.close)
	return l
}

func TestLocalSetGet(t *testing.T) {
	l := newTestLocal(t, 16)

	l.set("k", "v", time.Minute, nil)
	val, ok := l.get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", val)

	_, ok = l.get("missing")
	assert.False(t, ok)
}

func TestLocalExpiry(t *testing.T) {
	l := newTestLocal(t, 16)

	l.set("k", "v", 20*time.Millisecond, []string{"t"})
	_, ok := l.get("k")
	assert.True(t, ok)

	time.Sleep(30 * time.Millisecond)

	// Expired read removes the entry and its tag membership.
	_, ok = l.get("k")
	assert.False(t, ok)
	assert.NotContains(t, l.keys(), "k")
	assert.Empty(t, l.deleteByTag("t"))
}

func TestLocalKeysExcludeExpired(t *testing.T) {
	l := newTestLocal(t, 16)

	l.set("fresh", 1, time.Minute, nil)
	l.set("stale", 2, 10*time.Millisecond, nil)
	time.Sleep(20 * time.Millisecond)

	assert.ElementsMatch(t, []string{"fresh"}, l.keys())
}

func TestLocalDeleteByTag(t *testing.T) {
	l := newTestLocal(t, 16)

	l.set("a", 1, time.Minute, []string{"products"})
	l.set("b", 2, time.Minute, []string{"products", "home"})
	l.set("c", 3, time.Minute, []string{"home"})
	l.set("d", 4, time.Minute, nil)

	removed := l.deleteByTag("products")

	assert.ElementsMatch(t, []string{"a", "b"}, removed)
	_, ok := l.get("a")
	assert.False(t, ok)
	_, ok = l.get("b")
	assert.False(t, ok)
	// Untagged and differently tagged entries are untouched.
	_, ok = l.get("c")
	assert.True(t, ok)
	_, ok = l.get("d")
	assert.True(t, ok)
	// b left the home index too.
	assert.ElementsMatch(t, []string{"c"}, l.deleteByTag("home"))
}

func TestLocalOverwriteReplacesTags(t *testing.T) {
	l := newTestLocal(t, 16)

	l.set("k", 1, time.Minute, []string{"old"})
	l.set("k", 2, time.Minute, []string{"new"})

	assert.Empty(t, l.deleteByTag("old"))
	assert.ElementsMatch(t, []string{"k"}, l.deleteByTag("new"))
}

func TestLocalMaxSizeEviction(t *testing.T) {
	l := newTestLocal(t, 2)

	l.set("a", 1, time.Minute, []string{"t"})
	l.set("b", 2, time.Minute, []string{"t"})
	l.set("c", 3, time.Minute, []string{"t"})

	// The LRU evicted "a" and cleaned its tag membership.
	_, ok := l.get("a")
	assert.False(t, ok)
	assert.Equal(t, 2, l.len())
	assert.ElementsMatch(t, []string{"b", "c"}, l.deleteByTag("t"))
}

func TestLocalClear(t *testing.T) {
	l := newTestLocal(t, 16)

	l.set("a", 1, time.Minute, []string{"t"})
	l.set("b", 2, time.Minute, nil)
	l.clear()

	assert.Zero(t, l.len())
	assert.Empty(t, l.keys())
	assert.Empty(t, l.deleteByTag("t"))
}

func TestLocalJanitorSweeps(t *testing.T) {
	l := newLocalTier(context.Background(), 16, 20*time.Millisecond)
	defer l.close()

	l.set("k", 1, 10*time.Millisecond, nil)
	assert.Eventually(t, func() bool {
		return l.len() == 0
	}, time.Second, 10*time.Millisecond)
}
