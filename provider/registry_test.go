package provider

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentuity/go-common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	id        string
	healthy   bool
	fail      bool
	purgeURLs atomic.Int64
	purgeTags atomic.Int64
	purgeAlls atomic.Int64
	stats     Statistics
}

func (f *fakeProvider) ID() string { return f.id }

func (f *fakeProvider) result(op Operation) Result {
	res := Result{Provider: f.id, Operation: op, Success: !f.fail, Cost: 1, Latency: time.Millisecond}
	if f.fail {
		res.Err = errors.New("provider unavailable")
	}
	return res
}

func (f *fakeProvider) PurgeURL(_ context.Context, _ string) Result {
	f.purgeURLs.Add(1)
	return f.result(OpPurgeURL)
}

func (f *fakeProvider) PurgeTag(_ context.Context, _ string) Result {
	f.purgeTags.Add(1)
	return f.result(OpPurgeTag)
}

func (f *fakeProvider) PurgeAll(_ context.Context) Result {
	f.purgeAlls.Add(1)
	return f.result(OpPurgeAll)
}

func (f *fakeProvider) Healthy(_ context.Context) bool { return f.healthy }
func (f *fakeProvider) Stats() Statistics              { return f.stats }
func (f *fakeProvider) Config() Configuration          { return Configuration{Enabled: true} }

func TestRegistryFanOut(t *testing.T) {
	ctx := context.Background()
	a := &fakeProvider{id: "a", healthy: true}
	b := &fakeProvider{id: "b", healthy: true}
	r := NewRegistry(logger.NewTestLogger(), []Provider{a, b})

	results := r.PurgeURL(ctx, "https://example.com/x")

	require.Len(t, results, 2)
	for _, res := range results {
		assert.True(t, res.Success)
		assert.Equal(t, OpPurgeURL, res.Operation)
	}
	assert.Equal(t, int64(1), a.purgeURLs.Load())
	assert.Equal(t, int64(1), b.purgeURLs.Load())
}

func TestRegistrySkipsUnhealthy(t *testing.T) {
	ctx := context.Background()
	a := &fakeProvider{id: "a", healthy: true}
	b := &fakeProvider{id: "b", healthy: false}
	r := NewRegistry(logger.NewTestLogger(), []Provider{a, b})

	results := r.PurgeTag(ctx, "products")

	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Provider)
	assert.Equal(t, int64(0), b.purgeTags.Load())
}

func TestRegistryIndependentFailures(t *testing.T) {
	ctx := context.Background()
	a := &fakeProvider{id: "a", healthy: true}
	b := &fakeProvider{id: "b", healthy: true, fail: true}
	r := NewRegistry(logger.NewTestLogger(), []Provider{a, b})

	results := r.PurgeAll(ctx)

	require.Len(t, results, 2)
	byID := map[string]Result{}
	for _, res := range results {
		byID[res.Provider] = res
	}
	assert.True(t, byID["a"].Success)
	assert.False(t, byID["b"].Success)
	assert.Error(t, byID["b"].Err)
}

func TestRegistryPurgeURLsBatch(t *testing.T) {
	ctx := context.Background()
	a := &fakeProvider{id: "a", healthy: true}
	r := NewRegistry(logger.NewTestLogger(), []Provider{a}, WithMaxConcurrency(2))

	results := r.PurgeURLs(ctx, []string{"u1", "u2", "u3"})

	assert.Len(t, results, 3)
	assert.Equal(t, int64(3), a.purgeURLs.Load())
}

func TestRegistryNoHealthyProviders(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(logger.NewTestLogger(), []Provider{&fakeProvider{id: "a"}})
	assert.Empty(t, r.PurgeURL(ctx, "u"))
}

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry(logger.NewTestLogger(), nil)
	assert.Empty(t, r.Providers())
	r.Register(&fakeProvider{id: "a", healthy: true})
	assert.Len(t, r.Providers(), 1)
}

func TestAggregateStats(t *testing.T) {
	a := &fakeProvider{id: "a", stats: Statistics{
		Requests: 10, Successes: 8, Failures: 2, TotalCost: 5, AvgLatency: 10 * time.Millisecond,
	}}
	b := &fakeProvider{id: "b", stats: Statistics{
		Requests: 20, Successes: 20, TotalCost: 2, AvgLatency: 30 * time.Millisecond,
	}}
	idle := &fakeProvider{id: "idle"}
	r := NewRegistry(logger.NewTestLogger(), []Provider{a, b, idle})

	agg := r.AggregateStats()

	assert.Equal(t, int64(30), agg.Requests)
	assert.Equal(t, int64(28), agg.Successes)
	assert.Equal(t, int64(2), agg.Failures)
	assert.Equal(t, 7.0, agg.TotalCost)
	// Idle provider is excluded from the latency average.
	assert.Equal(t, 20*time.Millisecond, agg.AvgLatency)
}
