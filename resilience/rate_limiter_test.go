package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterBurst(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		RequestsPerSecond: 1, // slow refill so the burst dominates
		BurstSize:         5,
		WindowSize:        time.Second,
	})

	for i := 0; i < 5; i++ {
		assert.True(t, rl.TryAcquire(), "acquire %d should succeed within the burst", i+1)
	}
	assert.False(t, rl.TryAcquire(), "acquire past the burst should fail")
}

func TestRateLimiterRefill(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		RequestsPerSecond: 100,
		BurstSize:         1,
		WindowSize:        time.Second,
	})

	assert.True(t, rl.TryAcquire())
	assert.False(t, rl.TryAcquire())

	// 100/s refills one token within 10ms.
	time.Sleep(20 * time.Millisecond)
	assert.True(t, rl.TryAcquire())
}

func TestRateLimiterAcquireWaits(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		RequestsPerSecond: 50,
		BurstSize:         1,
		WindowSize:        time.Second,
	})

	assert.True(t, rl.TryAcquire())

	// Empty bucket: Acquire should wait for the 20ms refill and succeed.
	start := time.Now()
	assert.NoError(t, rl.Acquire(context.Background()))
	assert.Less(t, time.Since(start), time.Second)
}

func TestRateLimiterAcquireTimeout(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		RequestsPerSecond: 0.001, // next token is ~17 minutes away
		BurstSize:         1,
		WindowSize:        30 * time.Millisecond,
	})

	assert.True(t, rl.TryAcquire())
	assert.ErrorIs(t, rl.Acquire(context.Background()), ErrRateLimited)
}

func TestRateLimiterAcquireCancelled(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		RequestsPerSecond: 0.001,
		BurstSize:         1,
		WindowSize:        time.Minute,
	})
	assert.True(t, rl.TryAcquire())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	assert.ErrorIs(t, rl.Acquire(ctx), context.Canceled)
}

func TestRateLimiterDefaults(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{})
	assert.True(t, rl.TryAcquire())
	assert.Greater(t, rl.Tokens(), 0.0)
}
