package resilience

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimited signals that an operation was rejected by the rate
// limiter. It is a back-off signal, not a failure of the wrapped call, so
// callers can distinguish it from provider errors.
var ErrRateLimited = errors.New("rate limited")

// RateLimiterConfig defines configuration for the token bucket.
type RateLimiterConfig struct {
	// RequestsPerSecond is the steady-state refill rate.
	RequestsPerSecond float64

	// BurstSize is the bucket capacity: the number of operations allowed
	// with no elapsed time.
	BurstSize int

	// WindowSize bounds how long Acquire waits for a token before giving
	// up with ErrRateLimited.
	WindowSize time.Duration
}

// DefaultRateLimiterConfig returns a default configuration.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 10,
		BurstSize:         20,
		WindowSize:        time.Second,
	}
}

// RateLimiter is a token bucket. Tokens refill proportionally to elapsed
// time and never exceed BurstSize; the refill and the decrement happen
// atomically so concurrent callers cannot over-acquire.
type RateLimiter struct {
	limiter *rate.Limiter
	window  time.Duration
}

// NewRateLimiter creates a rate limiter with the given configuration.
// Zero-valued fields fall back to DefaultRateLimiterConfig.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	def := DefaultRateLimiterConfig()
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = def.BurstSize
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize),
		window:  cfg.WindowSize,
	}
}

// TryAcquire takes one token without waiting. It reports false when the
// bucket is empty.
func (r *RateLimiter) TryAcquire() bool {
	return r.limiter.Allow()
}

// Acquire blocks until a token is available, the configured window
// elapses, or ctx is done. An exhausted window yields ErrRateLimited;
// caller cancellation is returned as the context's own error.
func (r *RateLimiter) Acquire(ctx context.Context) error {
	wctx, cancel := context.WithTimeout(ctx, r.window)
	defer cancel()
	if err := r.limiter.Wait(wctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrRateLimited
	}
	return nil
}

// Tokens returns the number of tokens currently available.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}
