package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/agentuity/go-common/logger"

	"github.com/agentuity/edgecache/provider"
	"github.com/agentuity/edgecache/resilience"
)

// edgePurger drives best-effort purges against the edge providers. Every
// operation passes the rate limiter first — a fast, distinguishable
// reject — and then runs under the circuit breaker. URL purges are
// coalesced by the batcher; tag and full purges dispatch directly.
// Nothing here ever returns an error to the eviction path.
type edgePurger struct {
	logger   logger.Logger
	baseURL  string
	limiter  *resilience.RateLimiter
	breaker  *resilience.CircuitBreaker
	registry *provider.Registry
	batcher  *resilience.Batcher
	stats    *statsCounters
}

var errProviderPurge = errors.New("one or more providers failed")

func newEdgePurger(ctx context.Context, cfg Config, log logger.Logger, registry *provider.Registry, stats *statsCounters) *edgePurger {
	p := &edgePurger{
		logger:  log.With(map[string]interface{}{"component": "edge-purger"}),
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		limiter: resilience.NewRateLimiter(resilience.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			BurstSize:         cfg.RateLimit.BurstSize,
			WindowSize:        time.Duration(cfg.RateLimit.WindowSize),
		}),
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
			RecoveryTimeout:  time.Duration(cfg.CircuitBreaker.RecoveryTimeout),
			HalfOpenMaxCalls: cfg.CircuitBreaker.HalfOpenMaxCalls,
		}),
		registry: registry,
		stats:    stats,
	}
	p.batcher = resilience.NewBatcher(ctx, resilience.BatcherConfig{
		BatchSize:    cfg.Batching.BatchSize,
		BatchTimeout: time.Duration(cfg.Batching.BatchTimeout),
	}, p.flushURLs)
	return p
}

// urlFor derives the edge URL a cache key is served under.
func (p *edgePurger) urlFor(key string) string {
	return p.baseURL + "/" + key
}

// enqueueKey schedules a derived-URL purge for key.
func (p *edgePurger) enqueueKey(key string) {
	p.batcher.Add(p.urlFor(key))
}

func (p *edgePurger) flushURLs(ctx context.Context, urls []string) {
	p.execute(ctx, func(ctx context.Context) []provider.Result {
		return p.registry.PurgeURLs(ctx, urls)
	})
}

func (p *edgePurger) purgeTag(ctx context.Context, tag string) {
	p.execute(ctx, func(ctx context.Context) []provider.Result {
		return p.registry.PurgeTag(ctx, tag)
	})
}

func (p *edgePurger) purgeAll(ctx context.Context) {
	p.execute(ctx, func(ctx context.Context) []provider.Result {
		return p.registry.PurgeAll(ctx)
	})
}

// execute runs one fan-out under the resilience layer and folds the
// outcome into counters. Failures are logged, never propagated.
func (p *edgePurger) execute(ctx context.Context, op func(ctx context.Context) []provider.Result) []provider.Result {
	if !p.limiter.TryAcquire() {
		p.stats.edgeRateLimited.Add(1)
		p.logger.Debug("edge purge rate limited")
		return nil
	}
	var results []provider.Result
	err := p.breaker.Execute(ctx, func(ctx context.Context) error {
		results = op(ctx)
		for _, res := range results {
			if !res.Success {
				return errProviderPurge
			}
		}
		return nil
	})
	switch {
	case err == nil:
		p.stats.edgePurges.Add(1)
	case errors.Is(err, resilience.ErrCircuitOpen):
		p.stats.edgeFailures.Add(1)
		p.logger.Debug("edge purge short-circuited: %s", err)
	default:
		p.stats.edgeFailures.Add(1)
		p.logger.Warn("edge purge failed: %s", err)
	}
	return results
}

func (p *edgePurger) close() {
	p.batcher.Close()
}
