package provider

import (
	"context"
	"sync"
	"time"

	"github.com/agentuity/go-common/logger"
	"golang.org/x/sync/errgroup"
)

type registryConfig struct {
	maxConcurrency int
}

// RegistryOption configures a Registry.
type RegistryOption func(*registryConfig)

// WithMaxConcurrency bounds how many provider calls run at once during a
// fan-out. Zero or negative means unbounded.
func WithMaxConcurrency(n int) RegistryOption {
	return func(c *registryConfig) { c.maxConcurrency = n }
}

// Registry fans a purge operation out to every healthy registered
// provider and collects one independent Result per provider. A provider
// reporting unhealthy is skipped for that call, not removed.
type Registry struct {
	mutex     sync.RWMutex
	providers []Provider
	logger    logger.Logger
	cfg       registryConfig
}

// NewRegistry creates a registry over the given providers.
func NewRegistry(log logger.Logger, providers []Provider, opts ...RegistryOption) *Registry {
	var cfg registryConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Registry{
		providers: append([]Provider(nil), providers...),
		logger:    log.With(map[string]interface{}{"component": "provider-registry"}),
		cfg:       cfg,
	}
}

// Register adds a provider to the fan-out set.
func (r *Registry) Register(p Provider) {
	r.mutex.Lock()
	r.providers = append(r.providers, p)
	r.mutex.Unlock()
}

// Providers returns a snapshot of the registered providers.
func (r *Registry) Providers() []Provider {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return append([]Provider(nil), r.providers...)
}

func (r *Registry) healthy(ctx context.Context) []Provider {
	all := r.Providers()
	out := make([]Provider, 0, len(all))
	for _, p := range all {
		if !p.Healthy(ctx) {
			r.logger.Debug("skipping unhealthy provider %s", p.ID())
			continue
		}
		out = append(out, p)
	}
	return out
}

func (r *Registry) dispatch(ctx context.Context, call func(ctx context.Context, p Provider) Result) []Result {
	targets := r.healthy(ctx)
	if len(targets) == 0 {
		return nil
	}
	results := make([]Result, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	if r.cfg.maxConcurrency > 0 {
		g.SetLimit(r.cfg.maxConcurrency)
	}
	for i, p := range targets {
		g.Go(func() error {
			results[i] = call(gctx, p)
			if results[i].Err != nil {
				r.logger.Warn("provider %s %s failed: %s", p.ID(), results[i].Operation, results[i].Err)
			}
			return nil
		})
	}
	// Workers never return errors; Wait is a join point.
	_ = g.Wait()
	return results
}

// PurgeURL purges one URL on every healthy provider.
func (r *Registry) PurgeURL(ctx context.Context, url string) []Result {
	return r.dispatch(ctx, func(ctx context.Context, p Provider) Result {
		return p.PurgeURL(ctx, url)
	})
}

// PurgeURLs purges a batch of URLs, one Result per provider per URL.
func (r *Registry) PurgeURLs(ctx context.Context, urls []string) []Result {
	var results []Result
	for _, url := range urls {
		results = append(results, r.dispatch(ctx, func(ctx context.Context, p Provider) Result {
			return p.PurgeURL(ctx, url)
		})...)
	}
	return results
}

// PurgeTag purges one tag on every healthy provider.
func (r *Registry) PurgeTag(ctx context.Context, tag string) []Result {
	return r.dispatch(ctx, func(ctx context.Context, p Provider) Result {
		return p.PurgeTag(ctx, tag)
	})
}

// PurgeAll purges everything on every healthy provider.
func (r *Registry) PurgeAll(ctx context.Context) []Result {
	return r.dispatch(ctx, func(ctx context.Context, p Provider) Result {
		return p.PurgeAll(ctx)
	})
}

// AggregateStats sums counters and averages latency across all registered
// providers, healthy or not.
func (r *Registry) AggregateStats() Statistics {
	all := r.Providers()
	var agg Statistics
	var latencySum time.Duration
	var counted int
	for _, p := range all {
		s := p.Stats()
		agg.Requests += s.Requests
		agg.Successes += s.Successes
		agg.Failures += s.Failures
		agg.TotalCost += s.TotalCost
		if s.Requests > 0 {
			latencySum += s.AvgLatency
			counted++
		}
	}
	if counted > 0 {
		agg.AvgLatency = latencySum / time.Duration(counted)
	}
	return agg
}
