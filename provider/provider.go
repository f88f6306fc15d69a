// Package provider defines the edge provider contract and a health-aware
// fan-out registry. Providers own their transport; this package never
// speaks to a CDN directly.
package provider

import (
	"context"
	"time"
)

// Operation identifies the kind of purge a Result belongs to.
type Operation string

const (
	OpPurgeURL Operation = "purge_url"
	OpPurgeTag Operation = "purge_tag"
	OpPurgeAll Operation = "purge_all"
)

// Result is the uniform per-provider envelope for one purge call. Results
// are ephemeral: one per provider per call, never persisted.
type Result struct {
	Provider  string
	Operation Operation
	Success   bool
	Cost      float64
	Latency   time.Duration
	Err       error
}

// Statistics are cumulative per-provider counters.
type Statistics struct {
	Requests   int64
	Successes  int64
	Failures   int64
	TotalCost  float64
	AvgLatency time.Duration
}

// Configuration describes a provider as recognized by the cache config.
type Configuration struct {
	Enabled     bool
	Credentials string
	KeyPrefix   string
	DefaultTTL  time.Duration
}

// Provider is implemented by edge/CDN integrations.
type Provider interface {
	// ID uniquely identifies the provider within a registry.
	ID() string
	// PurgeURL removes one URL from the edge.
	PurgeURL(ctx context.Context, url string) Result
	// PurgeTag removes everything labeled with tag from the edge.
	PurgeTag(ctx context.Context, tag string) Result
	// PurgeAll removes all content owned by this configuration.
	PurgeAll(ctx context.Context) Result
	// Healthy reports whether the provider should receive traffic.
	Healthy(ctx context.Context) bool
	// Stats returns cumulative counters for this provider.
	Stats() Statistics
	// Config returns the provider's configuration.
	Config() Configuration
}
