package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
enabled: true
defaultTtl: 90s
maxSize: 500
storage: cloudflare
baseUrl: https://cdn.example.com
redis:
  keyPrefix: "edge:"
rateLimit:
  requestsPerSecond: 25
  burstSize: 50
  windowSize: 2s
circuitBreaker:
  failureThreshold: 3
  recoveryTimeout: 1m
  halfOpenMaxCalls: 2
batching:
  batchSize: 32
  batchTimeout: 250ms
  maxConcurrency: 8
providers:
  cloudflare:
    enabled: true
    credentials: token-abc
    keyPrefix: "cf:"
    defaultTtl: 1h
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.True(t, cfg.Enabled)
	assert.Equal(t, 90*time.Second, time.Duration(cfg.DefaultTTL))
	assert.Equal(t, 500, cfg.MaxSize)
	assert.Equal(t, StorageCloudflare, cfg.Storage)
	assert.Equal(t, "https://cdn.example.com", cfg.BaseURL)
	assert.Equal(t, "edge:", cfg.Redis.KeyPrefix)
	assert.Equal(t, 25.0, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 50, cfg.RateLimit.BurstSize)
	assert.Equal(t, 2*time.Second, time.Duration(cfg.RateLimit.WindowSize))
	assert.Equal(t, 3, cfg.CircuitBreaker.FailureThreshold)
	assert.Equal(t, time.Minute, time.Duration(cfg.CircuitBreaker.RecoveryTimeout))
	assert.Equal(t, 2, cfg.CircuitBreaker.HalfOpenMaxCalls)
	assert.Equal(t, 32, cfg.Batching.BatchSize)
	assert.Equal(t, 250*time.Millisecond, time.Duration(cfg.Batching.BatchTimeout))
	assert.Equal(t, 8, cfg.Batching.MaxConcurrency)

	cf, ok := cfg.Providers["cloudflare"]
	require.True(t, ok)
	assert.True(t, cf.Enabled)
	assert.Equal(t, "token-abc", cf.Credentials)
	assert.Equal(t, time.Hour, time.Duration(cf.DefaultTTL))
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
enabled: true
storage: in_memory
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	defaults := DefaultConfig()
	assert.Equal(t, defaults.DefaultTTL, cfg.DefaultTTL)
	assert.Equal(t, defaults.MaxSize, cfg.MaxSize)
	assert.Equal(t, defaults.RateLimit, cfg.RateLimit)
	assert.Equal(t, defaults.Batching, cfg.Batching)
}

func TestLoadConfigCaffeineAlias(t *testing.T) {
	path := writeConfig(t, `
enabled: true
storage: caffeine
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, StorageCaffeine, cfg.Storage)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigInvalidDuration(t *testing.T) {
	path := writeConfig(t, `
enabled: true
defaultTtl: soon
`)

	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "invalid duration")
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults pass", func(*Config) {}, ""},
		{"bad storage", func(c *Config) { c.Storage = "memcached" }, "unrecognized storage"},
		{"zero max size", func(c *Config) { c.MaxSize = 0 }, "maxSize"},
		{"zero ttl", func(c *Config) { c.DefaultTTL = 0 }, "defaultTtl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}
