package cache

import (
	"fmt"
	"os"
	"time"

	str2duration "github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

// Storage selects the tier topology.
type Storage string

const (
	// StorageInMemory runs the Local tier only.
	StorageInMemory Storage = "in_memory"
	// StorageCaffeine is accepted for configuration compatibility and
	// behaves as StorageInMemory.
	StorageCaffeine Storage = "caffeine"
	// StorageRedis layers the shared Remote tier under Local.
	StorageRedis Storage = "redis"
	// StorageCloudflare adds the best-effort Edge tier on top of Redis.
	StorageCloudflare Storage = "cloudflare"
)

func (s Storage) valid() bool {
	switch s {
	case StorageInMemory, StorageCaffeine, StorageRedis, StorageCloudflare:
		return true
	}
	return false
}

// Duration is a time.Duration that unmarshals from human strings such as
// "90s" or "5m" in YAML configuration.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := str2duration.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// RedisConfig holds Remote tier settings.
type RedisConfig struct {
	// KeyPrefix namespaces every key this instance writes.
	KeyPrefix string `yaml:"keyPrefix"`
}

// RateLimitConfig bounds the rate of edge purge operations.
type RateLimitConfig struct {
	RequestsPerSecond float64  `yaml:"requestsPerSecond"`
	BurstSize         int      `yaml:"burstSize"`
	WindowSize        Duration `yaml:"windowSize"`
}

// CircuitBreakerConfig tunes the breaker around edge providers.
type CircuitBreakerConfig struct {
	FailureThreshold int      `yaml:"failureThreshold"`
	RecoveryTimeout  Duration `yaml:"recoveryTimeout"`
	HalfOpenMaxCalls int      `yaml:"halfOpenMaxCalls"`
}

// BatchingConfig tunes how purge URLs are coalesced.
type BatchingConfig struct {
	BatchSize      int      `yaml:"batchSize"`
	BatchTimeout   Duration `yaml:"batchTimeout"`
	MaxConcurrency int      `yaml:"maxConcurrency"`
}

// ProviderConfig describes one edge provider integration.
type ProviderConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Credentials string   `yaml:"credentials"`
	KeyPrefix   string   `yaml:"keyPrefix"`
	DefaultTTL  Duration `yaml:"defaultTtl"`
}

// Config holds every recognized option for a TieredCache.
type Config struct {
	Enabled        bool                      `yaml:"enabled"`
	DefaultTTL     Duration                  `yaml:"defaultTtl"`
	MaxSize        int                       `yaml:"maxSize"`
	Storage        Storage                   `yaml:"storage"`
	BaseURL        string                    `yaml:"baseUrl"`
	Redis          RedisConfig               `yaml:"redis"`
	RateLimit      RateLimitConfig           `yaml:"rateLimit"`
	CircuitBreaker CircuitBreakerConfig      `yaml:"circuitBreaker"`
	Batching       BatchingConfig            `yaml:"batching"`
	Providers      map[string]ProviderConfig `yaml:"providers"`
}

// DefaultConfig returns the defaults applied before any file or caller
// overrides.
func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		DefaultTTL: Duration(5 * time.Minute),
		MaxSize:    10_000,
		Storage:    StorageInMemory,
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			BurstSize:         20,
			WindowSize:        Duration(time.Second),
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  Duration(30 * time.Second),
			HalfOpenMaxCalls: 1,
		},
		Batching: BatchingConfig{
			BatchSize:      10,
			BatchTimeout:   Duration(500 * time.Millisecond),
			MaxConcurrency: 4,
		},
	}
}

// Validate checks option values that cannot be defaulted away.
func (c Config) Validate() error {
	if !c.Storage.valid() {
		return fmt.Errorf("unrecognized storage %q", c.Storage)
	}
	if c.MaxSize <= 0 {
		return fmt.Errorf("maxSize must be positive, got %d", c.MaxSize)
	}
	if c.DefaultTTL <= 0 {
		return fmt.Errorf("defaultTtl must be positive")
	}
	return nil
}

// LoadConfig reads a YAML configuration file over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
