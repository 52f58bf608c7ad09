// Package config defines the engine configuration with defaults, file and
// environment loading, and construction-time validation.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v2"

	"github.com/assetflow/assetflow/pkg/errors"
)

// Config represents the complete engine configuration.
type Config struct {
	CDN         CDNConfig         `yaml:"cdn"`
	Cache       CacheConfig       `yaml:"cache"`
	Retry       RetryConfig       `yaml:"retry"`
	Loading     LoadingConfig     `yaml:"loading"`
	Compression CompressionConfig `yaml:"compression"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// CDNConfig configures the source router's CDN tier and fallback behavior.
type CDNConfig struct {
	Enabled            bool             `yaml:"enabled" env:"ASSETFLOW_CDN_ENABLED"`
	Endpoints          []EndpointConfig `yaml:"endpoints"`
	FailoverEnabled    bool             `yaml:"failover_enabled" env:"ASSETFLOW_CDN_FAILOVER"`
	IntelligentRouting bool             `yaml:"intelligent_routing" env:"ASSETFLOW_INTELLIGENT_ROUTING"`
	// FailureThreshold is the consecutive-failure count after which an
	// endpoint is considered unhealthy until a probe succeeds.
	FailureThreshold int            `yaml:"failure_threshold" env:"ASSETFLOW_FAILURE_THRESHOLD"`
	ActiveRegions    []string       `yaml:"active_regions" env:"ASSETFLOW_ACTIVE_REGIONS"`
	Fallback         FallbackConfig `yaml:"fallback"`
}

// EndpointConfig describes one CDN endpoint.
type EndpointConfig struct {
	Name             string        `yaml:"name"`
	BaseURL          string        `yaml:"base_url"`
	Priority         int           `yaml:"priority"`
	Regions          []string      `yaml:"regions"`
	Capabilities     []string      `yaml:"capabilities"`
	LatencyThreshold time.Duration `yaml:"latency_threshold"`
}

// FallbackConfig configures the S3-backed ultimate fallback tier.
type FallbackConfig struct {
	Bucket   string `yaml:"bucket" env:"ASSETFLOW_FALLBACK_BUCKET"`
	Prefix   string `yaml:"prefix" env:"ASSETFLOW_FALLBACK_PREFIX"`
	Region   string `yaml:"region" env:"ASSETFLOW_FALLBACK_REGION"`
	Endpoint string `yaml:"endpoint" env:"ASSETFLOW_FALLBACK_ENDPOINT"`
	// Static credentials; the default AWS credential chain applies when empty.
	AccessKey string `yaml:"access_key" env:"ASSETFLOW_FALLBACK_ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"ASSETFLOW_FALLBACK_SECRET_KEY"`
}

// Configured reports whether a fallback tier is set up.
func (f FallbackConfig) Configured() bool {
	return f.Bucket != ""
}

// CacheStrategy selects where cached payloads live.
type CacheStrategy string

const (
	StrategyMemory CacheStrategy = "memory"
	StrategyHybrid CacheStrategy = "hybrid"
)

// CacheConfig configures the cache store.
type CacheConfig struct {
	MaxSize  int64         `yaml:"max_size" env:"ASSETFLOW_MAX_CACHE_SIZE"`
	Strategy CacheStrategy `yaml:"strategy" env:"ASSETFLOW_CACHE_STRATEGY"`
	// Directory holds the disk tier when the strategy is hybrid.
	Directory string `yaml:"directory" env:"ASSETFLOW_CACHE_DIR"`
}

// RetryConfig configures the retry controller.
type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries" env:"ASSETFLOW_MAX_RETRIES"`
	Strategy   string        `yaml:"strategy" env:"ASSETFLOW_RETRY_STRATEGY"`
	BaseDelay  time.Duration `yaml:"base_delay" env:"ASSETFLOW_RETRY_BASE_DELAY"`
	MaxDelay   time.Duration `yaml:"max_delay" env:"ASSETFLOW_MAX_RETRY_DELAY"`
}

// LoadingConfig configures the loading scheduler.
type LoadingConfig struct {
	MaxConcurrentLoads int           `yaml:"max_concurrent_loads" env:"ASSETFLOW_MAX_CONCURRENT_LOADS"`
	FetchTimeout       time.Duration `yaml:"fetch_timeout" env:"ASSETFLOW_FETCH_TIMEOUT"`
}

// CompressionConfig configures the compression negotiator.
type CompressionConfig struct {
	Enabled  bool `yaml:"enabled" env:"ASSETFLOW_COMPRESSION_ENABLED"`
	Adaptive bool `yaml:"adaptive" env:"ASSETFLOW_ADAPTIVE_COMPRESSION"`
}

// MetricsConfig configures the metrics aggregator.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ASSETFLOW_METRICS_ENABLED"`
	Namespace string `yaml:"namespace" env:"ASSETFLOW_METRICS_NAMESPACE"`
	// Port exposes a Prometheus scrape endpoint when non-zero.
	Port int `yaml:"port" env:"ASSETFLOW_METRICS_PORT"`
}

// NewDefault returns a configuration with sensible defaults.
func NewDefault() *Config {
	return &Config{
		CDN: CDNConfig{
			Enabled:          true,
			FailoverEnabled:  true,
			FailureThreshold: 3,
		},
		Cache: CacheConfig{
			MaxSize:  256 * 1024 * 1024, // 256MB
			Strategy: StrategyMemory,
		},
		Retry: RetryConfig{
			MaxRetries: 3,
			Strategy:   "exponential",
			BaseDelay:  100 * time.Millisecond,
			MaxDelay:   10 * time.Second,
		},
		Loading: LoadingConfig{
			MaxConcurrentLoads: 6,
			FetchTimeout:       30 * time.Second,
		},
		Compression: CompressionConfig{
			Enabled:  true,
			Adaptive: false,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "assetflow",
		},
	}
}

// LoadFromFile loads configuration from a YAML file over the receiver.
func (c *Config) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv applies ASSETFLOW_* environment variable overrides.
func (c *Config) LoadFromEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}

// Validate checks the configuration, failing fast on invalid combinations.
func (c *Config) Validate() error {
	if c.CDN.Enabled && len(c.CDN.Endpoints) == 0 {
		return errors.NewError(errors.ErrCodeMissingEndpoints,
			"cdn is enabled but no endpoints are configured")
	}

	seen := make(map[string]bool, len(c.CDN.Endpoints))
	for _, ep := range c.CDN.Endpoints {
		if ep.Name == "" || ep.BaseURL == "" {
			return errors.NewError(errors.ErrCodeInvalidConfig,
				"cdn endpoints require a name and a base_url")
		}
		if seen[ep.Name] {
			return errors.NewError(errors.ErrCodeInvalidConfig,
				fmt.Sprintf("duplicate cdn endpoint name %q", ep.Name))
		}
		seen[ep.Name] = true
	}

	if c.CDN.FailureThreshold <= 0 {
		return errors.NewError(errors.ErrCodeInvalidConfig,
			"failure_threshold must be greater than 0")
	}

	if c.Cache.MaxSize <= 0 {
		return errors.NewError(errors.ErrCodeInvalidConfig,
			"cache max_size must be greater than 0")
	}
	switch c.Cache.Strategy {
	case StrategyMemory:
	case StrategyHybrid:
		if c.Cache.Directory == "" {
			return errors.NewError(errors.ErrCodeInvalidConfig,
				"hybrid cache strategy requires a directory")
		}
	default:
		return errors.NewError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("unknown cache strategy %q", c.Cache.Strategy))
	}

	switch c.Retry.Strategy {
	case "exponential", "fibonacci":
	default:
		return errors.NewError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("unknown retry strategy %q", c.Retry.Strategy))
	}
	if c.Retry.MaxRetries < 0 {
		return errors.NewError(errors.ErrCodeInvalidConfig,
			"max_retries cannot be negative")
	}

	if c.Loading.MaxConcurrentLoads <= 0 {
		return errors.NewError(errors.ErrCodeInvalidConfig,
			"max_concurrent_loads must be greater than 0")
	}

	return nil
}
