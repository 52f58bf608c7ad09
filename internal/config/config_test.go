package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/assetflow/assetflow/pkg/errors"
)

func TestNewDefault(t *testing.T) {
	cfg := NewDefault()

	if !cfg.CDN.Enabled {
		t.Error("Expected CDN to be enabled by default")
	}
	if !cfg.CDN.FailoverEnabled {
		t.Error("Expected failover to be enabled by default")
	}
	if cfg.CDN.FailureThreshold != 3 {
		t.Errorf("Expected FailureThreshold 3, got %d", cfg.CDN.FailureThreshold)
	}
	if cfg.Cache.MaxSize != 256*1024*1024 {
		t.Errorf("Expected 256MB cache, got %d", cfg.Cache.MaxSize)
	}
	if cfg.Cache.Strategy != StrategyMemory {
		t.Errorf("Expected memory strategy, got %s", cfg.Cache.Strategy)
	}
	if cfg.Retry.MaxRetries != 3 {
		t.Errorf("Expected MaxRetries 3, got %d", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.BaseDelay != 100*time.Millisecond {
		t.Errorf("Expected BaseDelay 100ms, got %v", cfg.Retry.BaseDelay)
	}
	if cfg.Loading.MaxConcurrentLoads != 6 {
		t.Errorf("Expected MaxConcurrentLoads 6, got %d", cfg.Loading.MaxConcurrentLoads)
	}
	if cfg.Loading.FetchTimeout != 30*time.Second {
		t.Errorf("Expected FetchTimeout 30s, got %v", cfg.Loading.FetchTimeout)
	}
	if !cfg.Compression.Enabled {
		t.Error("Expected compression to be enabled by default")
	}
	if cfg.Metrics.Namespace != "assetflow" {
		t.Errorf("Expected namespace assetflow, got %s", cfg.Metrics.Namespace)
	}
}

func validConfig() *Config {
	cfg := NewDefault()
	cfg.CDN.Endpoints = []EndpointConfig{
		{Name: "primary", BaseURL: "https://cdn-a.example.com", Priority: 1},
		{Name: "secondary", BaseURL: "https://cdn-b.example.com", Priority: 2},
	}
	return cfg
}

func TestValidate_OK(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
}

func TestValidate_MissingEndpoints(t *testing.T) {
	cfg := NewDefault()
	cfg.CDN.Enabled = true
	cfg.CDN.Endpoints = nil

	err := cfg.Validate()
	if errors.CodeOf(err) != errors.ErrCodeMissingEndpoints {
		t.Errorf("Expected MISSING_ENDPOINTS, got %v", err)
	}
}

func TestValidate_DisabledCDNNeedsNoEndpoints(t *testing.T) {
	cfg := NewDefault()
	cfg.CDN.Enabled = false

	if err := cfg.Validate(); err != nil {
		t.Errorf("Disabled CDN must not require endpoints: %v", err)
	}
}

func TestValidate_DuplicateEndpointNames(t *testing.T) {
	cfg := validConfig()
	cfg.CDN.Endpoints[1].Name = "primary"

	err := cfg.Validate()
	if errors.CodeOf(err) != errors.ErrCodeInvalidConfig {
		t.Errorf("Expected INVALID_CONFIG, got %v", err)
	}
}

func TestValidate_EndpointRequiresNameAndURL(t *testing.T) {
	cfg := validConfig()
	cfg.CDN.Endpoints[0].BaseURL = ""

	if errors.CodeOf(cfg.Validate()) != errors.ErrCodeInvalidConfig {
		t.Error("Expected INVALID_CONFIG for endpoint without base_url")
	}
}

func TestValidate_CacheSize(t *testing.T) {
	cfg := validConfig()
	cfg.Cache.MaxSize = 0

	if errors.CodeOf(cfg.Validate()) != errors.ErrCodeInvalidConfig {
		t.Error("Expected INVALID_CONFIG for zero cache size")
	}
}

func TestValidate_HybridRequiresDirectory(t *testing.T) {
	cfg := validConfig()
	cfg.Cache.Strategy = StrategyHybrid
	cfg.Cache.Directory = ""

	if errors.CodeOf(cfg.Validate()) != errors.ErrCodeInvalidConfig {
		t.Error("Expected INVALID_CONFIG for hybrid strategy without directory")
	}

	cfg.Cache.Directory = t.TempDir()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected valid hybrid config, got %v", err)
	}
}

func TestValidate_UnknownStrategies(t *testing.T) {
	cfg := validConfig()
	cfg.Cache.Strategy = "quantum"
	if errors.CodeOf(cfg.Validate()) != errors.ErrCodeInvalidConfig {
		t.Error("Expected INVALID_CONFIG for unknown cache strategy")
	}

	cfg = validConfig()
	cfg.Retry.Strategy = "polynomial"
	if errors.CodeOf(cfg.Validate()) != errors.ErrCodeInvalidConfig {
		t.Error("Expected INVALID_CONFIG for unknown retry strategy")
	}
}

func TestValidate_Concurrency(t *testing.T) {
	cfg := validConfig()
	cfg.Loading.MaxConcurrentLoads = 0
	if errors.CodeOf(cfg.Validate()) != errors.ErrCodeInvalidConfig {
		t.Error("Expected INVALID_CONFIG for zero concurrency")
	}
}

func TestValidate_FailureThreshold(t *testing.T) {
	cfg := validConfig()
	cfg.CDN.FailureThreshold = 0
	if errors.CodeOf(cfg.Validate()) != errors.ErrCodeInvalidConfig {
		t.Error("Expected INVALID_CONFIG for zero failure threshold")
	}
}

func TestLoadFromFile(t *testing.T) {
	content := `
cdn:
  enabled: true
  failover_enabled: true
  failure_threshold: 5
  endpoints:
    - name: primary
      base_url: https://cdn-a.example.com
      priority: 1
      latency_threshold: 250ms
    - name: secondary
      base_url: https://cdn-b.example.com
      priority: 2
      regions: [eu-west, eu-central]
cache:
  max_size: 1048576
  strategy: memory
retry:
  max_retries: 5
  strategy: fibonacci
  base_delay: 50ms
  max_delay: 5s
loading:
  max_concurrent_loads: 4
  fetch_timeout: 10s
`
	path := filepath.Join(t.TempDir(), "assetflow.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefault()
	if err := cfg.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if len(cfg.CDN.Endpoints) != 2 {
		t.Fatalf("Expected 2 endpoints, got %d", len(cfg.CDN.Endpoints))
	}
	if cfg.CDN.Endpoints[0].LatencyThreshold != 250*time.Millisecond {
		t.Errorf("Expected 250ms latency threshold, got %v", cfg.CDN.Endpoints[0].LatencyThreshold)
	}
	if cfg.CDN.FailureThreshold != 5 {
		t.Errorf("Expected failure threshold 5, got %d", cfg.CDN.FailureThreshold)
	}
	if cfg.Retry.Strategy != "fibonacci" {
		t.Errorf("Expected fibonacci strategy, got %s", cfg.Retry.Strategy)
	}
	if cfg.Cache.MaxSize != 1048576 {
		t.Errorf("Expected 1MB cache, got %d", cfg.Cache.MaxSize)
	}
	if len(cfg.CDN.Endpoints[1].Regions) != 2 {
		t.Errorf("Expected 2 regions, got %v", cfg.CDN.Endpoints[1].Regions)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Loaded config should validate: %v", err)
	}
}

func TestLoadFromFile_Missing(t *testing.T) {
	cfg := NewDefault()
	if err := cfg.LoadFromFile("/nonexistent/assetflow.yaml"); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ASSETFLOW_MAX_CACHE_SIZE", "2097152")
	t.Setenv("ASSETFLOW_MAX_RETRIES", "7")
	t.Setenv("ASSETFLOW_CACHE_STRATEGY", "memory")
	t.Setenv("ASSETFLOW_FETCH_TIMEOUT", "5s")

	cfg := NewDefault()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv failed: %v", err)
	}

	if cfg.Cache.MaxSize != 2097152 {
		t.Errorf("Expected cache size override, got %d", cfg.Cache.MaxSize)
	}
	if cfg.Retry.MaxRetries != 7 {
		t.Errorf("Expected retry override, got %d", cfg.Retry.MaxRetries)
	}
	if cfg.Loading.FetchTimeout != 5*time.Second {
		t.Errorf("Expected timeout override, got %v", cfg.Loading.FetchTimeout)
	}
}

func TestFallbackConfigured(t *testing.T) {
	var f FallbackConfig
	if f.Configured() {
		t.Error("Empty fallback must not report configured")
	}
	f.Bucket = "assets"
	if !f.Configured() {
		t.Error("Fallback with a bucket must report configured")
	}
}
