// Package config loads the runtime configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xudanli/tripnaraht-sub002/internal/observability"
)

// Defaults.
const (
	DefaultLLMProvider    = "openai"
	DefaultLLMModel       = "gpt-4o-mini"
	DefaultLLMTimeoutSecs = 120
	DefaultCacheTTLSecs   = 300
	DefaultCacheCapacity  = 1000
	DefaultDedupTTLSecs   = 5
	DefaultMetricsPort    = 9464
)

// LLMConfig configures the planner's model provider.
type LLMConfig struct {
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	APIKey      string `yaml:"api_key"`
	BaseURL     string `yaml:"base_url"`
	TimeoutSecs int    `yaml:"timeout_seconds"`
	MaxRetries  int    `yaml:"max_retries"`
}

// CacheConfig configures the action result cache.
type CacheConfig struct {
	TTLSecs  int `yaml:"ttl_seconds"`
	Capacity int `yaml:"capacity"`
}

// DedupConfig configures request deduplication.
type DedupConfig struct {
	TTLSecs  int `yaml:"ttl_seconds"`
	Capacity int `yaml:"capacity"`
}

// RuntimeConfig is the full runtime configuration.
type RuntimeConfig struct {
	LLM     LLMConfig                   `yaml:"llm"`
	Cache   CacheConfig                 `yaml:"cache"`
	Dedup   DedupConfig                 `yaml:"dedup"`
	Metrics observability.MetricsConfig `yaml:"metrics"`
	Verbose bool                        `yaml:"verbose"`
}

// Default returns the baseline configuration.
func Default() *RuntimeConfig {
	return &RuntimeConfig{
		LLM: LLMConfig{
			Provider:    DefaultLLMProvider,
			Model:       DefaultLLMModel,
			TimeoutSecs: DefaultLLMTimeoutSecs,
			MaxRetries:  3,
		},
		Cache: CacheConfig{
			TTLSecs:  DefaultCacheTTLSecs,
			Capacity: DefaultCacheCapacity,
		},
		Dedup: DedupConfig{
			TTLSecs: DefaultDedupTTLSecs,
		},
		Metrics: observability.MetricsConfig{
			Enabled:        false,
			PrometheusPort: DefaultMetricsPort,
		},
	}
}

// Load reads path (when non-empty) over the defaults, then applies
// environment overrides.
func Load(path string) (*RuntimeConfig, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// Environment variables recognized by applyEnv.
const (
	envAPIKey      = "TRIPNAR_API_KEY"
	envBaseURL     = "TRIPNAR_BASE_URL"
	envModel       = "TRIPNAR_MODEL"
	envProvider    = "TRIPNAR_PROVIDER"
	envMetricsOn   = "TRIPNAR_METRICS"
	envMetricsPort = "TRIPNAR_METRICS_PORT"
	envVerbose     = "TRIPNAR_VERBOSE"
)

func applyEnv(cfg *RuntimeConfig) {
	if v := os.Getenv(envAPIKey); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv(envBaseURL); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv(envModel); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv(envProvider); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv(envMetricsOn); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Metrics.Enabled = enabled
		}
	}
	if v := os.Getenv(envMetricsPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.Metrics.PrometheusPort = port
		}
	}
	if v := os.Getenv(envVerbose); v != "" {
		if verbose, err := strconv.ParseBool(v); err == nil {
			cfg.Verbose = verbose
		}
	}
}

// LLMTimeout returns the configured LLM timeout as a duration.
func (c *RuntimeConfig) LLMTimeout() time.Duration {
	secs := c.LLM.TimeoutSecs
	if secs <= 0 {
		secs = DefaultLLMTimeoutSecs
	}
	return time.Duration(secs) * time.Second
}

// CacheTTL returns the configured action-cache TTL.
func (c *RuntimeConfig) CacheTTL() time.Duration {
	secs := c.Cache.TTLSecs
	if secs <= 0 {
		secs = DefaultCacheTTLSecs
	}
	return time.Duration(secs) * time.Second
}

// DedupTTL returns the configured dedup window.
func (c *RuntimeConfig) DedupTTL() time.Duration {
	secs := c.Dedup.TTLSecs
	if secs <= 0 {
		secs = DefaultDedupTTLSecs
	}
	return time.Duration(secs) * time.Second
}
