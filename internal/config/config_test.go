package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 3, cfg.LLM.MaxRetries)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL())
	assert.Equal(t, 5*time.Second, cfg.DedupTTL())
	assert.Equal(t, 120*time.Second, cfg.LLMTimeout())
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, DefaultMetricsPort, cfg.Metrics.PrometheusPort)
}

func TestLoadWithoutPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().LLM.Provider, cfg.LLM.Provider)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm:
  provider: mock
  model: test-model
  timeout_seconds: 10
cache:
  ttl_seconds: 60
  capacity: 50
metrics:
  enabled: true
  prometheus_port: 9999
verbose: true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "mock", cfg.LLM.Provider)
	assert.Equal(t, "test-model", cfg.LLM.Model)
	assert.Equal(t, 10*time.Second, cfg.LLMTimeout())
	assert.Equal(t, time.Minute, cfg.CacheTTL())
	assert.Equal(t, 50, cfg.Cache.Capacity)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9999, cfg.Metrics.PrometheusPort)
	assert.True(t, cfg.Verbose)

	// Unset keys keep their defaults.
	assert.Equal(t, 3, cfg.LLM.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.DedupTTL())
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedYAMLErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm: ["), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TRIPNAR_API_KEY", "sk-test")
	t.Setenv("TRIPNAR_MODEL", "env-model")
	t.Setenv("TRIPNAR_PROVIDER", "mock")
	t.Setenv("TRIPNAR_METRICS", "true")
	t.Setenv("TRIPNAR_METRICS_PORT", "9100")
	t.Setenv("TRIPNAR_VERBOSE", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "env-model", cfg.LLM.Model)
	assert.Equal(t, "mock", cfg.LLM.Provider)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9100, cfg.Metrics.PrometheusPort)
	assert.True(t, cfg.Verbose)
}

func TestEnvIgnoresInvalidValues(t *testing.T) {
	t.Setenv("TRIPNAR_METRICS", "not-a-bool")
	t.Setenv("TRIPNAR_METRICS_PORT", "-1")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, DefaultMetricsPort, cfg.Metrics.PrometheusPort)
}
