// Package llm provides the LLM capability consumed by the planner: an
// OpenAI-compatible HTTP client, a retrying decorator and a scriptable mock.
package llm

import (
	"fmt"
	"strings"

	"github.com/xudanli/tripnaraht-sub002/internal/agent/ports"
	"github.com/xudanli/tripnaraht-sub002/internal/shared/logging"
)

// Config holds provider settings shared by all clients.
type Config struct {
	Provider   string `json:"provider" yaml:"provider"`
	Model      string `json:"model" yaml:"model"`
	APIKey     string `json:"api_key" yaml:"api_key"`
	BaseURL    string `json:"base_url" yaml:"base_url"`
	Timeout    int    `json:"timeout" yaml:"timeout"` // seconds
	MaxRetries int    `json:"max_retries" yaml:"max_retries"`
}

// Provider defaults.
const (
	DefaultProvider = "openai"
	DefaultModel    = "gpt-4o-mini"
	DefaultBaseURL  = "https://api.openai.com/v1"
	DefaultTimeout  = 120
)

// NewClient constructs an LLM client for the configured provider, wrapped
// with transient-error retries.
func NewClient(config Config, logger logging.Logger) (ports.LLMClient, error) {
	provider := strings.ToLower(strings.TrimSpace(config.Provider))
	if provider == "" {
		provider = DefaultProvider
	}

	var client ports.LLMClient
	switch provider {
	case "openai", "openai-compatible":
		client = newOpenAIClient(config, logger)
	case "mock":
		client = NewMockClient(config.Model)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", config.Provider)
	}

	if config.MaxRetries > 0 {
		client = NewRetryClient(client, config.MaxRetries, logger)
	}
	return client, nil
}
