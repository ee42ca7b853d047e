package llm

import (
	"context"

	"github.com/xudanli/tripnaraht-sub002/internal/agent/ports"
	coreerrors "github.com/xudanli/tripnaraht-sub002/internal/errors"
	"github.com/xudanli/tripnaraht-sub002/internal/shared/logging"
)

// retryClient decorates any LLM client with transient-error retries.
type retryClient struct {
	delegate ports.LLMClient
	config   coreerrors.RetryConfig
	logger   logging.Logger
}

// NewRetryClient wraps delegate with exponential-backoff retries for
// transient failures. Permanent errors pass through untouched.
func NewRetryClient(delegate ports.LLMClient, maxRetries int, logger logging.Logger) ports.LLMClient {
	config := coreerrors.DefaultRetryConfig()
	if maxRetries > 0 {
		config.MaxAttempts = maxRetries
	}
	return &retryClient{
		delegate: delegate,
		config:   config,
		logger:   logging.OrNop(logger),
	}
}

func (c *retryClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	var resp *ports.CompletionResponse
	err := coreerrors.RetryWithLog(ctx, c.config, func(ctx context.Context) error {
		var callErr error
		resp, callErr = c.delegate.Complete(ctx, req)
		return callErr
	}, c.logger)
	return resp, err
}

func (c *retryClient) CallWithSchema(ctx context.Context, prompt string, schema map[string]any) (string, error) {
	var out string
	err := coreerrors.RetryWithLog(ctx, c.config, func(ctx context.Context) error {
		var callErr error
		out, callErr = c.delegate.CallWithSchema(ctx, prompt, schema)
		return callErr
	}, c.logger)
	return out, err
}

func (c *retryClient) Model() string {
	return c.delegate.Model()
}
