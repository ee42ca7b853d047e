package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xudanli/tripnaraht-sub002/internal/agent/ports"
	coreerrors "github.com/xudanli/tripnaraht-sub002/internal/errors"
	"github.com/xudanli/tripnaraht-sub002/internal/shared/logging"
)

// openaiClient talks to any /chat/completions compatible endpoint.
type openaiClient struct {
	model      string
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     logging.Logger
}

func newOpenAIClient(config Config, logger logging.Logger) *openaiClient {
	model := strings.TrimSpace(config.Model)
	if model == "" {
		model = DefaultModel
	}
	baseURL := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("llm")
	}
	return &openaiClient{
		model:      model,
		apiKey:     config.APIKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: time.Duration(timeout) * time.Second},
		logger:     logger,
	}
}

func (c *openaiClient) Model() string {
	return c.model
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature,omitempty"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	TopP           float64        `json:"top_p,omitempty"`
	Stop           []string       `json:"stop,omitempty"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends messages and returns a response (non-streaming).
func (c *openaiClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	body := chatRequest{
		Model:       c.model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
		Stop:        req.StopSequences,
	}
	for _, msg := range req.Messages {
		body.Messages = append(body.Messages, chatMessage{Role: msg.Role, Content: msg.Content})
	}
	if req.ResponseSchema != nil {
		body.ResponseFormat = map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   "response",
				"strict": true,
				"schema": req.ResponseSchema,
			},
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &coreerrors.PermanentError{Err: err, Message: "failed to encode llm request"}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, &coreerrors.PermanentError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &coreerrors.TransientError{Err: err, Message: fmt.Sprintf("llm request failed: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, &coreerrors.TransientError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := fmt.Errorf("llm returned status %d: %s", resp.StatusCode, truncate(string(raw), 200))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, &coreerrors.TransientError{Err: apiErr, StatusCode: resp.StatusCode}
		}
		return nil, &coreerrors.PermanentError{Err: apiErr, StatusCode: resp.StatusCode}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &coreerrors.PermanentError{Err: err, Message: "malformed llm response"}
	}
	if parsed.Error != nil {
		return nil, &coreerrors.PermanentError{Err: fmt.Errorf("%s: %s", parsed.Error.Type, parsed.Error.Message)}
	}
	if len(parsed.Choices) == 0 {
		return nil, &coreerrors.PermanentError{Err: fmt.Errorf("llm response has no choices")}
	}

	c.logger.Debug("LLM completion: model=%s latency_ms=%d tokens=%d",
		c.model, time.Since(started).Milliseconds(), parsed.Usage.TotalTokens)

	return &ports.CompletionResponse{
		Content:    parsed.Choices[0].Message.Content,
		StopReason: parsed.Choices[0].FinishReason,
		Usage: ports.TokenUsage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
	}, nil
}

// CallWithSchema asks for a single JSON object conforming to schema.
func (c *openaiClient) CallWithSchema(ctx context.Context, prompt string, schema map[string]any) (string, error) {
	resp, err := c.Complete(ctx, ports.CompletionRequest{
		Messages:       []ports.Message{{Role: "user", Content: prompt}},
		ResponseSchema: schema,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
