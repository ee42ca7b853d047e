package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/xudanli/tripnaraht-sub002/internal/agent/ports"
)

// MockClient implements ports.LLMClient for testing. Responses are scripted:
// each call pops the next queued reply, or returns the fallback when the
// queue is drained.
type MockClient struct {
	mu       sync.Mutex
	model    string
	queue    []string
	errQueue []error
	fallback string
	calls    int
}

// NewMockClient creates a mock with a generic fallback reply.
func NewMockClient(model string) *MockClient {
	if model == "" {
		model = "mock-model"
	}
	return &MockClient{
		model:    model,
		fallback: "mock response",
	}
}

// Queue schedules replies returned by subsequent calls, in order.
func (m *MockClient) Queue(replies ...string) *MockClient {
	m.mu.Lock()
	m.queue = append(m.queue, replies...)
	m.mu.Unlock()
	return m
}

// QueueError schedules an error returned before any remaining replies.
func (m *MockClient) QueueError(errs ...error) *MockClient {
	m.mu.Lock()
	m.errQueue = append(m.errQueue, errs...)
	m.mu.Unlock()
	return m
}

// Calls reports how many completions were requested.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockClient) next() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if len(m.errQueue) > 0 {
		err := m.errQueue[0]
		m.errQueue = m.errQueue[1:]
		return "", err
	}
	if len(m.queue) > 0 {
		reply := m.queue[0]
		m.queue = m.queue[1:]
		return reply, nil
	}
	return m.fallback, nil
}

func (m *MockClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("request has no messages")
	}
	content, err := m.next()
	if err != nil {
		return nil, err
	}
	return &ports.CompletionResponse{
		Content:    content,
		StopReason: "stop",
		Usage:      ports.TokenUsage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150},
	}, nil
}

func (m *MockClient) CallWithSchema(ctx context.Context, prompt string, schema map[string]any) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}
	return m.next()
}

func (m *MockClient) Model() string {
	return m.model
}
