package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockClient is a scripted LLMClient for tests and offline runs.
type MockClient struct {
	respond   func(req CompletionRequest) (CompletionResponse, error)
	responses []CompletionResponse
	errors    []error
	requests  []CompletionRequest
	index     int
	mu        sync.Mutex
}

// NewMockClient returns a client that plays back responses in order. A non-nil entry
// in errs at the same position is returned instead of the response.
func NewMockClient(responses []CompletionResponse, errs []error) *MockClient {
	return &MockClient{responses: responses, errors: errs}
}

// NewEchoClient returns a client that answers every request with prefix followed by the
// last message of the request.
func NewEchoClient(prefix string) *MockClient {
	return &MockClient{respond: func(req CompletionRequest) (CompletionResponse, error) {
		last := req.Messages[len(req.Messages)-1].Content
		return CompletionResponse{Content: prefix + last, Model: "mock"}, nil
	}}
}

// Complete returns the next scripted response or error.
func (m *MockClient) Complete(_ context.Context, req CompletionRequest) (CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)

	if m.respond != nil {
		return m.respond(req)
	}

	i := m.index
	m.index++
	if i < len(m.errors) && m.errors[i] != nil {
		return CompletionResponse{}, m.errors[i]
	}
	if i >= len(m.responses) {
		return CompletionResponse{}, fmt.Errorf("mock client: no more responses")
	}
	return m.responses[i], nil
}

// GetModelName implements LLMClient.
func (m *MockClient) GetModelName() string {
	return "mock"
}

// Requests returns a copy of every request received so far.
func (m *MockClient) Requests() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CompletionRequest, len(m.requests))
	copy(out, m.requests)
	return out
}
