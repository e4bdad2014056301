package mock

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/svjt78/ragmesh/ai"
)

// MockLLM is a test double for ai.LLM.
type MockLLM struct {
	mu           sync.Mutex
	generateFunc func(ctx context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error)
	requests     []ai.GenerateRequest
	callCount    atomic.Int64
}

var _ ai.LLM = (*MockLLM)(nil)

// NewMockLLM creates a MockLLM that answers "{}".
func NewMockLLM() *MockLLM {
	return &MockLLM{}
}

// WithGenerateFunc sets custom behavior for Generate.
func (m *MockLLM) WithGenerateFunc(fn func(ctx context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error)) *MockLLM {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generateFunc = fn
	return m
}

// WithResponse makes every call return content.
func (m *MockLLM) WithResponse(content string) *MockLLM {
	return m.WithGenerateFunc(func(context.Context, ai.GenerateRequest) (*ai.GenerateResponse, error) {
		return &ai.GenerateResponse{Content: content}, nil
	})
}

// Generate records the request and delegates to the configured function.
func (m *MockLLM) Generate(ctx context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
	m.callCount.Add(1)

	m.mu.Lock()
	m.requests = append(m.requests, req)
	fn := m.generateFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return &ai.GenerateResponse{Content: "{}"}, nil
}

// Requests returns a copy of every request received.
func (m *MockLLM) Requests() []ai.GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ai.GenerateRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// CallCount returns the number of Generate calls.
func (m *MockLLM) CallCount() int {
	return int(m.callCount.Load())
}

// Reset clears the call count, recorded requests and custom behavior.
func (m *MockLLM) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount.Store(0)
	m.requests = nil
	m.generateFunc = nil
}
