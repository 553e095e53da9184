// Package llmtest provides mock LLM providers for tests.
package llmtest

import (
	"context"
	"sync"

	"mercator-hq/foreman/pkg/providers"
)

// MockProvider is a configurable in-memory implementation of the
// providers.Provider interface for testing. It records every request it
// receives and answers with a canned response or a canned error.
//
// Defaults match a freshly configured chat provider: available, JSON-mode
// capable, no vision support.
type MockProvider struct {
	name string

	mu            sync.Mutex
	available     bool
	vision        bool
	jsonMode      bool
	text          string
	tokens        int
	err           error
	completeCalls int
	visionCalls   int
	lastComplete  *providers.CompletionRequest
	lastVision    *providers.VisionRequest
	closed        bool
}

// NewMockProvider creates an available mock that answers every completion
// with the given text.
func NewMockProvider(name, text string) *MockProvider {
	return &MockProvider{
		name:      name,
		available: true,
		jsonMode:  true,
		text:      text,
		tokens:    10,
	}
}

// SetAvailable sets whether the mock reports itself as configured.
func (m *MockProvider) SetAvailable(available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = available
}

// SetVision sets whether the mock accepts image input.
func (m *MockProvider) SetVision(vision bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vision = vision
}

// SetJSONMode sets whether the mock reports strict-JSON support.
func (m *MockProvider) SetJSONMode(jsonMode bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jsonMode = jsonMode
}

// SetError makes every subsequent completion fail with err. Pass nil to
// restore successful responses.
func (m *MockProvider) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetResponse changes the canned response text and token count.
func (m *MockProvider) SetResponse(text string, tokens int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text = text
	m.tokens = tokens
}

// Complete implements providers.Provider.
func (m *MockProvider) Complete(ctx context.Context, req *providers.CompletionRequest) (*providers.LLMResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.completeCalls++
	reqCopy := *req
	m.lastComplete = &reqCopy

	if m.err != nil {
		return nil, m.err
	}
	return &providers.LLMResponse{
		Text:       m.text,
		Model:      "mock-model",
		Provider:   m.name,
		TokensUsed: m.tokens,
	}, nil
}

// CompleteWithVision implements providers.Provider.
func (m *MockProvider) CompleteWithVision(ctx context.Context, req *providers.VisionRequest) (*providers.LLMResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.visionCalls++
	reqCopy := *req
	m.lastVision = &reqCopy

	if !m.vision {
		return nil, &providers.ProviderError{
			Provider: m.name,
			Kind:     providers.KindCapabilityMissing,
			Message:  "vision not supported",
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return &providers.LLMResponse{
		Text:       m.text,
		Model:      "mock-model",
		Provider:   m.name,
		TokensUsed: m.tokens,
	}, nil
}

// Name implements providers.Provider.
func (m *MockProvider) Name() string {
	return m.name
}

// IsAvailable implements providers.Provider.
func (m *MockProvider) IsAvailable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available
}

// SupportsVision implements providers.Provider.
func (m *MockProvider) SupportsVision() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vision
}

// SupportsJSONMode implements providers.Provider.
func (m *MockProvider) SupportsJSONMode() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jsonMode
}

// Close implements providers.Provider.
func (m *MockProvider) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// CompleteCalls returns how many times Complete was invoked.
func (m *MockProvider) CompleteCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completeCalls
}

// VisionCalls returns how many times CompleteWithVision was invoked.
func (m *MockProvider) VisionCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.visionCalls
}

// LastComplete returns the most recent completion request, or nil.
func (m *MockProvider) LastComplete() *providers.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastComplete
}

// LastVision returns the most recent vision request, or nil.
func (m *MockProvider) LastVision() *providers.VisionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastVision
}

// Closed reports whether Close was called.
func (m *MockProvider) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
