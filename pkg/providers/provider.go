// Package providers defines the uniform contract over external LLM APIs and
// the shared HTTP machinery used by the concrete adapters.
//
// Each adapter (openaicompat, anthropic, gemini) embeds HTTPProvider for
// connection pooling, retries, and failure classification, and implements
// the Provider interface on top of it. Adapters normalize every failure to
// *ProviderError so the router can decide whether to fail over.
package providers

import "context"

// Provider is the uniform interface implemented by every LLM adapter.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Provider interface {
	// Complete sends a text completion request and returns the normalized
	// response. An empty completion is reported as an error, never as a
	// success with empty text.
	Complete(ctx context.Context, req *CompletionRequest) (*LLMResponse, error)

	// CompleteWithVision sends an image analysis request. Providers that do
	// not support vision fail with KindCapabilityMissing.
	CompleteWithVision(ctx context.Context, req *VisionRequest) (*LLMResponse, error)

	// Name returns the provider identifier used in routes, budgets, and logs.
	Name() string

	// IsAvailable reports whether the provider is configured with credentials.
	IsAvailable() bool

	// SupportsVision reports whether the provider accepts image input.
	SupportsVision() bool

	// SupportsJSONMode reports whether the provider honors strict-JSON output.
	SupportsJSONMode() bool

	// Close releases idle connections. The provider must not be used afterwards.
	Close() error
}
