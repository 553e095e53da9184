package providers

import (
	"encoding/json"
	"time"
)

// Message represents a single message in a conversation.
// It is provider-agnostic and is transformed to provider-specific formats
// by each adapter.
type Message struct {
	// Role identifies the message sender (system, user, assistant)
	Role string `json:"role"`

	// Content is the message text content
	Content string `json:"content"`
}

// CompletionRequest represents a provider-agnostic text completion request.
type CompletionRequest struct {
	// Messages is the ordered conversation history
	Messages []Message `json:"messages"`

	// SystemPrompt is conceptually prepended as a system message when non-empty
	SystemPrompt string `json:"system_prompt,omitempty"`

	// MaxTokens caps the completion length (0 falls back to DefaultMaxTokens)
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness (0 falls back to DefaultTemperature)
	Temperature float64 `json:"temperature,omitempty"`

	// JSONMode requests a strict-JSON response from providers that support it
	JSONMode bool `json:"json_mode,omitempty"`
}

// VisionRequest represents an image analysis request.
type VisionRequest struct {
	// Messages is the conversation context; the last message's content is
	// used as the text prompt alongside the images
	Messages []Message `json:"messages"`

	// Images holds raw image bytes
	Images [][]byte `json:"-"`

	// MIME is the media type of every image (e.g. "image/png");
	// empty means JPEG
	MIME string `json:"-"`

	// SystemPrompt is prepended when non-empty
	SystemPrompt string `json:"system_prompt,omitempty"`

	// MaxTokens caps the completion length (0 falls back to DefaultMaxTokens)
	MaxTokens int `json:"max_tokens,omitempty"`
}

// ImageMIME returns the declared image media type, defaulting to JPEG.
func (r *VisionRequest) ImageMIME() string {
	if r.MIME == "" {
		return "image/jpeg"
	}
	return r.MIME
}

// LLMResponse is the normalized result of a completion or vision call.
type LLMResponse struct {
	// Text is the model's final assistant message; never empty on success
	Text string `json:"text"`

	// Model is the concrete model that generated the response
	Model string `json:"model"`

	// Provider is the name of the provider that served the request
	Provider string `json:"provider"`

	// TokensUsed is the provider-reported total token count (0 if unreported)
	TokensUsed int `json:"tokens_used"`

	// LatencyMS is the provider call duration in milliseconds.
	// It is stamped by the router, not by the adapter.
	LatencyMS int64 `json:"latency_ms"`

	// Raw is the unparsed provider response body, kept for callers that
	// need provider-specific fields (e.g. search citations)
	Raw json.RawMessage `json:"-"`
}

// Config contains configuration for a single provider instance.
type Config struct {
	// Name is the provider identifier (e.g., "groq", "anthropic")
	Name string

	// BaseURL is the API endpoint base URL
	BaseURL string

	// APIKey is the authentication key; an empty key makes the provider
	// unavailable
	APIKey string

	// Timeout is the request timeout duration
	Timeout time.Duration

	// MaxRetries is the maximum number of retry attempts for transient failures
	MaxRetries int

	// ExtraHeaders are sent with every request (e.g. OpenRouter attribution)
	ExtraHeaders map[string]string

	// MaxIdleConns is the maximum number of idle connections in the pool
	MaxIdleConns int

	// MaxIdleConnsPerHost is the maximum idle connections per host
	MaxIdleConnsPerHost int

	// IdleConnTimeout is how long an idle connection remains in the pool
	IdleConnTimeout time.Duration
}

// Message role constants
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Request defaults applied by adapters when the caller leaves a field zero.
const (
	DefaultMaxTokens   = 1024
	DefaultTemperature = 0.3
)

// HTTP client defaults applied by NewHTTPProvider.
const (
	DefaultTimeout             = 30 * time.Second
	DefaultMaxRetries          = 2
	DefaultMaxIdleConns        = 100
	DefaultMaxIdleConnsPerHost = 10
	DefaultIdleConnTimeout     = 90 * time.Second
)

// DefaultVisionPrompt is the text sent with a vision request whose last
// message carries no content.
const DefaultVisionPrompt = "Analyze this image."
