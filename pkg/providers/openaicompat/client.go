// Package openaicompat implements the Provider interface for services that
// expose the OpenAI chat-completions wire format: Groq, OpenAI, OpenRouter,
// NVIDIA, DeepSeek, and Perplexity.
package openaicompat

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"mercator-hq/foreman/pkg/providers"
)

// Default models per service.
const (
	DefaultGroqModel           = "llama-3.3-70b-versatile"
	DefaultOpenAIModel         = "gpt-4o"
	DefaultOpenRouterModel     = "anthropic/claude-sonnet-4"
	DefaultNVIDIAModel         = "nvidia/cosmos-reason2-8b"
	DefaultNVIDIAFallbackModel = "meta/llama-3.1-70b-instruct"
	DefaultDeepSeekModel       = "deepseek-chat"
	DefaultPerplexityModel     = "sonar"
)

// Service base URLs.
const (
	GroqBaseURL       = "https://api.groq.com/openai/v1"
	OpenAIBaseURL     = "https://api.openai.com/v1"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	NVIDIABaseURL     = "https://integrate.api.nvidia.com/v1"
	DeepSeekBaseURL   = "https://api.deepseek.com"
	PerplexityBaseURL = "https://api.perplexity.ai"
)

// Options configures a Client beyond the shared HTTP provider config.
type Options struct {
	// Config is the shared HTTP provider configuration
	Config providers.Config

	// Model is the model identifier sent with every request
	Model string

	// FallbackModel, when set, replaces Model for the rest of the process
	// lifetime after the service reports 404 for it
	FallbackModel string

	// Vision enables image input via image_url content parts
	Vision bool
}

// Client is a Provider adapter for OpenAI-compatible chat completion APIs.
type Client struct {
	*providers.HTTPProvider

	model         string
	fallbackModel string
	vision        bool

	mu          sync.Mutex
	useFallback bool
}

// New creates a Client for an OpenAI-compatible service.
func New(opts Options) *Client {
	return &Client{
		HTTPProvider:  providers.NewHTTPProvider(opts.Config),
		model:         opts.Model,
		fallbackModel: opts.FallbackModel,
		vision:        opts.Vision,
	}
}

// NewGroq creates a client for Groq's OpenAI-compatible endpoint.
func NewGroq(apiKey, model string) *Client {
	if model == "" {
		model = DefaultGroqModel
	}
	return New(Options{
		Config: providers.Config{Name: "groq", BaseURL: GroqBaseURL, APIKey: apiKey},
		Model:  model,
	})
}

// NewOpenAI creates a client for the OpenAI API.
func NewOpenAI(apiKey, model string) *Client {
	if model == "" {
		model = DefaultOpenAIModel
	}
	return New(Options{
		Config: providers.Config{Name: "openai", BaseURL: OpenAIBaseURL, APIKey: apiKey},
		Model:  model,
		Vision: true,
	})
}

// NewOpenRouter creates a client for OpenRouter's unified model gateway.
func NewOpenRouter(apiKey, model string) *Client {
	if model == "" {
		model = DefaultOpenRouterModel
	}
	return New(Options{
		Config: providers.Config{
			Name:    "openrouter",
			BaseURL: OpenRouterBaseURL,
			APIKey:  apiKey,
			ExtraHeaders: map[string]string{
				"HTTP-Referer": "https://github.com/mercator-hq/foreman",
				"X-Title":      "Foreman",
			},
		},
		Model:  model,
		Vision: true,
	})
}

// NewNVIDIA creates a client for NVIDIA's inference endpoint. When the
// primary model is not deployed (404) the client flips to fallbackModel
// for the rest of the process lifetime.
func NewNVIDIA(apiKey, model, fallbackModel string) *Client {
	if model == "" {
		model = DefaultNVIDIAModel
	}
	if fallbackModel == "" {
		fallbackModel = DefaultNVIDIAFallbackModel
	}
	return New(Options{
		Config:        providers.Config{Name: "nvidia", BaseURL: NVIDIABaseURL, APIKey: apiKey},
		Model:         model,
		FallbackModel: fallbackModel,
	})
}

// NewDeepSeek creates a client for the DeepSeek API.
func NewDeepSeek(apiKey, model string) *Client {
	if model == "" {
		model = DefaultDeepSeekModel
	}
	return New(Options{
		Config: providers.Config{Name: "deepseek", BaseURL: DeepSeekBaseURL, APIKey: apiKey},
		Model:  model,
	})
}

// NewPerplexity creates a client for Perplexity's Sonar search models.
func NewPerplexity(apiKey, model string) *Client {
	if model == "" {
		model = DefaultPerplexityModel
	}
	return New(Options{
		Config: providers.Config{Name: "perplexity", BaseURL: PerplexityBaseURL, APIKey: apiKey},
		Model:  model,
	})
}

// chatMessage carries either a plain string or a []contentPart in Content.
type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageRef `json:"image_url,omitempty"`
}

type imageRef struct {
	URL string `json:"url"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete implements providers.Provider.
func (c *Client) Complete(ctx context.Context, req *providers.CompletionRequest) (*providers.LLMResponse, error) {
	msgs := make([]chatMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, chatMessage{Role: providers.RoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, chatMessage{Role: m.Role, Content: m.Content})
	}

	body := chatRequest{
		Model:       c.currentModel(),
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if body.MaxTokens <= 0 {
		body.MaxTokens = providers.DefaultMaxTokens
	}
	if body.Temperature <= 0 {
		body.Temperature = providers.DefaultTemperature
	}
	if req.JSONMode {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	return c.send(ctx, body)
}

// CompleteWithVision implements providers.Provider. Images are sent as
// base64 data URIs followed by the text of the last message.
func (c *Client) CompleteWithVision(ctx context.Context, req *providers.VisionRequest) (*providers.LLMResponse, error) {
	if !c.vision {
		return nil, &providers.ProviderError{
			Provider: c.Name(),
			Kind:     providers.KindCapabilityMissing,
			Message:  "vision not supported",
		}
	}

	parts := make([]contentPart, 0, len(req.Images)+1)
	for _, img := range req.Images {
		uri := "data:" + req.ImageMIME() + ";base64," + base64.StdEncoding.EncodeToString(img)
		parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageRef{URL: uri}})
	}
	prompt := providers.DefaultVisionPrompt
	if n := len(req.Messages); n > 0 && req.Messages[n-1].Content != "" {
		prompt = req.Messages[n-1].Content
	}
	parts = append(parts, contentPart{Type: "text", Text: prompt})

	msgs := make([]chatMessage, 0, 2)
	if req.SystemPrompt != "" {
		msgs = append(msgs, chatMessage{Role: providers.RoleSystem, Content: req.SystemPrompt})
	}
	msgs = append(msgs, chatMessage{Role: providers.RoleUser, Content: parts})

	body := chatRequest{
		Model:       c.currentModel(),
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: providers.DefaultTemperature,
	}
	if body.MaxTokens <= 0 {
		body.MaxTokens = providers.DefaultMaxTokens
	}

	return c.send(ctx, body)
}

// SupportsVision implements providers.Provider.
func (c *Client) SupportsVision() bool { return c.vision }

// SupportsJSONMode implements providers.Provider.
func (c *Client) SupportsJSONMode() bool { return true }

// Model returns the model currently in use, accounting for a fallback flip.
func (c *Client) Model() string { return c.currentModel() }

func (c *Client) send(ctx context.Context, body chatRequest) (*providers.LLMResponse, error) {
	raw, parsed, err := c.postChat(ctx, body)
	if err != nil {
		if !c.flipToFallback(err, body.Model) {
			return nil, err
		}
		slog.Warn("model not found, switching to fallback model",
			"provider", c.Name(),
			"model", body.Model,
			"fallback_model", c.fallbackModel,
		)
		body.Model = c.fallbackModel
		raw, parsed, err = c.postChat(ctx, body)
		if err != nil {
			return nil, err
		}
	}

	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return nil, &providers.ProviderError{
			Provider: c.Name(),
			Kind:     providers.KindUnknown,
			Message:  "empty completion",
		}
	}

	return &providers.LLMResponse{
		Text:       parsed.Choices[0].Message.Content,
		Model:      body.Model,
		Provider:   c.Name(),
		TokensUsed: parsed.Usage.TotalTokens,
		Raw:        raw,
	}, nil
}

func (c *Client) postChat(ctx context.Context, body chatRequest) (json.RawMessage, *chatResponse, error) {
	var parsed chatResponse
	raw, err := c.DoJSONRequest(ctx, http.MethodPost, c.Config().BaseURL+"/chat/completions",
		body, &parsed, map[string]string{
			"Authorization": "Bearer " + c.Config().APIKey,
		})
	if err != nil {
		return nil, nil, err
	}
	return raw, &parsed, nil
}

// flipToFallback switches the client to its fallback model when the service
// reports the requested model missing. The flip is permanent.
func (c *Client) flipToFallback(err error, model string) bool {
	if c.fallbackModel == "" || model == c.fallbackModel {
		return false
	}
	var pe *providers.ProviderError
	if !errors.As(err, &pe) || pe.StatusCode != http.StatusNotFound {
		return false
	}
	c.mu.Lock()
	c.useFallback = true
	c.mu.Unlock()
	return true
}

func (c *Client) currentModel() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.useFallback && c.fallbackModel != "" {
		return c.fallbackModel
	}
	return c.model
}

// Citations extracts the citation URLs that some services (Perplexity)
// attach to chat completions. Returns nil when the response carries none.
func Citations(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var out struct {
		Citations []string `json:"citations"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out.Citations
}
