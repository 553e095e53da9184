// Package anthropic implements the Provider interface for the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"encoding/base64"
	"net/http"

	"mercator-hq/foreman/pkg/providers"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "claude-sonnet-4-20250514"

	// BaseURL is the Anthropic API endpoint.
	BaseURL = "https://api.anthropic.com/v1"

	// apiVersion is the anthropic-version header sent with every request.
	apiVersion = "2023-06-01"

	// defaultSystemPrompt is substituted when a request carries none.
	defaultSystemPrompt = "You are a helpful assistant."
)

// Client is a Provider adapter for Anthropic's Messages API.
type Client struct {
	*providers.HTTPProvider
	model string
}

// New creates an Anthropic client.
func New(apiKey, model string) *Client {
	return NewWithConfig(providers.Config{
		Name:    "anthropic",
		BaseURL: BaseURL,
		APIKey:  apiKey,
	}, model)
}

// NewWithConfig creates an Anthropic client with explicit HTTP configuration.
func NewWithConfig(cfg providers.Config, model string) *Client {
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		HTTPProvider: providers.NewHTTPProvider(cfg),
		model:        model,
	}
}

// chatMessage carries either a plain string or a []contentBlock in Content.
type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type messageRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	System      string        `json:"system,omitempty"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type messageResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete implements providers.Provider. JSONMode is ignored: the Messages
// API has no strict-JSON switch, so the router sends JSON-mode requests to
// other providers.
func (c *Client) Complete(ctx context.Context, req *providers.CompletionRequest) (*providers.LLMResponse, error) {
	msgs := make([]chatMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, chatMessage{Role: m.Role, Content: m.Content})
	}

	temp := req.Temperature
	if temp <= 0 {
		temp = providers.DefaultTemperature
	}
	body := messageRequest{
		Model:       c.model,
		MaxTokens:   maxTokens(req.MaxTokens),
		System:      systemPrompt(req.SystemPrompt),
		Messages:    msgs,
		Temperature: &temp,
	}

	return c.send(ctx, body)
}

// CompleteWithVision implements providers.Provider. Images are sent as
// base64 content blocks followed by the text of the last message.
func (c *Client) CompleteWithVision(ctx context.Context, req *providers.VisionRequest) (*providers.LLMResponse, error) {
	blocks := make([]contentBlock, 0, len(req.Images)+1)
	for _, img := range req.Images {
		blocks = append(blocks, contentBlock{
			Type: "image",
			Source: &imageSource{
				Type:      "base64",
				MediaType: req.ImageMIME(),
				Data:      base64.StdEncoding.EncodeToString(img),
			},
		})
	}
	prompt := providers.DefaultVisionPrompt
	if n := len(req.Messages); n > 0 && req.Messages[n-1].Content != "" {
		prompt = req.Messages[n-1].Content
	}
	blocks = append(blocks, contentBlock{Type: "text", Text: prompt})

	body := messageRequest{
		Model:     c.model,
		MaxTokens: maxTokens(req.MaxTokens),
		System:    systemPrompt(req.SystemPrompt),
		Messages:  []chatMessage{{Role: providers.RoleUser, Content: blocks}},
	}

	return c.send(ctx, body)
}

// SupportsVision implements providers.Provider.
func (c *Client) SupportsVision() bool { return true }

// SupportsJSONMode implements providers.Provider. The Messages API has no
// JSON response mode.
func (c *Client) SupportsJSONMode() bool { return false }

func (c *Client) send(ctx context.Context, body messageRequest) (*providers.LLMResponse, error) {
	var parsed messageResponse
	raw, err := c.DoJSONRequest(ctx, http.MethodPost, c.Config().BaseURL+"/messages",
		body, &parsed, map[string]string{
			"x-api-key":         c.Config().APIKey,
			"anthropic-version": apiVersion,
		})
	if err != nil {
		return nil, err
	}

	var text string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return nil, &providers.ProviderError{
			Provider: c.Name(),
			Kind:     providers.KindUnknown,
			Message:  "empty completion",
		}
	}

	return &providers.LLMResponse{
		Text:       text,
		Model:      c.model,
		Provider:   c.Name(),
		TokensUsed: parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		Raw:        raw,
	}, nil
}

func maxTokens(n int) int {
	if n <= 0 {
		return providers.DefaultMaxTokens
	}
	return n
}

func systemPrompt(s string) string {
	if s == "" {
		return defaultSystemPrompt
	}
	return s
}
