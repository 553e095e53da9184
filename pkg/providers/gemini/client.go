// Package gemini implements the Provider interface for Google's
// generateContent API.
package gemini

import (
	"context"
	"encoding/base64"
	"net/http"

	"mercator-hq/foreman/pkg/providers"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "gemini-2.5-flash"

	// BaseURL is the Generative Language API endpoint.
	BaseURL = "https://generativelanguage.googleapis.com/v1beta"
)

// Client is a Provider adapter for the Gemini generateContent API.
//
// The API takes one flattened prompt rather than a role-tagged transcript,
// so Complete joins the system prompt and message contents into a single
// text part.
type Client struct {
	*providers.HTTPProvider
	model string
}

// New creates a Gemini client.
func New(apiKey, model string) *Client {
	return NewWithConfig(providers.Config{
		Name:    "gemini",
		BaseURL: BaseURL,
		APIKey:  apiKey,
	}, model)
}

// NewWithConfig creates a Gemini client with explicit HTTP configuration.
func NewWithConfig(cfg providers.Config, model string) *Client {
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		HTTPProvider: providers.NewHTTPProvider(cfg),
		model:        model,
	}
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generationConfig struct {
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	Temperature      float64 `json:"temperature,omitempty"`
	ResponseMIMEType string  `json:"responseMimeType,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// Complete implements providers.Provider.
func (c *Client) Complete(ctx context.Context, req *providers.CompletionRequest) (*providers.LLMResponse, error) {
	prompt := ""
	if req.SystemPrompt != "" {
		prompt = req.SystemPrompt + "\n\n"
	}
	for _, m := range req.Messages {
		prompt += m.Content + "\n"
	}

	cfg := &generationConfig{
		MaxOutputTokens: maxTokens(req.MaxTokens),
		Temperature:     temperature(req.Temperature),
	}
	if req.JSONMode {
		cfg.ResponseMIMEType = "application/json"
	}

	body := generateRequest{
		Contents:         []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: cfg,
	}

	return c.send(ctx, body)
}

// CompleteWithVision implements providers.Provider. Images are sent as
// inline base64 data followed by one text part built from the system prompt
// and the last message.
func (c *Client) CompleteWithVision(ctx context.Context, req *providers.VisionRequest) (*providers.LLMResponse, error) {
	parts := make([]part, 0, len(req.Images)+1)
	for _, img := range req.Images {
		parts = append(parts, part{InlineData: &inlineData{
			MIMEType: req.ImageMIME(),
			Data:     base64.StdEncoding.EncodeToString(img),
		}})
	}

	text := ""
	if req.SystemPrompt != "" {
		text = req.SystemPrompt + "\n"
	}
	if n := len(req.Messages); n > 0 && req.Messages[n-1].Content != "" {
		text += req.Messages[n-1].Content
	} else {
		text += providers.DefaultVisionPrompt
	}
	parts = append(parts, part{Text: text})

	body := generateRequest{
		Contents:         []content{{Parts: parts}},
		GenerationConfig: &generationConfig{MaxOutputTokens: maxTokens(req.MaxTokens)},
	}

	return c.send(ctx, body)
}

// SupportsVision implements providers.Provider.
func (c *Client) SupportsVision() bool { return true }

// SupportsJSONMode implements providers.Provider.
func (c *Client) SupportsJSONMode() bool { return true }

func (c *Client) send(ctx context.Context, body generateRequest) (*providers.LLMResponse, error) {
	url := c.Config().BaseURL + "/models/" + c.model + ":generateContent"

	var parsed generateResponse
	raw, err := c.DoJSONRequest(ctx, http.MethodPost, url, body, &parsed, map[string]string{
		"x-goog-api-key": c.Config().APIKey,
	})
	if err != nil {
		return nil, err
	}

	var text string
	if len(parsed.Candidates) > 0 {
		for _, p := range parsed.Candidates[0].Content.Parts {
			text += p.Text
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
		TokensUsed: parsed.UsageMetadata.TotalTokenCount,
		Raw:        raw,
	}, nil
}

func maxTokens(n int) int {
	if n <= 0 {
		return providers.DefaultMaxTokens
	}
	return n
}

func temperature(t float64) float64 {
	if t <= 0 {
		return providers.DefaultTemperature
	}
	return t
}
