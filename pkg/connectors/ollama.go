package connectors

import (
	"context"
	"sync"
	"time"
)

// Defaults for the maintenance LLM. The Ollama instance runs on the shop
// floor so DIAGNOSE can still answer when no cloud provider is reachable.
const (
	DefaultOllamaURL       = "http://localhost:11434"
	DefaultOllamaModel     = "llama3.2:3b"
	DefaultOllamaTimeout   = 30 * time.Second
	DefaultOllamaMaxTokens = 512
)

// OllamaConfig configures the maintenance LLM connector.
type OllamaConfig struct {
	// URL is the Ollama base URL (default http://localhost:11434).
	URL string

	// Model is the model pulled on the instance (default llama3.2:3b).
	Model string

	// Timeout bounds each request (default 30s).
	Timeout time.Duration
}

// GenerateResult is a completion from the maintenance LLM.
type GenerateResult struct {
	Response        string
	Model           string
	EvalCount       int
	TotalDurationMS int64
}

// Ollama is the offline fallback answerer: a local Ollama instance reached
// over plain HTTP, independent of any cloud provider.
type Ollama struct {
	cfg OllamaConfig

	mu     sync.Mutex
	client *httpJSON
}

// NewOllama creates a maintenance LLM connector.
func NewOllama(cfg OllamaConfig) *Ollama {
	if cfg.URL == "" {
		cfg.URL = DefaultOllamaURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultOllamaTimeout
	}
	return &Ollama{cfg: cfg}
}

// Name returns "maintenance_llm".
func (o *Ollama) Name() string {
	return "maintenance_llm"
}

// Connect establishes the HTTP client.
func (o *Ollama) Connect(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.client = newHTTPJSON(o.cfg.URL, o.cfg.Timeout)
	return nil
}

// Disconnect releases the HTTP client.
func (o *Ollama) Disconnect() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.client != nil {
		o.client.close()
		o.client = nil
	}
	return nil
}

func (o *Ollama) ensure() *httpJSON {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.client == nil {
		o.client = newHTTPJSON(o.cfg.URL, o.cfg.Timeout)
	}
	return o.client
}

// Generate runs a non-streaming completion on the configured model. system
// is omitted from the request when empty; maxTokens defaults to 512.
func (o *Ollama) Generate(ctx context.Context, prompt, system string, maxTokens int) (*GenerateResult, error) {
	if maxTokens <= 0 {
		maxTokens = DefaultOllamaMaxTokens
	}

	payload := map[string]any{
		"model":   o.cfg.Model,
		"prompt":  prompt,
		"stream":  false,
		"options": map[string]any{"num_predict": maxTokens},
	}
	if system != "" {
		payload["system"] = system
	}

	var reply struct {
		Response      string `json:"response"`
		Model         string `json:"model"`
		EvalCount     int    `json:"eval_count"`
		TotalDuration int64  `json:"total_duration"`
	}
	if _, err := o.ensure().postJSON(ctx, "/api/generate", payload, &reply); err != nil {
		return nil, err
	}

	model := reply.Model
	if model == "" {
		model = o.cfg.Model
	}

	return &GenerateResult{
		Response:        reply.Response,
		Model:           model,
		EvalCount:       reply.EvalCount,
		TotalDurationMS: reply.TotalDuration / 1_000_000,
	}, nil
}

// ListModels returns the model names pulled on the instance.
func (o *Ollama) ListModels(ctx context.Context) ([]string, error) {
	var reply struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if _, err := o.ensure().getJSON(ctx, "/api/tags", nil, &reply); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(reply.Models))
	for _, m := range reply.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// HealthCheck probes the Ollama root. A 200 is healthy and includes the
// pulled models; a transport failure reports unreachable.
func (o *Ollama) HealthCheck(ctx context.Context) Health {
	code, err := o.ensure().getJSON(ctx, "/", nil, nil)
	if err != nil && code == 0 {
		return Health{Status: StatusUnreachable, Detail: map[string]any{"url": o.cfg.URL}}
	}
	if code != 200 {
		return Health{Status: StatusUnhealthy, Detail: map[string]any{"code": code}}
	}

	models, err := o.ListModels(ctx)
	if err != nil {
		models = nil
	}
	return healthy(map[string]any{"models": models})
}
