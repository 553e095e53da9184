package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"mercator-hq/foreman/pkg/providers"
)

func testClient(serverURL string, vision bool) *Client {
	return New(Options{
		Config: providers.Config{
			Name:    "groq",
			BaseURL: serverURL,
			APIKey:  "test-key",
			Timeout: 5 * time.Second,
		},
		Model:  "test-model",
		Vision: vision,
	})
}

func chatCompletionJSON(model, content string, tokens int) string {
	resp := map[string]interface{}{
		"model": model,
		"choices": []map[string]interface{}{
			{
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]int{"total_tokens": tokens},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

// ============================================================
// Complete
// ============================================================

func TestClient_Complete(t *testing.T) {
	var gotBody map[string]interface{}
	var gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("expected path /chat/completions, got %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		_, _ = w.Write([]byte(chatCompletionJSON("test-model", "PONG", 15)))
	}))
	defer server.Close()

	client := testClient(server.URL, false)
	resp, err := client.Complete(context.Background(), &providers.CompletionRequest{
		Messages:     []providers.Message{{Role: providers.RoleUser, Content: "ping"}},
		SystemPrompt: "You are a test.",
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if resp.Text != "PONG" {
		t.Errorf("Expected PONG, got %q", resp.Text)
	}
	if resp.Provider != "groq" {
		t.Errorf("Expected provider groq, got %q", resp.Provider)
	}
	if resp.Model != "test-model" {
		t.Errorf("Expected model test-model, got %q", resp.Model)
	}
	if resp.TokensUsed != 15 {
		t.Errorf("Expected 15 tokens, got %d", resp.TokensUsed)
	}
	if len(resp.Raw) == 0 {
		t.Error("Expected raw response bytes to be retained")
	}

	if gotAuth != "Bearer test-key" {
		t.Errorf("Expected bearer auth header, got %q", gotAuth)
	}

	msgs := gotBody["messages"].([]interface{})
	if len(msgs) != 2 {
		t.Fatalf("expected 2 wire messages (system + user), got %d", len(msgs))
	}
	first := msgs[0].(map[string]interface{})
	if first["role"] != "system" || first["content"] != "You are a test." {
		t.Errorf("expected system prompt as first message, got %v", first)
	}
	if gotBody["max_tokens"].(float64) != float64(providers.DefaultMaxTokens) {
		t.Errorf("expected default max_tokens, got %v", gotBody["max_tokens"])
	}
	if gotBody["temperature"].(float64) != providers.DefaultTemperature {
		t.Errorf("expected default temperature, got %v", gotBody["temperature"])
	}
	if _, ok := gotBody["response_format"]; ok {
		t.Error("expected no response_format without JSON mode")
	}
}

func TestClient_CompleteJSONMode(t *testing.T) {
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		_, _ = w.Write([]byte(chatCompletionJSON("test-model", `{"ok":true}`, 5)))
	}))
	defer server.Close()

	client := testClient(server.URL, false)
	_, err := client.Complete(context.Background(), &providers.CompletionRequest{
		Messages:    []providers.Message{{Role: providers.RoleUser, Content: "extract"}},
		MaxTokens:   256,
		Temperature: 0.2,
		JSONMode:    true,
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	rf, ok := gotBody["response_format"].(map[string]interface{})
	if !ok || rf["type"] != "json_object" {
		t.Errorf("expected response_format json_object, got %v", gotBody["response_format"])
	}
	if gotBody["max_tokens"].(float64) != 256 {
		t.Errorf("expected max_tokens 256, got %v", gotBody["max_tokens"])
	}
	if gotBody["temperature"].(float64) != 0.2 {
		t.Errorf("expected temperature 0.2, got %v", gotBody["temperature"])
	}
}

func TestClient_CompleteEmptyCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(chatCompletionJSON("test-model", "", 0)))
	}))
	defer server.Close()

	client := testClient(server.URL, false)
	_, err := client.Complete(context.Background(), &providers.CompletionRequest{
		Messages: []providers.Message{{Role: providers.RoleUser, Content: "ping"}},
	})
	if err == nil {
		t.Fatal("expected error for empty completion, got nil")
	}

	var pe *providers.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %T: %v", err, err)
	}
	if pe.Kind != providers.KindUnknown {
		t.Errorf("expected kind %q, got %q", providers.KindUnknown, pe.Kind)
	}
}

// ============================================================
// Vision
// ============================================================

func TestClient_CompleteWithVision(t *testing.T) {
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		_, _ = w.Write([]byte(chatCompletionJSON("test-model", "a contactor", 20)))
	}))
	defer server.Close()

	client := testClient(server.URL, true)
	resp, err := client.CompleteWithVision(context.Background(), &providers.VisionRequest{
		Messages: []providers.Message{{Role: providers.RoleUser, Content: "check wiring"}},
		Images:   [][]byte{{0xFF, 0xD8}, {0xFF, 0xD8}},
	})
	if err != nil {
		t.Fatalf("CompleteWithVision failed: %v", err)
	}
	if resp.Text != "a contactor" {
		t.Errorf("Expected 'a contactor', got %q", resp.Text)
	}

	msgs := gotBody["messages"].([]interface{})
	if len(msgs) != 1 {
		t.Fatalf("expected 1 wire message, got %d", len(msgs))
	}
	parts := msgs[0].(map[string]interface{})["content"].([]interface{})
	if len(parts) != 3 {
		t.Fatalf("expected 2 image parts + 1 text part, got %d", len(parts))
	}
	for i := 0; i < 2; i++ {
		p := parts[i].(map[string]interface{})
		if p["type"] != "image_url" {
			t.Errorf("part %d: expected type image_url, got %v", i, p["type"])
		}
		url := p["image_url"].(map[string]interface{})["url"].(string)
		if !strings.HasPrefix(url, "data:image/jpeg;base64,") {
			t.Errorf("part %d: expected data URI, got %q", i, url)
		}
	}
	last := parts[2].(map[string]interface{})
	if last["type"] != "text" || last["text"] != "check wiring" {
		t.Errorf("expected trailing text part with caption, got %v", last)
	}
}

func TestClient_VisionMIMEPassthrough(t *testing.T) {
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		_, _ = w.Write([]byte(chatCompletionJSON("test-model", "ok", 5)))
	}))
	defer server.Close()

	client := testClient(server.URL, true)
	_, err := client.CompleteWithVision(context.Background(), &providers.VisionRequest{
		Messages: []providers.Message{{Role: providers.RoleUser, Content: "read the nameplate"}},
		Images:   [][]byte{{0x89, 0x50}},
		MIME:     "image/png",
	})
	if err != nil {
		t.Fatalf("CompleteWithVision failed: %v", err)
	}

	msgs := gotBody["messages"].([]interface{})
	parts := msgs[0].(map[string]interface{})["content"].([]interface{})
	url := parts[0].(map[string]interface{})["image_url"].(map[string]interface{})["url"].(string)
	if !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Errorf("expected png data URI, got %q", url)
	}
}

func TestClient_VisionNotSupported(t *testing.T) {
	requestCount := int32(0)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requestCount, 1)
	}))
	defer server.Close()

	client := testClient(server.URL, false)
	_, err := client.CompleteWithVision(context.Background(), &providers.VisionRequest{
		Images: [][]byte{{0xFF, 0xD8}},
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var pe *providers.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %T: %v", err, err)
	}
	if pe.Kind != providers.KindCapabilityMissing {
		t.Errorf("expected kind %q, got %q", providers.KindCapabilityMissing, pe.Kind)
	}
	if atomic.LoadInt32(&requestCount) != 0 {
		t.Error("expected no HTTP request for unsupported capability")
	}
}

// ============================================================
// Model fallback
// ============================================================

func TestClient_FallbackModelOn404(t *testing.T) {
	attemptCount := int32(0)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attemptCount, 1)
		var body map[string]interface{}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)

		if body["model"] == "primary-model" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error": "model not found"}`))
			return
		}
		_, _ = w.Write([]byte(chatCompletionJSON("fallback-model", "ok", 5)))
	}))
	defer server.Close()

	client := New(Options{
		Config: providers.Config{
			Name:    "nvidia",
			BaseURL: server.URL,
			APIKey:  "test-key",
			Timeout: 5 * time.Second,
		},
		Model:         "primary-model",
		FallbackModel: "fallback-model",
	})

	resp, err := client.Complete(context.Background(), &providers.CompletionRequest{
		Messages: []providers.Message{{Role: providers.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp.Model != "fallback-model" {
		t.Errorf("Expected fallback-model, got %q", resp.Model)
	}
	if got := atomic.LoadInt32(&attemptCount); got != 2 {
		t.Errorf("Expected 2 attempts (404 + fallback), got %d", got)
	}

	// The flip is permanent: the next call goes straight to the fallback.
	_, err = client.Complete(context.Background(), &providers.CompletionRequest{
		Messages: []providers.Message{{Role: providers.RoleUser, Content: "hi again"}},
	})
	if err != nil {
		t.Fatalf("second Complete failed: %v", err)
	}
	if got := atomic.LoadInt32(&attemptCount); got != 3 {
		t.Errorf("Expected 3 total attempts, got %d", got)
	}
	if client.Model() != "fallback-model" {
		t.Errorf("Expected Model() to report fallback-model, got %q", client.Model())
	}
}

func TestClient_No404FallbackWithoutFallbackModel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": "model not found"}`))
	}))
	defer server.Close()

	client := testClient(server.URL, false)
	_, err := client.Complete(context.Background(), &providers.CompletionRequest{
		Messages: []providers.Message{{Role: providers.RoleUser, Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var pe *providers.ProviderError
	if !errors.As(err, &pe) || pe.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 ProviderError, got %v", err)
	}
}

// ============================================================
// Presets and citations
// ============================================================

func TestPresetDefaults(t *testing.T) {
	tests := []struct {
		name      string
		client    *Client
		wantName  string
		wantModel string
		vision    bool
		jsonMode  bool
	}{
		{"groq", NewGroq("k", ""), "groq", DefaultGroqModel, false, true},
		{"openai", NewOpenAI("k", ""), "openai", DefaultOpenAIModel, true, true},
		{"openrouter", NewOpenRouter("k", ""), "openrouter", DefaultOpenRouterModel, true, true},
		{"nvidia", NewNVIDIA("k", "", ""), "nvidia", DefaultNVIDIAModel, false, true},
		{"deepseek", NewDeepSeek("k", ""), "deepseek", DefaultDeepSeekModel, false, true},
		{"perplexity", NewPerplexity("k", ""), "perplexity", DefaultPerplexityModel, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.client.Name(); got != tt.wantName {
				t.Errorf("Expected name %q, got %q", tt.wantName, got)
			}
			if got := tt.client.Model(); got != tt.wantModel {
				t.Errorf("Expected model %q, got %q", tt.wantModel, got)
			}
			if got := tt.client.SupportsVision(); got != tt.vision {
				t.Errorf("Expected SupportsVision %v, got %v", tt.vision, got)
			}
			if got := tt.client.SupportsJSONMode(); got != tt.jsonMode {
				t.Errorf("Expected SupportsJSONMode %v, got %v", tt.jsonMode, got)
			}
			if !tt.client.IsAvailable() {
				t.Error("Expected client with key to be available")
			}
		})
	}
}

func TestPresetUnavailableWithoutKey(t *testing.T) {
	if NewGroq("", "").IsAvailable() {
		t.Error("Expected client without key to be unavailable")
	}
}

func TestOpenRouterAttributionHeaders(t *testing.T) {
	client := NewOpenRouter("k", "")
	headers := client.Config().ExtraHeaders
	if headers["HTTP-Referer"] == "" {
		t.Error("Expected HTTP-Referer attribution header")
	}
	if headers["X-Title"] == "" {
		t.Error("Expected X-Title attribution header")
	}
}

func TestCitations(t *testing.T) {
	raw := json.RawMessage(`{
		"choices": [{"message": {"content": "answer"}}],
		"citations": ["https://a.example", "https://b.example"]
	}`)
	got := Citations(raw)
	if len(got) != 2 {
		t.Fatalf("Expected 2 citations, got %d", len(got))
	}
	if got[0] != "https://a.example" {
		t.Errorf("Expected https://a.example, got %q", got[0])
	}

	if Citations(json.RawMessage(`{"choices": []}`)) != nil {
		t.Error("Expected nil for response without citations")
	}
	if Citations(nil) != nil {
		t.Error("Expected nil for empty raw")
	}
}
