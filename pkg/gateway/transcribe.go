package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// Whisper endpoint and model for voice note transcription.
const (
	transcriptionURL   = "https://api.groq.com/openai/v1/audio/transcriptions"
	transcriptionModel = "whisper-large-v3-turbo"
)

// Transcriber converts voice notes to text via Groq's Whisper endpoint.
// A nil Transcriber (no Groq key configured) means voice notes get a polite
// refusal instead of a transcript.
type Transcriber struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewTranscriber creates a transcriber. Returns nil when apiKey is empty so
// callers can treat "not configured" uniformly.
func NewTranscriber(apiKey string) *Transcriber {
	if apiKey == "" {
		return nil
	}
	return &Transcriber{
		apiKey:  apiKey,
		baseURL: transcriptionURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// Transcribe uploads one voice note and returns the transcript text.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if filename == "" {
		filename = "voice.ogg"
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("building upload: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("building upload: %w", err)
	}
	if err := w.WriteField("model", transcriptionModel); err != nil {
		return "", fmt.Errorf("building upload: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("building upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL, &body)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading transcription response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parsing transcription response: %w", err)
	}
	return strings.TrimSpace(parsed.Text), nil
}
