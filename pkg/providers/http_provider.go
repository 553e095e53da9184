package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"
)

// HTTPProvider is the base implementation for HTTP-based provider adapters.
// It provides connection pooling, retry logic with exponential backoff, and
// failure classification.
//
// Concrete adapters embed this struct and implement the Provider interface
// on top of DoJSONRequest.
type HTTPProvider struct {
	// config contains the provider configuration
	config Config

	// client is the HTTP client with connection pooling
	client *http.Client
}

// NewHTTPProvider creates a new base HTTP provider with connection pooling.
// Zero config fields fall back to the package defaults.
func NewHTTPProvider(config Config) *HTTPProvider {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultMaxRetries
	}
	if config.MaxIdleConns <= 0 {
		config.MaxIdleConns = DefaultMaxIdleConns
	}
	if config.MaxIdleConnsPerHost <= 0 {
		config.MaxIdleConnsPerHost = DefaultMaxIdleConnsPerHost
	}
	if config.IdleConnTimeout <= 0 {
		config.IdleConnTimeout = DefaultIdleConnTimeout
	}

	transport := &http.Transport{
		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,
		DisableCompression:  false,
		ForceAttemptHTTP2:   true,
	}

	return &HTTPProvider{
		config: config,
		client: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
		},
	}
}

// Name returns the provider's configured name.
func (p *HTTPProvider) Name() string {
	return p.config.Name
}

// Config returns the provider's configuration.
func (p *HTTPProvider) Config() Config {
	return p.config
}

// IsAvailable reports whether an API key is configured.
func (p *HTTPProvider) IsAvailable() bool {
	return p.config.APIKey != ""
}

// DoRequest performs an HTTP request with retry logic and failure
// classification. Transient errors (network failures, 5xx) are retried with
// exponential backoff; auth, rate-limit, and client errors return immediately.
func (p *HTTPProvider) DoRequest(ctx context.Context, method, url string, body []byte, headers map[string]string) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			slog.Debug("retrying request",
				"provider", p.config.Name,
				"attempt", attempt,
				"max_retries", p.config.MaxRetries,
				"backoff", backoff,
			)

			select {
			case <-ctx.Done():
				return nil, &ProviderError{
					Provider: p.config.Name,
					Kind:     KindTransport,
					Message:  "request cancelled during backoff",
					Cause:    ctx.Err(),
				}
			case <-time.After(backoff):
			}
		}

		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		for key, value := range headers {
			req.Header.Set(key, value)
		}
		for key, value := range p.config.ExtraHeaders {
			req.Header.Set(key, value)
		}
		if req.Header.Get("Content-Type") == "" && body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := p.client.Do(req)
		if err != nil {
			lastErr = &ProviderError{
				Provider: p.config.Name,
				Kind:     KindTransport,
				Message:  "request failed",
				Cause:    err,
			}

			if ctx.Err() != nil {
				// Context cancelled or deadline exceeded - don't retry
				return nil, &ProviderError{
					Provider: p.config.Name,
					Kind:     KindTransport,
					Message:  fmt.Sprintf("request timeout after %s", p.config.Timeout),
					Cause:    ctx.Err(),
				}
			}

			slog.Warn("request failed, will retry",
				"provider", p.config.Name,
				"attempt", attempt+1,
				"error", err,
			)
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		errorBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			// Authentication error - don't retry
			return nil, &ProviderError{
				Provider:   p.config.Name,
				Kind:       KindAuth,
				StatusCode: resp.StatusCode,
				Message:    string(errorBody),
			}

		case http.StatusTooManyRequests:
			// Rate limit - don't retry, the router fails over
			return nil, &ProviderError{
				Provider:   p.config.Name,
				Kind:       KindRateLimit,
				StatusCode: resp.StatusCode,
				RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
				Message:    string(errorBody),
			}

		case http.StatusBadRequest, http.StatusNotFound:
			// Client error - retrying cannot help
			return nil, &ProviderError{
				Provider:   p.config.Name,
				Kind:       KindUnknown,
				StatusCode: resp.StatusCode,
				Message:    string(errorBody),
			}

		default:
			// Server error (5xx) - retry
			lastErr = &ProviderError{
				Provider:   p.config.Name,
				Kind:       KindTransport,
				StatusCode: resp.StatusCode,
				Message:    string(errorBody),
			}

			slog.Warn("request returned error status, will retry",
				"provider", p.config.Name,
				"status", resp.StatusCode,
				"attempt", attempt+1,
			)
		}
	}

	return nil, lastErr
}

// DoJSONRequest performs a JSON request and decodes the response into
// respBody. The raw response bytes are returned so callers can keep
// provider-specific fields beyond the decoded shape.
func (p *HTTPProvider) DoJSONRequest(ctx context.Context, method, url string, reqBody, respBody interface{}, headers map[string]string) ([]byte, error) {
	var bodyBytes []byte
	var err error
	if reqBody != nil {
		bodyBytes, err = json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	resp, err := p.DoRequest(ctx, method, url, bodyBytes, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	responseBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{
			Provider: p.config.Name,
			Kind:     KindTransport,
			Message:  "failed to read response",
			Cause:    err,
		}
	}

	if respBody != nil && len(responseBytes) > 0 {
		if err := json.Unmarshal(responseBytes, respBody); err != nil {
			return nil, &ProviderError{
				Provider: p.config.Name,
				Kind:     KindUnknown,
				Message:  fmt.Sprintf("failed to parse response: %v", err),
				Cause:    err,
			}
		}
	}

	return responseBytes, nil
}

// Close releases idle connections held by the transport.
func (p *HTTPProvider) Close() error {
	p.client.CloseIdleConnections()
	slog.Debug("provider closed", "provider", p.config.Name)
	return nil
}

// parseRetryAfter parses the Retry-After header value.
// It supports both delay-seconds and HTTP-date formats.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}

	// Try parsing as seconds
	var seconds int
	if _, err := fmt.Sscanf(header, "%d", &seconds); err == nil {
		return time.Duration(seconds) * time.Second
	}

	// Try parsing as HTTP date
	if t, err := http.ParseTime(header); err == nil {
		return time.Until(t)
	}

	return 0
}
