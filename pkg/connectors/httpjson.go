package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// errorBodyLimit caps how much of a failing response body ends up in the
// error message.
const errorBodyLimit = 200

// httpJSON is the JSON client shared by the HTTP-backed connectors. Unlike
// the provider transport it does not retry or classify failures: connector
// errors are plain and handled by the calling skill.
type httpJSON struct {
	base   string
	client *http.Client
}

func newHTTPJSON(base string, timeout time.Duration) *httpJSON {
	return &httpJSON{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

// getJSON performs a GET and decodes the response into out (if non-nil).
func (c *httpJSON) getJSON(ctx context.Context, path string, query url.Values, out any) (int, error) {
	return c.doJSON(ctx, http.MethodGet, path, query, nil, nil, out)
}

// postJSON performs a POST with a JSON body and decodes the response into
// out (if non-nil).
func (c *httpJSON) postJSON(ctx context.Context, path string, body, out any) (int, error) {
	return c.doJSON(ctx, http.MethodPost, path, nil, nil, body, out)
}

// doJSON performs one JSON request. The HTTP status code is returned even
// alongside an error so health checks can report it. A non-2xx status is an
// error carrying a snippet of the response body.
func (c *httpJSON) doJSON(ctx context.Context, method, path string, query url.Values, headers map[string]string, body, out any) (int, error) {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := strings.TrimSpace(string(raw))
		if len(snippet) > errorBodyLimit {
			snippet = snippet[:errorBodyLimit]
		}
		return resp.StatusCode, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, snippet)
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to parse response: %w", err)
		}
	}

	return resp.StatusCode, nil
}

// close releases idle connections held by the client.
func (c *httpJSON) close() {
	c.client.CloseIdleConnections()
}
