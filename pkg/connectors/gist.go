package connectors

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Defaults for the gist publisher.
const (
	DefaultGistAPIURL  = "https://api.github.com"
	DefaultGistTimeout = 20 * time.Second
)

// GistConfig configures the gist publisher.
type GistConfig struct {
	// Token is the GitHub access token. Empty disables the connector.
	Token string

	// APIURL overrides the GitHub API base URL (default api.github.com).
	APIURL string

	// Timeout bounds each request (default 20s).
	Timeout time.Duration
}

// GistFile is one file in a gist payload.
type GistFile struct {
	Content string `json:"content"`
}

// Gist is the subset of the gist resource the gateway uses.
type Gist struct {
	ID          string `json:"id"`
	HTMLURL     string `json:"html_url"`
	Description string `json:"description"`
}

// GistClient publishes documents as GitHub gists. Work orders and generated
// documents go out through it so any CMMS can import them from a stable URL.
type GistClient struct {
	cfg GistConfig

	mu     sync.Mutex
	client *httpJSON
}

// NewGist creates a gist publisher.
func NewGist(cfg GistConfig) *GistClient {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultGistAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultGistTimeout
	}
	return &GistClient{cfg: cfg}
}

// Name returns "gist".
func (g *GistClient) Name() string {
	return "gist"
}

// IsConfigured reports whether a token is present.
func (g *GistClient) IsConfigured() bool {
	return g.cfg.Token != ""
}

// Connect establishes the HTTP client.
func (g *GistClient) Connect(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.client = newHTTPJSON(g.cfg.APIURL, g.cfg.Timeout)
	return nil
}

// Disconnect releases the HTTP client.
func (g *GistClient) Disconnect() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		g.client.close()
		g.client = nil
	}
	return nil
}

func (g *GistClient) ensure() *httpJSON {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client == nil {
		g.client = newHTTPJSON(g.cfg.APIURL, g.cfg.Timeout)
	}
	return g.client
}

func (g *GistClient) headers() map[string]string {
	return map[string]string{
		"Accept":               "application/vnd.github+json",
		"Authorization":        "Bearer " + g.cfg.Token,
		"X-GitHub-Api-Version": "2022-11-28",
	}
}

// Create publishes a new gist and returns it.
func (g *GistClient) Create(ctx context.Context, description string, public bool, files map[string]GistFile) (*Gist, error) {
	if !g.IsConfigured() {
		return nil, &ConnectorUnavailableError{Connector: "gist", Reason: "no token configured"}
	}

	body := map[string]any{
		"description": description,
		"public":      public,
		"files":       files,
	}

	var gist Gist
	if _, err := g.ensure().doJSON(ctx, http.MethodPost, "/gists", nil, g.headers(), body, &gist); err != nil {
		return nil, err
	}
	return &gist, nil
}

// Update replaces file contents of an existing gist in place.
func (g *GistClient) Update(ctx context.Context, id, description string, files map[string]GistFile) (*Gist, error) {
	if !g.IsConfigured() {
		return nil, &ConnectorUnavailableError{Connector: "gist", Reason: "no token configured"}
	}

	body := map[string]any{"files": files}
	if description != "" {
		body["description"] = description
	}

	var gist Gist
	if _, err := g.ensure().doJSON(ctx, http.MethodPatch, "/gists/"+url.PathEscape(id), nil, g.headers(), body, &gist); err != nil {
		return nil, err
	}
	return &gist, nil
}

// HealthCheck lists one gist to verify the token works. No token means the
// connector is disabled, not broken.
func (g *GistClient) HealthCheck(ctx context.Context) Health {
	if !g.IsConfigured() {
		return Health{Status: StatusDisabled}
	}

	query := url.Values{"per_page": {"1"}}
	code, err := g.ensure().doJSON(ctx, http.MethodGet, "/gists", query, g.headers(), nil, nil)
	if err != nil {
		return unhealthy(err)
	}
	return healthy(map[string]any{"code": code})
}
