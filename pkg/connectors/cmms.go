package connectors

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// DefaultCMMSTimeout bounds every CMMS API call.
const DefaultCMMSTimeout = 15 * time.Second

// CMMSConfig configures the CMMS client.
type CMMSConfig struct {
	// URL is the CMMS base URL.
	URL string

	// Email and Password are the signin credentials. Both empty skips the
	// token login and calls go out unauthenticated.
	Email    string
	Password string

	// Timeout bounds each request (default 15s).
	Timeout time.Duration
}

// CMMS creates work orders and lists assets in the maintenance management
// system. Authentication is a bearer token obtained from /auth/signin.
type CMMS struct {
	cfg CMMSConfig

	mu     sync.Mutex
	client *httpJSON
	token  string
}

// NewCMMS creates a CMMS connector.
func NewCMMS(cfg CMMSConfig) *CMMS {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultCMMSTimeout
	}
	return &CMMS{cfg: cfg}
}

// Name returns "cmms".
func (c *CMMS) Name() string {
	return "cmms"
}

// Connect establishes the HTTP client and, when credentials are configured,
// performs the token signin.
func (c *CMMS) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.client = newHTTPJSON(c.cfg.URL, c.cfg.Timeout)
	c.mu.Unlock()

	if c.cfg.Email != "" && c.cfg.Password != "" {
		return c.signIn(ctx)
	}
	return nil
}

// Disconnect releases the HTTP client and forgets the token.
func (c *CMMS) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		c.client.close()
		c.client = nil
	}
	c.token = ""
	return nil
}

func (c *CMMS) ensure() *httpJSON {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		c.client = newHTTPJSON(c.cfg.URL, c.cfg.Timeout)
	}
	return c.client
}

// signIn obtains a bearer token. The CMMS returns it as accessToken or, in
// older deployments, token.
func (c *CMMS) signIn(ctx context.Context) error {
	body := map[string]string{"email": c.cfg.Email, "password": c.cfg.Password}

	var reply struct {
		AccessToken string `json:"accessToken"`
		Token       string `json:"token"`
	}
	if _, err := c.ensure().postJSON(ctx, "/auth/signin", body, &reply); err != nil {
		return err
	}

	token := reply.AccessToken
	if token == "" {
		token = reply.Token
	}

	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	return nil
}

func (c *CMMS) headers() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := map[string]string{"Content-Type": "application/json"}
	if c.token != "" {
		h["Authorization"] = "Bearer " + c.token
	}
	return h
}

// CreateWorkOrder creates a work order. priority defaults to MEDIUM; a zero
// assetID omits the asset reference.
func (c *CMMS) CreateWorkOrder(ctx context.Context, title, description, priority string, assetID int) (map[string]any, error) {
	if priority == "" {
		priority = "MEDIUM"
	}

	body := map[string]any{
		"title":       title,
		"description": description,
		"priority":    priority,
	}
	if assetID != 0 {
		body["asset"] = map[string]any{"id": assetID}
	}

	var reply map[string]any
	if _, err := c.ensure().doJSON(ctx, http.MethodPost, "/api/work-orders", nil, c.headers(), body, &reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// ListAssets returns the assets registered in the CMMS.
func (c *CMMS) ListAssets(ctx context.Context) ([]map[string]any, error) {
	var assets []map[string]any
	if _, err := c.ensure().doJSON(ctx, http.MethodGet, "/api/assets", nil, c.headers(), nil, &assets); err != nil {
		return nil, err
	}
	return assets, nil
}

// HealthCheck probes the CMMS root. Any HTTP response counts as healthy.
func (c *CMMS) HealthCheck(ctx context.Context) Health {
	code, err := c.ensure().getJSON(ctx, "/", nil, nil)
	if err != nil && code == 0 {
		return unhealthy(err)
	}
	return healthy(map[string]any{"code": code})
}
