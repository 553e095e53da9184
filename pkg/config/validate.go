package config

import (
	"fmt"
	"net"
	"slices"
	"strings"
)

// ValidationError describes a single invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"json", "text"}
	validBackends   = []string{"postgres", "sqlite", "memory"}
)

// Validate checks the configuration for values that would fail at startup.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Server.ListenAddress); err != nil {
		return invalid("server.listen_address", "invalid address %q: %v", c.Server.ListenAddress, err)
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.IdleTimeout < 0 {
		return invalid("server", "timeouts must not be negative")
	}

	if c.Channels.Telegram.RateLimitPerHour < 0 {
		return invalid("channels.telegram.rate_limit_per_hour", "must not be negative, got %d", c.Channels.Telegram.RateLimitPerHour)
	}

	for name := range c.Providers {
		if !slices.Contains(knownProviders, name) {
			return invalid("providers."+name, "unknown provider, expected one of %s", strings.Join(knownProviders, ", "))
		}
	}
	for name, pc := range c.Providers {
		if pc.DailyRequestLimit < 0 {
			return invalid("providers."+name+".daily_request_limit", "must not be negative")
		}
		if pc.DailyTokenLimit < 0 {
			return invalid("providers."+name+".daily_token_limit", "must not be negative")
		}
	}

	for intent, route := range c.Routes {
		if route.Primary == "" && len(route.Fallbacks) == 0 {
			return invalid("routes."+intent, "route must name a primary or fallbacks")
		}
		for _, provider := range append([]string{route.Primary}, route.Fallbacks...) {
			if provider == "" {
				continue
			}
			if !slices.Contains(knownProviders, provider) {
				return invalid("routes."+intent, "unknown provider %q", provider)
			}
		}
	}

	kb := c.Connectors.Knowledge
	if !slices.Contains(validBackends, kb.Backend) {
		return invalid("connectors.knowledge.backend", "got %q, expected one of %s", kb.Backend, strings.Join(validBackends, ", "))
	}
	if kb.Backend == "postgres" && kb.URL == "" {
		return invalid("connectors.knowledge.url", "required for the postgres backend")
	}
	if kb.Backend == "sqlite" && kb.Path == "" {
		return invalid("connectors.knowledge.path", "required for the sqlite backend")
	}

	if c.Connectors.PLC.Port < 1 || c.Connectors.PLC.Port > 65535 {
		return invalid("connectors.plc.port", "got %d, expected 1-65535", c.Connectors.PLC.Port)
	}
	if c.Connectors.CMMS.URL != "" && (c.Connectors.CMMS.Email == "" || c.Connectors.CMMS.Password == "") {
		return invalid("connectors.cmms", "email and password are required when a URL is set")
	}

	if c.Conversation.MaxEntries < 1 {
		return invalid("conversation.max_entries", "must be at least 1, got %d", c.Conversation.MaxEntries)
	}
	if c.Conversation.TTL < 0 {
		return invalid("conversation.ttl", "must not be negative")
	}

	lg := c.Telemetry.Logging
	if !slices.Contains(validLogLevels, strings.ToLower(lg.Level)) {
		return invalid("telemetry.logging.level", "got %q, expected one of %s", lg.Level, strings.Join(validLogLevels, ", "))
	}
	if !slices.Contains(validLogFormats, strings.ToLower(lg.Format)) {
		return invalid("telemetry.logging.format", "got %q, expected json or text", lg.Format)
	}

	tr := c.Telemetry.Tracing
	if tr.SampleRatio < 0 || tr.SampleRatio > 1 {
		return invalid("telemetry.tracing.sample_ratio", "got %v, expected 0.0-1.0", tr.SampleRatio)
	}
	if tr.Enabled && tr.Endpoint == "" {
		return invalid("telemetry.tracing.endpoint", "required when tracing is enabled")
	}

	return nil
}
