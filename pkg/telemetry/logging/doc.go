// Package logging owns slog setup for the gateway.
//
// # Overview
//
// The package builds a *slog.Logger from config (JSON by default, text for
// dev), installs it as the process default, and wraps the handler with a
// credential redactor so provider API keys, gist tokens, bot tokens, and
// Authorization headers never reach log output.
//
// # Usage
//
//	logger, err := logging.Setup(logging.Options{
//	    Level:  "info",
//	    Format: "json",
//	})
//
//	// Component loggers hang off the default.
//	log := logging.Component("dispatch")
//	log.Info("message handled",
//	    "intent", "diagnose",
//	    "api_key", "gsk_abc123def456ghi789", // masked before output
//	)
//
// Request-scoped fields (request id, user, channel, intent) travel on the
// context; ContextAttrs turns them back into log fields at the call site.
package logging
