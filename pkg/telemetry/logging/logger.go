package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Output formats.
const (
	// FormatJSON emits one JSON object per record. Default.
	FormatJSON = "json"

	// FormatText emits logfmt-style records for local development.
	FormatText = "text"
)

// Options configures handler construction.
type Options struct {
	// Level is the minimum level: "debug", "info", "warn" or "error".
	// Empty means info.
	Level string

	// Format selects the handler: "json" (default) or "text".
	Format string

	// AddSource includes file:line in every record.
	AddSource bool

	// Writer receives log output. Nil means os.Stdout.
	Writer io.Writer
}

// New builds a *slog.Logger whose records pass through the credential
// redactor before they reach the handler.
func New(opts Options) (*slog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	writer := opts.Writer
	if writer == nil {
		writer = os.Stdout
	}

	hopts := &slog.HandlerOptions{Level: level, AddSource: opts.AddSource}

	var inner slog.Handler
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case FormatText:
		inner = slog.NewTextHandler(writer, hopts)
	case FormatJSON, "":
		inner = slog.NewJSONHandler(writer, hopts)
	default:
		return nil, fmt.Errorf("unknown log format: %q", opts.Format)
	}

	return slog.New(Redact(inner, NewRedactor())), nil
}

// Setup builds the logger and installs it as the process default, so
// packages that log through slog.Default pick up the configured handler.
func Setup(opts Options) (*slog.Logger, error) {
	logger, err := New(opts)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}

// Component returns the default logger scoped to one component name.
func Component(name string) *slog.Logger {
	return slog.Default().With("component", name)
}

// ParseLevel maps a level name to a slog.Level. Empty means info.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %q", name)
	}
}
