package logging

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

// Redactor masks credentials in log output. It covers the key formats the
// gateway actually handles (provider API keys, gist tokens, Telegram bot
// tokens, Authorization headers) plus key=value assignments in free text.
type Redactor struct {
	patterns []redactPattern
}

type redactPattern struct {
	re          *regexp.Regexp
	replacement string
}

// NewRedactor returns a redactor loaded with the builtin credential
// patterns.
func NewRedactor() *Redactor {
	compile := func(expr, replacement string) redactPattern {
		return redactPattern{re: regexp.MustCompile(expr), replacement: replacement}
	}
	return &Redactor{
		patterns: []redactPattern{
			// Provider key families: OpenAI/Anthropic/OpenRouter (sk-),
			// Groq (gsk_), GitHub (ghp_, github_pat_), Google (AIza).
			compile(`\bsk-[A-Za-z0-9_-]{8,}`, "sk-***"),
			compile(`\bgsk_[A-Za-z0-9_-]{8,}`, "gsk_***"),
			compile(`\bghp_[A-Za-z0-9]{8,}`, "ghp_***"),
			compile(`\bgithub_pat_[A-Za-z0-9_]{8,}`, "github_pat_***"),
			compile(`\bAIza[A-Za-z0-9_-]{8,}`, "AIza***"),

			// Telegram bot tokens: numeric bot id, colon, long secret.
			compile(`\b\d{6,}:[A-Za-z0-9_-]{20,}`, "***:***"),

			// Authorization header values.
			compile(`(?i)bearer\s+[A-Za-z0-9\-._~+/]+=*`, "Bearer ***"),

			// key=value / key: value assignments in free-form text.
			compile(`(?i)\b(api[-_]?key|token|secret|password)\s*[=:]\s*\S+`, "${1}=***"),
		},
	}
}

// RedactString masks every credential pattern found in s.
func (r *Redactor) RedactString(s string) string {
	if s == "" {
		return s
	}
	for _, p := range r.patterns {
		s = p.re.ReplaceAllString(s, p.replacement)
	}
	return s
}

// IsSensitiveKey reports whether an attribute key names a credential. Values
// under sensitive keys are masked wholesale rather than pattern-matched.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, marker := range []string{
		"password", "secret", "token", "api_key", "apikey", "authorization", "credential",
	} {
		if strings.Contains(k, marker) {
			return true
		}
	}
	return false
}

// MaskValue hides a credential, keeping a short prefix for identification
// when the value is long enough to stay unguessable.
func MaskValue(v string) string {
	if v == "" {
		return ""
	}
	if len(v) <= 8 {
		return "***"
	}
	return v[:4] + "***"
}

// Handler wraps another slog.Handler and redacts the record message and
// every string attribute value before delegating.
type Handler struct {
	inner    slog.Handler
	redactor *Redactor
}

// Redact wraps inner so every record passes through the redactor.
func Redact(inner slog.Handler, r *Redactor) *Handler {
	return &Handler{inner: inner, redactor: r}
}

// Enabled delegates to the wrapped handler.
func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle redacts the record and passes it on.
func (h *Handler) Handle(ctx context.Context, rec slog.Record) error {
	clean := slog.NewRecord(rec.Time, rec.Level, h.redactor.RedactString(rec.Message), rec.PC)
	rec.Attrs(func(a slog.Attr) bool {
		clean.AddAttrs(h.redactAttr(a))
		return true
	})
	return h.inner.Handle(ctx, clean)
}

// WithAttrs redacts the attrs before baking them into the wrapped handler.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = h.redactAttr(a)
	}
	return &Handler{inner: h.inner.WithAttrs(clean), redactor: h.redactor}
}

// WithGroup delegates to the wrapped handler.
func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{inner: h.inner.WithGroup(name), redactor: h.redactor}
}

func (h *Handler) redactAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()

	switch a.Value.Kind() {
	case slog.KindString:
		v := a.Value.String()
		if IsSensitiveKey(a.Key) {
			return slog.String(a.Key, MaskValue(v))
		}
		return slog.String(a.Key, h.redactor.RedactString(v))
	case slog.KindGroup:
		members := a.Value.Group()
		clean := make([]slog.Attr, len(members))
		for i, m := range members {
			clean[i] = h.redactAttr(m)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(clean...)}
	default:
		return a
	}
}
