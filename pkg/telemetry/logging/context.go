package logging

import "context"

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	userKey      contextKey = "user"
	channelKey   contextKey = "channel"
	intentKey    contextKey = "intent"
)

// WithRequestID stores a request id on the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request id on the context, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithUser stores the sending user's id on the context.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// User returns the user id on the context, or "".
func User(ctx context.Context) string {
	user, _ := ctx.Value(userKey).(string)
	return user
}

// WithChannel stores the ingress channel on the context.
func WithChannel(ctx context.Context, channel string) context.Context {
	return context.WithValue(ctx, channelKey, channel)
}

// Channel returns the channel on the context, or "".
func Channel(ctx context.Context) string {
	channel, _ := ctx.Value(channelKey).(string)
	return channel
}

// WithIntent stores the classified intent on the context.
func WithIntent(ctx context.Context, intent string) context.Context {
	return context.WithValue(ctx, intentKey, intent)
}

// Intent returns the intent on the context, or "".
func Intent(ctx context.Context) string {
	intent, _ := ctx.Value(intentKey).(string)
	return intent
}

// ContextAttrs returns the log fields present on ctx as alternating
// key-value pairs, ready to splat into a slog call.
func ContextAttrs(ctx context.Context) []any {
	var attrs []any
	if id := RequestID(ctx); id != "" {
		attrs = append(attrs, "request_id", id)
	}
	if user := User(ctx); user != "" {
		attrs = append(attrs, "user", user)
	}
	if channel := Channel(ctx); channel != "" {
		attrs = append(attrs, "channel", channel)
	}
	if intent := Intent(ctx); intent != "" {
		attrs = append(attrs, "intent", intent)
	}
	return attrs
}
