package logging

import (
	"context"
	"reflect"
	"testing"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	ctx = WithRequestID(ctx, "req-123")
	if got := RequestID(ctx); got != "req-123" {
		t.Errorf("RequestID() = %q, want %q", got, "req-123")
	}

	ctx = WithUser(ctx, "tg-448291")
	if got := User(ctx); got != "tg-448291" {
		t.Errorf("User() = %q, want %q", got, "tg-448291")
	}

	ctx = WithChannel(ctx, "telegram")
	if got := Channel(ctx); got != "telegram" {
		t.Errorf("Channel() = %q, want %q", got, "telegram")
	}

	ctx = WithIntent(ctx, "diagnose")
	if got := Intent(ctx); got != "diagnose" {
		t.Errorf("Intent() = %q, want %q", got, "diagnose")
	}
}

func TestContextKeys_MissingValues(t *testing.T) {
	ctx := context.Background()

	if got := RequestID(ctx); got != "" {
		t.Errorf("Expected empty request id, got %q", got)
	}
	if got := User(ctx); got != "" {
		t.Errorf("Expected empty user, got %q", got)
	}
	if got := Channel(ctx); got != "" {
		t.Errorf("Expected empty channel, got %q", got)
	}
	if got := Intent(ctx); got != "" {
		t.Errorf("Expected empty intent, got %q", got)
	}
}

func TestContextAttrs(t *testing.T) {
	ctx := context.Background()

	if attrs := ContextAttrs(ctx); len(attrs) != 0 {
		t.Errorf("Expected no attrs on empty context, got %v", attrs)
	}

	ctx = WithRequestID(ctx, "req-9")
	ctx = WithUser(ctx, "tg-448291")
	ctx = WithChannel(ctx, "telegram")
	ctx = WithIntent(ctx, "status")

	want := []any{
		"request_id", "req-9",
		"user", "tg-448291",
		"channel", "telegram",
		"intent", "status",
	}
	if got := ContextAttrs(ctx); !reflect.DeepEqual(got, want) {
		t.Errorf("ContextAttrs() = %v, want %v", got, want)
	}
}

func TestContextAttrs_PartialFields(t *testing.T) {
	ctx := WithIntent(context.Background(), "chat")

	want := []any{"intent", "chat"}
	if got := ContextAttrs(ctx); !reflect.DeepEqual(got, want) {
		t.Errorf("ContextAttrs() = %v, want %v", got, want)
	}
}
