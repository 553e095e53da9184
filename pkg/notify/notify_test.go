package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/slack-go/slack"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSlack records posted messages.
type fakeSlack struct {
	channels []string
	posts    int
	err      error
}

func (f *fakeSlack) PostMessageContext(_ context.Context, channelID string, _ ...slack.MsgOption) (string, string, error) {
	f.posts++
	f.channels = append(f.channels, channelID)
	return channelID, "ts", f.err
}

func testNotifier(f *fakeSlack) *Notifier {
	return &Notifier{client: f, channel: "#maintenance-ops", logger: nil}
}

func TestNewRequiresTokenAndChannel(t *testing.T) {
	if n := New("", "#ops", nil); n != nil {
		t.Error("Expected nil notifier without token")
	}
	if n := New("xoxb-token", "", nil); n != nil {
		t.Error("Expected nil notifier without channel")
	}
	if n := New("xoxb-token", "#ops", nil); n == nil {
		t.Error("Expected notifier with token and channel")
	}
}

func TestNilNotifierIsSafe(t *testing.T) {
	var n *Notifier
	ctx := context.Background()

	// None of these may panic.
	n.CircuitOpen(ctx, "groq", 3)
	n.CircuitClosed(ctx, "groq")
	n.BudgetWarning(ctx, "openai", 92)
	n.BudgetExhausted(ctx, "openai")
	n.DispatchFailure(ctx, "diagnose", errors.New("boom"))
}

func TestEventsPostToChannel(t *testing.T) {
	f := &fakeSlack{}
	n := testNotifier(f)
	// post logs through n.logger which must not be nil here
	n.logger = discardLogger()
	ctx := context.Background()

	n.CircuitOpen(ctx, "groq", 3)
	n.BudgetWarning(ctx, "openai", 95)
	n.DispatchFailure(ctx, "chat", errors.New("skill panicked"))

	if f.posts != 3 {
		t.Fatalf("Expected 3 posts, got %d", f.posts)
	}
	for _, ch := range f.channels {
		if ch != "#maintenance-ops" {
			t.Errorf("Expected channel #maintenance-ops, got %s", ch)
		}
	}
}

func TestPostErrorIsSwallowed(t *testing.T) {
	f := &fakeSlack{err: errors.New("slack is down")}
	n := testNotifier(f)
	n.logger = discardLogger()

	// Must not panic or propagate.
	n.CircuitOpen(context.Background(), "groq", 3)
	if f.posts != 1 {
		t.Errorf("Expected the post attempted, got %d", f.posts)
	}
}

func TestMessageWording(t *testing.T) {
	msg := circuitOpenText("nvidia", 3)
	if !strings.Contains(msg, "nvidia") || !strings.Contains(msg, "3") {
		t.Errorf("Expected provider and count in message, got %q", msg)
	}
}
