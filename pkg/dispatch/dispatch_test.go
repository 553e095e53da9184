package dispatch

import (
	"context"
	"errors"
	"testing"

	"mercator-hq/foreman/pkg/messages"
	"mercator-hq/foreman/pkg/skills"
	"mercator-hq/foreman/pkg/telemetry/metrics"
)

// fakeSkill answers with canned behavior for the intents it claims.
type fakeSkill struct {
	name    string
	intents []messages.Intent
	reply   string
	err     error
	panics  bool
	called  int
}

func (f *fakeSkill) Name() string                { return f.name }
func (f *fakeSkill) Description() string         { return f.name }
func (f *fakeSkill) Intents() []messages.Intent  { return f.intents }
func (f *fakeSkill) Handle(_ context.Context, msg messages.InboundMessage, _ *skills.Context) (messages.OutboundMessage, error) {
	f.called++
	if f.panics {
		panic("boom")
	}
	if f.err != nil {
		return messages.OutboundMessage{}, f.err
	}
	return messages.Reply(msg, f.reply), nil
}

func newDispatcher(t *testing.T, skillset ...skills.Skill) *Dispatcher {
	t.Helper()
	registry := skills.NewRegistry(nil)
	for _, s := range skillset {
		registry.Register(s)
	}
	return New(registry, &skills.Context{}, nil, nil)
}

func inbound(text string) messages.InboundMessage {
	return messages.NewInbound(messages.ChannelTelegram, "user-1", text)
}

// ============================================================================
// Routing
// ============================================================================

func TestDispatchRoutesByClassifiedIntent(t *testing.T) {
	diag := &fakeSkill{name: "diagnose", intents: []messages.Intent{messages.IntentDiagnose}, reply: "checking the fault"}
	chat := &fakeSkill{name: "chat", intents: []messages.Intent{messages.IntentChat}, reply: "hello"}
	d := newDispatcher(t, diag, chat)

	out := d.Dispatch(context.Background(), inbound("the conveyor motor has a fault"))

	if diag.called != 1 {
		t.Errorf("Expected diagnose skill called once, got %d", diag.called)
	}
	if chat.called != 0 {
		t.Errorf("Expected chat skill not called, got %d", chat.called)
	}
	if out.Text != "checking the fault" {
		t.Errorf("Expected diagnose reply, got %q", out.Text)
	}
}

func TestDispatchKeepsPreclassifiedIntent(t *testing.T) {
	diag := &fakeSkill{name: "diagnose", intents: []messages.Intent{messages.IntentDiagnose}, reply: "diagnosis"}
	d := newDispatcher(t, diag)

	// Text would classify as chat, but the adapter forced DIAGNOSE.
	msg := inbound("hello there")
	msg.Intent = messages.IntentDiagnose

	out := d.Dispatch(context.Background(), msg)
	if diag.called != 1 {
		t.Errorf("Expected diagnose skill called, got %d calls", diag.called)
	}
	if out.Text != "diagnosis" {
		t.Errorf("Expected diagnosis reply, got %q", out.Text)
	}
}

func TestDispatchFallsBackToChat(t *testing.T) {
	chat := &fakeSkill{name: "chat", intents: []messages.Intent{messages.IntentChat}, reply: "chat fallback"}
	d := newDispatcher(t, chat)

	// No skill claims STATUS, so the chat skill answers.
	msg := inbound("show me the status")
	out := d.Dispatch(context.Background(), msg)

	if chat.called != 1 {
		t.Errorf("Expected chat fallback called, got %d calls", chat.called)
	}
	if out.Text != "chat fallback" {
		t.Errorf("Expected chat fallback reply, got %q", out.Text)
	}
}

func TestDispatchNoSkillAvailable(t *testing.T) {
	d := newDispatcher(t)

	out := d.Dispatch(context.Background(), inbound("anything"))
	if out.Text != noSkillReply {
		t.Errorf("Expected %q, got %q", noSkillReply, out.Text)
	}
	if out.UserID != "user-1" {
		t.Errorf("Expected reply addressed to user-1, got %s", out.UserID)
	}
	if out.Channel != messages.ChannelTelegram {
		t.Errorf("Expected telegram channel, got %s", out.Channel)
	}
}

// ============================================================================
// Failure handling
// ============================================================================

func TestDispatchSkillErrorBecomesGenericReply(t *testing.T) {
	chat := &fakeSkill{name: "chat", intents: []messages.Intent{messages.IntentChat}, err: errors.New("backend exploded")}
	d := newDispatcher(t, chat)

	out := d.Dispatch(context.Background(), inbound("hello"))
	if out.Text != errorReply {
		t.Errorf("Expected %q, got %q", errorReply, out.Text)
	}
	if out.UserID != "user-1" || out.Channel != messages.ChannelTelegram {
		t.Errorf("Expected reply addressed to sender, got %s on %s", out.UserID, out.Channel)
	}
}

func TestDispatchRecoversPanic(t *testing.T) {
	chat := &fakeSkill{name: "chat", intents: []messages.Intent{messages.IntentChat}, panics: true}
	d := newDispatcher(t, chat)

	out := d.Dispatch(context.Background(), inbound("hello"))
	if out.Text != errorReply {
		t.Errorf("Expected %q after panic, got %q", errorReply, out.Text)
	}

	// The dispatcher must remain usable after a panic.
	chat.panics = false
	chat.reply = "recovered"
	out = d.Dispatch(context.Background(), inbound("hello again"))
	if out.Text != "recovered" {
		t.Errorf("Expected dispatcher to keep working, got %q", out.Text)
	}
}

func TestDispatchErrorHookFires(t *testing.T) {
	chat := &fakeSkill{name: "chat", intents: []messages.Intent{messages.IntentChat}, panics: true}
	d := newDispatcher(t, chat)

	var hookIntent messages.Intent
	var hookErr error
	d.OnError = func(intent messages.Intent, err error) {
		hookIntent = intent
		hookErr = err
	}

	d.Dispatch(context.Background(), inbound("hello"))

	if hookIntent != messages.IntentChat {
		t.Errorf("Expected hook intent chat, got %s", hookIntent)
	}
	var pe *PanicError
	if !errors.As(hookErr, &pe) {
		t.Fatalf("Expected *PanicError, got %T", hookErr)
	}
	if pe.Skill != "chat" {
		t.Errorf("Expected panicking skill chat, got %s", pe.Skill)
	}
}

// ============================================================================
// Metrics and metadata
// ============================================================================

func TestDispatchRecordsMetrics(t *testing.T) {
	chat := &fakeSkill{name: "chat", intents: []messages.Intent{messages.IntentChat}, reply: "ok"}
	registry := skills.NewRegistry(nil)
	registry.Register(chat)
	collector := metrics.NewCollector(nil)
	d := New(registry, &skills.Context{}, collector, nil)

	d.Dispatch(context.Background(), inbound("hello"))
	d.Dispatch(context.Background(), inbound("hello again"))

	summary := collector.Summary()
	if summary.TotalRequests != 2 {
		t.Errorf("Expected 2 requests recorded, got %d", summary.TotalRequests)
	}
	if summary.Intents["chat"] != 2 {
		t.Errorf("Expected 2 chat intents, got %d", summary.Intents["chat"])
	}
}

func TestModelAndLatencyExtraction(t *testing.T) {
	out := messages.OutboundMessage{
		Metadata: map[string]string{
			messages.MetaModel:     "llama-3.3-70b-versatile",
			messages.MetaLatencyMS: "412",
		},
	}
	if got := Model(out); got != "llama-3.3-70b-versatile" {
		t.Errorf("Expected model name, got %q", got)
	}
	if got := LatencyMS(out); got != 412 {
		t.Errorf("Expected latency 412, got %d", got)
	}

	empty := messages.OutboundMessage{}
	if got := Model(empty); got != "" {
		t.Errorf("Expected empty model, got %q", got)
	}
	if got := LatencyMS(empty); got != 0 {
		t.Errorf("Expected zero latency, got %d", got)
	}
}
