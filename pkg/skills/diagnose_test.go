package skills

import (
	"context"
	"errors"
	"strings"
	"testing"

	"mercator-hq/foreman/internal/llmtest"
	"mercator-hq/foreman/pkg/connectors"
	"mercator-hq/foreman/pkg/connectors/knowledge"
	"mercator-hq/foreman/pkg/messages"
)

func seedAtom(t *testing.T, store knowledge.Store, atom knowledge.Atom) {
	t.Helper()
	if _, err := store.InsertAtom(context.Background(), &atom); err != nil {
		t.Fatalf("InsertAtom failed: %v", err)
	}
}

func eStopSnapshot() []map[string]any {
	return []map[string]any{{
		"motor_running":    false,
		"conveyor_running": false,
		"e_stop":           true,
		"motor_current":    0.0,
	}}
}

// ============================================================================
// Layer 0: KB-direct answers
// ============================================================================

// An e-stop fault with a vetted reset procedure in the KB answers straight
// from the store: fault header, procedure steps, sources, zero model calls.
func TestDiagnose_Layer0EStopProcedure(t *testing.T) {
	store := knowledge.NewMemory()
	seedAtom(t, store, knowledge.Atom{
		Type:       knowledge.TypeProcedure,
		Code:       "E001",
		Title:      "E-Stop Reset Procedure",
		Summary:    "Safe reset sequence after an emergency stop",
		Fixes:      []string{"Verify the area is safe", "Twist the e-stop button to release", "Press the blue reset button"},
		ManualRefs: []string{"Micro820 manual p.44"},
	})

	groq := llmtest.NewMockProvider("groq", "should never be called")
	sc := &Context{
		Router:    testRouter("groq", groq),
		Knowledge: store,
		Telemetry: &stubTags{snapshots: eStopSnapshot()},
	}

	msg := inbound("tech-1", "why is the conveyor stopped?", messages.IntentDiagnose)
	out, err := NewDiagnoseSkill().Handle(context.Background(), msg, sc)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if out.Channel != msg.Channel || out.UserID != msg.UserID {
		t.Errorf("Expected reply to %s/%s, got %s/%s", msg.Channel, msg.UserID, out.Channel, out.UserID)
	}
	if !strings.Contains(out.Text, "**E001: Emergency Stop Active**") {
		t.Errorf("Expected fault header in reply, got:\n%s", out.Text)
	}
	for _, fix := range []string{"- Verify the area is safe", "- Twist the e-stop button to release", "- Press the blue reset button"} {
		if !strings.Contains(out.Text, fix) {
			t.Errorf("Expected step %q in reply", fix)
		}
	}
	if !strings.Contains(out.Text, "**Sources:**") {
		t.Error("Expected a sources block in the Layer-0 reply")
	}
	if !strings.Contains(out.Text, "E-Stop Reset Procedure (Micro820 manual p.44)") {
		t.Errorf("Expected cited atom with manual ref, got:\n%s", out.Text)
	}
	if !strings.HasSuffix(out.Text, "_Layer 0 (KB direct) | 0ms_") {
		t.Errorf("Expected Layer-0 footer, got:\n%s", out.Text)
	}
	if groq.CompleteCalls() != 0 {
		t.Errorf("Expected no provider calls on a Layer-0 answer, got %d", groq.CompleteCalls())
	}
}

// A low-confidence atom (explicit rank below the gate) must not fire Layer 0.
func TestDiagnose_Layer0RejectsLowRank(t *testing.T) {
	store := knowledge.NewMemory()
	seedAtom(t, store, knowledge.Atom{
		Type:  knowledge.TypeProcedure,
		Code:  "E001",
		Title: "Possibly related note",
		Fixes: []string{"Check something"},
		Rank:  0.2,
	})

	groq := llmtest.NewMockProvider("groq", "model answer")
	sc := &Context{
		Router:    testRouter("groq", groq),
		Knowledge: store,
		Telemetry: &stubTags{snapshots: eStopSnapshot()},
	}

	out, err := NewDiagnoseSkill().Handle(context.Background(), inbound("tech-1", "what happened?", messages.IntentDiagnose), sc)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if groq.CompleteCalls() != 1 {
		t.Fatalf("Expected the model to be consulted, got %d calls", groq.CompleteCalls())
	}
	if !strings.Contains(out.Text, "model answer") {
		t.Errorf("Expected model answer in reply, got:\n%s", out.Text)
	}
}

// ============================================================================
// Routed diagnosis
// ============================================================================

func TestDiagnose_RoutesWithTagAndKBContext(t *testing.T) {
	store := knowledge.NewMemory()
	// Non-procedure type stays out of the Layer-0 gate but still feeds the
	// prompt and the citations.
	seedAtom(t, store, knowledge.Atom{
		Type:    knowledge.TypeFault,
		Code:    "E001",
		Title:   "E-stop wiring fault history",
		Summary: "Recurring loose terminal on the safety relay",
		Fixes:   []string{"Re-torque X1 terminals"},
	})

	groq := llmtest.NewMockProvider("groq", "Check the safety relay.")
	sc := &Context{
		Router:    testRouter("groq", groq),
		Knowledge: store,
		Telemetry: &stubTags{snapshots: eStopSnapshot()},
	}

	out, err := NewDiagnoseSkill().Handle(context.Background(), inbound("tech-1", "why did it stop?", messages.IntentDiagnose), sc)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	req := groq.LastComplete()
	if req == nil {
		t.Fatal("Expected a completion request")
	}
	prompt := req.Messages[len(req.Messages)-1].Content
	if !strings.Contains(prompt, "CURRENT EQUIPMENT STATE:") {
		t.Error("Expected tag state in the prompt")
	}
	if !strings.Contains(prompt, "KNOWN SOLUTIONS FROM KNOWLEDGE BASE:") {
		t.Error("Expected KB context in the prompt")
	}
	if !strings.Contains(prompt, "E-stop wiring fault history") {
		t.Error("Expected the seeded atom in the prompt")
	}

	if !strings.Contains(out.Text, "Check the safety relay.") {
		t.Errorf("Expected model text in reply, got:\n%s", out.Text)
	}
	if !strings.Contains(out.Text, "**Sources:**") || !strings.Contains(out.Text, "E-stop wiring fault history") {
		t.Errorf("Expected deterministic citation of the seeded atom, got:\n%s", out.Text)
	}
	if !strings.Contains(out.Text, "_Model: mock-model | ") {
		t.Errorf("Expected model footer, got:\n%s", out.Text)
	}
}

func TestDiagnose_HistoryPrependedToPrompt(t *testing.T) {
	groq := llmtest.NewMockProvider("groq", "answer")
	sc := &Context{
		Router:    testRouter("groq", groq),
		Telemetry: &stubTags{snapshots: eStopSnapshot()},
	}

	msg := inbound("tech-1", "and now?", messages.IntentDiagnose)
	msg.Metadata = map[string]string{
		messages.MetaHistory: "user: motor tripped\nassistant: check the overload",
	}
	if _, err := NewDiagnoseSkill().Handle(context.Background(), msg, sc); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	prompt := groq.LastComplete().Messages[0].Content
	if !strings.HasPrefix(prompt, "CONVERSATION SO FAR:\n") {
		t.Errorf("Expected history preamble first, got:\n%s", truncate(prompt, 120))
	}
	if !strings.Contains(prompt, "check the overload") {
		t.Error("Expected prior turns inside the prompt")
	}
}

// ============================================================================
// Degraded paths
// ============================================================================

func TestDiagnose_KBOnlyWhenTelemetryDown(t *testing.T) {
	store := knowledge.NewMemory()
	seedAtom(t, store, knowledge.Atom{
		Type:    knowledge.TypeTroubleshooting,
		Title:   "Conveyor jam clearing",
		Summary: "How to clear a conveyor jam at the sorting gate",
		Fixes:   []string{"Lock out the drive", "Remove the jammed carton", "Reset the photoeye"},
	})

	groq := llmtest.NewMockProvider("groq", "should not be needed")
	sc := &Context{
		Router:    testRouter("groq", groq),
		Knowledge: store,
		Telemetry: &stubTags{err: errors.New("connection refused")},
	}

	out, err := NewDiagnoseSkill().Handle(context.Background(), inbound("tech-1", "conveyor jam", messages.IntentDiagnose), sc)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if !strings.HasPrefix(out.Text, "_Live telemetry is unreachable. Answering from the knowledge base._") {
		t.Errorf("Expected degraded-mode preamble, got:\n%s", out.Text)
	}
	if !strings.Contains(out.Text, "- Lock out the drive") {
		t.Error("Expected fix steps from the KB atom")
	}
	if groq.CompleteCalls() != 0 {
		t.Errorf("Expected KB-direct degraded answer without model calls, got %d", groq.CompleteCalls())
	}
}

func TestDiagnose_KBOnlyRoutesWhenNoActionableAtom(t *testing.T) {
	groq := llmtest.NewMockProvider("groq", "best guess without live data")
	sc := &Context{
		Router: testRouter("groq", groq),
		// No telemetry and no knowledge store at all.
	}

	out, err := NewDiagnoseSkill().Handle(context.Background(), inbound("tech-1", "pump noise", messages.IntentDiagnose), sc)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	prompt := groq.LastComplete().Messages[0].Content
	if !strings.Contains(prompt, "Live PLC telemetry is unreachable") {
		t.Error("Expected the prompt to state that live data is missing")
	}
	if !strings.Contains(out.Text, "best guess without live data") {
		t.Errorf("Expected model text, got:\n%s", out.Text)
	}
}

func TestDiagnose_OfflineFallback(t *testing.T) {
	groq := llmtest.NewMockProvider("groq", "")
	groq.SetError(errors.New("rate limited"))

	offline := &stubOffline{result: &connectors.GenerateResult{
		Response:        "Offline: check the e-stop chain.",
		Model:           "llama3.2:3b",
		TotalDurationMS: 900,
	}}
	sc := &Context{
		Router:    testRouter("groq", groq),
		Telemetry: &stubTags{snapshots: eStopSnapshot()},
		Offline:   offline,
	}

	out, err := NewDiagnoseSkill().Handle(context.Background(), inbound("tech-1", "diagnose", messages.IntentDiagnose), sc)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if offline.calls != 1 {
		t.Fatalf("Expected one offline generation, got %d", offline.calls)
	}
	if !strings.Contains(out.Text, "Offline: check the e-stop chain.") {
		t.Errorf("Expected offline answer, got:\n%s", out.Text)
	}
	if !strings.Contains(out.Text, "_Model: llama3.2:3b (offline) | 900ms_") {
		t.Errorf("Expected offline footer, got:\n%s", out.Text)
	}
}

func TestDiagnose_AllProvidersDown(t *testing.T) {
	groq := llmtest.NewMockProvider("groq", "")
	groq.SetError(errors.New("rate limited"))

	sc := &Context{
		Router:    testRouter("groq", groq),
		Telemetry: &stubTags{snapshots: eStopSnapshot()},
	}

	out, err := NewDiagnoseSkill().Handle(context.Background(), inbound("tech-1", "diagnose", messages.IntentDiagnose), sc)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if out.Text != "All language model providers are unavailable right now. Please try again shortly." {
		t.Errorf("Expected apology text, got: %s", out.Text)
	}
}

func TestDiagnose_EmptyQuestionUsesDefault(t *testing.T) {
	groq := llmtest.NewMockProvider("groq", "answer")
	sc := &Context{
		Router:    testRouter("groq", groq),
		Telemetry: &stubTags{snapshots: eStopSnapshot()},
	}

	if _, err := NewDiagnoseSkill().Handle(context.Background(), inbound("tech-1", "   ", messages.IntentDiagnose), sc); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	prompt := groq.LastComplete().Messages[0].Content
	if !strings.Contains(prompt, "TECHNICIAN'S QUESTION:") {
		t.Error("Expected the diagnosis prompt scaffold")
	}
	if !strings.Contains(prompt, defaultDiagnoseQuestion) {
		t.Errorf("Expected the default question, got:\n%s", truncate(prompt, 400))
	}
}
