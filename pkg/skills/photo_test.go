package skills

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"mercator-hq/foreman/internal/llmtest"
	"mercator-hq/foreman/pkg/enrich"
	"mercator-hq/foreman/pkg/messages"
)

func photoMsg(userID, caption string) messages.InboundMessage {
	msg := inbound(userID, caption, messages.IntentPhoto)
	msg.Attachments = []messages.Attachment{{
		Type:     messages.AttachmentImage,
		Data:     []byte("fake-jpeg-bytes"),
		MIMEType: "image/jpeg",
	}}
	return msg
}

func visionProvider(text string) *llmtest.MockProvider {
	// PHOTO routes to gemini first; groq never carries vision traffic.
	p := llmtest.NewMockProvider("gemini", text)
	p.SetVision(true)
	return p
}

// ============================================================================
// PhotoSkill
// ============================================================================

func TestPhoto_AnalyzesWithVision(t *testing.T) {
	gemini := visionProvider("- Allen-Bradley Micro820, wired for 24VDC\n- K1 contactor looks scorched")
	sc := &Context{Router: testRouter("gemini", gemini)}

	out, err := NewPhotoSkill().Handle(context.Background(), photoMsg("u1", "wiring for K1"), sc)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if gemini.VisionCalls() != 1 {
		t.Fatalf("Expected 1 vision call, got %d", gemini.VisionCalls())
	}
	req := gemini.LastVision()
	if len(req.Images) != 1 {
		t.Errorf("Expected 1 image forwarded, got %d", len(req.Images))
	}
	if req.Messages[len(req.Messages)-1].Content != "wiring for K1" {
		t.Errorf("Expected caption as prompt, got %q", req.Messages[len(req.Messages)-1].Content)
	}
	if req.SystemPrompt != photoPromptWiring {
		t.Error("Expected the wiring system prompt for a wiring caption")
	}
	if !strings.Contains(out.Text, "Allen-Bradley Micro820") {
		t.Errorf("Expected analysis text in reply, got %q", out.Text)
	}
}

func TestPhoto_EmptyCaptionUsesDefaultPrompt(t *testing.T) {
	gemini := visionProvider("Panel looks fine.")
	sc := &Context{Router: testRouter("gemini", gemini)}

	if _, err := NewPhotoSkill().Handle(context.Background(), photoMsg("u1", ""), sc); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	req := gemini.LastVision()
	if req.Messages[len(req.Messages)-1].Content != defaultPhotoPrompt {
		t.Errorf("Expected default prompt for empty caption, got %q", req.Messages[len(req.Messages)-1].Content)
	}
	if req.SystemPrompt != photoPromptDefault {
		t.Error("Expected the default system prompt for empty caption")
	}
}

func TestPhoto_NoImage(t *testing.T) {
	sc := &Context{}
	out, err := NewPhotoSkill().Handle(context.Background(), inbound("u1", "look at this", messages.IntentPhoto), sc)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if out.Text != "No image found. Send a photo for analysis." {
		t.Errorf("Expected no-image reply, got %q", out.Text)
	}
}

func TestPhoto_NoRouter(t *testing.T) {
	sc := &Context{}
	out, err := NewPhotoSkill().Handle(context.Background(), photoMsg("u1", "what is this"), sc)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if out.Text != "No vision provider is configured. Set a provider API key to enable photo analysis." {
		t.Errorf("Expected no-provider reply, got %q", out.Text)
	}
}

func TestPhoto_AnalysisFailed(t *testing.T) {
	gemini := visionProvider("")
	gemini.SetError(errors.New("quota exceeded"))
	sc := &Context{Router: testRouter("gemini", gemini)}

	out, err := NewPhotoSkill().Handle(context.Background(), photoMsg("u1", "what is this"), sc)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if out.Text != "I couldn't analyze the photo right now. Please try again." {
		t.Errorf("Expected failure reply, got %q", out.Text)
	}
}

func TestPhoto_BackgroundEnrichmentNotifies(t *testing.T) {
	gemini := visionProvider("K1 is an Allen-Bradley 100-C09 contactor.")
	enricher := &stubEnricher{result: &enrich.Result{
		Summary: "Added spec atom for Allen-Bradley 100-C09 contactor.",
	}}
	notes := make(chan messages.OutboundMessage, 1)
	sc := &Context{
		Router:   testRouter("gemini", gemini),
		Enricher: enricher,
		Notify: func(ctx context.Context, msg messages.OutboundMessage) error {
			notes <- msg
			return nil
		},
	}

	msg := photoMsg("u1", "K1 contactor closeup")
	out, err := NewPhotoSkill().Handle(context.Background(), msg, sc)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	// The reply is the vision analysis; enrichment must not delay or
	// replace it.
	if !strings.Contains(out.Text, "100-C09") {
		t.Errorf("Expected analysis reply, got %q", out.Text)
	}
	if strings.Contains(out.Text, "KB Enrichment") {
		t.Errorf("Expected enrichment to stay out of the reply, got %q", out.Text)
	}

	select {
	case note := <-notes:
		if note.Channel != msg.Channel || note.UserID != msg.UserID {
			t.Errorf("Expected notification for %s/%s, got %s/%s",
				msg.Channel, msg.UserID, note.Channel, note.UserID)
		}
		if !strings.Contains(note.Text, "KB Enrichment") {
			t.Errorf("Expected enrichment header in notification, got %q", note.Text)
		}
		if !strings.Contains(note.Text, "100-C09") {
			t.Errorf("Expected enrichment summary in notification, got %q", note.Text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected an enrichment notification, got none")
	}

	if enricher.callCount() != 1 {
		t.Errorf("Expected 1 enrichment call, got %d", enricher.callCount())
	}
	if got := enricher.lastRequest().Tag; got != "K1" {
		t.Errorf("Expected component tag K1 from caption, got %q", got)
	}
	if enricher.lastRequest().PhotoPath == "" {
		t.Error("Expected enrichment to receive a photo path")
	}
}

func TestPhoto_EnrichmentFailureStaysSilent(t *testing.T) {
	gemini := visionProvider("Looks like a VFD.")
	enricher := &stubEnricher{err: errors.New("vision provider down")}
	notes := make(chan messages.OutboundMessage, 1)
	sc := &Context{
		Router:   testRouter("gemini", gemini),
		Enricher: enricher,
		Notify: func(ctx context.Context, msg messages.OutboundMessage) error {
			notes <- msg
			return nil
		},
	}

	out, err := NewPhotoSkill().Handle(context.Background(), photoMsg("u1", "what drive is this"), sc)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if out.Text != "Looks like a VFD." {
		t.Errorf("Expected analysis reply, got %q", out.Text)
	}

	deadline := time.Now().Add(2 * time.Second)
	for enricher.callCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Expected background enrichment to run")
		}
		time.Sleep(10 * time.Millisecond)
	}
	// Give a failed enrichment a moment to (wrongly) notify.
	select {
	case note := <-notes:
		t.Errorf("Expected no notification after enrichment failure, got %q", note.Text)
	case <-time.After(100 * time.Millisecond):
	}
}

// ============================================================================
// Caption helpers
// ============================================================================

func TestPickPhotoPrompt(t *testing.T) {
	tests := []struct {
		caption string
		want    string
	}{
		{"need a wiring diagram for this panel", photoPromptWiring},
		{"which terminal does the neutral land on", photoPromptWiring},
		{"what's wrong with this contactor", photoPromptDiagnose},
		{"diagnose the fault on Q3", photoPromptDiagnose},
		{"label everything you see", photoPromptDefault},
		{"", photoPromptDefault},
	}
	for _, tt := range tests {
		if got := pickPhotoPrompt(tt.caption); got != tt.want {
			t.Errorf("pickPhotoPrompt(%q) picked the wrong prompt", tt.caption)
		}
	}
}

func TestExtractComponentTag(t *testing.T) {
	tests := []struct {
		caption string
		want    string
	}{
		{"K1 contactor closeup", "K1"},
		{"replace q3 breaker", "Q3"},
		{"X12 and K1 terminals", "X12"},
		{"no tags in this caption", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := extractComponentTag(tt.caption); got != tt.want {
			t.Errorf("extractComponentTag(%q) = %q, want %q", tt.caption, got, tt.want)
		}
	}
}
