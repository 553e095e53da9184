package skills

import (
	"context"
	"strings"
	"testing"

	"mercator-hq/foreman/internal/llmtest"
	"mercator-hq/foreman/pkg/connectors"
	"mercator-hq/foreman/pkg/messages"
	"mercator-hq/foreman/pkg/providers"
	"mercator-hq/foreman/pkg/routing"
)

// ============================================================================
// AdminSkill
// ============================================================================

func TestAdmin_HelpGuide(t *testing.T) {
	skill := NewAdminSkill()
	sc := &Context{}

	for _, msg := range []messages.InboundMessage{
		inbound("u1", "what can you do", messages.IntentHelp),
		inbound("u1", "/start", messages.IntentAdmin),
		inbound("u1", "Help", messages.IntentAdmin),
	} {
		out, err := skill.Handle(context.Background(), msg, sc)
		if err != nil {
			t.Fatalf("Handle failed: %v", err)
		}
		if out.Text != helpText {
			t.Errorf("Expected the help guide for %q, got %q", msg.Text, out.Text)
		}
	}
	if !strings.Contains(helpText, "**Foreman — What I Can Do**") {
		t.Error("Expected the help guide title")
	}
}

func TestAdmin_BudgetReport(t *testing.T) {
	router := routing.NewRouter(map[string]providers.Provider{
		"groq":   llmtest.NewMockProvider("groq", "ok"),
		"openai": llmtest.NewMockProvider("openai", "ok"),
	}, nil, nil, nil)
	router.Budget().Configure("groq", 0, 0)
	router.Budget().Record("groq", 10)
	router.Budget().Configure("openai", 1, 0)
	router.Budget().Record("openai", 10)
	router.Budget().Record("openai", 10)

	out, err := NewAdminSkill().Handle(context.Background(),
		inbound("u1", "show me the budget", messages.IntentAdmin), &Context{Router: router})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if !strings.HasPrefix(out.Text, "**LLM Budget**") {
		t.Errorf("Expected budget header, got %q", out.Text)
	}
	if !strings.Contains(out.Text, "  groq: 1/unlimited requests (within budget)") {
		t.Errorf("Expected unlimited groq row, got %q", out.Text)
	}
	if !strings.Contains(out.Text, "  openai: 2/1 requests (OVER BUDGET)") {
		t.Errorf("Expected over-budget openai row, got %q", out.Text)
	}
	if strings.Index(out.Text, "groq:") > strings.Index(out.Text, "openai:") {
		t.Error("Expected provider rows sorted by name")
	}
}

func TestAdmin_BudgetReportNoRouter(t *testing.T) {
	out, err := NewAdminSkill().Handle(context.Background(),
		inbound("u1", "budget", messages.IntentAdmin), &Context{})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !strings.Contains(out.Text, "no providers configured") {
		t.Errorf("Expected empty-budget notice, got %q", out.Text)
	}
}

func TestAdmin_HealthReport(t *testing.T) {
	groq := llmtest.NewMockProvider("groq", "ok")
	openai := llmtest.NewMockProvider("openai", "ok")
	openai.SetAvailable(false)
	router := routing.NewRouter(map[string]providers.Provider{
		"groq": groq, "openai": openai,
	}, nil, nil, nil)

	sc := &Context{
		Router: router,
		Connectors: []connectors.Connector{
			&stubConnector{name: "matrix", status: connectors.StatusHealthy},
			&stubConnector{name: "knowledge", status: ""},
		},
	}

	out, err := NewAdminSkill().Handle(context.Background(),
		inbound("u1", "health", messages.IntentAdmin), sc)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if !strings.HasPrefix(out.Text, "**Foreman Health**") {
		t.Errorf("Expected health header, got %q", out.Text)
	}
	if !strings.Contains(out.Text, "  matrix: healthy") {
		t.Errorf("Expected matrix row, got %q", out.Text)
	}
	if !strings.Contains(out.Text, "  knowledge: unknown") {
		t.Errorf("Expected unknown status for empty health, got %q", out.Text)
	}
	if !strings.Contains(out.Text, "**LLM Providers**") {
		t.Errorf("Expected provider section, got %q", out.Text)
	}
	if !strings.Contains(out.Text, "  groq: available") {
		t.Errorf("Expected groq available, got %q", out.Text)
	}
	if !strings.Contains(out.Text, "  openai: no key") {
		t.Errorf("Expected openai without key, got %q", out.Text)
	}
}
