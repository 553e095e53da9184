package skills

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"mercator-hq/foreman/pkg/messages"
)

// helpText is the capabilities guide returned for HELP. Kept as one literal
// so the channel renders it exactly as authored.
const helpText = "**Foreman — What I Can Do**\n" +
	"\n" +
	"🔍 **Diagnose** — Ask about faults, alarms, or equipment issues\n" +
	"  _\"Why is the motor stopped?\"_\n" +
	"\n" +
	"📊 **Status** — Show live PLC tags and I/O\n" +
	"  _\"Show me IO\"_\n" +
	"\n" +
	"📷 **Photo** — Analyze equipment from a photo\n" +
	"  _Send a photo with or without caption_\n" +
	"\n" +
	"📝 **Diagram** — Generate wiring diagrams\n" +
	"  _\"Draw the 220V power feed\"_\n" +
	"\n" +
	"🔎 **Search** — Look up technical info\n" +
	"  _\"Search for Micro820 Ethernet setup\"_\n" +
	"\n" +
	"📋 **Work Order** — Create maintenance tasks\n" +
	"  _\"Create a WO for motor bearing replacement\"_\n" +
	"\n" +
	"⚙️ **Admin** — Health, budget, and system info\n" +
	"  _\"budget\" or \"health\"_\n" +
	"\n" +
	"📚 **KB Enrichment** — Every photo enriches the knowledge base automatically\n" +
	"\n" +
	"_Tip: Send a photo of any component to add it to the KB._"

// AdminSkill reports health, budget, and connector status, and serves the
// help guide.
type AdminSkill struct{}

// NewAdminSkill returns the admin skill.
func NewAdminSkill() *AdminSkill { return &AdminSkill{} }

func (s *AdminSkill) Name() string { return "admin" }

func (s *AdminSkill) Description() string {
	return "System health, budget, connector status, and help"
}

func (s *AdminSkill) Intents() []messages.Intent {
	return []messages.Intent{messages.IntentAdmin, messages.IntentHelp}
}

func (s *AdminSkill) Handle(ctx context.Context, msg messages.InboundMessage, sc *Context) (messages.OutboundMessage, error) {
	text := strings.ToLower(strings.TrimSpace(msg.Text))

	// HELP returns the capabilities guide, not a health dump.
	if msg.Intent == messages.IntentHelp || text == "help" || text == "/help" || text == "/start" {
		return messages.Reply(msg, helpText), nil
	}

	if strings.Contains(text, "budget") {
		return messages.Reply(msg, s.budgetReport(sc)), nil
	}
	return messages.Reply(msg, s.healthReport(ctx, sc)), nil
}

func (s *AdminSkill) budgetReport(sc *Context) string {
	lines := []string{"**LLM Budget**", ""}
	if sc.Router == nil {
		return strings.Join(append(lines, "  no providers configured"), "\n")
	}

	summary := sc.Router.Budget().Summary()
	names := make([]string, 0, len(summary))
	for name := range summary {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		data := summary[name]
		limit := "unlimited"
		if data.DailyRequestLimit > 0 {
			limit = strconv.Itoa(data.DailyRequestLimit)
		}
		status := "within budget"
		if !data.WithinBudget {
			status = "OVER BUDGET"
		}
		lines = append(lines, fmt.Sprintf("  %s: %d/%s requests (%s)",
			name, data.RequestsToday, limit, status))
	}
	return strings.Join(lines, "\n")
}

func (s *AdminSkill) healthReport(ctx context.Context, sc *Context) string {
	lines := []string{"**Foreman Health**", ""}

	for _, conn := range sc.Connectors {
		health := conn.HealthCheck(ctx)
		status := health.Status
		if status == "" {
			status = "unknown"
		}
		lines = append(lines, fmt.Sprintf("  %s: %s", conn.Name(), status))
	}

	lines = append(lines, "", "**LLM Providers**")
	if sc.Router != nil {
		for _, name := range sc.Router.ProviderNames() {
			avail := "no key"
			if p := sc.Router.Provider(name); p != nil && p.IsAvailable() {
				avail = "available"
			}
			lines = append(lines, fmt.Sprintf("  %s: %s", name, avail))
		}
	}
	return strings.Join(lines, "\n")
}
