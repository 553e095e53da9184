package skills

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"mercator-hq/foreman/pkg/connectors/knowledge"
	"mercator-hq/foreman/pkg/messages"
	"mercator-hq/foreman/pkg/providers"
	"mercator-hq/foreman/pkg/routing"
)

// chatKBMinQuery is the shortest query worth a knowledge-base lookup;
// greetings and acknowledgements below it skip straight to the model.
const chatKBMinQuery = 5

// ChatSkill is the conversational fallback: every message without a more
// specific skill lands here. It carries the same KB pathway as diagnosis,
// keyed on the raw query, so institutional knowledge reaches free-form
// questions too.
type ChatSkill struct{}

// NewChatSkill returns the chat skill.
func NewChatSkill() *ChatSkill { return &ChatSkill{} }

func (s *ChatSkill) Name() string { return "chat" }

func (s *ChatSkill) Description() string {
	return "General technical conversation with knowledge base context"
}

func (s *ChatSkill) Intents() []messages.Intent {
	return []messages.Intent{messages.IntentChat, messages.IntentUnknown}
}

func (s *ChatSkill) Handle(ctx context.Context, msg messages.InboundMessage, sc *Context) (messages.OutboundMessage, error) {
	query := strings.TrimSpace(msg.Text)
	if query == "" {
		return messages.Reply(msg, "Send me a question or a command. Try /help to see what I can do."), nil
	}

	atoms := searchChatKB(ctx, sc, query)

	// Layer 0: the top-ranked atom is actionable, answer from it directly.
	if len(atoms) > 0 && actionable(atoms[0]) {
		return messages.Reply(msg, layer0Answer(atoms[0])), nil
	}

	kb := &kbFindings{}
	content := query
	if block := chatKBBlock(atoms, kb); block != "" {
		content += "\n\nRELEVANT KNOWLEDGE BASE ENTRIES:\n" + block +
			"\nUse these entries to inform your response when relevant. Cite specific procedures or known solutions if they apply."
	}
	content = prependHistory(msg, content)

	if sc.Router == nil {
		return messages.Reply(msg, "No language model is configured. Set a provider API key to enable chat."), nil
	}
	resp, err := sc.Router.Route(ctx, routing.RouteRequest{
		Intent:       chatIntent(msg),
		Messages:     []providers.Message{{Role: providers.RoleUser, Content: content}},
		SystemPrompt: assistantSystemPrompt,
	})
	if err != nil {
		slog.Error("chat completion failed", "error", err)
		return messages.Reply(msg, "I'm having trouble reaching the language model providers right now. Please try again in a moment."), nil
	}
	out := messages.Reply(msg, resp.Text+kb.sourcesBlock())
	stampModel(&out, resp)
	return out, nil
}

// chatIntent picks the routing intent: the classified intent when set, so
// UNKNOWN messages use the UNKNOWN route, otherwise CHAT.
func chatIntent(msg messages.InboundMessage) messages.Intent {
	if msg.Intent != "" {
		return msg.Intent
	}
	return messages.IntentChat
}

// searchChatKB looks up atoms for a free-form query. Queries shorter than
// chatKBMinQuery are not worth a lookup.
func searchChatKB(ctx context.Context, sc *Context, query string) []knowledge.Atom {
	if len(query) < chatKBMinQuery {
		return nil
	}
	return searchKB(ctx, sc.Knowledge, query, 3)
}

// chatKBBlock renders the KB entries for the prompt and collects their
// citations: type and title, clipped summary, fixes when present, one blank
// line between entries.
func chatKBBlock(atoms []knowledge.Atom, kb *kbFindings) string {
	if len(atoms) == 0 {
		return ""
	}
	var lines []string
	for _, atom := range atoms {
		lines = append(lines, fmt.Sprintf("[%s] %s", atom.Type, atom.Title))
		if atom.Summary != "" {
			lines = append(lines, "  "+truncate(atom.Summary, 300))
		}
		if len(atom.Fixes) > 0 {
			lines = append(lines, "  Fixes: "+strings.Join(firstN(atom.Fixes, 3), "; "))
		}
		lines = append(lines, "")
		kb.addSource(atom)
	}
	return strings.Join(lines, "\n")
}
