package skills

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"mercator-hq/foreman/pkg/messages"
	"mercator-hq/foreman/pkg/providers"
	"mercator-hq/foreman/pkg/providers/openaicompat"
)

// SearchSkill answers from the web through the search provider (Perplexity
// Sonar), appending its citation URLs as sources.
type SearchSkill struct{}

// NewSearchSkill returns the search skill.
func NewSearchSkill() *SearchSkill { return &SearchSkill{} }

func (s *SearchSkill) Name() string { return "search" }

func (s *SearchSkill) Description() string {
	return "Web search powered by Perplexity Sonar API"
}

func (s *SearchSkill) Intents() []messages.Intent {
	return []messages.Intent{messages.IntentSearch}
}

func (s *SearchSkill) Handle(ctx context.Context, msg messages.InboundMessage, sc *Context) (messages.OutboundMessage, error) {
	if sc.Search == nil || !sc.Search.IsAvailable() {
		return messages.Reply(msg, "Web search is not configured. Set PERPLEXITY_API_KEY to enable it."), nil
	}

	query := strings.TrimSpace(msg.Text)
	if strings.HasPrefix(strings.ToLower(query), "/search") {
		query = strings.TrimSpace(query[7:])
	}
	if query == "" {
		return messages.Reply(msg, "Please provide a search query. Example: `/search PLC maintenance best practices`"), nil
	}

	resp, err := sc.Search.Complete(ctx, &providers.CompletionRequest{
		Messages: []providers.Message{{Role: providers.RoleUser, Content: query}},
	})
	if err != nil {
		slog.Error("web search failed", "query", truncate(query, 80), "error", err)
		return messages.Reply(msg, "Web search failed. Please try again."), nil
	}

	answer := resp.Text
	if answer == "" {
		answer = "No results found."
	}

	citations := openaicompat.Citations(resp.Raw)
	if len(citations) > 0 {
		answer += "\n\n**Sources:**\n"
		for i, url := range citations {
			if i >= 5 {
				break
			}
			answer += fmt.Sprintf("%d. %s\n", i+1, url)
		}
	}

	slog.Info("web search complete",
		"query", truncate(query, 50), "model", resp.Model, "citations", len(citations))
	out := messages.Reply(msg, answer)
	stampModel(&out, resp)
	return out, nil
}
