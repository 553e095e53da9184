package skills

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"mercator-hq/foreman/pkg/enrich"
	"mercator-hq/foreman/pkg/messages"
)

// EnrichSkill runs the KB enrichment pipeline synchronously on a component
// photo. The PHOTO skill triggers the same pipeline in the background; this
// one is for explicit enrichment requests where the technician waits for the
// result.
type EnrichSkill struct{}

// NewEnrichSkill returns the enrichment skill.
func NewEnrichSkill() *EnrichSkill { return &EnrichSkill{} }

func (s *EnrichSkill) Name() string { return "kb_enrich" }

func (s *EnrichSkill) Description() string {
	return "Enrich knowledge base from component photos"
}

func (s *EnrichSkill) Intents() []messages.Intent {
	return []messages.Intent{messages.IntentKBEnrich}
}

func (s *EnrichSkill) Handle(ctx context.Context, msg messages.InboundMessage, sc *Context) (messages.OutboundMessage, error) {
	images := msg.Images()
	if len(images) == 0 {
		return messages.Reply(msg, "Send a component photo to enrich the knowledge base."), nil
	}
	if sc.Enricher == nil {
		return messages.Reply(msg, "KB enrichment is not configured. Set a vision provider API key to enable it."), nil
	}

	tmp, err := os.CreateTemp("", "foreman-enrich-*.jpg")
	if err != nil {
		slog.Error("enrichment temp file failed", "error", err)
		return messages.Reply(msg, fmt.Sprintf("Enrichment error: %s", truncate(err.Error(), 100))), nil
	}
	photoPath := tmp.Name()
	defer os.Remove(photoPath)
	if _, err := tmp.Write(images[0]); err != nil {
		tmp.Close()
		slog.Error("enrichment temp write failed", "error", err)
		return messages.Reply(msg, fmt.Sprintf("Enrichment error: %s", truncate(err.Error(), 100))), nil
	}
	if err := tmp.Close(); err != nil {
		slog.Error("enrichment temp close failed", "error", err)
		return messages.Reply(msg, fmt.Sprintf("Enrichment error: %s", truncate(err.Error(), 100))), nil
	}

	result, err := sc.Enricher.Enrich(ctx, enrich.Request{
		PhotoPath: photoPath,
		Tag:       extractComponentTag(msg.Text),
	})
	if err != nil {
		slog.Error("wiring enrichment failed", "error", err)
		return messages.Reply(msg, fmt.Sprintf("Enrichment error: %s", truncate(err.Error(), 100))), nil
	}

	return messages.Reply(msg, fmt.Sprintf("🔧 *KB Enrichment*\n\n%s", result.Summary)), nil
}
