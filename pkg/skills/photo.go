package skills

import (
	"context"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"mercator-hq/foreman/pkg/enrich"
	"mercator-hq/foreman/pkg/messages"
	"mercator-hq/foreman/pkg/providers"
	"mercator-hq/foreman/pkg/routing"
)

// Context-aware system prompts chosen by caption keywords.
const photoPromptWiring = "You are an expert industrial electrician analyzing a photo of equipment. " +
	"The user wants help creating a wiring diagram. Focus on:\n" +
	"1. **Equipment summary** — one bullet per component (name, model, role)\n" +
	"2. **Key connections to trace** — power, control, comms\n" +
	"3. **Wiring priorities** — what to diagram first\n" +
	"4. **Safety notes** — voltage levels, LOTO reminders\n\n" +
	"Keep it SHORT. Use bullet points. No more than 400 words. " +
	"Give actionable highlights, not a textbook chapter. " +
	"The user is a hands-on technician, not a student."

const photoPromptDiagnose = "You are an expert industrial electrician diagnosing equipment from a photo. " +
	"Focus on:\n" +
	"1. **Equipment ID** — manufacturer, model, visible part numbers\n" +
	"2. **Visible issues** — loose wires, damage, incorrect wiring, missing covers\n" +
	"3. **Recommended actions** — what to check or fix next\n\n" +
	"Keep it SHORT. Use bullet points. No more than 300 words."

const photoPromptDefault = "You are an expert industrial electrician analyzing equipment from a photo. " +
	"Give a CONCISE summary:\n" +
	"1. **Equipment list** — one line per component (manufacturer, model, role)\n" +
	"2. **Visible issues** — anything wrong or noteworthy\n" +
	"3. **Next steps** — what the user should do based on their question\n\n" +
	"Keep it SHORT. Use bullet points. No more than 300 words. " +
	"Give highlights, not paragraphs."

const (
	defaultPhotoPrompt = "Identify this equipment. Note any visible issues and suggest next steps."
	photoMaxTokens     = 1200

	// backgroundEnrichTimeout bounds the fire-and-forget enrichment task,
	// which outlives the request context.
	backgroundEnrichTimeout = 2 * time.Minute
)

// componentTagRe matches IEC-style equipment tags (K1, Q3, F12) in captions.
var componentTagRe = regexp.MustCompile(`\b([QKFSMHUTBX]\d+)\b`)

// PhotoSkill analyzes equipment photos with a vision model and then feeds
// the same photo through KB enrichment in the background.
type PhotoSkill struct{}

// NewPhotoSkill returns the photo analysis skill.
func NewPhotoSkill() *PhotoSkill { return &PhotoSkill{} }

func (s *PhotoSkill) Name() string { return "photo" }

func (s *PhotoSkill) Description() string {
	return "Analyze equipment photos with AI vision + KB enrichment"
}

func (s *PhotoSkill) Intents() []messages.Intent {
	return []messages.Intent{messages.IntentPhoto}
}

func (s *PhotoSkill) Handle(ctx context.Context, msg messages.InboundMessage, sc *Context) (messages.OutboundMessage, error) {
	images := msg.Images()
	if len(images) == 0 {
		return messages.Reply(msg, "No image found. Send a photo for analysis."), nil
	}

	caption := strings.TrimSpace(msg.Text)
	prompt := caption
	if prompt == "" {
		prompt = defaultPhotoPrompt
	}

	if sc.Router == nil {
		return messages.Reply(msg, "No vision provider is configured. Set a provider API key to enable photo analysis."), nil
	}
	resp, err := sc.Router.Route(ctx, routing.RouteRequest{
		Intent:       messages.IntentPhoto,
		Messages:     []providers.Message{{Role: providers.RoleUser, Content: prompt}},
		SystemPrompt: pickPhotoPrompt(caption),
		Images:       images,
		MaxTokens:    photoMaxTokens,
	})
	if err != nil {
		slog.Error("photo analysis failed", "error", err)
		return messages.Reply(msg, "I couldn't analyze the photo right now. Please try again."), nil
	}

	// Fire and forget: enrich the KB in the background, notify when done.
	// The reply below must not wait for it.
	if sc.Enricher != nil {
		go backgroundEnrich(sc, msg, images[0], caption)
	}

	return messages.Reply(msg, resp.Text), nil
}

// pickPhotoPrompt chooses the system prompt from the caption's keywords.
func pickPhotoPrompt(caption string) string {
	text := strings.ToLower(caption)
	for _, kw := range []string{"wiring", "diagram", "wire", "connect", "terminal"} {
		if strings.Contains(text, kw) {
			return photoPromptWiring
		}
	}
	for _, kw := range []string{"diagnos", "fault", "issue", "problem", "wrong", "broken", "fix"} {
		if strings.Contains(text, kw) {
			return photoPromptDiagnose
		}
	}
	return photoPromptDefault
}

// extractComponentTag pulls the first equipment tag (K1, Q3) out of a
// caption, uppercased, or "".
func extractComponentTag(caption string) string {
	m := componentTagRe.FindStringSubmatch(strings.ToUpper(caption))
	if m == nil {
		return ""
	}
	return m[1]
}

// backgroundEnrich runs KB enrichment on the photo after the reply has gone
// out. Failures are logged, never surfaced; a successful run produces a
// separate notification on the same channel when a side-channel exists.
func backgroundEnrich(sc *Context, msg messages.InboundMessage, image []byte, caption string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("background enrichment panicked", "panic", r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), backgroundEnrichTimeout)
	defer cancel()

	tmp, err := os.CreateTemp("", "foreman-enrich-*.jpg")
	if err != nil {
		slog.Warn("background enrichment skipped", "error", err)
		return
	}
	path := tmp.Name()
	defer os.Remove(path)
	if _, err := tmp.Write(image); err != nil {
		tmp.Close()
		slog.Warn("background enrichment skipped", "error", err)
		return
	}
	if err := tmp.Close(); err != nil {
		slog.Warn("background enrichment skipped", "error", err)
		return
	}

	result, err := sc.Enricher.Enrich(ctx, enrich.Request{
		PhotoPath: path,
		Tag:       extractComponentTag(caption),
	})
	if err != nil {
		slog.Warn("background enrichment failed", "error", err)
		return
	}
	slog.Info("background enrichment complete", "summary", truncate(result.Summary, 100))

	if sc.Notify == nil || result.Summary == "" {
		return
	}
	note := messages.OutboundMessage{
		Channel:   msg.Channel,
		UserID:    msg.UserID,
		Text:      "📚 **KB Enrichment**\n" + result.Summary,
		ParseMode: messages.ParseModeMarkdown,
	}
	if err := sc.Notify(ctx, note); err != nil {
		slog.Warn("enrichment notification failed", "user", msg.UserID, "error", err)
		return
	}
	slog.Info("enrichment notification sent", "user", msg.UserID)
}
