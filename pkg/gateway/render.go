package gateway

import "strings"

// stripMarkdown removes the Markdown markers the skills emit so a reply can
// be re-sent plain when a channel rejects the formatted version (unbalanced
// markers in model output are Telegram's most common parse failure).
func stripMarkdown(text string) string {
	replacer := strings.NewReplacer("*", "", "_", "", "`", "")
	return replacer.Replace(text)
}
