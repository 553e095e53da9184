package messages

import "strings"

// MaxChunkLen is the largest reply chunk any channel is asked to carry.
// Telegram enforces 4096; other channels tolerate it.
const MaxChunkLen = 4096

// Chunk splits text into pieces of at most maxLen bytes. Split preference:
// paragraph break, then line break, then hard cut. A text of exactly maxLen
// yields one chunk. maxLen <= 0 selects MaxChunkLen.
func Chunk(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = MaxChunkLen
	}
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			chunks = append(chunks, text)
			break
		}

		cut := strings.LastIndex(text[:maxLen], "\n\n")
		if cut <= 0 {
			cut = strings.LastIndex(text[:maxLen], "\n")
		}
		if cut <= 0 {
			cut = maxLen
		}

		chunks = append(chunks, text[:cut])
		text = strings.TrimLeft(text[cut:], "\n")
	}
	return chunks
}
