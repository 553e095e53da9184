package enrich

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Single-quote repair patterns. Models occasionally emit Python-style dict
// syntax; these swap quotes only where they delimit keys or values.
var (
	openingQuote = regexp.MustCompile(`([:,\[{])\s*'`)
	closingQuote = regexp.MustCompile(`'\s*([,\]}: ])`)
)

// repairJSON parses a model reply that should be JSON, working through the
// repairs models most often need: code fences stripped, single quotes
// swapped for double, and finally the outermost object sliced out of
// surrounding prose. The second return is false when nothing parsed.
func repairJSON(text string) (any, bool) {
	if v, ok := tryParse(text); ok {
		return v, true
	}

	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```") {
		// Drop the fence line, the closing fence, and any language tag.
		if i := strings.IndexByte(cleaned, '\n'); i >= 0 {
			cleaned = cleaned[i+1:]
		} else {
			cleaned = cleaned[3:]
		}
		cleaned = strings.TrimSuffix(cleaned, "```")
		cleaned = strings.TrimSpace(cleaned)
		cleaned = strings.TrimSpace(strings.TrimPrefix(cleaned, "json"))
	}
	if v, ok := tryParse(cleaned); ok {
		return v, true
	}

	fixed := openingQuote.ReplaceAllString(cleaned, `$1 "`)
	fixed = closingQuote.ReplaceAllString(fixed, `"$1`)
	if v, ok := tryParse(fixed); ok {
		return v, true
	}

	start := strings.IndexByte(cleaned, '{')
	end := strings.LastIndexByte(cleaned, '}')
	if start >= 0 && end > start {
		if v, ok := tryParse(cleaned[start : end+1]); ok {
			return v, true
		}
	}

	return nil, false
}

// tryParse decodes text as JSON. A bare null counts as no parse.
func tryParse(text string) (any, bool) {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil || v == nil {
		return nil, false
	}
	return v, true
}
