package skills

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"mercator-hq/foreman/pkg/connectors/knowledge"
)

// layer0Footer marks replies answered straight from the knowledge base,
// with no model call and therefore no model latency.
const layer0Footer = "\n\n_Layer 0 (KB direct) | 0ms_"

// kbFindings accumulates knowledge-base results for one reply: the context
// block injected into the LLM prompt and the source labels appended to the
// reply. Sources come from atom fields, never from model output, so a reply
// can only cite material that actually exists in the store.
type kbFindings struct {
	context string
	sources []string
}

// addSource records the citation label for one atom, de-duplicated, in
// lookup order. Atoms without a title are not citable.
func (f *kbFindings) addSource(atom knowledge.Atom) {
	label := strings.TrimSpace(atom.Title)
	if label == "" {
		return
	}
	if len(atom.ManualRefs) > 0 {
		label = fmt.Sprintf("%s (%s)", label, atom.ManualRefs[0])
	}
	for _, existing := range f.sources {
		if existing == label {
			return
		}
	}
	f.sources = append(f.sources, label)
}

// sourcesBlock renders the collected citations, or "" when there are none.
func (f *kbFindings) sourcesBlock() string {
	if len(f.sources) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\n**Sources:**")
	for _, s := range f.sources {
		b.WriteString("\n- ")
		b.WriteString(s)
	}
	return b.String()
}

// actionable reports whether an atom can answer a question directly: it
// carries concrete fix steps and either has no relevance score or a high one.
func actionable(atom knowledge.Atom) bool {
	if len(atom.Fixes) == 0 {
		return false
	}
	return atom.Rank == 0 || atom.Rank > 0.85
}

// layer0Answer renders a KB-direct reply from one actionable atom: title,
// summary, fix steps as bullets, then the citation block and the Layer-0
// footer.
func layer0Answer(atom knowledge.Atom) string {
	kb := &kbFindings{}
	kb.addSource(atom)

	lines := []string{fmt.Sprintf("**%s**", atom.Title)}
	if atom.Summary != "" {
		lines = append(lines, atom.Summary)
	}
	if len(atom.Fixes) > 0 {
		lines = append(lines, "")
		for _, fix := range atom.Fixes {
			lines = append(lines, "- "+fix)
		}
	}
	return strings.Join(lines, "\n") + kb.sourcesBlock() + layer0Footer
}

// searchKB is a nil-safe store search that logs and swallows failures; a
// broken knowledge base degrades answers, it never blocks them.
func searchKB(ctx context.Context, store knowledge.Store, query string, limit int) []knowledge.Atom {
	if store == nil || strings.TrimSpace(query) == "" {
		return nil
	}
	atoms, err := store.Search(ctx, query, limit)
	if err != nil {
		slog.Warn("knowledge base search failed", "query", truncate(query, 50), "error", err)
		return nil
	}
	return atoms
}

// truncate clips s to at most n bytes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// firstN returns at most the first n elements of items.
func firstN(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}

// anyString renders an extracted JSON value as a plain string: strings pass
// through, whole numbers drop the ".0" that float64 decoding adds, nil is
// empty.
func anyString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", v)
	}
}
