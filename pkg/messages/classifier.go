package messages

import (
	"regexp"
	"strings"
)

// classifierRule pairs a compiled pattern with the intent it selects.
type classifierRule struct {
	pattern *regexp.Regexp
	intent  Intent
}

// Slash-command shortcuts. Checked before the pattern rules; unknown
// commands fall through to pattern matching.
var commandTable = map[string]Intent{
	"/diagram":   IntentDiagram,
	"/wiring":    IntentDiagram,
	"/diagnose":  IntentDiagnose,
	"/status":    IntentStatus,
	"/photo":     IntentPhoto,
	"/wo":        IntentWorkOrder,
	"/workorder": IntentWorkOrder,
	"/admin":     IntentAdmin,
	"/health":    IntentAdmin,
	"/help":      IntentHelp,
	"/start":     IntentHelp,
	"/search":    IntentSearch,
	"/run":       IntentShell,
	"/gist":      IntentGist,
	"/project":   IntentProject,
}

// Ordered keyword rules: first match wins, so more specific patterns come
// first. Ambiguous verbs ("repair", "current") are deliberately absent;
// those messages fall through to CHAT where the KB pathway handles them.
var patternRules = []classifierRule{
	// WORK_ORDER when explicitly requested
	{regexp.MustCompile(`(?i)\b(work\s*order|open\s+a?\s*wo\b|create\s+a?\s*wo\b)`), IntentWorkOrder},

	// DIAGRAM
	{regexp.MustCompile(`(?i)\b(wiring|diagram|schematic|blueprint|draw(?:ing)?|circuit|print(?:s)?|redraw|re-draw)\b`), IntentDiagram},
	{regexp.MustCompile(`(?i)\b(update|redo|fix|change|modify|add\s+\w+\s+to)\b.{0,30}\b(print|diagram|drawing|schematic)\b`), IntentDiagram},

	// PROJECT
	{regexp.MustCompile(`(?i)\b(scaffold|build\s+me\b|create\s+a\s+project|start\s+a\s+new|bootstrap|starter\s*kit|boilerplate)\b`), IntentProject},

	// GIST
	{regexp.MustCompile(`(?i)\b(gist|write\s*up|draft\s+a\b|prd\s+for|technical\s+spec|build\s+guide|strategy\s+doc|save\s+.+as\s+gist)\b`), IntentGist},

	// DIAGNOSE: unambiguous fault words first
	{regexp.MustCompile(`(?i)\b(fault|alarm|broken|diagnos)`), IntentDiagnose},
	// "why" only counts with fault context nearby
	{regexp.MustCompile(`(?i)\bwhy\b.{0,30}\b(stopped|fault|error|alarm|broken|down|not\s+(?:working|running|starting))\b`), IntentDiagnose},
	// equipment word near stopped/down, both directions
	{regexp.MustCompile(`(?i)\b(motor|conveyor|equipment|machine|line|plc|vfd|pump|compressor)\b.{0,30}\b(stopped|down|error)\b`), IntentDiagnose},
	{regexp.MustCompile(`(?i)\b(stopped|down|error)\b.{0,30}\b(motor|conveyor|equipment|machine|line|plc|vfd|pump|compressor)\b`), IntentDiagnose},

	// STATUS
	{regexp.MustCompile(`(?i)\b(status|tags?|reading|temp|pressure|running|show\s+(?:me\s+)?io|live\s+io|plc\s+io|io)\b`), IntentStatus},

	// WORK_ORDER: looser forms after DIAGNOSE has had its chance
	{regexp.MustCompile(`(?i)\b(work\s*order|wo|maintenance|schedule)\b`), IntentWorkOrder},

	// ADMIN
	{regexp.MustCompile(`(?i)\b(health|budget|admin|restart|config)\b`), IntentAdmin},

	// HELP
	{regexp.MustCompile(`(?i)^/?(help|commands|menu)$|^what can you\b`), IntentHelp},

	// SEARCH
	{regexp.MustCompile(`(?i)\b(search|look\s*up|find\s+(?:out|info)|google|web\s*search)\b`), IntentSearch},

	// SHELL
	{regexp.MustCompile(`(?i)^\$\s+|^\s*(?:run|execute|shell)\s+`), IntentShell},
}

// Classify assigns an intent to an inbound message using attachment type,
// slash commands, and ordered keyword rules, falling back to CHAT. It is a
// pure function of the message.
func Classify(msg InboundMessage) Intent {
	if msg.HasImage() {
		return IntentPhoto
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return IntentUnknown
	}

	if strings.HasPrefix(text, "/") {
		cmd := strings.ToLower(strings.Fields(text)[0])
		if intent, ok := commandTable[cmd]; ok {
			return intent
		}
	}

	for _, rule := range patternRules {
		if rule.pattern.MatchString(text) {
			return rule.intent
		}
	}

	return IntentChat
}
