package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestTextFormatter(t *testing.T) {
	f := &TextFormatter{}

	out, err := f.Format("hello")
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	if string(out) != "hello\n" {
		t.Errorf("Expected 'hello\\n', got %q", out)
	}

	var buf bytes.Buffer
	if err := f.FormatTo(&buf, 42); err != nil {
		t.Fatalf("FormatTo failed: %v", err)
	}
	if buf.String() != "42\n" {
		t.Errorf("Expected '42\\n', got %q", buf.String())
	}
}

func TestJSONFormatter(t *testing.T) {
	f := &JSONFormatter{Indent: true}
	data := map[string]string{"intent": "diagnose", "primary": "groq"}

	out, err := f.Format(data)
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}

	var parsed map[string]string
	if err := json.Unmarshal(out, &parsed); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}
	if parsed["intent"] != "diagnose" {
		t.Errorf("Expected diagnose, got %s", parsed["intent"])
	}
	if !strings.Contains(string(out), "\n") {
		t.Error("Expected indented output")
	}
}

func TestJSONFormatterCompact(t *testing.T) {
	f := &JSONFormatter{Indent: false}
	out, err := f.Format(map[string]int{"a": 1})
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	if strings.Contains(strings.TrimSpace(string(out)), "\n") {
		t.Error("Expected compact output")
	}
}

func TestNewFormatter(t *testing.T) {
	if _, ok := NewFormatter(FormatJSON).(*JSONFormatter); !ok {
		t.Error("Expected JSONFormatter for json")
	}
	if _, ok := NewFormatter(FormatText).(*TextFormatter); !ok {
		t.Error("Expected TextFormatter for text")
	}
	if _, ok := NewFormatter("bogus").(*TextFormatter); !ok {
		t.Error("Expected TextFormatter fallback for unknown format")
	}
}
