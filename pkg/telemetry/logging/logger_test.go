package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

// ============================================================================
// Logger construction
// ============================================================================

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{name: "json format", opts: Options{Level: "info", Format: "json"}},
		{name: "text format", opts: Options{Level: "debug", Format: "text"}},
		{name: "defaults", opts: Options{}},
		{name: "bad level", opts: Options{Level: "verbose"}, wantErr: true},
		{name: "bad format", opts: Options{Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.opts)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if logger == nil {
				t.Fatal("Expected non-nil logger")
			}
		})
	}
}

func TestNew_WritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Info("message handled", "intent", "diagnose", "latency_ms", 42)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("Output is not JSON: %v\n%s", err, buf.String())
	}
	if record["msg"] != "message handled" {
		t.Errorf("Expected msg %q, got %v", "message handled", record["msg"])
	}
	if record["intent"] != "diagnose" {
		t.Errorf("Expected intent %q, got %v", "diagnose", record["intent"])
	}
	if record["latency_ms"] != float64(42) {
		t.Errorf("Expected latency_ms 42, got %v", record["latency_ms"])
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "warn", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Debug("quiet")
	logger.Info("still quiet")
	logger.Warn("loud")

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Errorf("Expected debug/info records filtered, got %s", out)
	}
	if !strings.Contains(out, "loud") {
		t.Errorf("Expected warn record present, got %s", out)
	}
}

func TestSetup_InstallsDefault(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	if _, err := Setup(Options{Format: "json", Writer: &buf}); err != nil {
		t.Fatalf("Setup: %v", err)
	}

	Component("dispatch").Info("hello")

	out := buf.String()
	if !strings.Contains(out, `"component":"dispatch"`) {
		t.Errorf("Expected component field in output, got %s", out)
	}
	if !strings.Contains(out, `"msg":"hello"`) {
		t.Errorf("Expected message in output, got %s", out)
	}
}

// ============================================================================
// Level parsing
// ============================================================================

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "info", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
		{in: "WARN", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: " info ", want: slog.LevelInfo},
		{in: "trace", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseLevel(%q): expected error, got nil", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseLevel(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
