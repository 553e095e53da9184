package skills

import (
	"context"
	"errors"
	"strings"
	"testing"

	"mercator-hq/foreman/pkg/connectors"
	"mercator-hq/foreman/pkg/messages"
)

func intPtr(n int) *int { return &n }

// ============================================================================
// ShellSkill
// ============================================================================

func TestShell_DeniedOffAllowList(t *testing.T) {
	sc := &Context{
		AllowedUsers: []string{"boss"},
		Shell:        &stubShell{hosts: []string{"plc"}},
	}
	out, err := NewShellSkill().Handle(context.Background(),
		inbound("intruder", "$ rm -rf /", messages.IntentShell), sc)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if out.Text != "Shell access is restricted to admin users." {
		t.Errorf("Expected denial, got %q", out.Text)
	}
}

func TestShell_Usage(t *testing.T) {
	sc := &Context{Shell: &stubShell{hosts: []string{"plc"}}}
	out, err := NewShellSkill().Handle(context.Background(),
		inbound("u1", "/run", messages.IntentShell), sc)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !strings.HasPrefix(out.Text, "Usage: `$ <command>`") {
		t.Errorf("Expected usage reply, got %q", out.Text)
	}
}

func TestShell_NoHostsConfigured(t *testing.T) {
	sc := &Context{}
	out, err := NewShellSkill().Handle(context.Background(),
		inbound("u1", "$ uptime", messages.IntentShell), sc)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !strings.Contains(out.Text, "No jarvis hosts configured") {
		t.Errorf("Expected no-hosts reply, got %q", out.Text)
	}
}

func TestShell_ExecutesAndFormats(t *testing.T) {
	shell := &stubShell{
		hosts:  []string{"plc", "travel"},
		result: &connectors.ShellResult{Stdout: "up 3 days\n"},
	}
	sc := &Context{Shell: shell}

	out, err := NewShellSkill().Handle(context.Background(),
		inbound("u1", "/run uptime", messages.IntentShell), sc)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if shell.lastCommand != "uptime" {
		t.Errorf("Expected command uptime, got %q", shell.lastCommand)
	}
	if shell.lastHost != "" {
		t.Errorf("Expected no host target, got %q", shell.lastHost)
	}
	if out.Text != "```\nup 3 days\n```" {
		t.Errorf("Expected fenced stdout, got %q", out.Text)
	}
}

func TestShell_HostTarget(t *testing.T) {
	shell := &stubShell{
		hosts:  []string{"PLC", "travel"},
		result: &connectors.ShellResult{Stdout: "ok"},
	}
	sc := &Context{Shell: shell}

	out, err := NewShellSkill().Handle(context.Background(),
		inbound("u1", "$ @plc ls /home", messages.IntentShell), sc)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	// The alias resolves case-insensitively to the configured spelling.
	if shell.lastHost != "PLC" {
		t.Errorf("Expected canonical host PLC, got %q", shell.lastHost)
	}
	if shell.lastCommand != "ls /home" {
		t.Errorf("Expected host stripped from command, got %q", shell.lastCommand)
	}
	if !strings.HasPrefix(out.Text, "**@PLC**\n") {
		t.Errorf("Expected host banner, got %q", out.Text)
	}
}

func TestShell_UnknownAtWordStaysInCommand(t *testing.T) {
	shell := &stubShell{
		hosts:  []string{"plc"},
		result: &connectors.ShellResult{Stdout: "sent"},
	}
	sc := &Context{Shell: shell}

	if _, err := NewShellSkill().Handle(context.Background(),
		inbound("u1", "$ notify @dana about the outage", messages.IntentShell), sc); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if shell.lastHost != "" {
		t.Errorf("Expected no host from an unknown alias, got %q", shell.lastHost)
	}
	if shell.lastCommand != "notify @dana about the outage" {
		t.Errorf("Expected @word kept in command, got %q", shell.lastCommand)
	}
}

func TestShell_ExecutionError(t *testing.T) {
	shell := &stubShell{hosts: []string{"plc"}, err: errors.New("connection refused")}
	sc := &Context{Shell: shell}

	out, err := NewShellSkill().Handle(context.Background(),
		inbound("u1", "$ uptime", messages.IntentShell), sc)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if out.Text != "Shell error: `connection refused`" {
		t.Errorf("Expected shell error reply, got %q", out.Text)
	}
}

func TestFormatShellResult(t *testing.T) {
	tests := []struct {
		name   string
		result *connectors.ShellResult
		want   string
	}{
		{
			name:   "stdout only",
			result: &connectors.ShellResult{Stdout: "hello\n"},
			want:   "```\nhello\n```",
		},
		{
			name:   "stderr and exit code",
			result: &connectors.ShellResult{Stderr: "not found", ExitCode: intPtr(127)},
			want:   "**stderr:**\n```\nnot found\n```\nExit code: 127",
		},
		{
			name:   "zero exit code suppressed",
			result: &connectors.ShellResult{Stdout: "done", ExitCode: intPtr(0)},
			want:   "```\ndone\n```",
		},
		{
			name:   "returncode fallback",
			result: &connectors.ShellResult{ReturnCode: intPtr(2)},
			want:   "Exit code: 2",
		},
		{
			name:   "no output",
			result: &connectors.ShellResult{},
			want:   "_Command completed with no output._",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatShellResult(tt.result); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}
