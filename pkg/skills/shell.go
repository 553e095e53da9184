package skills

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"mercator-hq/foreman/pkg/connectors"
	"mercator-hq/foreman/pkg/messages"
)

// shellHostRe extracts an @host target from the command text. The alias is
// only honored when it names a configured host, so stray @words stay part of
// the command.
var shellHostRe = regexp.MustCompile(`(?i)@([a-z][a-z0-9_-]*)\s+`)

// ShellSkill executes commands on connected machines through the jarvis
// agents. Gated to the allow-list.
type ShellSkill struct{}

// NewShellSkill returns the shell skill.
func NewShellSkill() *ShellSkill { return &ShellSkill{} }

func (s *ShellSkill) Name() string { return "shell" }

func (s *ShellSkill) Description() string {
	return "Execute shell commands on connected machines"
}

func (s *ShellSkill) Intents() []messages.Intent {
	return []messages.Intent{messages.IntentShell}
}

func (s *ShellSkill) Handle(ctx context.Context, msg messages.InboundMessage, sc *Context) (messages.OutboundMessage, error) {
	if !sc.userAllowed(msg.UserID) {
		return messages.Reply(msg, "Shell access is restricted to admin users."), nil
	}

	text := strings.TrimSpace(msg.Text)
	if strings.HasPrefix(strings.ToLower(text), "/run") {
		text = strings.TrimSpace(text[4:])
	}
	if strings.HasPrefix(text, "$") {
		text = strings.TrimSpace(text[1:])
	}

	var host string
	if sc.Shell != nil {
		host, text = extractShellHost(text, sc.Shell.Hosts())
	}

	if text == "" {
		return messages.Reply(msg, "Usage: `$ <command>` or `/run <command>`\nTarget a host: `$ @plc ls /home`"), nil
	}
	if sc.Shell == nil {
		return messages.Reply(msg, "No jarvis hosts configured. Check `jarvis_hosts` in foreman.yaml."), nil
	}

	result, err := sc.Shell.Execute(ctx, text, host, 0)
	if err != nil {
		slog.Error("shell execution failed", "command", truncate(text, 120), "error", err)
		return messages.Reply(msg, fmt.Sprintf("Shell error: `%v`", err)), nil
	}

	reply := formatShellResult(result)
	if host != "" {
		reply = fmt.Sprintf("**@%s**\n%s", host, reply)
	}
	return messages.Reply(msg, reply), nil
}

// extractShellHost strips the first @host token that names a configured
// host and returns its canonical spelling with the remaining command.
func extractShellHost(text string, hosts []string) (string, string) {
	match := shellHostRe.FindStringSubmatchIndex(text)
	if match == nil {
		return "", text
	}
	alias := strings.ToLower(text[match[2]:match[3]])
	for _, h := range hosts {
		if strings.ToLower(h) == alias {
			rest := strings.TrimSpace(text[:match[0]] + text[match[1]:])
			return h, rest
		}
	}
	return "", text
}

func formatShellResult(result *connectors.ShellResult) string {
	var parts []string
	if out := strings.TrimRight(result.Stdout, " \t\r\n"); out != "" {
		parts = append(parts, fmt.Sprintf("```\n%s\n```", out))
	}
	if errOut := strings.TrimRight(result.Stderr, " \t\r\n"); errOut != "" {
		parts = append(parts, fmt.Sprintf("**stderr:**\n```\n%s\n```", errOut))
	}
	if code := result.Code(); code != nil && *code != 0 {
		parts = append(parts, fmt.Sprintf("Exit code: %d", *code))
	}
	if len(parts) == 0 {
		return "_Command completed with no output._"
	}
	return strings.Join(parts, "\n")
}
