// Package notify pushes operational events to a Slack channel: provider
// circuits opening, budgets nearing their cap, and dispatch failures. It is
// strictly best-effort; a down Slack never affects request handling.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/slack-go/slack"
)

// slackClient is the slice of the Slack API the notifier uses; satisfied by
// *slack.Client and by test doubles.
type slackClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// Notifier posts ops messages to one Slack channel. A nil *Notifier is
// valid and silently drops everything, so callers never nil-check.
type Notifier struct {
	client  slackClient
	channel string
	logger  *slog.Logger
}

// New creates a notifier. Returns nil when the token or channel is empty;
// notification is an optional feature.
func New(token, channel string, logger *slog.Logger) *Notifier {
	if token == "" || channel == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		client:  slack.New(token),
		channel: channel,
		logger:  logger,
	}
}

// CircuitOpen reports a provider circuit tripping open.
func (n *Notifier) CircuitOpen(ctx context.Context, provider string, failures int) {
	n.post(ctx, circuitOpenText(provider, failures))
}

func circuitOpenText(provider string, failures int) string {
	return fmt.Sprintf(":red_circle: Provider `%s` circuit opened after %d consecutive failures. Traffic is falling through to the next provider in the chain.", provider, failures)
}

// CircuitClosed reports a provider circuit recovering.
func (n *Notifier) CircuitClosed(ctx context.Context, provider string) {
	n.post(ctx, fmt.Sprintf(":large_green_circle: Provider `%s` circuit closed, traffic restored.", provider))
}

// BudgetWarning reports a provider near its daily budget.
func (n *Notifier) BudgetWarning(ctx context.Context, provider string, usedPct int) {
	n.post(ctx, fmt.Sprintf(":warning: Provider `%s` is at %d%% of its daily budget.", provider, usedPct))
}

// BudgetExhausted reports a provider over its daily budget.
func (n *Notifier) BudgetExhausted(ctx context.Context, provider string) {
	n.post(ctx, fmt.Sprintf(":no_entry: Provider `%s` exhausted its daily budget and is skipped until midnight UTC.", provider))
}

// DispatchFailure reports a skill error or panic that reached the user as a
// generic apology.
func (n *Notifier) DispatchFailure(ctx context.Context, intent string, err error) {
	n.post(ctx, fmt.Sprintf(":rotating_light: Dispatch failure on intent `%s`: %v", intent, err))
}

// post delivers one message, logging delivery failures and nothing else.
func (n *Notifier) post(ctx context.Context, text string) {
	if n == nil {
		return
	}
	_, _, err := n.client.PostMessageContext(ctx, n.channel, slack.MsgOptionText(text, false))
	if err != nil {
		n.logger.Warn("failed to post slack notification", "error", err)
	}
}
