// Package dispatch connects channel adapters to skills: it classifies each
// inbound message, selects the skill for its intent, and always produces a
// reply addressed to the sender, even when the skill fails or panics.
package dispatch

import (
	"context"
	"log/slog"
	"runtime/debug"
	"strconv"
	"time"

	"mercator-hq/foreman/pkg/messages"
	"mercator-hq/foreman/pkg/skills"
	"mercator-hq/foreman/pkg/telemetry/metrics"
)

// Reply text for the two dispatch-level failure modes. Skills produce their
// own polite text for expected failures; these cover the cases where no
// skill ran or the skill itself blew up.
const (
	noSkillReply = "No skill available to handle this request."
	errorReply   = "An error occurred processing your request. Please try again."
)

// ErrorHook is called when a skill returns an error or panics, after the
// generic reply has been built. Used to page the ops channel.
type ErrorHook func(intent messages.Intent, err error)

// Dispatcher routes inbound messages to skills. It is safe for concurrent
// use; every channel adapter shares one instance.
type Dispatcher struct {
	registry *skills.Registry
	skillCtx *skills.Context
	metrics  *metrics.Collector
	logger   *slog.Logger

	// OnError, when set, is invoked for every skill error or panic.
	OnError ErrorHook
}

// New creates a dispatcher. A nil collector disables metrics; a nil logger
// uses slog.Default.
func New(registry *skills.Registry, skillCtx *skills.Context, collector *metrics.Collector, logger *slog.Logger) *Dispatcher {
	if skillCtx == nil {
		skillCtx = &skills.Context{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: registry,
		skillCtx: skillCtx,
		metrics:  collector,
		logger:   logger,
	}
}

// Dispatch processes one inbound message and returns the reply. It never
// returns an error: skill errors and panics become a generic apology
// addressed to the same channel and user.
//
// Classification runs only when the adapter left the intent unknown, so
// synthetic messages (the HTTP diagnose endpoint, pipeline-internal intents)
// keep their forced intent.
func (d *Dispatcher) Dispatch(ctx context.Context, msg messages.InboundMessage) messages.OutboundMessage {
	start := time.Now()

	intent := msg.Intent
	if intent == "" || intent == messages.IntentUnknown {
		intent = messages.Classify(msg)
		msg.Intent = intent
	}

	d.logger.Info("dispatching message",
		"id", msg.ID,
		"channel", msg.Channel.String(),
		"user", msg.UserID,
		"intent", intent.String(),
	)

	skill, ok := d.registry.Lookup(intent)
	if !ok {
		// Unhandled intents degrade to conversation rather than a refusal.
		skill, ok = d.registry.Lookup(messages.IntentChat)
	}
	if !ok {
		d.logger.Warn("no skill for intent", "intent", intent.String())
		d.record(intent, messages.OutboundMessage{}, start)
		return messages.Reply(msg, noSkillReply)
	}

	out, err := d.handle(ctx, skill, msg)
	if err != nil {
		d.logger.Error("skill failed",
			"skill", skill.Name(),
			"intent", intent.String(),
			"user", msg.UserID,
			"error", err,
		)
		if d.OnError != nil {
			d.OnError(intent, err)
		}
		d.record(intent, messages.OutboundMessage{}, start)
		return messages.Reply(msg, errorReply)
	}

	d.record(intent, out, start)
	return out
}

// handle invokes one skill, converting a panic into an error so a buggy
// skill cannot take the adapter's receive loop down.
func (d *Dispatcher) handle(ctx context.Context, skill skills.Skill, msg messages.InboundMessage) (out messages.OutboundMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("skill panic",
				"skill", skill.Name(),
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = &PanicError{Skill: skill.Name(), Value: r}
		}
	}()
	return skill.Handle(ctx, msg, d.skillCtx)
}

// record updates the traffic metrics for one dispatched message. The
// provider label comes from the reply metadata when a model answered.
func (d *Dispatcher) record(intent messages.Intent, out messages.OutboundMessage, start time.Time) {
	if d.metrics == nil {
		return
	}
	d.metrics.RecordRequest(intent.String(), out.Metadata[messages.MetaModel], time.Since(start))
}

// Model extracts the model name stamped on a reply, or empty when no LLM
// was involved.
func Model(out messages.OutboundMessage) string {
	return out.Metadata[messages.MetaModel]
}

// LatencyMS extracts the provider latency stamped on a reply, or zero.
func LatencyMS(out messages.OutboundMessage) int64 {
	ms, err := strconv.ParseInt(out.Metadata[messages.MetaLatencyMS], 10, 64)
	if err != nil {
		return 0
	}
	return ms
}
