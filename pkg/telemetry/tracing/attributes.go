package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys under the foreman.* namespace. Keys follow OpenTelemetry
// semantic-convention shape; the custom keys cover the dispatch pipeline.
const (
	// Dispatch attributes
	AttrIntent  = "foreman.intent"
	AttrChannel = "foreman.channel"
	AttrUser    = "foreman.user"
	AttrSkill   = "foreman.skill"
	AttrNode    = "foreman.node"

	// Provider attributes
	AttrProvider = "foreman.provider"
	AttrModel    = "foreman.model"
	AttrTokens   = "foreman.tokens"

	// Error attributes
	AttrErrorMessage = "error.message"
)

// DispatchAttributes builds the span attributes for one dispatched message.
func DispatchAttributes(intent, channel, user string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrIntent, intent),
		attribute.String(AttrChannel, channel),
		attribute.String(AttrUser, user),
	}
}

// SetSkill records which skill handled the message.
func SetSkill(span trace.Span, skill string) {
	span.SetAttributes(attribute.String(AttrSkill, skill))
}

// SetProviderAttributes records the provider call target on a span.
func SetProviderAttributes(span trace.Span, provider, model string) {
	span.SetAttributes(
		attribute.String(AttrProvider, provider),
		attribute.String(AttrModel, model),
	)
}

// SetResponseAttributes records what came back: the model that answered and
// the tokens it consumed.
func SetResponseAttributes(span trace.Span, model string, tokens int) {
	attrs := []attribute.KeyValue{attribute.String(AttrModel, model)}
	if tokens > 0 {
		attrs = append(attrs, attribute.Int(AttrTokens, tokens))
	}
	span.SetAttributes(attrs...)
}

// SetError marks the span failed and records the error. Nil is a no-op.
func SetError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.SetAttributes(attribute.String(AttrErrorMessage, err.Error()))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetOK marks the span completed successfully.
func SetOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
