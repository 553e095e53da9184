// Package gateway holds the channel adapters: the transports technicians
// reach the assistant through. Each adapter normalizes its channel's
// messages into the shared inbound form, hands them to the dispatcher, and
// renders the reply back in channel-native form (chunked, Markdown where
// the channel supports it).
package gateway

import (
	"context"

	"mercator-hq/foreman/pkg/messages"
)

// Dispatcher processes one normalized inbound message into a reply. The
// dispatch core satisfies it; tests substitute stubs.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg messages.InboundMessage) messages.OutboundMessage
}

// ChannelAdapter is one ingress transport. Start blocks until the adapter's
// receive loop exits; Stop makes it exit. Send delivers an out-of-band
// message outside the normal request/reply flow.
type ChannelAdapter interface {
	// Name returns the channel identifier.
	Name() string

	// Start runs the receive loop until Stop is called or the context is
	// cancelled.
	Start(ctx context.Context) error

	// Stop terminates the receive loop.
	Stop()

	// Send delivers a message to a user on this channel.
	Send(ctx context.Context, msg messages.OutboundMessage) error
}
