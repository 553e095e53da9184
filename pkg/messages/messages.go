package messages

import (
	"time"

	"github.com/google/uuid"
)

// Attachment type constants.
const (
	AttachmentImage    = "image"
	AttachmentAudio    = "audio"
	AttachmentVideo    = "video"
	AttachmentDocument = "document"
)

// Parse mode constants for outbound rendering.
const (
	ParseModeMarkdown = "markdown"
	ParseModePlain    = "plain"
)

// Metadata keys with defined meaning across the dispatch pipeline.
const (
	// MetaHistory carries the formatted conversation transcript injected by
	// the channel adapter before dispatch.
	MetaHistory = "history"

	// MetaModel names the LLM that produced the reply, when one was used.
	MetaModel = "model"

	// MetaLatencyMS is the provider call latency in milliseconds, when an
	// LLM was used.
	MetaLatencyMS = "latency_ms"
)

// Attachment is a binary payload attached to a message. Either Data or URL
// is set; adapters that download eagerly populate Data.
type Attachment struct {
	// Type is one of the Attachment* constants
	Type string `json:"type"`

	// Data is the raw payload bytes (nil when only a URL is known)
	Data []byte `json:"data,omitempty"`

	// URL points at the payload when it was not downloaded
	URL string `json:"url,omitempty"`

	// MIMEType is the payload content type (e.g. "image/jpeg")
	MIMEType string `json:"mime_type,omitempty"`

	// Filename is the suggested name for document-style attachments
	Filename string `json:"filename,omitempty"`
}

// InboundMessage is the normalized form of anything a channel adapter
// receives. Adapters construct one per user message; the dispatcher and
// skills never see channel-specific types.
type InboundMessage struct {
	// ID uniquely identifies this message across the process lifetime
	ID string `json:"id"`

	// Channel is the ingress transport the message arrived on
	Channel Channel `json:"channel"`

	// UserID is the channel-scoped sender identifier
	UserID string `json:"user_id"`

	// UserName is the sender's display name when the channel provides one
	UserName string `json:"user_name,omitempty"`

	// Text is the message body (may be empty for bare attachments)
	Text string `json:"text"`

	// Attachments holds downloaded payloads (photos, voice notes)
	Attachments []Attachment `json:"attachments,omitempty"`

	// Timestamp is the UTC receive time
	Timestamp time.Time `json:"timestamp"`

	// Metadata carries adapter-injected context such as MetaHistory
	Metadata map[string]string `json:"metadata,omitempty"`

	// Intent is the classified intent; IntentUnknown until classification
	Intent Intent `json:"intent"`

	// NodeID optionally scopes the request to one equipment node
	NodeID string `json:"node_id,omitempty"`
}

// NewInbound builds an InboundMessage with a fresh id, UTC timestamp, and
// unknown intent.
func NewInbound(channel Channel, userID, text string) InboundMessage {
	return InboundMessage{
		ID:        uuid.NewString(),
		Channel:   channel,
		UserID:    userID,
		Text:      text,
		Timestamp: time.Now().UTC(),
		Metadata:  map[string]string{},
		Intent:    IntentUnknown,
	}
}

// OutboundMessage is a skill's reply, addressed back to the originating
// channel and user. Adapters chunk and render it.
type OutboundMessage struct {
	// Channel is the transport the reply is delivered on
	Channel Channel `json:"channel"`

	// UserID is the channel-scoped recipient identifier
	UserID string `json:"user_id"`

	// Text is the reply body in Markdown
	Text string `json:"text"`

	// Attachments are sent before the text when present
	Attachments []Attachment `json:"attachments,omitempty"`

	// ParseMode selects Markdown or plain rendering (default Markdown)
	ParseMode string `json:"parse_mode,omitempty"`

	// Metadata carries skill-specific response context
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Reply builds an OutboundMessage addressed to the sender of msg.
func Reply(msg InboundMessage, text string) OutboundMessage {
	return OutboundMessage{
		Channel:   msg.Channel,
		UserID:    msg.UserID,
		Text:      text,
		ParseMode: ParseModeMarkdown,
	}
}

// HasImage reports whether the message carries at least one image attachment.
func (m InboundMessage) HasImage() bool {
	for _, att := range m.Attachments {
		if att.Type == AttachmentImage {
			return true
		}
	}
	return false
}

// Images returns the raw bytes of every downloaded image attachment,
// preserving order.
func (m InboundMessage) Images() [][]byte {
	var imgs [][]byte
	for _, att := range m.Attachments {
		if att.Type == AttachmentImage && len(att.Data) > 0 {
			imgs = append(imgs, att.Data)
		}
	}
	return imgs
}
