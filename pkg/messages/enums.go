package messages

// Intent identifies what a technician is asking for. The classifier assigns
// one intent per inbound message; the dispatcher uses it to select a skill.
type Intent string

const (
	IntentDiagnose  Intent = "diagnose"
	IntentStatus    Intent = "status"
	IntentPhoto     Intent = "photo"
	IntentWorkOrder Intent = "work_order"
	IntentChat      Intent = "chat"
	IntentAdmin     Intent = "admin"
	IntentHelp      Intent = "help"
	IntentSearch    Intent = "search"
	IntentShell     Intent = "shell"
	IntentDiagram   Intent = "diagram"
	IntentGist      Intent = "gist"
	IntentProject   Intent = "project"
	IntentUnknown   Intent = "unknown"

	// Pipeline-internal intents. Never produced by the classifier; used to
	// route synthetic messages from the enrichment pipeline.
	IntentWiringReconstruct Intent = "wiring_reconstruct"
	IntentKBEnrich          Intent = "kb_enrich"
)

// String returns the wire value of the intent.
func (i Intent) String() string {
	return string(i)
}

// Channel identifies the ingress transport a message arrived on.
type Channel string

const (
	ChannelTelegram  Channel = "telegram"
	ChannelWhatsApp  Channel = "whatsapp"
	ChannelHTTPAPI   Channel = "http_api"
	ChannelWebSocket Channel = "websocket"
)

// String returns the wire value of the channel.
func (c Channel) String() string {
	return string(c)
}
