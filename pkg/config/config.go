package config

import "time"

// Config is the root configuration for the Foreman gateway. It covers the
// HTTP server, ingress channels, LLM providers and routing, the non-LLM
// connectors, skills, the enrichment pipeline, and telemetry.
type Config struct {
	// Server contains HTTP server configuration: bind address, timeouts,
	// and CORS settings for the REST API.
	Server ServerConfig `yaml:"server"`

	// Channels contains per-channel ingress configuration.
	Channels ChannelsConfig `yaml:"channels"`

	// Providers contains one entry per LLM provider, keyed by provider
	// name (groq, openai, openrouter, nvidia, deepseek, perplexity,
	// anthropic, gemini). A provider is constructed only when its entry
	// carries an API key.
	Providers map[string]ProviderConfig `yaml:"providers"`

	// Routes overrides the built-in intent routing table. Keys are intent
	// names; absent intents keep their default route.
	Routes map[string]RouteConfig `yaml:"routes"`

	// Connectors contains configuration for the non-LLM services.
	Connectors ConnectorsConfig `yaml:"connectors"`

	// Skills contains skill gating and workspace configuration.
	Skills SkillsConfig `yaml:"skills"`

	// Conversation bounds the per-user history ring.
	Conversation ConversationConfig `yaml:"conversation"`

	// Enrich configures the photo enrichment pipeline's spool watcher.
	Enrich EnrichConfig `yaml:"enrich"`

	// Notify configures the Slack ops notifier.
	Notify NotifyConfig `yaml:"notify"`

	// Telemetry contains logging and tracing configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP API server.
type ServerConfig struct {
	// ListenAddress is the address and port to bind.
	// Default: "0.0.0.0:8340"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading a request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing a response. It must
	// leave room for a full LLM fallback chain.
	// Default: 120s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle limit.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// RequestTimeout bounds one dispatched request end to end.
	// Default: 90s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// ShutdownTimeout is the maximum wait for graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits request header size.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// CORS contains Cross-Origin Resource Sharing settings.
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig contains CORS settings for the HTTP API.
type CORSConfig struct {
	// Enabled controls whether CORS headers are emitted.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins lists allowed origins; ["*"] allows all.
	// Default: ["*"]
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods lists allowed HTTP methods.
	// Default: ["GET", "POST", "OPTIONS"]
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders lists allowed request headers.
	// Default: ["Authorization", "Content-Type", "X-Request-ID"]
	AllowedHeaders []string `yaml:"allowed_headers"`

	// MaxAge is the preflight cache lifetime in seconds.
	// Default: 3600
	MaxAge int `yaml:"max_age"`
}

// ChannelsConfig contains per-channel ingress configuration.
type ChannelsConfig struct {
	// Telegram configures the long-polling Telegram adapter.
	Telegram TelegramConfig `yaml:"telegram"`

	// WhatsApp configures the WhatsApp bridge adapter.
	WhatsApp WhatsAppConfig `yaml:"whatsapp"`

	// HTTPAPI enables the REST message endpoints.
	// Default: true
	HTTPAPI ToggleConfig `yaml:"http_api"`

	// WebSocket enables the WebSocket endpoint.
	// Default: false
	WebSocket ToggleConfig `yaml:"websocket"`
}

// ToggleConfig is a bare enable flag for channels without further settings.
type ToggleConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TelegramConfig configures the Telegram channel adapter.
type TelegramConfig struct {
	// Enabled starts the adapter when a bot token is present.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// BotToken is the Telegram bot API token. Empty disables the adapter
	// regardless of Enabled. Override: FOREMAN_TELEGRAM_BOT_TOKEN.
	BotToken string `yaml:"bot_token"`

	// AllowedUsers lists Telegram user ids permitted to talk to the bot.
	// Empty allows everyone.
	AllowedUsers []string `yaml:"allowed_users"`

	// RateLimitPerHour caps accepted messages per user per hour.
	// Default: 60
	RateLimitPerHour int `yaml:"rate_limit_per_hour"`
}

// WhatsAppConfig configures the WhatsApp bridge adapter.
type WhatsAppConfig struct {
	// Enabled starts the adapter.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// GatewayURL is the bridge gateway base URL.
	// Default: "http://localhost:18789"
	GatewayURL string `yaml:"gateway_url"`
}

// ProviderConfig contains configuration for one LLM provider.
type ProviderConfig struct {
	// APIKey authenticates against the provider. Empty means the provider
	// is not constructed. Override: FOREMAN_PROVIDERS_<NAME>_API_KEY.
	APIKey string `yaml:"api_key"`

	// Model overrides the provider's default model.
	Model string `yaml:"model"`

	// FallbackModel is the model used after a permanent failure on the
	// primary model (nvidia only).
	FallbackModel string `yaml:"fallback_model"`

	// DailyRequestLimit caps requests per calendar day. 0 = unlimited.
	DailyRequestLimit int `yaml:"daily_request_limit"`

	// DailyTokenLimit caps tokens per calendar day. 0 = unlimited.
	DailyTokenLimit int `yaml:"daily_token_limit"`
}

// RouteConfig overrides the routing table entry for one intent.
type RouteConfig struct {
	// Primary is the provider tried first.
	Primary string `yaml:"primary"`

	// Fallbacks are tried in order after the primary.
	Fallbacks []string `yaml:"fallbacks"`
}

// ConnectorsConfig contains configuration for the non-LLM services.
type ConnectorsConfig struct {
	// Knowledge configures the KB atom store.
	Knowledge KnowledgeConfig `yaml:"knowledge"`

	// Matrix is the telemetry matrix API base URL. Empty disables it.
	Matrix MatrixConfig `yaml:"matrix"`

	// PLC configures the direct Modbus telemetry backend. An empty host
	// disables it; when both matrix and PLC are configured, matrix wins.
	PLC PLCConfig `yaml:"plc"`

	// CMMS configures the maintenance management system client.
	CMMS CMMSConfig `yaml:"cmms"`

	// Jarvis maps remote shell host labels to base URLs.
	Jarvis JarvisConfig `yaml:"jarvis"`

	// Ollama configures the offline maintenance LLM.
	Ollama OllamaConfig `yaml:"ollama"`

	// Gist configures the GitHub gist publisher.
	Gist GistConfig `yaml:"gist"`

	// NodeID is the default telemetry node queried when a message does
	// not name one.
	NodeID string `yaml:"node_id"`
}

// KnowledgeConfig selects and configures the KB store backend.
type KnowledgeConfig struct {
	// Backend is "postgres", "sqlite", or "memory".
	// Default: "memory"
	Backend string `yaml:"backend"`

	// URL is the postgres connection string (postgres backend).
	// Override: FOREMAN_CONNECTORS_KNOWLEDGE_URL.
	URL string `yaml:"url"`

	// Path is the database file path (sqlite backend).
	// Default: "data/knowledge.db"
	Path string `yaml:"path"`
}

// MatrixConfig configures the telemetry matrix API client.
type MatrixConfig struct {
	// URL is the matrix base URL. Empty disables the connector.
	URL string `yaml:"url"`
}

// PLCConfig configures the direct Modbus TCP telemetry backend.
type PLCConfig struct {
	// Host is the PLC address. Empty disables the connector.
	Host string `yaml:"host"`

	// Port is the Modbus TCP port.
	// Default: 502
	Port int `yaml:"port"`
}

// CMMSConfig configures the maintenance management system client.
type CMMSConfig struct {
	// URL is the CMMS base URL. Empty disables the connector.
	URL string `yaml:"url"`

	// Email and Password are the signin credentials.
	// Overrides: FOREMAN_CONNECTORS_CMMS_EMAIL / _PASSWORD.
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// JarvisConfig configures the remote shell connector.
type JarvisConfig struct {
	// Hosts maps host labels (plc, travel) to agent base URLs. Empty
	// disables the connector.
	Hosts map[string]string `yaml:"hosts"`
}

// OllamaConfig configures the offline maintenance LLM.
type OllamaConfig struct {
	// Enabled turns the offline fallback on.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// URL is the Ollama base URL.
	// Default: "http://localhost:11434"
	URL string `yaml:"url"`

	// Model is the local model name.
	Model string `yaml:"model"`
}

// GistConfig configures the gist publisher.
type GistConfig struct {
	// Token is the GitHub access token. Empty disables publishing.
	// Override: FOREMAN_CONNECTORS_GIST_TOKEN.
	Token string `yaml:"token"`
}

// SkillsConfig contains skill gating and workspace configuration.
type SkillsConfig struct {
	// Disabled lists skill names that are not registered at startup.
	Disabled []string `yaml:"disabled"`

	// AllowedUsers gates the shell, gist, and project skills. Empty
	// allows everyone.
	AllowedUsers []string `yaml:"allowed_users"`

	// ProjectsDir is where project scaffolds are checked out locally.
	// Empty skips the local checkout.
	ProjectsDir string `yaml:"projects_dir"`

	// ArchivePath is the sqlite file holding the work-order counter and
	// issued-document log.
	// Default: "data/workorders.db"
	ArchivePath string `yaml:"archive_path"`
}

// ConversationConfig bounds the per-user history ring.
type ConversationConfig struct {
	// MaxEntries is the per-user entry cap.
	// Default: 20
	MaxEntries int `yaml:"max_entries"`

	// TTL is the entry lifetime.
	// Default: 1h
	TTL time.Duration `yaml:"ttl"`
}

// EnrichConfig configures the photo enrichment spool.
type EnrichConfig struct {
	// SpoolDir is a directory watched for dropped photos; each new file
	// is enriched automatically. Empty disables the watcher.
	SpoolDir string `yaml:"spool_dir"`

	// Debounce is the quiet period before a spooled photo is processed,
	// so half-copied files are not read.
	// Default: 2s
	Debounce time.Duration `yaml:"debounce"`
}

// NotifyConfig configures the Slack ops notifier.
type NotifyConfig struct {
	// SlackToken is the bot token. Empty disables notifications.
	// Override: FOREMAN_NOTIFY_SLACK_TOKEN.
	SlackToken string `yaml:"slack_token"`

	// SlackChannel is the channel id or name receiving ops messages.
	SlackChannel string `yaml:"slack_channel"`
}

// TelemetryConfig contains logging and tracing configuration.
type TelemetryConfig struct {
	// Logging contains structured logging settings.
	Logging LoggingConfig `yaml:"logging"`

	// Tracing contains distributed tracing settings.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains structured logging settings.
type LoggingConfig struct {
	// Level is the minimum level: "debug", "info", "warn", "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file:line in every record.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// TracingConfig contains distributed tracing settings.
type TracingConfig struct {
	// Enabled turns OTLP trace export on.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service name stamped on spans.
	// Default: "foreman"
	ServiceName string `yaml:"service_name"`

	// SampleRatio is the fraction of traces sampled (0.0 to 1.0).
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// Insecure disables TLS toward the collector.
	// Default: true
	Insecure bool `yaml:"insecure"`
}
