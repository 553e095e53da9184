package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "0.0.0.0:8340"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 120 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultRequestTimeout  = 90 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1 << 20

	// CORS defaults
	DefaultCORSMaxAge = 3600

	// Channel defaults
	DefaultRateLimitPerHour = 60
	DefaultWhatsAppGateway  = "http://localhost:18789"

	// Connector defaults
	DefaultKnowledgeBackend = "memory"
	DefaultKnowledgePath    = "data/knowledge.db"
	DefaultPLCPort          = 502
	DefaultOllamaURL        = "http://localhost:11434"

	// Skill defaults
	DefaultArchivePath = "data/workorders.db"

	// Conversation defaults
	DefaultConversationEntries = 20
	DefaultConversationTTL     = time.Hour

	// Enrichment defaults
	DefaultEnrichDebounce = 2 * time.Second

	// Telemetry defaults
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "json"
	DefaultTracingEndpoint    = "localhost:4317"
	DefaultTracingServiceName = "foreman"
	DefaultTracingSampleRatio = 0.1
)

// DefaultConfig returns a Config with every default applied, including the
// booleans that default to true. Load unmarshals YAML over this value, so a
// key absent from the file keeps its default while an explicit
// "enabled: false" still wins.
func DefaultConfig() Config {
	cfg := Config{
		Channels: ChannelsConfig{
			Telegram: TelegramConfig{Enabled: true},
			HTTPAPI:  ToggleConfig{Enabled: true},
		},
		Server: ServerConfig{
			CORS: CORSConfig{Enabled: true},
		},
		Telemetry: TelemetryConfig{
			Tracing: TracingConfig{Insecure: true},
		},
	}
	ApplyDefaults(&cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with defaults. It does not touch
// booleans (DefaultConfig carries those) and is idempotent.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}

	if len(cfg.Server.CORS.AllowedOrigins) == 0 {
		cfg.Server.CORS.AllowedOrigins = []string{"*"}
	}
	if len(cfg.Server.CORS.AllowedMethods) == 0 {
		cfg.Server.CORS.AllowedMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cfg.Server.CORS.AllowedHeaders) == 0 {
		cfg.Server.CORS.AllowedHeaders = []string{"Authorization", "Content-Type", "X-Request-ID"}
	}
	if cfg.Server.CORS.MaxAge == 0 {
		cfg.Server.CORS.MaxAge = DefaultCORSMaxAge
	}

	if cfg.Channels.Telegram.RateLimitPerHour == 0 {
		cfg.Channels.Telegram.RateLimitPerHour = DefaultRateLimitPerHour
	}
	if cfg.Channels.WhatsApp.GatewayURL == "" {
		cfg.Channels.WhatsApp.GatewayURL = DefaultWhatsAppGateway
	}

	if cfg.Connectors.Knowledge.Backend == "" {
		cfg.Connectors.Knowledge.Backend = DefaultKnowledgeBackend
	}
	if cfg.Connectors.Knowledge.Path == "" {
		cfg.Connectors.Knowledge.Path = DefaultKnowledgePath
	}
	if cfg.Connectors.PLC.Port == 0 {
		cfg.Connectors.PLC.Port = DefaultPLCPort
	}
	if cfg.Connectors.Ollama.URL == "" {
		cfg.Connectors.Ollama.URL = DefaultOllamaURL
	}

	if cfg.Skills.ArchivePath == "" {
		cfg.Skills.ArchivePath = DefaultArchivePath
	}

	if cfg.Conversation.MaxEntries == 0 {
		cfg.Conversation.MaxEntries = DefaultConversationEntries
	}
	if cfg.Conversation.TTL == 0 {
		cfg.Conversation.TTL = DefaultConversationTTL
	}

	if cfg.Enrich.Debounce == 0 {
		cfg.Enrich.Debounce = DefaultEnrichDebounce
	}

	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLogLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLogFormat
	}
	if cfg.Telemetry.Tracing.Endpoint == "" {
		cfg.Telemetry.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingServiceName
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
}
