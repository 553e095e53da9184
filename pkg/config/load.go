package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// knownProviders are the provider names the gateway can construct. Used both
// for validation and for the per-provider API key env overrides.
var knownProviders = []string{
	"groq", "openai", "openrouter", "nvidia",
	"deepseek", "perplexity", "anthropic", "gemini",
}

// Load reads and parses a YAML configuration file, applies defaults and
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses YAML configuration bytes, applies defaults and environment
// overrides, and validates the result.
func Parse(data []byte) (*Config, error) {
	// Unmarshal over a fully defaulted value so absent keys keep their
	// defaults while explicit false/zero values from the file still win.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	ApplyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides lets secrets live in the environment instead of the
// config file. Each override replaces the file value only when set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FOREMAN_SERVER_LISTEN_ADDRESS"); v != "" {
		cfg.Server.ListenAddress = v
	}
	if v := os.Getenv("FOREMAN_TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Channels.Telegram.BotToken = v
	}
	if v := os.Getenv("FOREMAN_CONNECTORS_KNOWLEDGE_URL"); v != "" {
		cfg.Connectors.Knowledge.URL = v
	}
	if v := os.Getenv("FOREMAN_CONNECTORS_CMMS_EMAIL"); v != "" {
		cfg.Connectors.CMMS.Email = v
	}
	if v := os.Getenv("FOREMAN_CONNECTORS_CMMS_PASSWORD"); v != "" {
		cfg.Connectors.CMMS.Password = v
	}
	if v := os.Getenv("FOREMAN_CONNECTORS_GIST_TOKEN"); v != "" {
		cfg.Connectors.Gist.Token = v
	}
	if v := os.Getenv("FOREMAN_NOTIFY_SLACK_TOKEN"); v != "" {
		cfg.Notify.SlackToken = v
	}
	if v := os.Getenv("FOREMAN_TELEMETRY_LOGGING_LEVEL"); v != "" {
		cfg.Telemetry.Logging.Level = v
	}

	for _, name := range knownProviders {
		key := "FOREMAN_PROVIDERS_" + strings.ToUpper(name) + "_API_KEY"
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		if cfg.Providers == nil {
			cfg.Providers = make(map[string]ProviderConfig)
		}
		pc := cfg.Providers[name]
		pc.APIKey = v
		cfg.Providers[name] = pc
	}
}
