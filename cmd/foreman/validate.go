package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"mercator-hq/foreman/pkg/cli"
	"mercator-hq/foreman/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load and validate a configuration file without starting the gateway.

The validate command parses the YAML, applies defaults and environment
overrides, and runs the same checks the run command performs at startup:
  - Listen address and timeout sanity
  - Known provider names and routing table references
  - Knowledge backend selection and connection settings
  - Logging and tracing settings

Examples:
  # Validate the default config
  foreman validate

  # Validate a specific file
  foreman validate --config /etc/foreman/config.yaml`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			return cli.NewConfigError(verr.Field, verr.Message)
		}
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}

	fmt.Printf("✓ Configuration valid: %s\n", cfgFile)
	fmt.Println()

	providerNames := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		providerNames = append(providerNames, name)
	}
	sort.Strings(providerNames)

	fmt.Printf("Server:     %s\n", cfg.Server.ListenAddress)
	fmt.Printf("Providers:  %d configured\n", len(providerNames))
	for _, name := range providerNames {
		pc := cfg.Providers[name]
		keyState := "no key"
		if pc.APIKey != "" {
			keyState = "key set"
		}
		fmt.Printf("  - %s (%s)\n", name, keyState)
	}
	fmt.Printf("Routes:     %d overrides\n", len(cfg.Routes))
	fmt.Printf("Knowledge:  %s\n", cfg.Connectors.Knowledge.Backend)

	channels := make([]string, 0, 3)
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.BotToken != "" {
		channels = append(channels, "telegram")
	}
	if cfg.Channels.WhatsApp.Enabled {
		channels = append(channels, "whatsapp")
	}
	if cfg.Channels.HTTPAPI.Enabled {
		channels = append(channels, "http_api")
	}
	fmt.Printf("Channels:   %v\n", channels)

	if len(cfg.Skills.Disabled) > 0 {
		fmt.Printf("Disabled skills: %v\n", cfg.Skills.Disabled)
	}

	return nil
}
