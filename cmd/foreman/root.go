package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "foreman",
	Short: "Foreman - AI assistant gateway for industrial maintenance",
	Long: `Foreman is a multi-channel assistant gateway for industrial maintenance
teams. Technicians talk to it over Telegram, WhatsApp, or a plain HTTP API;
it classifies each message by intent and answers through skills backed by a
multi-provider LLM router.

It provides:
  - Fault diagnosis grounded in live PLC telemetry and a knowledge base
  - Equipment status summaries and component photo analysis
  - Work-order drafting, filing, and publication
  - Photo-to-knowledge enrichment of the component database
  - Daily provider budgets with circuit-breaker failover`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.CompletionOptions.DisableDefaultCmd = false
}
