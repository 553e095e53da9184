// Foreman is a multi-channel AI assistant gateway for industrial
// maintenance teams.
//
// It receives technician messages over Telegram, WhatsApp, and a plain HTTP
// API, classifies each one by intent, and answers through a set of skills
// backed by a multi-provider LLM router:
//   - Fault diagnosis grounded in live PLC telemetry and a knowledge base
//   - Equipment status summaries and component photo analysis
//   - Work-order drafting, filing, and publication
//   - Photo-to-knowledge enrichment of the component database
//   - Remote shell, diagram, and document utilities
//
// Usage:
//
//	# Start the gateway with default configuration
//	foreman run
//
//	# Start with custom configuration file
//	foreman run --config /path/to/config.yaml
//
//	# Show version information
//	foreman version
//
//	# Validate a configuration file without starting
//	foreman validate
//
//	# Print the effective intent routing table
//	foreman routes
//
//	# Enrich one component photo into the knowledge base
//	foreman enrich --photo panel.jpg --tag K1
package main

func main() {
	Execute()
}
