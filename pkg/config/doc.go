// Package config defines the gateway's configuration model and loads it
// from a YAML file with environment variable overrides.
//
// The loading sequence is:
//  1. Parse the YAML file
//  2. Apply default values to zero fields
//  3. Apply FOREMAN_* environment variable overrides
//  4. Validate the final configuration
//
// Secrets (API keys, bot tokens, passwords) are normally supplied through
// the environment rather than the file; every credential field has a
// FOREMAN_* override for exactly that reason.
package config
