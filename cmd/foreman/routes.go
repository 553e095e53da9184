package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"mercator-hq/foreman/pkg/cli"
	"mercator-hq/foreman/pkg/config"
	"mercator-hq/foreman/pkg/messages"
	"mercator-hq/foreman/pkg/routing"
)

var routesFlags struct {
	output string
}

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Print the effective intent routing table",
	Long: `Print the routing table the gateway would use: the built-in defaults
overlaid with any route overrides from the configuration file.

Examples:
  # Show the routing table
  foreman routes

  # Machine-readable output
  foreman routes --output json`,
	RunE: showRoutes,
}

func init() {
	rootCmd.AddCommand(routesCmd)

	routesCmd.Flags().StringVarP(&routesFlags.output, "output", "o", "text", "output format: text, json")
}

// routeEntry is one row of the effective routing table.
type routeEntry struct {
	Intent    string   `json:"intent"`
	Primary   string   `json:"primary"`
	Fallbacks []string `json:"fallbacks,omitempty"`
}

func showRoutes(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}

	routes := routing.DefaultRoutes()
	for name, rc := range cfg.Routes {
		routes[messages.Intent(name)] = routing.Route{Primary: rc.Primary, Fallbacks: rc.Fallbacks}
	}

	entries := make([]routeEntry, 0, len(routes))
	for intent, route := range routes {
		entries = append(entries, routeEntry{
			Intent:    intent.String(),
			Primary:   route.Primary,
			Fallbacks: route.Fallbacks,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Intent < entries[j].Intent })

	if cli.OutputFormat(routesFlags.output) == cli.FormatJSON {
		formatter := cli.NewFormatter(cli.FormatJSON)
		return formatter.FormatTo(os.Stdout, entries)
	}

	fmt.Printf("%-20s %-12s %s\n", "INTENT", "PRIMARY", "FALLBACKS")
	for _, e := range entries {
		fallbacks := "-"
		if len(e.Fallbacks) > 0 {
			fallbacks = strings.Join(e.Fallbacks, ", ")
		}
		fmt.Printf("%-20s %-12s %s\n", e.Intent, e.Primary, fallbacks)
	}
	return nil
}
