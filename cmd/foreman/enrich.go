package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"mercator-hq/foreman/pkg/cli"
	"mercator-hq/foreman/pkg/config"
	"mercator-hq/foreman/pkg/connectors/knowledge"
	"mercator-hq/foreman/pkg/enrich"
	"mercator-hq/foreman/pkg/telemetry/logging"
)

var enrichFlags struct {
	photo  string
	tag    string
	dryRun bool
	output string
}

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich one component photo into the knowledge base",
	Long: `Run the photo enrichment pipeline once for a single component photo.

The pipeline extracts the component identity from the photo with a
vision-capable provider, merges the extraction with existing knowledge-base
atoms, and upserts the result. Use --dry-run to see what would be written
without touching the store.

Examples:
  # Enrich a contactor photo
  foreman enrich --photo contactor.jpg

  # Hint the equipment tag printed on the component
  foreman enrich --photo panel.jpg --tag K1

  # Extract without writing to the knowledge base
  foreman enrich --photo panel.jpg --dry-run`,
	RunE: enrichPhoto,
}

func init() {
	rootCmd.AddCommand(enrichCmd)

	enrichCmd.Flags().StringVar(&enrichFlags.photo, "photo", "", "component photo path (required)")
	enrichCmd.Flags().StringVar(&enrichFlags.tag, "tag", "", "equipment tag hint (e.g. K1)")
	enrichCmd.Flags().BoolVar(&enrichFlags.dryRun, "dry-run", false, "run the pipeline without writing to the store")
	enrichCmd.Flags().StringVarP(&enrichFlags.output, "output", "o", "text", "output format: text, json")
	_ = enrichCmd.MarkFlagRequired("photo")
}

func enrichPhoto(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}

	level := cfg.Telemetry.Logging.Level
	if verbose {
		level = "debug"
	}
	if _, err := logging.Setup(logging.Options{Level: level, Format: "text"}); err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}

	if _, err := os.Stat(enrichFlags.photo); err != nil {
		return cli.NewCommandError("enrich", fmt.Errorf("photo not readable: %w", err))
	}

	ctx := cli.SetupSignalHandler()

	store, err := knowledge.New(knowledgeConfig(cfg))
	if err != nil {
		return cli.NewConfigError("connectors.knowledge", err.Error())
	}
	if err := store.Connect(ctx); err != nil {
		return cli.NewCommandError("enrich", fmt.Errorf("knowledge store unavailable: %w", err))
	}
	defer store.Disconnect()

	vision := visionProviders(buildProviders(cfg))
	if len(vision) == 0 {
		return cli.NewCommandError("enrich", fmt.Errorf("no vision-capable provider configured"))
	}

	pipeline := enrich.NewPipeline(vision, store)
	result, err := pipeline.Enrich(ctx, enrich.Request{
		PhotoPath:  enrichFlags.photo,
		Tag:        enrichFlags.tag,
		SkipUpsert: enrichFlags.dryRun,
	})
	if err != nil {
		return cli.NewCommandError("enrich", err)
	}

	if cli.OutputFormat(enrichFlags.output) == cli.FormatJSON {
		formatter := cli.NewFormatter(cli.FormatJSON)
		return formatter.FormatTo(os.Stdout, result)
	}

	fmt.Println(result.Summary)
	if result.Vendor != "" || result.PartNumber != "" {
		fmt.Printf("Component: %s %s (%s)\n", result.Vendor, result.Product, result.PartNumber)
	}
	if result.ComponentType != "" {
		fmt.Printf("Type:      %s\n", result.ComponentType)
	}
	if len(result.KBMatches) > 0 {
		fmt.Printf("KB matches: %d\n", len(result.KBMatches))
	}
	switch {
	case enrichFlags.dryRun:
		fmt.Println("Dry run: nothing written")
	case result.AtomID != 0:
		verb := "updated"
		if result.IsNew {
			verb = "created"
		}
		fmt.Printf("Atom %d %s\n", result.AtomID, verb)
	}
	if result.NeedsReview {
		fmt.Println("⚠ Conflicting wiring data; atom flagged for review")
	}
	return nil
}
