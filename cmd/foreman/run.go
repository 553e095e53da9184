package main

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"mercator-hq/foreman/pkg/cli"
	"mercator-hq/foreman/pkg/config"
	"mercator-hq/foreman/pkg/connectors"
	"mercator-hq/foreman/pkg/connectors/knowledge"
	"mercator-hq/foreman/pkg/conversation"
	"mercator-hq/foreman/pkg/dispatch"
	"mercator-hq/foreman/pkg/enrich"
	"mercator-hq/foreman/pkg/gateway"
	circuit "mercator-hq/foreman/pkg/health"
	"mercator-hq/foreman/pkg/janitor"
	"mercator-hq/foreman/pkg/limits/budget"
	"mercator-hq/foreman/pkg/messages"
	"mercator-hq/foreman/pkg/notify"
	"mercator-hq/foreman/pkg/providers"
	"mercator-hq/foreman/pkg/providers/anthropic"
	"mercator-hq/foreman/pkg/providers/gemini"
	"mercator-hq/foreman/pkg/providers/openaicompat"
	"mercator-hq/foreman/pkg/routing"
	"mercator-hq/foreman/pkg/server"
	"mercator-hq/foreman/pkg/skills"
	"mercator-hq/foreman/pkg/telemetry/health"
	"mercator-hq/foreman/pkg/telemetry/logging"
	"mercator-hq/foreman/pkg/telemetry/metrics"
	"mercator-hq/foreman/pkg/telemetry/tracing"
	"mercator-hq/foreman/pkg/workorder"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Foreman gateway",
	Long: `Start the Foreman gateway with the specified configuration.

The gateway connects the configured channels (Telegram, WhatsApp, HTTP API),
classifies inbound messages by intent, and dispatches them to skills backed
by the multi-provider LLM router.

Examples:
  # Start with default config
  foreman run

  # Start with custom config
  foreman run --config /etc/foreman/config.yaml

  # Override listen address
  foreman run --listen 0.0.0.0:8080

  # Validate config without starting
  foreman run --dry-run`,
	RunE: runGateway,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the gateway")
}

func runGateway(cmd *cobra.Command, args []string) error {
	// A .env next to the binary may carry API keys on developer machines.
	_ = godotenv.Load()

	// Load configuration
	if err := config.Initialize(cfgFile); err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := config.Get()

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := logging.Setup(logging.Options{
		Level:     cfg.Telemetry.Logging.Level,
		Format:    cfg.Telemetry.Logging.Format,
		AddSource: cfg.Telemetry.Logging.AddSource,
	})
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	printBanner(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracer, err := tracing.New(ctx, tracing.Options{
		Enabled:     cfg.Telemetry.Tracing.Enabled,
		Endpoint:    cfg.Telemetry.Tracing.Endpoint,
		Insecure:    cfg.Telemetry.Tracing.Insecure,
		SampleRatio: cfg.Telemetry.Tracing.SampleRatio,
		ServiceName: cfg.Telemetry.Tracing.ServiceName,
		Version:     Version,
	})
	if err != nil {
		logger.Warn("tracing unavailable, continuing without span export", "error", err)
		tracer = tracing.Noop()
	}
	defer tracer.Shutdown(context.Background())

	// LLM providers, budgets, and the circuit breaker registry
	providerMap := buildProviders(cfg)
	if len(providerMap) == 0 {
		logger.Warn("no providers configured; only offline answers available")
	}
	fmt.Printf("✓ Providers initialized (%d providers)\n", len(providerMap))

	tracker := budget.NewTracker()
	for name, pc := range cfg.Providers {
		tracker.Configure(name, pc.DailyRequestLimit, pc.DailyTokenLimit)
	}

	collector := metrics.NewCollector(nil)
	notifier := notify.New(cfg.Notify.SlackToken, cfg.Notify.SlackChannel, logging.Component("notify"))

	breakers := circuit.NewRegistry()
	breakers.OnTransition(func(provider, from, to string) {
		collector.RecordCircuitTransition(provider, to)
		switch to {
		case "open":
			notifier.CircuitOpen(context.Background(), provider, circuit.DefaultTripThreshold)
		case "closed":
			notifier.CircuitClosed(context.Background(), provider)
		}
	})

	routes := routing.DefaultRoutes()
	for name, rc := range cfg.Routes {
		routes[messages.Intent(name)] = routing.Route{Primary: rc.Primary, Fallbacks: rc.Fallbacks}
	}
	router := routing.NewRouter(providerMap, tracker, breakers, routes)
	defer router.Close()

	// Connectors
	kbStore, err := knowledge.New(knowledgeConfig(cfg))
	if err != nil {
		return cli.NewConfigError("connectors.knowledge", err.Error())
	}
	conns := []connectors.Connector{kbStore}

	var telemetryReader skills.TagReader
	switch {
	case cfg.Connectors.Matrix.URL != "":
		m := connectors.NewMatrix(cfg.Connectors.Matrix.URL)
		conns = append(conns, m)
		telemetryReader = m
	case cfg.Connectors.PLC.Host != "":
		p := connectors.NewPLC(connectors.PLCConfig{
			Host: cfg.Connectors.PLC.Host,
			Port: cfg.Connectors.PLC.Port,
		})
		conns = append(conns, p)
		telemetryReader = p
	}

	var filer skills.WorkOrderFiler
	if cfg.Connectors.CMMS.URL != "" {
		c := connectors.NewCMMS(connectors.CMMSConfig{
			URL:      cfg.Connectors.CMMS.URL,
			Email:    cfg.Connectors.CMMS.Email,
			Password: cfg.Connectors.CMMS.Password,
		})
		conns = append(conns, c)
		filer = c
	}

	var shell skills.ShellRunner
	if len(cfg.Connectors.Jarvis.Hosts) > 0 {
		j := connectors.NewJarvis(cfg.Connectors.Jarvis.Hosts)
		conns = append(conns, j)
		shell = j
	}

	var offline skills.OfflineLLM
	if cfg.Connectors.Ollama.Enabled {
		o := connectors.NewOllama(connectors.OllamaConfig{
			URL:   cfg.Connectors.Ollama.URL,
			Model: cfg.Connectors.Ollama.Model,
		})
		conns = append(conns, o)
		offline = o
	}

	var publisher skills.Publisher
	if cfg.Connectors.Gist.Token != "" {
		g := connectors.NewGist(connectors.GistConfig{Token: cfg.Connectors.Gist.Token})
		conns = append(conns, g)
		publisher = g
	}

	for _, conn := range conns {
		if err := conn.Connect(ctx); err != nil {
			logger.Warn("connector connect failed", "connector", conn.Name(), "error", err)
		}
	}
	defer func() {
		for _, conn := range conns {
			_ = conn.Disconnect()
		}
	}()
	fmt.Printf("✓ Connectors initialized (%d connectors)\n", len(conns))

	archive, err := workorder.OpenArchive(cfg.Skills.ArchivePath)
	if err != nil {
		logger.Warn("work-order archive unavailable", "path", cfg.Skills.ArchivePath, "error", err)
		archive = nil
	} else {
		defer archive.Close()
	}

	// Photo enrichment pipeline and spool watcher
	pipeline := enrich.NewPipeline(visionProviders(providerMap), kbStore)
	if cfg.Enrich.SpoolDir != "" {
		watcher := enrich.NewWatcher(pipeline, cfg.Enrich.SpoolDir, cfg.Enrich.Debounce)
		go func() {
			if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("enrichment watcher stopped", "error", err)
			}
		}()
	}

	// Skills and dispatch
	registry := skills.NewRegistry(logging.Component("skills"))
	for _, s := range skills.Builtins() {
		if slices.Contains(cfg.Skills.Disabled, s.Name()) {
			logger.Info("skill disabled by config", "skill", s.Name())
			continue
		}
		registry.Register(s)
	}

	history := conversation.NewStore(cfg.Conversation.MaxEntries, cfg.Conversation.TTL)

	skillCtx := &skills.Context{
		Router:       router,
		Knowledge:    kbStore,
		Telemetry:    telemetryReader,
		NodeID:       cfg.Connectors.NodeID,
		CMMS:         filer,
		Shell:        shell,
		Publisher:    publisher,
		Offline:      offline,
		Enricher:     pipeline,
		Archive:      archive,
		Search:       providerMap["perplexity"],
		History:      history,
		Connectors:   conns,
		AllowedUsers: cfg.Skills.AllowedUsers,
		ProjectsDir:  cfg.Skills.ProjectsDir,
	}

	dispatcher := dispatch.New(registry, skillCtx, collector, logging.Component("dispatch"))
	dispatcher.OnError = func(intent messages.Intent, err error) {
		notifier.DispatchFailure(context.Background(), intent.String(), err)
	}

	// Channel adapters
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.BotToken != "" {
		tg := gateway.NewTelegram(dispatcher, gateway.TelegramOptions{
			BotToken:         cfg.Channels.Telegram.BotToken,
			AllowedUsers:     cfg.Channels.Telegram.AllowedUsers,
			RateLimitPerHour: cfg.Channels.Telegram.RateLimitPerHour,
			Transcriber:      gateway.NewTranscriber(cfg.Providers["groq"].APIKey),
			History:          history,
			Metrics:          collector,
			Logger:           logging.Component("telegram"),
		})
		skillCtx.Notify = tg.Send
		go func() {
			if err := tg.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Error("telegram adapter stopped", "error", err)
			}
		}()
		defer tg.Stop()
		fmt.Println("✓ Telegram channel started")
	}

	if cfg.Channels.WhatsApp.Enabled {
		wa := gateway.NewWhatsApp(cfg.Channels.WhatsApp.GatewayURL, logging.Component("whatsapp"))
		go func() {
			if err := wa.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Error("whatsapp adapter stopped", "error", err)
			}
		}()
		fmt.Println("✓ WhatsApp channel started")
	}

	// Background jobs
	jan := janitor.New(tracker, history, conns, collector, notifier, logging.Component("janitor"))
	if err := jan.Start(); err != nil {
		return cli.NewCommandError("run", err)
	}
	defer jan.Stop()

	// HTTP server
	srv := server.New(cfg.Server, dispatcher, health.NewAggregator(conns, 0), collector, server.Info{
		Name:      "foreman",
		Version:   Version,
		Providers: router.ProviderNames(),
		Skills:    registry.Names(),
	}, logging.Component("server"))
	if !cfg.Channels.HTTPAPI.Enabled {
		srv.DisableAPI()
	}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(ctx); err != nil {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	fmt.Println()
	fmt.Printf("✓ Server listening on %s\n", cfg.Server.ListenAddress)
	fmt.Printf("✓ Health endpoint: http://%s/health\n", cfg.Server.ListenAddress)
	fmt.Printf("✓ Metrics endpoint: http://%s/metrics\n", cfg.Server.ListenAddress)
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for shutdown signal or server error
	sigChan := cli.WaitForShutdown()

	select {
	case err := <-errChan:
		return cli.NewCommandError("run", err)
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal %s, shutting down gracefully...\n", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
			return cli.NewCommandError("run", err)
		}

		fmt.Println("✓ Server stopped")
		return nil
	}
}

// knowledgeConfig maps the config section onto the store's own config type.
func knowledgeConfig(cfg *config.Config) knowledge.Config {
	return knowledge.Config{
		Backend: cfg.Connectors.Knowledge.Backend,
		URL:     cfg.Connectors.Knowledge.URL,
		Path:    cfg.Connectors.Knowledge.Path,
	}
}

// buildProviders constructs a client for every provider with an API key.
func buildProviders(cfg *config.Config) map[string]providers.Provider {
	out := make(map[string]providers.Provider)
	for name, pc := range cfg.Providers {
		if pc.APIKey == "" {
			continue
		}
		switch name {
		case "groq":
			out[name] = openaicompat.NewGroq(pc.APIKey, pc.Model)
		case "openai":
			out[name] = openaicompat.NewOpenAI(pc.APIKey, pc.Model)
		case "openrouter":
			out[name] = openaicompat.NewOpenRouter(pc.APIKey, pc.Model)
		case "nvidia":
			out[name] = openaicompat.NewNVIDIA(pc.APIKey, pc.Model, pc.FallbackModel)
		case "deepseek":
			out[name] = openaicompat.NewDeepSeek(pc.APIKey, pc.Model)
		case "perplexity":
			out[name] = openaicompat.NewPerplexity(pc.APIKey, pc.Model)
		case "anthropic":
			out[name] = anthropic.New(pc.APIKey, pc.Model)
		case "gemini":
			out[name] = gemini.New(pc.APIKey, pc.Model)
		}
	}
	return out
}

// visionProviders returns the vision-capable providers for the enrichment
// pipeline, in extraction preference order.
func visionProviders(providerMap map[string]providers.Provider) []providers.Provider {
	var vision []providers.Provider
	for _, name := range []string{"openrouter", "gemini", "anthropic", "openai"} {
		if p, ok := providerMap[name]; ok && p.SupportsVision() {
			vision = append(vision, p)
		}
	}
	return vision
}

func printBanner(cfg *config.Config) {
	fmt.Printf("Foreman v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	if n := len(cfg.Providers); n > 0 {
		slog.Debug("providers configured", "count", n)
	}
	slog.Debug("knowledge backend", "backend", cfg.Connectors.Knowledge.Backend)
	if cfg.Channels.Telegram.Enabled {
		slog.Debug("telegram channel enabled", "allowed_users", len(cfg.Channels.Telegram.AllowedUsers))
	}
}
