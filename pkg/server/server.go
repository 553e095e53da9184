// Package server exposes the gateway's HTTP surface: the REST message
// endpoints, aggregate health, and metrics. It shares the dispatch core with
// the chat channels, so an API caller and a Telegram user get identical
// answers.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"mercator-hq/foreman/pkg/config"
	"mercator-hq/foreman/pkg/gateway"
	"mercator-hq/foreman/pkg/server/middleware"
	"mercator-hq/foreman/pkg/telemetry/health"
	"mercator-hq/foreman/pkg/telemetry/metrics"
)

// Info describes the running gateway on GET /.
type Info struct {
	// Name is the service name.
	Name string `json:"name"`

	// Version is the build version.
	Version string `json:"version"`

	// Providers lists the configured LLM provider names.
	Providers []string `json:"providers"`

	// Skills lists the registered skill names.
	Skills []string `json:"skills"`
}

// Server is the gateway's HTTP server.
type Server struct {
	config     config.ServerConfig
	dispatcher gateway.Dispatcher
	aggregator *health.Aggregator
	collector  *metrics.Collector
	info       Info
	logger     *slog.Logger

	httpServer   *http.Server
	shutdownOnce sync.Once
	mu           sync.RWMutex
	running      bool
	disableAPI   bool
}

// New creates the server. The dispatcher is required; a nil aggregator
// reports no connectors and a nil collector disables the metrics endpoints.
func New(cfg config.ServerConfig, dispatcher gateway.Dispatcher, aggregator *health.Aggregator, collector *metrics.Collector, info Info, logger *slog.Logger) *Server {
	if aggregator == nil {
		aggregator = health.NewAggregator(nil, 0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:     cfg,
		dispatcher: dispatcher,
		aggregator: aggregator,
		collector:  collector,
		info:       info,
		logger:     logger,
	}
}

// DisableAPI removes the /api/v1 message endpoints from the handler, leaving
// only the operational surface (health, metrics, root). Used when the HTTP
// API channel is turned off but the server still has to answer probes.
// Must be called before Start.
func (s *Server) DisableAPI() {
	s.disableAPI = true
}

// Start runs the HTTP server and blocks until the context is cancelled or
// the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.running = true

	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddress,
		Handler:        s.Handler(),
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "address", s.config.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}

// Shutdown drains in-flight requests, bounded by the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.running {
			s.mu.Unlock()
			return
		}
		s.running = false
		httpServer := s.httpServer
		s.mu.Unlock()

		s.logger.Info("shutting down http server", "timeout", s.config.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		if httpServer != nil {
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		s.logger.Info("http server stopped")
	})

	return shutdownErr
}

// Handler builds the route table wrapped in the middleware chain. Exposed
// for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	if !s.disableAPI {
		mux.HandleFunc("POST /api/v1/message", s.handleMessage)
		mux.HandleFunc("POST /api/v1/diagnose", s.handleDiagnose)
	}
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /{$}", s.handleRoot)
	if s.collector != nil {
		mux.Handle("GET /metrics/prometheus", s.collector.Handler())
	}

	var handler http.Handler = mux
	handler = middleware.Timeout(s.config.RequestTimeout)(handler)
	handler = middleware.CORS(&middleware.CORSConfig{
		Enabled:        s.config.CORS.Enabled,
		AllowedOrigins: s.config.CORS.AllowedOrigins,
		AllowedMethods: s.config.CORS.AllowedMethods,
		AllowedHeaders: s.config.CORS.AllowedHeaders,
		MaxAge:         s.config.CORS.MaxAge,
	})(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Logging(handler)
	handler = middleware.Recovery(handler)

	return handler
}

// IsRunning reports whether Start has been called and Shutdown has not.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
