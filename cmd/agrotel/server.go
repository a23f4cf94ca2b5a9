package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	coreweather "github.com/artpar/agrotel/internal/core/weather"
	"github.com/artpar/agrotel/internal/shell/api"
	"github.com/artpar/agrotel/internal/shell/publisher"
	"github.com/artpar/agrotel/internal/shell/store"
	"github.com/artpar/agrotel/internal/shell/weather"
	"github.com/artpar/agrotel/internal/shell/weatherapi"
	"github.com/artpar/agrotel/internal/shell/workers"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitDatabaseError   = 2
	ExitHTTPServerError = 4
)

// =============================================================================
// Server
// =============================================================================

// Server represents the agrotel application server.
type Server struct {
	config     *Config
	httpServer *http.Server
	store      store.Store
	poller     *workers.Poller
	reporter   *publisher.Reporter
	logger     *slog.Logger

	reporterStarted bool
}

// NewServer creates a new server with the given config.
func NewServer(cfg *Config, logger *slog.Logger) (*Server, error) {
	translator, err := loadTranslator(cfg.Weather.TranslationsFile)
	if err != nil {
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitConfigError,
		}
	}

	fetcher, err := weatherapi.NewClient(weatherapi.Config{
		BaseURL:       cfg.Weather.BaseURL,
		APIKey:        cfg.Weather.APIKey,
		Timeout:       cfg.Weather.Timeout,
		RetryAttempts: cfg.Weather.RetryAttempts,
		RetryDelay:    cfg.Weather.RetryDelay,
	}, logger)
	if err != nil {
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitConfigError,
		}
	}

	if cfg.Database.DSN != ":memory:" {
		if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
			return nil, &ServerError{
				Op:       "NewServer",
				Err:      fmt.Errorf("failed to create data directory: %w", err),
				ExitCode: ExitDatabaseError,
			}
		}
	}

	// Connect to database
	s, err := store.NewSQLiteStore(cfg.Database.DSN)
	if err != nil {
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitDatabaseError,
		}
	}

	source := weather.NewService(fetcher, weather.Config{
		Location:   cfg.Weather.Location,
		Crop:       cfg.Weather.Crop,
		Translator: translator,
	}, logger)

	poller := workers.NewPoller(s, source, workers.PollerConfig{
		Interval:        cfg.Poller.Interval,
		Retention:       cfg.Poller.Retention,
		KeepUnpublished: cfg.Publish.Enabled,
	}, logger)

	// Create telemetry publisher
	var reporter *publisher.Reporter
	if cfg.Publish.Enabled {
		client, err := publisher.NewHTTPClient(publisher.Config{
			BaseURL:     cfg.Publish.BaseURL,
			AccessToken: cfg.Publish.AccessToken,
			Timeout:     cfg.Publish.Timeout,
		}, logger)
		if err != nil {
			s.Close()
			return nil, &ServerError{
				Op:       "NewServer",
				Err:      err,
				ExitCode: ExitConfigError,
			}
		}

		reporter = publisher.NewReporter(publisher.ReporterConfig{
			Store:     s,
			Client:    client,
			Interval:  cfg.Publish.Interval,
			BatchSize: cfg.Publish.BatchSize,
			Logger:    logger,
		})
		logger.Info("publishing enabled", "base_url", cfg.Publish.BaseURL)
	} else {
		logger.Info("publishing disabled")
	}

	handler := api.NewHandler(api.Config{
		Store:          s,
		Refresher:      poller,
		Logger:         logger,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Version:        Version,
		PollInterval:   cfg.Poller.Interval,
		RefreshTimeout: cfg.Server.RefreshTimeout,
	})

	// Create HTTP server
	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		config:     cfg,
		httpServer: httpServer,
		store:      s,
		poller:     poller,
		reporter:   reporter,
		logger:     logger,
	}, nil
}

// loadTranslator returns the built-in translator, extended by the YAML
// overrides file when one is configured.
func loadTranslator(path string) (*coreweather.Translator, error) {
	t := coreweather.NewTranslator()
	if path == "" {
		return t, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read translations file: %w", err)
	}
	overrides, err := coreweather.ParseOverrides(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse translations file %s: %w", path, err)
	}
	return t.WithOverrides(overrides), nil
}

// Start starts the server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// Start background workers
	s.poller.Start()
	if s.reporter != nil {
		s.reporterStarted = true
		go s.reporter.Start(ctx)
	}

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server",
			"address", s.config.Server.Address())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		s.Shutdown(context.Background())
		return &ServerError{
			Op:       "Start",
			Err:      err,
			ExitCode: ExitHTTPServerError,
		}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	// Shutdown HTTP server
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	// Stop workers before the store goes away
	s.poller.Stop()
	if s.reporterStarted {
		s.reporter.Stop()
		s.reporterStarted = false
	}

	// Close database
	if err := s.store.Close(); err != nil {
		s.logger.Error("database close error", "error", err)
	}

	s.logger.Info("shutdown complete")
	return nil
}

// =============================================================================
// Server Error
// =============================================================================

// ServerError represents an error during server operation.
type ServerError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *ServerError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ServerError) Unwrap() error {
	return e.Err
}
