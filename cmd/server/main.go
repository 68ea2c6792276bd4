// Command server runs the autoexpense HTTP API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ArionMiles/autoexpense/internal/plugins"
	"github.com/ArionMiles/autoexpense/internal/scan"
	"github.com/ArionMiles/autoexpense/internal/server"
	"github.com/ArionMiles/autoexpense/pkg/client"
	"github.com/ArionMiles/autoexpense/pkg/config"
	"github.com/ArionMiles/autoexpense/pkg/extractor"
	"github.com/ArionMiles/autoexpense/pkg/logging"
	csvplugin "github.com/ArionMiles/autoexpense/pkg/plugins/writers/csv"
	jsonplugin "github.com/ArionMiles/autoexpense/pkg/plugins/writers/json"
	sheetsplugin "github.com/ArionMiles/autoexpense/pkg/plugins/writers/sheets"
	"github.com/ArionMiles/autoexpense/pkg/reader/demo"
	"github.com/ArionMiles/autoexpense/pkg/reader/gmail"
	"github.com/ArionMiles/autoexpense/pkg/store/postgres"
)

func main() {
	// Config is loaded first so LOG_* values from .env reach the logger.
	cfg, err := config.Load()
	if err != nil {
		logging.Setup(logging.DefaultConfig()).Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.Logging())

	// Setup context with cancellation on SIGINT/SIGTERM
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	store, err := postgres.New(ctx, postgres.Config{
		URL:         cfg.DatabaseURL,
		Host:        cfg.PostgresHost,
		Port:        cfg.PostgresPort,
		Database:    cfg.PostgresDB,
		User:        cfg.PostgresUser,
		Password:    cfg.PostgresPassword,
		SSLMode:     cfg.PostgresSSLMode,
		MaxPoolSize: cfg.PostgresMaxConns,
	}, logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	gemini, err := extractor.New(ctx, extractor.Config{
		APIKey:    cfg.GeminiAPIKey,
		Model:     cfg.GeminiModel,
		DemoModel: cfg.GeminiDemoModel,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating extractor: %w", err)
	}

	scanner := scan.New(
		gmail.Factory(logger),
		demo.New(gemini, cfg.DemoEmailCount, logger),
		gemini,
		store,
		scan.Config{MaxResults: cfg.ScanMaxResults, MatchMerchant: cfg.DedupMatchMerchant},
		logger,
	)

	registry := plugins.NewRegistry()
	for _, p := range []plugins.WriterPlugin{&csvplugin.Plugin{}, &jsonplugin.Plugin{}, sheetsplugin.New()} {
		if err := registry.RegisterWriter(p); err != nil {
			return fmt.Errorf("registering %s writer: %w", p.Name(), err)
		}
	}
	logger.Info("plugins registered", "writers", len(registry.ListWriters()))

	srv := server.New(server.Config{
		Addr:            fmt.Sprintf(":%d", cfg.Port),
		AllowedOrigin:   cfg.CORSAllowedOrigin,
		DemoEmailCount:  cfg.DemoEmailCount,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, server.Deps{
		Store:      store,
		Scanner:    scanner,
		Demo:       gemini,
		Profiles:   client.NewProfileFetcher(logger),
		Writers:    registry,
		HTTPClient: client.New,
	}, logger)

	return srv.Run(ctx)
}
