// Package cli holds the start-up steps shared by the affsync commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"affsync/internal/amqp"
	"affsync/internal/auth"
	"affsync/internal/config"
	"affsync/internal/log"
	"affsync/internal/sheets"
	"affsync/internal/sheets/google"
	"affsync/internal/sheets/memory"
	"affsync/internal/sheets/xlsx"
	"affsync/internal/storage"
)

// SetupLogger builds the process logger at level and makes it the slog
// default. An unknown level falls back to warn.
func SetupLogger(w io.Writer, level string) *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Writer = w
	cfg.Level, _ = log.ParseLevel(level)

	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadConfig reads the environment and validates it for needs.
func LoadConfig(needs config.Need) (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Require(needs); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SignalContext returns a context cancelled by SIGINT or SIGTERM.
func SignalContext(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

// OpenLedger opens the run ledger, or returns nil when it is disabled.
func OpenLedger(cfg *config.Config, logger *log.Logger) (*storage.Ledger, error) {
	if !cfg.LedgerEnabled() {
		return nil, nil
	}
	ledger, err := storage.Open(cfg.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", cfg.SQLiteDBPath, err)
	}
	logger.WithComponent(log.ComponentLedger).Debug("Ledger opened", "path", cfg.SQLiteDBPath)
	return ledger, nil
}

// OpenEvents connects to the broker, or returns nil when events are
// disabled.
func OpenEvents(cfg *config.Config, logger *log.Logger) (*amqp.Client, error) {
	if !cfg.EventsEnabled() {
		return nil, nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		return nil, fmt.Errorf("connect AMQP: %w", err)
	}
	return client, nil
}

// OpenSpreadsheet builds the destination selected by DATA_BACKEND. The
// returned close function is never nil.
func OpenSpreadsheet(ctx context.Context, cfg *config.Config, logger *log.Logger) (sheets.Spreadsheet, func() error, error) {
	noop := func() error { return nil }
	logger = logger.WithComponent(log.ComponentSheets)

	switch cfg.DataBackend {
	case config.BackendMemory:
		logger.Debug("Using in-memory spreadsheet", log.FieldBackend, cfg.DataBackend)
		return memory.New(), noop, nil

	case config.BackendXLSX:
		wb, err := xlsx.Open(cfg.XLSXPath)
		if err != nil {
			return nil, noop, err
		}
		logger.Debug("Using local workbook", log.FieldBackend, cfg.DataBackend, "path", cfg.XLSXPath)
		return wb, wb.Close, nil

	case config.BackendSheets:
		oauthCfg, err := auth.Config(cfg.ClientSecretPath)
		if err != nil {
			return nil, noop, err
		}
		ts, err := auth.TokenSource(ctx, oauthCfg, cfg.CredentialsPath, logger)
		if err != nil {
			return nil, noop, err
		}
		client, err := google.New(ctx, cfg.SpreadsheetID, cfg.ApplicationName, ts)
		if err != nil {
			return nil, noop, err
		}
		logger.Debug("Using Google Sheets", log.FieldBackend, cfg.DataBackend, "spreadsheet_id", cfg.SpreadsheetID)
		return client, noop, nil
	}

	return nil, noop, fmt.Errorf("unknown data backend %q", cfg.DataBackend)
}
