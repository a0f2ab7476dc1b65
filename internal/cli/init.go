// Package cli provides common CLI initialization utilities.
// This package consolidates repeated initialization patterns across
// cmd/dinero, cmd/dinero-worker, and cmd/dinero-cli.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"dinero/internal/backend"
	"dinero/internal/cache"
	"dinero/internal/config"
	"dinero/internal/ledger"
	applog "dinero/internal/log"
	"dinero/internal/services"
)

const (
	balanceCacheSize = 1024
	balanceCacheTTL  = 10 * time.Minute
)

// SetupLogger initializes structured logging from the configured level and
// format. It sets the logger as the process default and returns it.
func SetupLogger(cfg *config.Config, component string) *applog.Logger {
	lc := applog.DefaultConfig()
	lc.Component = component
	if cfg != nil {
		lc.Level = applog.ParseLevel(cfg.LogLevel)
		lc.Format = cfg.LogFormat
	}
	logger := applog.New(lc).WithComponent(component)
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig() *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// InitBackend creates the configured store and optional event publisher.
// Returns the backend or exits the process on failure.
func InitBackend(ctx context.Context, logger *applog.Logger, cfg *config.Config) *backend.BackendResult {
	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, bc)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", bc.Type)
		os.Exit(1)
	}
	return result
}

// NewLedgerDeps wires the projector, locker and logger around a store.
// Balances are cached in an LRU invalidated on every append.
func NewLedgerDeps(cfg *config.Config, logger *applog.Logger, store ledger.Store, publisher ledger.Publisher) services.Deps {
	balances := cache.NewLRUCache[decimal.Decimal](balanceCacheSize, balanceCacheTTL)
	return services.Deps{
		Store:        store,
		Projector:    ledger.NewProjector(store, store, balances),
		Locker:       ledger.NewLocker(),
		Publisher:    publisher,
		StoreTimeout: cfg.StoreTimeout,
		Logger:       applog.NewStructuredLogger(logger.WithComponent(applog.ComponentLedger)),
	}
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		cancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup()
			}
			close(finished)
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete")
		case <-time.After(timeout):
			logger.Warn("Shutdown timeout reached")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
