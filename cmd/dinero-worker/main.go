package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"dinero/internal/amqp"
	"dinero/internal/buildinfo"
	"dinero/internal/cli"
	"dinero/internal/ledger"
	applog "dinero/internal/log"
	"dinero/internal/storage"
	"dinero/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentWorker)

	logger.Info("Starting dinero-worker", "version", buildinfo.String())

	// Snapshots only persist in SQLite; a memory ledger has nothing to share.
	if cfg.DataBackend != "sqlite" {
		logger.Error("dinero-worker requires DATA_BACKEND=sqlite", "backend", cfg.DataBackend)
		os.Exit(1)
	}
	if !cfg.AMQPEnabled() {
		logger.Error("dinero-worker requires AMQP_URL")
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	projector := ledger.NewProjector(repo, repo, nil)
	snapshots := worker.NewSnapshotWorker(repo, projector, cfg.SnapshotConcurrency)

	ctx, done := cli.GracefulShutdown(logger, cfg.StoreTimeout, nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return amqpClient.ConsumeLedgerEvents(gctx, snapshots.HandleLedgerEvent)
	})
	g.Go(func() error {
		return snapshots.Run(gctx, cfg.SnapshotInterval)
	})

	logger.Info("Worker started",
		"queue", cfg.AMQPQueue,
		"snapshot_interval", cfg.SnapshotInterval,
		"concurrency", cfg.SnapshotConcurrency)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
