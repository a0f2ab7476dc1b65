package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"dinero/internal/amqp"
	"dinero/internal/core"
	"dinero/internal/ledger"
)

// SnapshotWorker keeps balance snapshots close to the head of the ledger so
// balance reads fold only a short tail.
type SnapshotWorker struct {
	sources     ledger.SourceStore
	projector   *ledger.Projector
	concurrency int
}

func NewSnapshotWorker(sources ledger.SourceStore, projector *ledger.Projector, concurrency int) *SnapshotWorker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &SnapshotWorker{
		sources:     sources,
		projector:   projector,
		concurrency: concurrency,
	}
}

// HandleLedgerEvent refreshes the snapshots of every source named in the
// event. Sources archived or deleted since the event are skipped.
func (w *SnapshotWorker) HandleLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error {
	slog.InfoContext(ctx, "Processing ledger event",
		"event", msg.Event,
		"source_ids", msg.SourceIDs,
		"transfer_id", msg.TransferID)

	for _, id := range msg.SourceIDs {
		if err := w.refresh(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// RefreshAll refreshes every active source, at most concurrency at a time.
// This is the backup path for events lost while the worker was down.
func (w *SnapshotWorker) RefreshAll(ctx context.Context) error {
	sources, err := w.sources.ListSources(ctx)
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}
	if len(sources) == 0 {
		return nil
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, src := range sources {
		g.Go(func() error {
			return w.refresh(gctx, src.ID)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Balance snapshots refreshed",
		"count", len(sources),
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

// Run refreshes all snapshots on start and then every interval until ctx
// is cancelled.
func (w *SnapshotWorker) Run(ctx context.Context, interval time.Duration) error {
	if err := w.RefreshAll(ctx); err != nil {
		slog.ErrorContext(ctx, "Startup snapshot refresh failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.RefreshAll(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic snapshot refresh failed", "error", err)
			}
		}
	}
}

func (w *SnapshotWorker) refresh(ctx context.Context, id int64) error {
	snap, err := w.projector.Refresh(ctx, id)
	if errors.Is(err, core.ErrSourceNotFound) {
		slog.WarnContext(ctx, "Skipping snapshot for unknown source", "source_id", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("refresh snapshot of source %d: %w", id, err)
	}
	slog.DebugContext(ctx, "Balance snapshot refreshed",
		"source_id", id,
		"balance", snap.Balance.String(),
		"last_entry_id", snap.LastEntryID)
	return nil
}
