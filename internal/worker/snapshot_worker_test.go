package worker

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dinero/internal/amqp"
	"dinero/internal/core"
	"dinero/internal/ledger"
	"dinero/internal/storage/memory"
)

func seed(t *testing.T, store *memory.Store, n int) []core.Source {
	t.Helper()
	ctx := context.Background()
	var out []core.Source
	for i := 0; i < n; i++ {
		src, err := store.CreateSource(ctx, core.NewSource{Name: string(rune('A' + i)), InitialBalance: decimal.NewFromInt(100)})
		require.NoError(t, err)
		_, err = store.AppendTransaction(ctx, core.Transaction{Type: core.Expense, Description: "x", Amount: decimal.NewFromInt(int64(i + 1)), Category: "Otros", SourceID: src.ID})
		require.NoError(t, err)
		out = append(out, src)
	}
	return out
}

func TestRefreshAllWritesSnapshots(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	sources := seed(t, store, 5)
	w := NewSnapshotWorker(store, ledger.NewProjector(store, store, nil), 2)

	require.NoError(t, w.RefreshAll(ctx))

	for i, src := range sources {
		snap, err := store.GetSnapshot(ctx, src.ID)
		require.NoError(t, err)
		assert.True(t, snap.Balance.Equal(decimal.NewFromInt(int64(100-(i+1)))), snap.Balance.String())
		assert.NotZero(t, snap.LastEntryID)
	}
}

func TestHandleLedgerEvent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	sources := seed(t, store, 2)
	w := NewSnapshotWorker(store, ledger.NewProjector(store, store, nil), 1)

	err := w.HandleLedgerEvent(ctx, &amqp.LedgerEventMessage{
		Event:     ledger.EventTransferAppended,
		SourceIDs: []int64{sources[1].ID, 999},
		Timestamp: time.Now(),
	})
	require.NoError(t, err, "unknown sources are skipped")

	_, err = store.GetSnapshot(ctx, sources[0].ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	snap, err := store.GetSnapshot(ctx, sources[1].ID)
	require.NoError(t, err)
	assert.True(t, snap.Balance.Equal(decimal.NewFromInt(98)))
}

func TestRunStopsOnCancel(t *testing.T) {
	store := memory.New()
	seed(t, store, 1)
	w := NewSnapshotWorker(store, ledger.NewProjector(store, store, nil), 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, 10*time.Millisecond) }()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	_, err := store.GetSnapshot(context.Background(), 1)
	assert.NoError(t, err)
}
