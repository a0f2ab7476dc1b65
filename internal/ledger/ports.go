// Package ledger holds the balance-consistency core: the store ports, the
// balance projector and per-source write serialization.
package ledger

import (
	"context"
	"time"

	"dinero/internal/core"
)

// Ports implemented by the storage adapters.
type (
	SourceStore interface {
		CreateSource(ctx context.Context, s core.NewSource) (core.Source, error)
		// GetSource returns archived sources too; callers decide whether an
		// archived source is usable. Missing ids yield core.ErrSourceNotFound.
		GetSource(ctx context.Context, id int64) (core.Source, error)
		ListSources(ctx context.Context) ([]core.Source, error)
		ArchiveSource(ctx context.Context, id int64) error
	}

	// EntryWriter appends to the ledger. Both methods are atomic: a transfer
	// persists its two legs together or not at all. Appends referencing a
	// missing or archived source fail with core.ErrSourceNotFound.
	EntryWriter interface {
		AppendTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		AppendTransfer(ctx context.Context, t core.Transfer) (core.Transfer, error)
	}

	HistoryReader interface {
		// History returns the entries of a source ordered by (occurred_at, id),
		// limited to occurred_at <= asOf when asOf is set.
		History(ctx context.Context, sourceID int64, asOf *time.Time) ([]core.Transaction, error)
		// HistoryAfter returns entries of a source with id > afterID.
		HistoryAfter(ctx context.Context, sourceID int64, afterID int64) ([]core.Transaction, error)
		// ListTransactions returns entries newest first.
		ListTransactions(ctx context.Context, f core.TransactionFilter) ([]core.Transaction, error)
	}

	SnapshotStore interface {
		// GetSnapshot yields core.ErrNotFound when none has been saved.
		GetSnapshot(ctx context.Context, sourceID int64) (core.BalanceSnapshot, error)
		SaveSnapshot(ctx context.Context, s core.BalanceSnapshot) error
	}

	Store interface {
		SourceStore
		EntryWriter
		HistoryReader
		SnapshotStore
		Close() error
	}
)

// Event describes entries that were just appended.
type Event struct {
	Kind           string    `json:"event"`
	SourceIDs      []int64   `json:"source_ids"`
	TransactionIDs []int64   `json:"transaction_ids"`
	TransferID     string    `json:"transfer_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

const (
	EventTransactionAppended = "transaction_appended"
	EventTransferAppended    = "transfer_appended"
)

// Publisher fans ledger events out to other processes.
type Publisher interface {
	PublishLedgerEvent(ctx context.Context, e Event) error
}
