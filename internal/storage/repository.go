package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"dinero/internal/core"
)

// timeLayout is fixed width so lexical order in SQLite is chronological.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type SQLiteRepository struct {
	db            *sql.DB
	queries       *Queries
	now           func() time.Time
	schemaVersion uint
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations before the main pool opens the file.
	version, err := RunMigrations(dbPath)
	if err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{
		db:            db,
		queries:       New(db),
		now:           func() time.Time { return time.Now().UTC() },
		schemaVersion: version,
	}, nil
}

// SchemaVersion is the migration version the database was opened at.
func (r *SQLiteRepository) SchemaVersion() uint {
	return r.schemaVersion
}

// dsn enables WAL, foreign keys and a busy timeout, and makes every write
// transaction take the write lock up front.
func dsn(path string) string {
	return "file:" + path +
		"?_pragma=foreign_keys(1)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_txlock=immediate"
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database answers.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return mapErr(r.db.PingContext(ctx))
}

func (r *SQLiteRepository) CreateSource(ctx context.Context, ns core.NewSource) (core.Source, error) {
	if err := ns.Validate(); err != nil {
		return core.Source{}, err
	}
	row, err := r.queries.CreateSource(ctx, CreateSourceParams{
		Name:           strings.TrimSpace(ns.Name),
		InitialBalance: ns.InitialBalance.String(),
		CreatedAt:      formatTime(r.now()),
	})
	if err != nil {
		if isUniqueViolation(err) {
			return core.Source{}, core.ErrDuplicateSource
		}
		return core.Source{}, fmt.Errorf("create source: %w", mapErr(err))
	}

	slog.InfoContext(ctx, "Source saved to SQLite", "source_id", row.ID, "name", row.Name)
	return toCoreSource(row)
}

func (r *SQLiteRepository) GetSource(ctx context.Context, id int64) (core.Source, error) {
	row, err := r.queries.GetSource(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Source{}, core.ErrSourceNotFound
	}
	if err != nil {
		return core.Source{}, fmt.Errorf("get source %d: %w", id, mapErr(err))
	}
	return toCoreSource(row)
}

func (r *SQLiteRepository) ListSources(ctx context.Context) ([]core.Source, error) {
	rows, err := r.queries.ListActiveSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", mapErr(err))
	}
	out := make([]core.Source, 0, len(rows))
	for _, row := range rows {
		src, err := toCoreSource(row)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}

func (r *SQLiteRepository) ArchiveSource(ctx context.Context, id int64) error {
	n, err := r.queries.ArchiveSource(ctx, formatTime(r.now()), id)
	if err != nil {
		return fmt.Errorf("archive source %d: %w", id, mapErr(err))
	}
	if n == 0 {
		return core.ErrSourceNotFound
	}
	slog.InfoContext(ctx, "Source archived", "source_id", id)
	return nil
}

func (r *SQLiteRepository) AppendTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	var out core.Transaction
	err := r.withTx(ctx, func(q *Queries) error {
		if t.IdempotencyKey != "" {
			row, err := q.GetTransactionByKey(ctx, t.IdempotencyKey)
			if err == nil {
				out, err = toCoreTransaction(row)
				return err
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return err
			}
		}

		src, err := activeSource(ctx, q, t.SourceID)
		if err != nil {
			return err
		}
		if t.OccurredAt.IsZero() {
			t.OccurredAt = r.now()
		}
		out, err = r.insertEntry(ctx, q, t, src)
		return err
	})
	if err != nil {
		return core.Transaction{}, r.appendErr("append transaction", err)
	}
	return out, nil
}

// AppendTransfer writes the transfer row and both legs in one transaction.
func (r *SQLiteRepository) AppendTransfer(ctx context.Context, tr core.Transfer) (core.Transfer, error) {
	var out core.Transfer
	err := r.withTx(ctx, func(q *Queries) error {
		if tr.IdempotencyKey != "" {
			row, err := q.GetTransferByKey(ctx, tr.IdempotencyKey)
			if err == nil {
				out, err = loadTransfer(ctx, q, row)
				return err
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return err
			}
		}

		from, err := activeSource(ctx, q, tr.FromSourceID)
		if err != nil {
			return err
		}
		to, err := activeSource(ctx, q, tr.ToSourceID)
		if err != nil {
			return err
		}
		if tr.OccurredAt.IsZero() {
			tr.OccurredAt = r.now()
		}
		tr.OccurredAt = tr.OccurredAt.UTC()

		if err := q.CreateTransfer(ctx, CreateTransferParams{
			ID:             tr.ID,
			FromSourceID:   from.ID,
			ToSourceID:     to.ID,
			Amount:         tr.Amount.String(),
			Description:    tr.Description,
			OccurredAt:     formatTime(tr.OccurredAt),
			IdempotencyKey: nullString(tr.IdempotencyKey),
			CreatedAt:      formatTime(r.now()),
		}); err != nil {
			return err
		}

		legOut, legIn := core.TransferLegs(tr, from, to)
		if legOut, err = r.insertEntry(ctx, q, legOut, from); err != nil {
			return err
		}
		if legIn, err = r.insertEntry(ctx, q, legIn, to); err != nil {
			return err
		}
		out = tr
		out.Legs = []core.Transaction{legOut, legIn}
		return nil
	})
	if err != nil {
		return core.Transfer{}, r.appendErr("append transfer", err)
	}

	slog.InfoContext(ctx, "Transfer saved to SQLite",
		"transfer_id", out.ID,
		"from_source_id", out.FromSourceID,
		"to_source_id", out.ToSourceID,
		"amount", out.Amount.String())
	return out, nil
}

func (r *SQLiteRepository) History(ctx context.Context, sourceID int64, asOf *time.Time) ([]core.Transaction, error) {
	if _, err := r.GetSource(ctx, sourceID); err != nil {
		return nil, err
	}
	var cutoff string
	if asOf != nil {
		cutoff = formatTime(*asOf)
	}
	rows, err := r.queries.ListSourceHistory(ctx, sourceID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list history of source %d: %w", sourceID, mapErr(err))
	}
	return toCoreTransactions(rows)
}

func (r *SQLiteRepository) HistoryAfter(ctx context.Context, sourceID int64, afterID int64) ([]core.Transaction, error) {
	rows, err := r.queries.ListSourceHistoryAfter(ctx, sourceID, afterID)
	if err != nil {
		return nil, fmt.Errorf("list history of source %d after %d: %w", sourceID, afterID, mapErr(err))
	}
	return toCoreTransactions(rows)
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, f core.TransactionFilter) ([]core.Transaction, error) {
	arg := ListTransactionsParams{SourceID: f.SourceID, Limit: -1}
	if !f.From.IsZero() {
		arg.From = formatTime(f.From)
	}
	if !f.To.IsZero() {
		arg.To = formatTime(f.To)
	}
	if f.Limit > 0 {
		arg.Limit = int64(f.Limit)
	}
	rows, err := r.queries.ListTransactions(ctx, arg)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", mapErr(err))
	}
	return toCoreTransactions(rows)
}

func (r *SQLiteRepository) GetSnapshot(ctx context.Context, sourceID int64) (core.BalanceSnapshot, error) {
	row, err := r.queries.GetSnapshot(ctx, sourceID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.BalanceSnapshot{}, core.ErrNotFound
	}
	if err != nil {
		return core.BalanceSnapshot{}, fmt.Errorf("get snapshot: %w", mapErr(err))
	}
	balance, err := decimal.NewFromString(row.Balance)
	if err != nil {
		return core.BalanceSnapshot{}, fmt.Errorf("decode snapshot balance %q: %w", row.Balance, err)
	}
	computed, err := parseTime(row.ComputedAt)
	if err != nil {
		return core.BalanceSnapshot{}, err
	}
	return core.BalanceSnapshot{
		SourceID:    row.SourceID,
		Balance:     balance,
		LastEntryID: row.LastEntryID,
		ComputedAt:  computed,
	}, nil
}

func (r *SQLiteRepository) SaveSnapshot(ctx context.Context, s core.BalanceSnapshot) error {
	if s.ComputedAt.IsZero() {
		s.ComputedAt = r.now()
	}
	err := r.queries.UpsertSnapshot(ctx, UpsertSnapshotParams{
		SourceID:    s.SourceID,
		Balance:     s.Balance.String(),
		LastEntryID: s.LastEntryID,
		ComputedAt:  formatTime(s.ComputedAt),
	})
	if err != nil {
		return fmt.Errorf("save snapshot: %w", mapErr(err))
	}
	slog.DebugContext(ctx, "Balance snapshot saved",
		"source_id", s.SourceID,
		"last_entry_id", s.LastEntryID)
	return nil
}

func (r *SQLiteRepository) withTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(r.queries.WithTx(tx)); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *SQLiteRepository) insertEntry(ctx context.Context, q *Queries, t core.Transaction, src core.Source) (core.Transaction, error) {
	t.OccurredAt = t.OccurredAt.UTC()
	id, err := q.CreateTransaction(ctx, CreateTransactionParams{
		Type:           string(t.Type),
		Description:    t.Description,
		Amount:         t.Amount.String(),
		Category:       t.Category,
		SourceID:       src.ID,
		TransferID:     nullString(t.TransferID),
		OccurredAt:     formatTime(t.OccurredAt),
		IdempotencyKey: nullString(t.IdempotencyKey),
		CreatedAt:      formatTime(r.now()),
	})
	if err != nil {
		return core.Transaction{}, err
	}
	t.ID = id
	t.SourceName = src.Name
	return t, nil
}

// appendErr keeps domain errors unwrapped and marks lock contention as
// transient.
func (r *SQLiteRepository) appendErr(op string, err error) error {
	if errors.Is(err, core.ErrSourceNotFound) {
		return err
	}
	return fmt.Errorf("%s: %w", op, mapErr(err))
}

func activeSource(ctx context.Context, q *Queries, id int64) (core.Source, error) {
	row, err := q.GetSource(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Source{}, core.ErrSourceNotFound
	}
	if err != nil {
		return core.Source{}, err
	}
	if row.ArchivedAt.Valid {
		return core.Source{}, core.ErrSourceNotFound
	}
	return toCoreSource(row)
}

func loadTransfer(ctx context.Context, q *Queries, row Transfer) (core.Transfer, error) {
	amount, err := decimal.NewFromString(row.Amount)
	if err != nil {
		return core.Transfer{}, fmt.Errorf("decode transfer amount %q: %w", row.Amount, err)
	}
	occurred, err := parseTime(row.OccurredAt)
	if err != nil {
		return core.Transfer{}, err
	}
	legs, err := q.ListTransferLegs(ctx, row.ID)
	if err != nil {
		return core.Transfer{}, err
	}
	coreLegs, err := toCoreTransactions(legs)
	if err != nil {
		return core.Transfer{}, err
	}
	return core.Transfer{
		ID:             row.ID,
		FromSourceID:   row.FromSourceID,
		ToSourceID:     row.ToSourceID,
		Amount:         amount,
		Description:    row.Description,
		OccurredAt:     occurred,
		Legs:           coreLegs,
		IdempotencyKey: row.IdempotencyKey.String,
	}, nil
}

func toCoreSource(row Source) (core.Source, error) {
	initial, err := decimal.NewFromString(row.InitialBalance)
	if err != nil {
		return core.Source{}, fmt.Errorf("decode initial balance %q: %w", row.InitialBalance, err)
	}
	created, err := parseTime(row.CreatedAt)
	if err != nil {
		return core.Source{}, err
	}
	src := core.Source{
		ID:             row.ID,
		Name:           row.Name,
		InitialBalance: initial,
		CreatedAt:      created,
	}
	if row.ArchivedAt.Valid {
		archived, err := parseTime(row.ArchivedAt.String)
		if err != nil {
			return core.Source{}, err
		}
		src.ArchivedAt = &archived
	}
	return src, nil
}

func toCoreTransaction(row Transaction) (core.Transaction, error) {
	amount, err := decimal.NewFromString(row.Amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("decode amount %q of entry %d: %w", row.Amount, row.ID, err)
	}
	occurred, err := parseTime(row.OccurredAt)
	if err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{
		ID:             row.ID,
		Type:           core.TransactionType(row.Type),
		Description:    row.Description,
		Amount:         amount,
		Category:       row.Category,
		SourceID:       row.SourceID,
		SourceName:     row.SourceName,
		TransferID:     row.TransferID.String,
		OccurredAt:     occurred,
		IdempotencyKey: row.IdempotencyKey.String,
	}, nil
}

func toCoreTransactions(rows []Transaction) ([]core.Transaction, error) {
	out := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		t, err := toCoreTransaction(row)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode time %q: %w", s, err)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// mapErr marks busy/locked databases and deadlines as transient failures.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", core.ErrTransientStore, err)
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %w", core.ErrTransientStore, err)
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
