package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Rows as stored. Amounts are decimal strings and times use timeLayout.
type Source struct {
	ID             int64
	Name           string
	InitialBalance string
	CreatedAt      string
	ArchivedAt     sql.NullString
}

type Transaction struct {
	ID             int64
	Type           string
	Description    string
	Amount         string
	Category       string
	SourceID       int64
	SourceName     string
	TransferID     sql.NullString
	OccurredAt     string
	IdempotencyKey sql.NullString
}

type Transfer struct {
	ID             string
	FromSourceID   int64
	ToSourceID     int64
	Amount         string
	Description    string
	OccurredAt     string
	IdempotencyKey sql.NullString
}

type BalanceSnapshot struct {
	SourceID    int64
	Balance     string
	LastEntryID int64
	ComputedAt  string
}

const createSource = `-- name: CreateSource :one
INSERT INTO sources (name, initial_balance, created_at)
VALUES (?, ?, ?)
RETURNING id, name, initial_balance, created_at, archived_at
`

type CreateSourceParams struct {
	Name           string
	InitialBalance string
	CreatedAt      string
}

func (q *Queries) CreateSource(ctx context.Context, arg CreateSourceParams) (Source, error) {
	row := q.db.QueryRowContext(ctx, createSource, arg.Name, arg.InitialBalance, arg.CreatedAt)
	var i Source
	err := row.Scan(&i.ID, &i.Name, &i.InitialBalance, &i.CreatedAt, &i.ArchivedAt)
	return i, err
}

const getSource = `-- name: GetSource :one
SELECT id, name, initial_balance, created_at, archived_at
FROM sources
WHERE id = ?
`

func (q *Queries) GetSource(ctx context.Context, id int64) (Source, error) {
	row := q.db.QueryRowContext(ctx, getSource, id)
	var i Source
	err := row.Scan(&i.ID, &i.Name, &i.InitialBalance, &i.CreatedAt, &i.ArchivedAt)
	return i, err
}

const listActiveSources = `-- name: ListActiveSources :many
SELECT id, name, initial_balance, created_at, archived_at
FROM sources
WHERE archived_at IS NULL
ORDER BY id
`

func (q *Queries) ListActiveSources(ctx context.Context) ([]Source, error) {
	rows, err := q.db.QueryContext(ctx, listActiveSources)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Source
	for rows.Next() {
		var i Source
		if err := rows.Scan(&i.ID, &i.Name, &i.InitialBalance, &i.CreatedAt, &i.ArchivedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const archiveSource = `-- name: ArchiveSource :execrows
UPDATE sources
SET archived_at = ?
WHERE id = ? AND archived_at IS NULL
`

func (q *Queries) ArchiveSource(ctx context.Context, archivedAt string, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, archiveSource, archivedAt, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const createTransaction = `-- name: CreateTransaction :one
INSERT INTO transactions (type, description, amount, category, source_id, transfer_id, occurred_at, idempotency_key, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id
`

type CreateTransactionParams struct {
	Type           string
	Description    string
	Amount         string
	Category       string
	SourceID       int64
	TransferID     sql.NullString
	OccurredAt     string
	IdempotencyKey sql.NullString
	CreatedAt      string
}

func (q *Queries) CreateTransaction(ctx context.Context, arg CreateTransactionParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, createTransaction,
		arg.Type,
		arg.Description,
		arg.Amount,
		arg.Category,
		arg.SourceID,
		arg.TransferID,
		arg.OccurredAt,
		arg.IdempotencyKey,
		arg.CreatedAt,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const transactionColumns = `t.id, t.type, t.description, t.amount, t.category, t.source_id, s.name, t.transfer_id, t.occurred_at, t.idempotency_key`

const getTransactionByKey = `-- name: GetTransactionByKey :one
SELECT ` + transactionColumns + `
FROM transactions t JOIN sources s ON s.id = t.source_id
WHERE t.idempotency_key = ?
`

func (q *Queries) GetTransactionByKey(ctx context.Context, key string) (Transaction, error) {
	row := q.db.QueryRowContext(ctx, getTransactionByKey, key)
	return scanTransaction(row)
}

const listTransferLegs = `-- name: ListTransferLegs :many
SELECT ` + transactionColumns + `
FROM transactions t JOIN sources s ON s.id = t.source_id
WHERE t.transfer_id = ?
ORDER BY t.id
`

func (q *Queries) ListTransferLegs(ctx context.Context, transferID string) ([]Transaction, error) {
	return q.queryTransactions(ctx, listTransferLegs, transferID)
}

const listSourceHistory = `-- name: ListSourceHistory :many
SELECT ` + transactionColumns + `
FROM transactions t JOIN sources s ON s.id = t.source_id
WHERE t.source_id = ?1 AND (?2 = '' OR t.occurred_at <= ?2)
ORDER BY t.occurred_at, t.id
`

func (q *Queries) ListSourceHistory(ctx context.Context, sourceID int64, asOf string) ([]Transaction, error) {
	return q.queryTransactions(ctx, listSourceHistory, sourceID, asOf)
}

const listSourceHistoryAfter = `-- name: ListSourceHistoryAfter :many
SELECT ` + transactionColumns + `
FROM transactions t JOIN sources s ON s.id = t.source_id
WHERE t.source_id = ? AND t.id > ?
ORDER BY t.id
`

func (q *Queries) ListSourceHistoryAfter(ctx context.Context, sourceID, afterID int64) ([]Transaction, error) {
	return q.queryTransactions(ctx, listSourceHistoryAfter, sourceID, afterID)
}

const listTransactions = `-- name: ListTransactions :many
SELECT ` + transactionColumns + `
FROM transactions t JOIN sources s ON s.id = t.source_id
WHERE (?1 = 0 OR t.source_id = ?1)
  AND (?2 = '' OR t.occurred_at >= ?2)
  AND (?3 = '' OR t.occurred_at < ?3)
ORDER BY t.occurred_at DESC, t.id DESC
LIMIT ?4
`

type ListTransactionsParams struct {
	SourceID int64
	From     string
	To       string
	Limit    int64 // -1 for no limit
}

func (q *Queries) ListTransactions(ctx context.Context, arg ListTransactionsParams) ([]Transaction, error) {
	return q.queryTransactions(ctx, listTransactions, arg.SourceID, arg.From, arg.To, arg.Limit)
}

const createTransfer = `-- name: CreateTransfer :exec
INSERT INTO transfers (id, from_source_id, to_source_id, amount, description, occurred_at, idempotency_key, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

type CreateTransferParams struct {
	ID             string
	FromSourceID   int64
	ToSourceID     int64
	Amount         string
	Description    string
	OccurredAt     string
	IdempotencyKey sql.NullString
	CreatedAt      string
}

func (q *Queries) CreateTransfer(ctx context.Context, arg CreateTransferParams) error {
	_, err := q.db.ExecContext(ctx, createTransfer,
		arg.ID,
		arg.FromSourceID,
		arg.ToSourceID,
		arg.Amount,
		arg.Description,
		arg.OccurredAt,
		arg.IdempotencyKey,
		arg.CreatedAt,
	)
	return err
}

const getTransferByKey = `-- name: GetTransferByKey :one
SELECT id, from_source_id, to_source_id, amount, description, occurred_at, idempotency_key
FROM transfers
WHERE idempotency_key = ?
`

func (q *Queries) GetTransferByKey(ctx context.Context, key string) (Transfer, error) {
	row := q.db.QueryRowContext(ctx, getTransferByKey, key)
	var i Transfer
	err := row.Scan(&i.ID, &i.FromSourceID, &i.ToSourceID, &i.Amount, &i.Description, &i.OccurredAt, &i.IdempotencyKey)
	return i, err
}

const getSnapshot = `-- name: GetSnapshot :one
SELECT source_id, balance, last_entry_id, computed_at
FROM balance_snapshots
WHERE source_id = ?
`

func (q *Queries) GetSnapshot(ctx context.Context, sourceID int64) (BalanceSnapshot, error) {
	row := q.db.QueryRowContext(ctx, getSnapshot, sourceID)
	var i BalanceSnapshot
	err := row.Scan(&i.SourceID, &i.Balance, &i.LastEntryID, &i.ComputedAt)
	return i, err
}

// A snapshot never moves backwards: older folds lose the upsert.
const upsertSnapshot = `-- name: UpsertSnapshot :exec
INSERT INTO balance_snapshots (source_id, balance, last_entry_id, computed_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (source_id) DO UPDATE SET
    balance = excluded.balance,
    last_entry_id = excluded.last_entry_id,
    computed_at = excluded.computed_at
WHERE excluded.last_entry_id >= balance_snapshots.last_entry_id
`

type UpsertSnapshotParams struct {
	SourceID    int64
	Balance     string
	LastEntryID int64
	ComputedAt  string
}

func (q *Queries) UpsertSnapshot(ctx context.Context, arg UpsertSnapshotParams) error {
	_, err := q.db.ExecContext(ctx, upsertSnapshot, arg.SourceID, arg.Balance, arg.LastEntryID, arg.ComputedAt)
	return err
}

func (q *Queries) queryTransactions(ctx context.Context, query string, args ...interface{}) ([]Transaction, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Transaction
	for rows.Next() {
		i, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row scanner) (Transaction, error) {
	var i Transaction
	err := row.Scan(
		&i.ID,
		&i.Type,
		&i.Description,
		&i.Amount,
		&i.Category,
		&i.SourceID,
		&i.SourceName,
		&i.TransferID,
		&i.OccurredAt,
		&i.IdempotencyKey,
	)
	return i, err
}
