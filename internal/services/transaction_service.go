package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"dinero/internal/core"
	"dinero/internal/ledger"
)

// CreateTransactionRequest is the input of CreateTransaction. A zero
// OccurredAt means now.
type CreateTransactionRequest struct {
	Type           core.TransactionType
	Description    string
	Amount         decimal.Decimal
	Category       string
	SourceID       int64
	OccurredAt     time.Time
	IdempotencyKey string
}

// TransactionService validates and appends income and expense entries.
type TransactionService struct {
	deps Deps
}

func NewTransactionService(d Deps) *TransactionService {
	return &TransactionService{deps: d.withDefaults()}
}

// CreateTransaction checks amount, source, category and description in that
// order and appends one entry. Nothing is written when a check fails.
func (s *TransactionService) CreateTransaction(ctx context.Context, req CreateTransactionRequest) (core.Transaction, error) {
	if err := core.ValidateAmount(req.Amount); err != nil {
		return core.Transaction{}, err
	}

	unlock := s.deps.Locker.Lock(req.SourceID)
	created, err := s.append(ctx, req)
	if err == nil {
		s.deps.Projector.Invalidate(created.SourceID)
	}
	unlock()
	if err != nil {
		return core.Transaction{}, err
	}

	s.deps.Logger.LogTransactionCreated(ctx, created.ID, created.SourceID,
		string(created.Type), created.Description, created.Amount.String(), created.Category)
	s.deps.publish(ctx, ledger.Event{
		Kind:           ledger.EventTransactionAppended,
		SourceIDs:      []int64{created.SourceID},
		TransactionIDs: []int64{created.ID},
	})
	return created, nil
}

func (s *TransactionService) append(ctx context.Context, req CreateTransactionRequest) (core.Transaction, error) {
	if _, err := activeSource(ctx, s.deps, req.SourceID); err != nil {
		return core.Transaction{}, err
	}

	t := core.Transaction{
		Type:           req.Type,
		Description:    strings.TrimSpace(req.Description),
		Amount:         req.Amount,
		Category:       req.Category,
		SourceID:       req.SourceID,
		OccurredAt:     req.OccurredAt,
		IdempotencyKey: req.IdempotencyKey,
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	storeCtx, cancel := s.deps.storeCtx(ctx)
	defer cancel()
	created, err := s.deps.Store.AppendTransaction(storeCtx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("append transaction: %w", err)
	}
	return created, nil
}

// activeSource loads a source and treats archived ones as missing.
func activeSource(ctx context.Context, d Deps, id int64) (core.Source, error) {
	storeCtx, cancel := d.storeCtx(ctx)
	defer cancel()
	src, err := d.Store.GetSource(storeCtx, id)
	if err != nil {
		return core.Source{}, fmt.Errorf("get source %d: %w", id, err)
	}
	if src.Archived() {
		return core.Source{}, fmt.Errorf("source %d is archived: %w", id, core.ErrSourceNotFound)
	}
	return src, nil
}
