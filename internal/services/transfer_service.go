package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"dinero/internal/core"
	"dinero/internal/ledger"
)

// CreateTransferRequest is the input of CreateTransfer. A zero OccurredAt
// means now.
type CreateTransferRequest struct {
	FromSourceID   int64
	ToSourceID     int64
	Amount         decimal.Decimal
	Description    string
	OccurredAt     time.Time
	IdempotencyKey string
}

// TransferService appends the two linked legs of a transfer atomically.
type TransferService struct {
	deps  Deps
	newID func() string
}

func NewTransferService(d Deps) *TransferService {
	return &TransferService{deps: d.withDefaults(), newID: uuid.NewString}
}

// CreateTransfer checks amount, then that both sources exist, then that they
// differ. Both sources stay locked until the cached balances are dropped, so
// a successful return is visible to the next balance read.
func (s *TransferService) CreateTransfer(ctx context.Context, req CreateTransferRequest) (core.Transfer, error) {
	if err := core.ValidateAmount(req.Amount); err != nil {
		return core.Transfer{}, err
	}

	unlock := s.deps.Locker.Lock(req.FromSourceID, req.ToSourceID)
	created, err := s.append(ctx, req)
	if err == nil {
		s.deps.Projector.Invalidate(created.FromSourceID, created.ToSourceID)
	}
	unlock()
	if err != nil {
		return core.Transfer{}, err
	}

	s.deps.Logger.LogTransferCreated(ctx, created.ID, created.FromSourceID, created.ToSourceID, created.Amount.String())

	ids := make([]int64, 0, len(created.Legs))
	for _, leg := range created.Legs {
		ids = append(ids, leg.ID)
	}
	s.deps.publish(ctx, ledger.Event{
		Kind:           ledger.EventTransferAppended,
		SourceIDs:      []int64{created.FromSourceID, created.ToSourceID},
		TransactionIDs: ids,
		TransferID:     created.ID,
	})
	return created, nil
}

func (s *TransferService) append(ctx context.Context, req CreateTransferRequest) (core.Transfer, error) {
	if _, err := activeSource(ctx, s.deps, req.FromSourceID); err != nil {
		return core.Transfer{}, err
	}
	if _, err := activeSource(ctx, s.deps, req.ToSourceID); err != nil {
		return core.Transfer{}, err
	}

	tr := core.Transfer{
		ID:             s.newID(),
		FromSourceID:   req.FromSourceID,
		ToSourceID:     req.ToSourceID,
		Amount:         req.Amount,
		Description:    strings.TrimSpace(req.Description),
		OccurredAt:     req.OccurredAt,
		IdempotencyKey: req.IdempotencyKey,
	}
	if err := tr.Validate(); err != nil {
		return core.Transfer{}, err
	}

	storeCtx, cancel := s.deps.storeCtx(ctx)
	defer cancel()
	created, err := s.deps.Store.AppendTransfer(storeCtx, tr)
	if err != nil {
		return core.Transfer{}, fmt.Errorf("append transfer: %w", err)
	}
	return created, nil
}
