package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"dinero/internal/core"
)

// SourceService manages sources and answers balance queries.
type SourceService struct {
	deps Deps
}

func NewSourceService(d Deps) *SourceService {
	return &SourceService{deps: d.withDefaults()}
}

func (s *SourceService) CreateSource(ctx context.Context, name string, initial decimal.Decimal) (core.Source, error) {
	ns := core.NewSource{Name: name, InitialBalance: initial}
	if err := ns.Validate(); err != nil {
		return core.Source{}, err
	}

	storeCtx, cancel := s.deps.storeCtx(ctx)
	defer cancel()
	src, err := s.deps.Store.CreateSource(storeCtx, ns)
	if err != nil {
		return core.Source{}, fmt.Errorf("create source: %w", err)
	}
	return src, nil
}

// ListSources returns active sources with their projected balances. The
// balances form one consistent view: no transaction or transfer touching a
// listed source commits while they are read.
func (s *SourceService) ListSources(ctx context.Context) ([]core.SourceBalance, error) {
	sources, unlock, err := s.lockActive(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.balances(ctx, sources)
}

// lockActive lists active sources and holds their locks. Writers take the
// same locks, so every append to a listed source waits for unlock.
func (s *SourceService) lockActive(ctx context.Context) ([]core.Source, func(), error) {
	storeCtx, cancel := s.deps.storeCtx(ctx)
	sources, err := s.deps.Store.ListSources(storeCtx)
	cancel()
	if err != nil {
		return nil, nil, fmt.Errorf("list sources: %w", err)
	}

	ids := make([]int64, len(sources))
	for i, src := range sources {
		ids[i] = src.ID
	}
	return sources, s.deps.Locker.Lock(ids...), nil
}

// balances projects every source in parallel. Callers hold the source locks.
func (s *SourceService) balances(ctx context.Context, sources []core.Source) ([]core.SourceBalance, error) {
	out := make([]core.SourceBalance, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, src := range sources {
		g.Go(func() error {
			balance, err := s.balance(gctx, src.ID, nil)
			if err != nil {
				return err
			}
			out[i] = core.SourceBalance{Source: src, Balance: balance}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ArchiveSource hides a source from listings and closes it for new entries.
// Its history stays readable.
func (s *SourceService) ArchiveSource(ctx context.Context, id int64) error {
	unlock := s.deps.Locker.Lock(id)
	defer unlock()

	storeCtx, cancel := s.deps.storeCtx(ctx)
	defer cancel()
	if err := s.deps.Store.ArchiveSource(storeCtx, id); err != nil {
		return fmt.Errorf("archive source %d: %w", id, err)
	}
	s.deps.Projector.Invalidate(id)

	s.deps.Logger.LogSourceArchived(ctx, id)
	return nil
}

// Balance returns the balance of a source, optionally as of a point in time.
func (s *SourceService) Balance(ctx context.Context, id int64, asOf *time.Time) (decimal.Decimal, error) {
	return s.balance(ctx, id, asOf)
}

func (s *SourceService) balance(ctx context.Context, id int64, asOf *time.Time) (decimal.Decimal, error) {
	storeCtx, cancel := s.deps.storeCtx(ctx)
	defer cancel()
	b, err := s.deps.Projector.BalanceOf(storeCtx, id, asOf)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance of source %d: %w", id, err)
	}
	return b, nil
}

// ListTransactions returns the entries of one source, or of every source when
// sourceID is zero, newest first.
func (s *SourceService) ListTransactions(ctx context.Context, sourceID int64) ([]core.Transaction, error) {
	storeCtx, cancel := s.deps.storeCtx(ctx)
	defer cancel()

	if sourceID != 0 {
		if _, err := s.deps.Store.GetSource(storeCtx, sourceID); err != nil {
			return nil, fmt.Errorf("get source %d: %w", sourceID, err)
		}
	}
	txs, err := s.deps.Store.ListTransactions(storeCtx, core.TransactionFilter{SourceID: sourceID})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	return txs, nil
}
