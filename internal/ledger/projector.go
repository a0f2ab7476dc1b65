package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"dinero/internal/cache"
	"dinero/internal/core"
)

// ProjectorStore is what the projector needs to read from the ledger.
type ProjectorStore interface {
	GetSource(ctx context.Context, id int64) (core.Source, error)
	HistoryReader
}

// Projector derives balances by folding history. Cached values are only a
// shortcut for the fold and are dropped through Invalidate on every append.
type Projector struct {
	store     ProjectorStore
	snapshots SnapshotStore // optional
	cache     cache.Cache[decimal.Decimal]

	// generation guards against a slow reader caching a value computed
	// before a concurrent append invalidated it.
	mu  sync.Mutex
	gen map[int64]uint64
}

func NewProjector(store ProjectorStore, snapshots SnapshotStore, c cache.Cache[decimal.Decimal]) *Projector {
	return &Projector{
		store:     store,
		snapshots: snapshots,
		cache:     c,
		gen:       make(map[int64]uint64),
	}
}

// Fold applies the sign rules to entries on top of initial.
func Fold(initial decimal.Decimal, entries []core.Transaction) decimal.Decimal {
	balance := initial
	for _, e := range entries {
		balance = balance.Add(e.Signed())
	}
	return balance
}

// BalanceOf returns the balance of a source, optionally as of a point in time.
func (p *Projector) BalanceOf(ctx context.Context, sourceID int64, asOf *time.Time) (decimal.Decimal, error) {
	src, err := p.store.GetSource(ctx, sourceID)
	if err != nil {
		return decimal.Zero, err
	}

	if asOf != nil {
		history, err := p.store.History(ctx, sourceID, asOf)
		if err != nil {
			return decimal.Zero, fmt.Errorf("read history as of %s: %w", asOf.Format(time.RFC3339), err)
		}
		return Fold(src.InitialBalance, history), nil
	}

	key := cacheKey(sourceID)
	if p.cache != nil {
		if b, ok := p.cache.Get(key); ok {
			return b, nil
		}
	}
	gen := p.generation(sourceID)

	balance, err := p.project(ctx, src)
	if err != nil {
		return decimal.Zero, err
	}

	if p.cache != nil {
		p.mu.Lock()
		if p.gen[sourceID] == gen {
			p.cache.Set(key, balance)
		}
		p.mu.Unlock()
	}
	return balance, nil
}

// project folds from the latest snapshot when there is one.
func (p *Projector) project(ctx context.Context, src core.Source) (decimal.Decimal, error) {
	if p.snapshots != nil {
		snap, err := p.snapshots.GetSnapshot(ctx, src.ID)
		switch {
		case err == nil:
			tail, err := p.store.HistoryAfter(ctx, src.ID, snap.LastEntryID)
			if err != nil {
				return decimal.Zero, fmt.Errorf("read history after snapshot: %w", err)
			}
			return Fold(snap.Balance, tail), nil
		case !errors.Is(err, core.ErrNotFound):
			slog.WarnContext(ctx, "Snapshot read failed, folding full history",
				"source_id", src.ID, "error", err)
		}
	}

	history, err := p.store.History(ctx, src.ID, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("read history: %w", err)
	}
	return Fold(src.InitialBalance, history), nil
}

// Invalidate drops cached balances of the given sources.
func (p *Projector) Invalidate(sourceIDs ...int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range sourceIDs {
		p.gen[id]++
		if p.cache != nil {
			p.cache.Delete(cacheKey(id))
		}
	}
}

// Refresh recomputes a balance from full history and stores it as a snapshot.
func (p *Projector) Refresh(ctx context.Context, sourceID int64) (core.BalanceSnapshot, error) {
	if p.snapshots == nil {
		return core.BalanceSnapshot{}, errors.New("projector has no snapshot store")
	}
	src, err := p.store.GetSource(ctx, sourceID)
	if err != nil {
		return core.BalanceSnapshot{}, err
	}
	history, err := p.store.History(ctx, sourceID, nil)
	if err != nil {
		return core.BalanceSnapshot{}, fmt.Errorf("read history: %w", err)
	}

	var lastID int64
	for _, e := range history {
		if e.ID > lastID {
			lastID = e.ID
		}
	}
	snap := core.BalanceSnapshot{
		SourceID:    sourceID,
		Balance:     Fold(src.InitialBalance, history),
		LastEntryID: lastID,
		ComputedAt:  time.Now().UTC(),
	}
	if err := p.snapshots.SaveSnapshot(ctx, snap); err != nil {
		return core.BalanceSnapshot{}, fmt.Errorf("save snapshot: %w", err)
	}
	return snap, nil
}

func (p *Projector) generation(id int64) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen[id]
}

func cacheKey(id int64) string {
	return "balance:" + strconv.FormatInt(id, 10)
}
