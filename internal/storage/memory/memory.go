// Package memory is an in-process ledger store used by the memory backend
// and by tests. A single RWMutex makes every append atomic with respect to
// readers.
package memory

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"dinero/internal/core"
)

type Store struct {
	mu        sync.RWMutex
	sources   []core.Source // id = index+1
	entries   []core.Transaction
	transfers map[string]core.Transfer
	snapshots map[int64]core.BalanceSnapshot

	txKeys       map[string]int64
	transferKeys map[string]string

	now func() time.Time
}

func New() *Store {
	return &Store{
		transfers:    make(map[string]core.Transfer),
		snapshots:    make(map[int64]core.BalanceSnapshot),
		txKeys:       make(map[string]int64),
		transferKeys: make(map[string]string),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// NewFromFiles seeds sources from base/seed_sources.txt. Each line is
// "name;initial_balance"; blank lines and # comments are skipped.
func NewFromFiles(base string) *Store {
	s := New()
	for _, line := range readLines(filepath.Join(base, "seed_sources.txt")) {
		name, bal, _ := strings.Cut(line, ";")
		initial, err := core.ParseSignedAmount(bal)
		if err != nil {
			initial = decimal.Zero
		}
		_, _ = s.CreateSource(context.Background(), core.NewSource{Name: name, InitialBalance: initial})
	}
	return s
}

func (s *Store) Close() error { return nil }

func (s *Store) CreateSource(_ context.Context, ns core.NewSource) (core.Source, error) {
	if err := ns.Validate(); err != nil {
		return core.Source{}, err
	}
	name := strings.TrimSpace(ns.Name)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, src := range s.sources {
		if strings.EqualFold(src.Name, name) {
			return core.Source{}, core.ErrDuplicateSource
		}
	}
	src := core.Source{
		ID:             int64(len(s.sources) + 1),
		Name:           name,
		InitialBalance: ns.InitialBalance,
		CreatedAt:      s.now(),
	}
	s.sources = append(s.sources, src)
	return src, nil
}

func (s *Store) GetSource(_ context.Context, id int64) (core.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source(id)
}

func (s *Store) ListSources(_ context.Context) ([]core.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Source, 0, len(s.sources))
	for _, src := range s.sources {
		if !src.Archived() {
			out = append(out, src)
		}
	}
	return out, nil
}

func (s *Store) ArchiveSource(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, err := s.activeSource(id)
	if err != nil {
		return err
	}
	now := s.now()
	src.ArchivedAt = &now
	s.sources[id-1] = src
	return nil
}

func (s *Store) AppendTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.IdempotencyKey != "" {
		if id, ok := s.txKeys[t.IdempotencyKey]; ok {
			return s.entries[id-1], nil
		}
	}
	src, err := s.activeSource(t.SourceID)
	if err != nil {
		return core.Transaction{}, err
	}
	t = s.appendEntry(t, src)
	if t.IdempotencyKey != "" {
		s.txKeys[t.IdempotencyKey] = t.ID
	}
	return t, nil
}

func (s *Store) AppendTransfer(_ context.Context, tr core.Transfer) (core.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tr.IdempotencyKey != "" {
		if id, ok := s.transferKeys[tr.IdempotencyKey]; ok {
			return s.transfers[id], nil
		}
	}
	from, err := s.activeSource(tr.FromSourceID)
	if err != nil {
		return core.Transfer{}, err
	}
	to, err := s.activeSource(tr.ToSourceID)
	if err != nil {
		return core.Transfer{}, err
	}
	if tr.OccurredAt.IsZero() {
		tr.OccurredAt = s.now()
	}

	// Both sources were checked above, so neither leg can fail from here on.
	out, in := core.TransferLegs(tr, from, to)
	tr.Legs = []core.Transaction{s.appendEntry(out, from), s.appendEntry(in, to)}
	s.transfers[tr.ID] = tr
	if tr.IdempotencyKey != "" {
		s.transferKeys[tr.IdempotencyKey] = tr.ID
	}
	return tr, nil
}

func (s *Store) History(_ context.Context, sourceID int64, asOf *time.Time) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, err := s.source(sourceID); err != nil {
		return nil, err
	}
	var out []core.Transaction
	for _, e := range s.entries {
		if e.SourceID != sourceID {
			continue
		}
		if asOf != nil && e.OccurredAt.After(*asOf) {
			continue
		}
		out = append(out, e)
	}
	sortChronological(out)
	return out, nil
}

func (s *Store) HistoryAfter(_ context.Context, sourceID int64, afterID int64) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Transaction
	for _, e := range s.entries {
		if e.SourceID == sourceID && e.ID > afterID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) ListTransactions(_ context.Context, f core.TransactionFilter) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Transaction
	for _, e := range s.entries {
		if f.SourceID != 0 && e.SourceID != f.SourceID {
			continue
		}
		if !f.From.IsZero() && e.OccurredAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !e.OccurredAt.Before(f.To) {
			continue
		}
		out = append(out, e)
	}
	sortChronological(out)
	slices.Reverse(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) GetSnapshot(_ context.Context, sourceID int64) (core.BalanceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[sourceID]
	if !ok {
		return core.BalanceSnapshot{}, core.ErrNotFound
	}
	return snap, nil
}

func (s *Store) SaveSnapshot(_ context.Context, snap core.BalanceSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.source(snap.SourceID); err != nil {
		return err
	}
	// Never move a snapshot backwards.
	if cur, ok := s.snapshots[snap.SourceID]; ok && cur.LastEntryID > snap.LastEntryID {
		return nil
	}
	s.snapshots[snap.SourceID] = snap
	return nil
}

// EntryCount returns the number of stored ledger entries.
func (s *Store) EntryCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) appendEntry(t core.Transaction, src core.Source) core.Transaction {
	t.ID = int64(len(s.entries) + 1)
	t.SourceName = src.Name
	if t.OccurredAt.IsZero() {
		t.OccurredAt = s.now()
	}
	s.entries = append(s.entries, t)
	return t
}

func (s *Store) source(id int64) (core.Source, error) {
	if id < 1 || id > int64(len(s.sources)) {
		return core.Source{}, core.ErrSourceNotFound
	}
	return s.sources[id-1], nil
}

func (s *Store) activeSource(id int64) (core.Source, error) {
	src, err := s.source(id)
	if err != nil {
		return core.Source{}, err
	}
	if src.Archived() {
		return core.Source{}, core.ErrSourceNotFound
	}
	return src, nil
}

func sortChronological(entries []core.Transaction) {
	slices.SortStableFunc(entries, func(a, b core.Transaction) int {
		if c := a.OccurredAt.Compare(b.OccurredAt); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
