package ledger

import (
	"slices"
	"sync"
)

// Locker serializes writers per source. Locks for several sources are taken
// in ascending id order so two transfers in opposite directions cannot
// deadlock.
type Locker struct {
	mu    sync.Mutex
	locks map[int64]*sourceLock
}

type sourceLock struct {
	mu   sync.Mutex
	refs int
}

func NewLocker() *Locker {
	return &Locker{locks: make(map[int64]*sourceLock)}
}

// Lock blocks until every listed source is held and returns the release func.
func (l *Locker) Lock(ids ...int64) (unlock func()) {
	ids = slices.Clone(ids)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	held := make([]*sourceLock, 0, len(ids))
	for _, id := range ids {
		sl := l.acquire(id)
		sl.mu.Lock()
		held = append(held, sl)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for i := len(held) - 1; i >= 0; i-- {
				held[i].mu.Unlock()
				l.release(ids[i])
			}
		})
	}
}

func (l *Locker) acquire(id int64) *sourceLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	sl, ok := l.locks[id]
	if !ok {
		sl = &sourceLock{}
		l.locks[id] = sl
	}
	sl.refs++
	return sl
}

func (l *Locker) release(id int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sl := l.locks[id]
	sl.refs--
	if sl.refs == 0 {
		delete(l.locks, id)
	}
}

// Held returns how many sources currently have a lock entry.
func (l *Locker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
