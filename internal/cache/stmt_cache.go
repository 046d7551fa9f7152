// Package cache keeps prepared statements keyed by their rendered SQL.
package cache

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultStmtCacheCapacity is the number of statements kept when no capacity is given.
const DefaultStmtCacheCapacity = 1000

// Preparer is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Preparer interface {
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// StmtCache is an LRU of prepared statements. Evicted statements are closed.
// Pinned statements live outside the LRU and are never evicted.
type StmtCache struct {
	capacity int
	lru      *lru.Cache[string, *sql.Stmt]

	pinMu  sync.RWMutex
	pinned map[string]*sql.Stmt

	detached  sync.Map // keys being moved to the pinned set
	clearing  atomic.Bool
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// NewStmtCache creates a cache with DefaultStmtCacheCapacity.
func NewStmtCache() *StmtCache {
	return NewStmtCacheWithCapacity(DefaultStmtCacheCapacity)
}

// NewStmtCacheWithCapacity creates a cache holding at most capacity unpinned
// statements. Non-positive capacities use the default.
func NewStmtCacheWithCapacity(capacity int) *StmtCache {
	if capacity <= 0 {
		capacity = DefaultStmtCacheCapacity
	}
	sc := &StmtCache{
		capacity: capacity,
		pinned:   make(map[string]*sql.Stmt),
	}
	// lru.NewWithEvict only fails for a non-positive size.
	sc.lru, _ = lru.NewWithEvict[string, *sql.Stmt](capacity, sc.onEvict)
	return sc
}

func (sc *StmtCache) onEvict(key string, stmt *sql.Stmt) {
	if _, ok := sc.detached.LoadAndDelete(key); ok {
		return
	}
	_ = stmt.Close()
	if !sc.clearing.Load() {
		sc.evictions.Add(1)
	}
}

// Get returns the statement for key and marks it most recently used.
func (sc *StmtCache) Get(key string) (*sql.Stmt, bool) {
	sc.pinMu.RLock()
	stmt, ok := sc.pinned[key]
	sc.pinMu.RUnlock()
	if !ok {
		stmt, ok = sc.lru.Get(key)
	}
	if !ok {
		sc.misses.Add(1)
		return nil, false
	}
	sc.hits.Add(1)
	return stmt, true
}

// Set stores stmt under key, closing any statement it replaces. Setting a
// pinned key replaces the pinned statement.
func (sc *StmtCache) Set(key string, stmt *sql.Stmt) {
	sc.pinMu.Lock()
	if old, ok := sc.pinned[key]; ok {
		sc.pinned[key] = stmt
		sc.pinMu.Unlock()
		if old != stmt {
			_ = old.Close()
		}
		return
	}
	sc.pinMu.Unlock()

	if old, ok := sc.lru.Peek(key); ok && old != stmt {
		_ = old.Close()
	}
	sc.lru.Add(key, stmt)
}

// GetOrPrepare returns the cached statement for query or prepares and caches it.
func (sc *StmtCache) GetOrPrepare(ctx context.Context, p Preparer, query string) (*sql.Stmt, error) {
	if stmt, ok := sc.Get(query); ok {
		return stmt, nil
	}
	stmt, err := p.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	sc.Set(query, stmt)
	return stmt, nil
}

// Pin moves key out of the LRU so it is never evicted. It reports whether
// key is cached.
func (sc *StmtCache) Pin(key string) bool {
	sc.pinMu.Lock()
	defer sc.pinMu.Unlock()

	if _, ok := sc.pinned[key]; ok {
		return true
	}
	stmt, ok := sc.lru.Peek(key)
	if !ok {
		return false
	}
	sc.pinned[key] = stmt
	sc.detached.Store(key, struct{}{})
	if !sc.lru.Remove(key) {
		sc.detached.Delete(key)
	}
	return true
}

// Unpin returns a pinned statement to the LRU. It reports whether key is cached.
func (sc *StmtCache) Unpin(key string) bool {
	sc.pinMu.Lock()
	stmt, ok := sc.pinned[key]
	if ok {
		delete(sc.pinned, key)
	}
	sc.pinMu.Unlock()

	if ok {
		sc.lru.Add(key, stmt)
		return true
	}
	return sc.lru.Contains(key)
}

// IsPinned reports whether key is pinned.
func (sc *StmtCache) IsPinned(key string) bool {
	sc.pinMu.RLock()
	defer sc.pinMu.RUnlock()
	_, ok := sc.pinned[key]
	return ok
}

// Clear closes and removes every statement, pinned ones included.
func (sc *StmtCache) Clear() {
	sc.clearing.Store(true)
	sc.lru.Purge()
	sc.clearing.Store(false)

	sc.pinMu.Lock()
	for key, stmt := range sc.pinned {
		_ = stmt.Close()
		delete(sc.pinned, key)
	}
	sc.pinMu.Unlock()
}

// Stats holds cache counters.
type Stats struct {
	Size      int
	Pinned    int
	Capacity  int
	Hits      uint64
	Misses    uint64
	Evictions uint64
	HitRate   float64
}

// Stats returns a snapshot of the counters.
func (sc *StmtCache) Stats() Stats {
	sc.pinMu.RLock()
	pinned := len(sc.pinned)
	sc.pinMu.RUnlock()

	hits := sc.hits.Load()
	misses := sc.misses.Load()
	hitRate := 0.0
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		Size:      sc.lru.Len() + pinned,
		Pinned:    pinned,
		Capacity:  sc.capacity,
		Hits:      hits,
		Misses:    misses,
		Evictions: sc.evictions.Load(),
		HitRate:   hitRate,
	}
}
