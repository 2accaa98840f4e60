package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"gastos/internal/sheets"
)

// TableCache memoises whole logical tables, each with its own TTL.
// Returned tables are copies; callers may modify them.
type TableCache struct {
	entries *LRUCache[sheets.Table]
	ttls    map[string]time.Duration

	// gens counts invalidations per table; a load started under an older
	// generation must not be stored.
	mu   sync.Mutex
	gens map[string]uint64
	all  uint64

	hits   atomic.Int64
	misses atomic.Int64
}

// Stats is a snapshot of cache activity.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int   `json:"entries"`
}

// NewTableCache returns a cache using ttls per table name. A table without a
// positive TTL is never cached.
func NewTableCache(ttls map[string]time.Duration) *TableCache {
	cp := make(map[string]time.Duration, len(ttls))
	for k, v := range ttls {
		cp[k] = v
	}
	return &TableCache{
		entries: NewLRUCache[sheets.Table](len(sheets.TableNames())+len(cp), 0),
		ttls:    cp,
		gens:    map[string]uint64{},
	}
}

// SetClock replaces the time source.
func (c *TableCache) SetClock(now func() time.Time) { c.entries.SetClock(now) }

// TTL returns the configured lifetime for a table.
func (c *TableCache) TTL(table string) time.Duration { return c.ttls[table] }

// Get returns the cached table if it is still fresh.
func (c *TableCache) Get(table string) (sheets.Table, bool) {
	t, ok := c.entries.Get(table)
	if !ok {
		c.misses.Add(1)
		return sheets.Table{}, false
	}
	c.hits.Add(1)
	return t.Clone(), true
}

// Generation identifies the current state of a table's entry. Read it before
// loading the table from the medium and hand it to PutIfCurrent.
func (c *TableCache) Generation(table string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.all + c.gens[table]
}

// Put stores a freshly read table.
func (c *TableCache) Put(table string, t sheets.Table) {
	c.entries.SetWithTTL(table, t.Clone(), c.ttls[table])
}

// PutIfCurrent stores t only if the table was not invalidated since gen was
// taken. It reports whether the table was stored.
func (c *TableCache) PutIfCurrent(table string, t sheets.Table, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.all+c.gens[table] != gen {
		return false
	}
	c.entries.SetWithTTL(table, t.Clone(), c.ttls[table])
	return true
}

// Invalidate drops the entry for one table.
func (c *TableCache) Invalidate(table string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[table]++
	c.entries.Delete(table)
}

// InvalidateAll drops every entry.
func (c *TableCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.all++
	c.entries.Clear()
}

func (c *TableCache) CleanExpired() int { return c.entries.CleanExpired() }

func (c *TableCache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Entries: c.entries.Size()}
}
