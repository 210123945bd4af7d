package testutil

import (
	"sort"
	"sync"
	"time"

	"phofmit/internal/phofmit"
)

// MemoryCache is an in-memory phofmit.ScanCache that counts lookups.
type MemoryCache struct {
	mu      sync.Mutex
	clock   phofmit.Clock
	entries map[string]memoryCacheEntry

	Gets, Puts, Deletes int
}

type memoryCacheEntry struct {
	snap    *phofmit.Snapshot
	created time.Time
}

var _ phofmit.ScanCache = (*MemoryCache)(nil)

func NewMemoryCache(clock phofmit.Clock) *MemoryCache {
	if clock == nil {
		clock = FixedClock()
	}
	return &MemoryCache{clock: clock, entries: make(map[string]memoryCacheEntry)}
}

func (c *MemoryCache) Get(key string) (*phofmit.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Gets++
	e, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	return e.snap, nil
}

func (c *MemoryCache) Put(key string, snap *phofmit.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Puts++
	c.entries[key] = memoryCacheEntry{snap: snap, created: c.clock.Now()}
	return nil
}

func (c *MemoryCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Deletes++
	delete(c.entries, key)
	return nil
}

func (c *MemoryCache) List() ([]phofmit.CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]phofmit.CacheEntry, 0, len(c.entries))
	for k, e := range c.entries {
		out = append(out, phofmit.CacheEntry{
			Key:       k,
			BasePath:  e.snap.BasePath,
			FileCount: len(e.snap.Files),
			CreatedAt: e.created,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (c *MemoryCache) Purge(cutoff time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if e.created.Before(cutoff) {
			delete(c.entries, k)
			n++
		}
	}
	return n, nil
}

func (c *MemoryCache) Close() error { return nil }

// Len returns the number of cached snapshots.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
