// Package recordcache is an advisory cache of decoded page contents,
// sitting above the pager's strictly-ordered LRU buffer cache.
//
// Decoding a page's slot run into rowcodec.Records is pure work: it
// never needs to be deterministic, and dropping an entry only costs a
// re-decode, never correctness — exactly the property the page buffer
// cache does NOT have (its eviction order is a tested invariant). That
// makes it the right home for github.com/dgraph-io/ristretto/v2's
// probabilistic admission/eviction policy, left otherwise unused by
// the rest of the core.
package recordcache

import (
	"sawitdb/internal/page"

	"github.com/dgraph-io/ristretto/v2"
)

// Key identifies one row's decoded contents at a point in time. Gen is
// a per-(page, slot) counter the heap layer bumps on every in-place
// rewrite of that slot, so a stale cache hit (from before an update
// touched the slot) never shadows the new contents — even when the
// new encoding happens to be the same length as the old one.
type Key struct {
	Page page.ID
	Slot uint16
	Gen  uint64
}

// Cache holds decoded []any-agnostic entries; the heap package
// instantiates it with rowcodec.Record payloads via Get/Set, typed at
// the call site.
type Cache struct {
	c *ristretto.Cache[Key, any]
}

// New builds a decoded-record cache. maxEntries bounds the approximate
// item count ristretto will retain; cost is always 1 per entry.
func New(maxEntries int64) (*Cache, error) {
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	rc, err := ristretto.NewCache(&ristretto.Config[Key, any]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: rc}, nil
}

// Get returns the cached value for key, if present and not evicted.
func (c *Cache) Get(key Key) (any, bool) {
	return c.c.Get(key)
}

// Set stores value under key with cost 1 and waits for the set to
// land in ristretto's internal buffers before returning, so a
// following Get in the same goroutine reliably observes it.
func (c *Cache) Set(key Key, value any) {
	c.c.Set(key, value, 1)
	c.c.Wait()
}

// Invalidate drops key, used when the heap layer mutates a page.
func (c *Cache) Invalidate(key Key) {
	c.c.Del(key)
}

// Close releases ristretto's background goroutines.
func (c *Cache) Close() {
	c.c.Close()
}
