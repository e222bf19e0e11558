package pager

import (
	"container/list"

	"sawitdb/internal/page"
)

// lruCache is an ordered page-id -> *page.Page map with move-to-MRU on
// every access, insert, or write, and LRU-end eviction when over
// capacity. Go has no built-in ordered associative container, so this
// follows the design note's fallback: a hash map plus a doubly linked
// list of nodes (container/list).
type lruCache struct {
	capacity int
	ll       *list.List // front = MRU, back = LRU
	index    map[page.ID]*list.Element
}

type cacheEntry struct {
	id  page.ID
	pg  *page.Page
}

func newLRUCache(capacity int) *lruCache {
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	return &lruCache{
		capacity: capacity,
		ll:       list.New(),
		index:    make(map[page.ID]*list.Element, capacity),
	}
}

// get returns the cached page, promoting it to MRU on a hit.
func (c *lruCache) get(id page.ID) (*page.Page, bool) {
	el, ok := c.index[id]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*cacheEntry).pg, true
}

// put inserts or replaces the cached page, promoting it to MRU, and
// evicts the LRU entry (skipping pinned pages) when over capacity.
// It returns the evicted page, if any, so the caller can flush it.
func (c *lruCache) put(id page.ID, pg *page.Page) *page.Page {
	if el, ok := c.index[id]; ok {
		el.Value.(*cacheEntry).pg = pg
		c.ll.MoveToFront(el)
		return nil
	}

	el := c.ll.PushFront(&cacheEntry{id: id, pg: pg})
	c.index[id] = el

	if c.ll.Len() <= c.capacity {
		return nil
	}
	return c.evictOne()
}

// evictOne removes the least-recently-used unpinned entry and returns
// its page. It returns nil if every entry is pinned.
func (c *lruCache) evictOne() *page.Page {
	for el := c.ll.Back(); el != nil; el = el.Prev() {
		entry := el.Value.(*cacheEntry)
		if entry.pg.Pinned() {
			continue
		}
		c.ll.Remove(el)
		delete(c.index, entry.id)
		return entry.pg
	}
	return nil
}

func (c *lruCache) len() int { return c.ll.Len() }

// all returns every cached page, MRU-first, for use by Close's flush pass.
func (c *lruCache) all() []*page.Page {
	out := make([]*page.Page, 0, c.ll.Len())
	for el := c.ll.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*cacheEntry).pg)
	}
	return out
}
