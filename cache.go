package beliefdb

import (
	"container/list"
	"sync"
)

// cacheEntry distinguishes "present" (vals != nil) from "confirmed absent"
// (tombstone); keys never looked up are simply not in the cache.
type cacheEntry struct {
	loc   Location
	vals  []Value // nil = tombstone
	dirty bool
}

// cachingLayer fronts a Backend with a bounded LRU cache. In write-through
// mode every mutation is committed immediately; in write-back mode dirty
// entries are committed when evicted, flushed, resized or closed, exactly
// once each. Cached value lists are immutable: an update replaces the entry.
type cachingLayer struct {
	mu      sync.Mutex
	backend Backend

	cap          int
	writeThrough bool
	forceDirty   bool
	readOnly     bool

	order *list.List // front = most recently used
	items map[string]*list.Element
	dirty int // number of dirty entries

	hits      uint64
	misses    uint64
	evictions uint64
}

func newCachingLayer(backend Backend, size int, writeThrough, forceDirty, readOnly bool) *cachingLayer {
	return &cachingLayer{
		backend:      backend,
		cap:          size,
		writeThrough: writeThrough,
		forceDirty:   forceDirty && !readOnly,
		readOnly:     readOnly,
		order:        list.New(),
		items:        make(map[string]*list.Element),
	}
}

func (c *cachingLayer) Get(loc Location) ([]Value, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cap == 0 {
		return c.backend.Get(loc)
	}
	if el, ok := c.items[loc.Key()]; ok {
		c.hits++
		c.order.MoveToFront(el)
		e := el.Value.(*cacheEntry)
		return e.vals, e.vals != nil, nil
	}
	c.misses++
	vals, found, err := c.backend.Get(loc)
	if err != nil {
		return nil, false, err
	}
	if !found {
		vals = nil
	}
	e := &cacheEntry{loc: loc, vals: vals, dirty: c.forceDirty && found}
	if e.dirty {
		c.dirty++
	}
	if err := c.insert(e); err != nil {
		return nil, false, err
	}
	return vals, found, nil
}

func (c *cachingLayer) Put(loc Location, vals []Value) error {
	if vals == nil {
		vals = []Value{}
	}
	return c.update(loc, vals, "put")
}

// Remove stores a tombstone; the physical delete happens at commit time.
func (c *cachingLayer) Remove(loc Location) error {
	return c.update(loc, nil, "remove")
}

func (c *cachingLayer) update(loc Location, vals []Value, op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readOnly {
		return &ReadOnlyError{Op: op, Loc: loc}
	}
	if c.cap == 0 {
		return c.commitState(loc, vals)
	}
	if el, ok := c.items[loc.Key()]; ok {
		c.order.MoveToFront(el)
		e := el.Value.(*cacheEntry)
		e.vals = vals
		if !e.dirty {
			e.dirty = true
			c.dirty++
		}
		if c.writeThrough {
			if err := c.commit(e); err != nil {
				// The entry now holds state the backend rejected; drop it
				// so the next read sees the backend's truth.
				c.invalidateLocked(loc)
				return err
			}
		}
		return nil
	}
	e := &cacheEntry{loc: loc, vals: vals, dirty: true}
	c.dirty++
	if c.writeThrough {
		if err := c.commit(e); err != nil {
			// Never cached, so there is nothing to keep the counter for.
			c.dirty--
			return err
		}
	}
	return c.insert(e)
}

// insert adds an entry at the front and evicts from the back, committing any
// dirty evictee before its slot is reused.
func (c *cachingLayer) insert(e *cacheEntry) error {
	c.items[e.loc.Key()] = c.order.PushFront(e)
	for c.order.Len() > c.cap {
		el := c.order.Back()
		victim := el.Value.(*cacheEntry)
		if victim.dirty {
			if err := c.commit(victim); err != nil {
				return err
			}
		}
		c.order.Remove(el)
		delete(c.items, victim.loc.Key())
		c.evictions++
	}
	return nil
}

func (c *cachingLayer) commit(e *cacheEntry) error {
	if err := c.commitState(e.loc, e.vals); err != nil {
		return err
	}
	if e.dirty {
		e.dirty = false
		c.dirty--
	}
	return nil
}

func (c *cachingLayer) commitState(loc Location, vals []Value) error {
	if vals == nil {
		return c.backend.Remove(loc)
	}
	return c.backend.Put(loc, vals)
}

// Flush commits every dirty entry. Entries stay cached and become clean.
func (c *cachingLayer) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked()
}

func (c *cachingLayer) flushLocked() error {
	for el := c.order.Back(); el != nil; el = el.Prev() {
		e := el.Value.(*cacheEntry)
		if e.dirty {
			if err := c.commit(e); err != nil {
				return err
			}
		}
	}
	return nil
}

// HasDirty reports whether any uncommitted write is pending.
func (c *cachingLayer) HasDirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty > 0
}

// Resize changes the capacity, flushing all dirty entries first so shrinking
// never races a deferred commit. Sizes below zero disable caching, same as
// Options.CacheSize.
func (c *cachingLayer) Resize(size int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.flushLocked(); err != nil {
		return err
	}
	if size < 0 {
		size = 0
	}
	c.cap = size
	for c.order.Len() > c.cap {
		el := c.order.Back()
		victim := el.Value.(*cacheEntry)
		c.order.Remove(el)
		delete(c.items, victim.loc.Key())
		c.evictions++
	}
	return nil
}

// invalidateLocked drops any cached state for loc without committing it.
// Caller holds c.mu.
func (c *cachingLayer) invalidateLocked(loc Location) {
	if el, ok := c.items[loc.Key()]; ok {
		if el.Value.(*cacheEntry).dirty {
			c.dirty--
		}
		c.order.Remove(el)
		delete(c.items, loc.Key())
	}
}

func (c *cachingLayer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked()
}

func (c *cachingLayer) Stats() (hits, misses, evictions uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, c.evictions
}
