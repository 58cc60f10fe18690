package beliefdb

import (
	"sort"
	"strings"
	"sync"
)

type memRecord struct {
	loc  Location
	vals []Value
}

// memBackend is a transient in-memory Backend intended for tests and
// short-lived stores. Records live in a map plus a sorted key slice, so
// structural queries are prefix scans like in the durable backend.
type memBackend struct {
	mu     sync.RWMutex
	recs   map[string]*memRecord
	keys   []string // sorted
	ents   map[string]struct{}
	closed bool
}

// NewMemBackend returns an empty in-memory backend.
func NewMemBackend() Backend {
	return &memBackend{
		recs: make(map[string]*memRecord),
		ents: make(map[string]struct{}),
	}
}

func (b *memBackend) Get(loc Location) ([]Value, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, false, ErrClosed
	}
	rec := b.recs[loc.Key()]
	if rec == nil {
		return nil, false, nil
	}
	return rec.vals, true, nil
}

func (b *memBackend) Put(loc Location, vals []Value) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	key := loc.Key()
	if rec := b.recs[key]; rec != nil {
		rec.vals = vals
		return nil
	}
	b.recs[key] = &memRecord{loc: loc, vals: vals}
	i := sort.SearchStrings(b.keys, key)
	b.keys = append(b.keys, "")
	copy(b.keys[i+1:], b.keys[i:])
	b.keys[i] = key
	b.ents[loc.EntityName()] = struct{}{}
	return nil
}

func (b *memBackend) Remove(loc Location) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	key := loc.Key()
	if b.recs[key] == nil {
		return nil
	}
	delete(b.recs, key)
	i := sort.SearchStrings(b.keys, key)
	b.keys = append(b.keys[:i], b.keys[i+1:]...)
	return nil
}

func (b *memBackend) ListSubslots(loc Location) ([]Element, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}
	prefix := loc.Key() + "/"
	depth := loc.Len()
	var children []Element
	seen := make(map[string]bool)
	for i := sort.SearchStrings(b.keys, prefix); i < len(b.keys); i++ {
		key := b.keys[i]
		if !strings.HasPrefix(key, prefix) {
			break
		}
		child := b.recs[key].loc.At(depth)
		ck := child.String()
		if !seen[ck] {
			seen[ck] = true
			children = append(children, child)
		}
	}
	return children, nil
}

func (b *memBackend) AddEntity(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.ents[name] = struct{}{}
	return nil
}

func (b *memBackend) RemoveEntity(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	delete(b.ents, name)
	return nil
}

func (b *memBackend) HasEntity(name string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return false, ErrClosed
	}
	_, ok := b.ents[name]
	return ok, nil
}

func (b *memBackend) Entities(fn func(name string) error) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	names := make([]string, 0, len(b.ents))
	for name := range b.ents {
		names = append(names, name)
	}
	b.mu.RUnlock()

	sort.Strings(names)
	for _, name := range names {
		if err := fn(name); err != nil {
			return err
		}
	}
	return nil
}

func (b *memBackend) Flush() error { return nil }

func (b *memBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.recs = nil
	b.keys = nil
	b.ents = nil
	return nil
}
