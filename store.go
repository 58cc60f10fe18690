package beliefdb

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
)

// Built-in entity names. Slot metadata hangs off these: an entity becomes a
// slot by holding (X, isa, =slot); a pair of slots become inverses by
// holding (X, inverse, =Y) with masterinverse=true on the master side; a
// symmetric slot is its own inverse with masterinverse=true.
const (
	slotEntity        = "slot"
	isaSlot           = "isa"
	inverseSlot       = "inverse"
	masterInverseSlot = "masterinverse"

	// refSlot names the hidden derived-index namespace. The '#' makes it
	// illegal as an application slot name, so no collision is possible.
	refSlot = "#refs"
)

const DefaultCacheSize = 4096

// InMemory can be passed to OpenFile instead of a path to get a transient
// in-memory store.
const InMemory = ":memory:"

type Options struct {
	// ReadOnly rejects every mutation with a ReadOnlyError. The inversion
	// table is computed once at open and never touched again.
	ReadOnly bool

	// AutoFix repairs missing essential slot metadata at open instead of
	// refusing to open. Ignored in read-only mode.
	AutoFix bool

	// CacheSize bounds the LRU cache in entries. Zero means
	// DefaultCacheSize; negative disables caching.
	CacheSize int

	// WriteBack defers physical commits until eviction, flush or close.
	// The default is write-through.
	WriteBack bool

	// ForceDirty treats every cached value as dirty pre-emptively, for
	// backends whose returned values the caller might mutate in place.
	ForceDirty bool

	// IsTesting trades durability for speed in file-backed stores.
	IsTesting bool

	Logf    func(format string, args ...any)
	Verbose bool
}

// Store is the storage and indexing core of the knowledge base: it
// canonicalizes master/slave slot usage, maintains the hidden reverse-pointer
// index, and funnels physical reads and writes through a bounded LRU cache.
//
// All operations are synchronous. A single coarse lock serializes them;
// even reads may mutate the cache.
type Store struct {
	mu      sync.Mutex
	backend Backend
	cache   *cachingLayer
	inv     *inversionTable
	opt     Options
	logf    func(format string, args ...any)
	closed  bool

	readCount  atomic.Uint64
	writeCount atomic.Uint64
}

// Open builds a Store on an existing backend. The Store takes ownership:
// closing the Store closes the backend.
func Open(backend Backend, opt Options) (*Store, error) {
	size := opt.CacheSize
	if size == 0 {
		size = DefaultCacheSize
	} else if size < 0 {
		size = 0
	}
	logf := opt.Logf
	if logf == nil {
		logf = func(format string, args ...any) {
			slog.Debug(fmt.Sprintf(format, args...))
		}
	}
	s := &Store{
		backend: backend,
		cache:   newCachingLayer(backend, size, !opt.WriteBack, opt.ForceDirty, opt.ReadOnly),
		inv:     newInversionTable(),
		opt:     opt,
		logf:    logf,
	}
	if err := s.checkEssentials(); err != nil {
		return nil, err
	}
	if err := s.buildInversionTable(); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenFile opens a Bolt-backed store at path, or a transient in-memory one
// when path is InMemory.
func OpenFile(path string, opt Options) (*Store, error) {
	var backend Backend
	if path == InMemory {
		backend = NewMemBackend()
	} else {
		var err error
		backend, err = OpenBoltBackend(path, BoltOptions{IsTesting: opt.IsTesting})
		if err != nil {
			return nil, err
		}
	}
	s, err := Open(backend, opt)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return s, nil
}

type essentialBelief struct {
	loc Location
	val Value
}

// essentialBeliefs is the metadata skeleton every store must carry: isa,
// inverse and masterinverse declared as slots, and inverse declared
// symmetric (an inverse relationship reads the same from both ends).
func essentialBeliefs() []essentialBelief {
	return []essentialBelief{
		{At(isaSlot, isaSlot), EntityRef(slotEntity)},
		{At(inverseSlot, isaSlot), EntityRef(slotEntity)},
		{At(masterInverseSlot, isaSlot), EntityRef(slotEntity)},
		{At(inverseSlot, masterInverseSlot), Bool(true)},
		{At(inverseSlot, inverseSlot), EntityRef(inverseSlot)},
	}
}

// checkEssentials verifies the essential slot metadata, repairing it under
// read-write+autofix and refusing to open otherwise.
func (s *Store) checkEssentials() error {
	var missing []essentialBelief

	hasRoot, err := s.backend.HasEntity(slotEntity)
	if err != nil {
		return err
	}
	for _, ess := range essentialBeliefs() {
		vals, _, err := s.physGet(ess.loc)
		if err != nil {
			return err
		}
		if !containsValue(vals, ess.val) {
			missing = append(missing, ess)
		}
	}
	if hasRoot && len(missing) == 0 {
		return nil
	}

	if s.opt.ReadOnly || !s.opt.AutoFix {
		return configErrf(Entity(slotEntity), "", "essential slot metadata missing (%d beliefs); open read-write with AutoFix to repair", len(missing))
	}

	s.logf("beliefdb: repairing %d missing essential beliefs", len(missing))
	if err := s.backend.AddEntity(slotEntity); err != nil {
		return err
	}
	for _, ess := range missing {
		if _, err := s.addRaw(ess.loc, ess.val); err != nil {
			return err
		}
	}
	return nil
}

// ValidateSlotName reports whether a name is legal for application slots and
// entities. The reserved derived-index token is rejected here, which is what
// keeps the hidden namespace collision-free.
func ValidateSlotName(name string) error {
	if name == "" {
		return configErrf(Location{}, name, "empty slot name")
	}
	if strings.ContainsRune(name, '#') {
		return configErrf(Location{}, name, "slot name %q contains reserved character '#'", name)
	}
	return nil
}

func (s *Store) checkAppNames(loc Location) error {
	for i := 0; i < loc.Len(); i++ {
		if loc.IsRefAt(i) {
			continue
		}
		if err := ValidateSlotName(loc.At(i).Name()); err != nil {
			return err
		}
	}
	return nil
}

// AddValue stores a value at a query location, true iff newly added.
// Slave-slot locations are rewritten to master form; symmetric slots are
// double-stored. A pointer value to a nonexistent location fails with
// ReferentNotFoundError and writes nothing.
func (s *Store) AddValue(loc Location, v Value) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	if s.opt.ReadOnly {
		return false, &ReadOnlyError{Op: "addValue", Loc: loc}
	}
	if err := s.checkAppNames(loc); err != nil {
		return false, err
	}
	if _, ok := loc.LastSlot(); !ok {
		return false, &TypeMismatchError{Loc: loc, Expected: KindNone, Actual: KindRef, Msg: "addValue location must end in a slot name"}
	}

	qloc, val, slot, err := s.canonicalBelief(loc, v)
	if err != nil {
		return false, err
	}
	if err := s.inv.errFor(slot); err != nil {
		return false, err
	}
	if s.opt.Verbose {
		s.logf("beliefdb: ADD %v << %v", qloc, val)
	}

	if s.inv.isSlave(slot) {
		// A trailing slave only survives canonicalization when the value
		// is not an entity reference, and slaves hold nothing else.
		return false, &TypeMismatchError{Loc: qloc, Expected: KindRef, Actual: val.Kind(), Msg: "slave slot accepts only entity references"}
	}
	if s.inv.isSymmetric(slot) {
		target, isRef := val.RefLocation()
		if !isRef {
			return false, &TypeMismatchError{Loc: qloc, Expected: KindRef, Actual: val.Kind(), Msg: "symmetric slot accepts only entity references"}
		}
		added, err := s.addRaw(qloc, val)
		if err != nil {
			return false, err
		}
		// Deliberate double store: the relationship reads identically from
		// both endpoints.
		if _, err := s.addRaw(target.AppendSlot(slot), Ref(qloc.Parent())); err != nil {
			return false, err
		}
		return added, nil
	}
	return s.addRaw(qloc, val)
}

// DeleteValue removes a value from a query location, true iff something was
// removed. Deleting a belief cascades: derived entries at and beneath it are
// cleaned up, and holders of pointers at it lose those values.
func (s *Store) DeleteValue(loc Location, v Value) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	if s.opt.ReadOnly {
		return false, &ReadOnlyError{Op: "deleteValue", Loc: loc}
	}
	if _, ok := loc.LastSlot(); !ok {
		return false, &TypeMismatchError{Loc: loc, Expected: KindNone, Actual: KindRef, Msg: "deleteValue location must end in a slot name"}
	}

	qloc, val, slot, err := s.canonicalBelief(loc, v)
	if err != nil {
		return false, err
	}
	if err := s.inv.errFor(slot); err != nil {
		return false, err
	}
	if s.opt.Verbose {
		s.logf("beliefdb: DEL %v >> %v", qloc, val)
	}

	budget := maxCascadeOps
	if s.inv.isSlave(slot) {
		return false, nil // slaves hold no physical values for non-refs
	}
	if s.inv.isSymmetric(slot) {
		target, isRef := val.RefLocation()
		if !isRef {
			return false, nil
		}
		removed, err := s.deleteRaw(qloc, val, &budget)
		if err != nil {
			return false, err
		}
		if removed {
			// Mirror delete; the cascade may have consumed it already.
			mirrorQ := target.AppendSlot(slot)
			mirrorV := Ref(qloc.Parent())
			vals, _, err := s.physGet(mirrorQ)
			if err != nil {
				return false, err
			}
			if containsValue(vals, mirrorV) {
				if _, err := s.deleteRaw(mirrorQ, mirrorV, &budget); err != nil {
					return false, err
				}
			}
		}
		return removed, nil
	}
	return s.deleteRaw(qloc, val, &budget)
}

// canonicalBelief canonicalizes loc with v appended as the belief value and
// splits the result back into query location, value and final slot.
func (s *Store) canonicalBelief(loc Location, v Value) (Location, Value, string, error) {
	belief, err := s.canonicalLoc(loc.AppendRef(v))
	if err != nil {
		return Location{}, Value{}, "", err
	}
	qloc := belief.Parent()
	slot, ok := qloc.LastSlot()
	if !ok {
		return Location{}, Value{}, "", configErrf(belief, "", "canonical belief does not end in a slot/value pair")
	}
	return qloc, belief.At(belief.Len() - 1).Value(), slot, nil
}

// Values returns the values stored at a query location. For a non-symmetric
// slave slot the result is synthesized from the reverse-pointer index on the
// master slot; no physical record backs it.
func (s *Store) Values(loc Location) ([]Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.valuesLocked(loc)
}

func (s *Store) valuesLocked(loc Location) ([]Value, error) {
	if s.closed {
		return nil, ErrClosed
	}
	cloc, err := s.canonicalLoc(loc)
	if err != nil {
		return nil, err
	}
	slot, ok := cloc.LastSlot()
	if !ok {
		return nil, &TypeMismatchError{Loc: loc, Expected: KindNone, Actual: KindRef, Msg: "query location must end in a slot name"}
	}
	if err := s.inv.errFor(slot); err != nil {
		return nil, err
	}
	if master, isSlave := s.inv.masterOf(slot); isSlave && master != slot {
		srcs, err := s.reversePointersRaw(cloc.Parent(), master)
		if err != nil {
			return nil, err
		}
		vals := make([]Value, len(srcs))
		for i, src := range srcs {
			vals[i] = Ref(src)
		}
		return vals, nil
	}
	vals, _, err := s.physGet(cloc)
	if err != nil {
		return nil, err
	}
	return slices.Clone(vals), nil
}

// NumValues returns the number of values at a query location.
func (s *Store) NumValues(loc Location) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vals, err := s.valuesLocked(loc)
	if err != nil {
		return 0, err
	}
	return len(vals), nil
}

// ReversePointers returns the locations holding a pointer at loc through the
// given slot. For a non-symmetric slave slot the answer is read off the
// master slot's physical values instead of the derived index.
func (s *Store) ReversePointers(loc Location, slot string) ([]Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	cloc, err := s.canonicalLoc(loc)
	if err != nil {
		return nil, err
	}
	if err := s.inv.errFor(slot); err != nil {
		return nil, err
	}
	if master, isSlave := s.inv.masterOf(slot); isSlave && master != slot {
		vals, _, err := s.physGet(cloc.AppendSlot(master))
		if err != nil {
			return nil, err
		}
		var out []Location
		for _, v := range vals {
			if target, isRef := v.RefLocation(); isRef {
				out = append(out, target)
			}
		}
		return out, nil
	}
	return s.reversePointersRaw(cloc, slot)
}

// Canonicalize rewrites slave-slot usage in loc into the unique master-only
// form. Idempotent.
func (s *Store) Canonicalize(loc Location) (Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Location{}, ErrClosed
	}
	return s.canonicalLoc(loc)
}

// Belief resolves (loc, v) to the canonical belief location, flipping
// non-canonical symmetric orderings as needed.
func (s *Store) Belief(loc Location, v Value) (Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Location{}, ErrClosed
	}
	return s.canonicalLoc(loc.AppendRef(v))
}

// Subslots lists the children of a location. Derived-index entries are
// hidden; an application never observes the reserved namespace.
func (s *Store) Subslots(loc Location) ([]Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	cloc, err := s.canonicalLoc(loc)
	if err != nil {
		return nil, err
	}
	children, err := s.listRaw(cloc)
	if err != nil {
		return nil, err
	}
	filtered := children[:0:0]
	for _, child := range children {
		if !child.IsRef() && child.Name() == refSlot {
			continue
		}
		filtered = append(filtered, child)
	}
	return filtered, nil
}

// Entities returns the registered primitive entities in name order.
func (s *Store) Entities() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	var names []string
	err := s.backend.Entities(func(name string) error {
		names = append(names, name)
		return nil
	})
	return names, err
}

// AddEntity registers a primitive entity so pointers at it validate even
// before it holds any beliefs.
func (s *Store) AddEntity(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.opt.ReadOnly {
		return &ReadOnlyError{Op: "addEntity", Loc: Entity(name)}
	}
	if err := ValidateSlotName(name); err != nil {
		return err
	}
	return s.backend.AddEntity(name)
}

// DeleteEntity removes an entity with its whole subtree, cascading through
// every pointer at or beneath it. Returns false if the entity was unknown.
func (s *Store) DeleteEntity(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	if s.opt.ReadOnly {
		return false, &ReadOnlyError{Op: "deleteEntity", Loc: Entity(name)}
	}
	switch name {
	case slotEntity, isaSlot, inverseSlot, masterInverseSlot:
		return false, configErrf(Entity(name), "", "cannot delete built-in entity %q", name)
	}
	ok, err := s.backend.HasEntity(name)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if s.opt.Verbose {
		s.logf("beliefdb: DEL ENTITY %s", name)
	}
	budget := maxCascadeOps
	if err := s.removeSubtree(Entity(name), &budget); err != nil {
		return false, err
	}
	if err := s.backend.RemoveEntity(name); err != nil {
		return false, err
	}
	return true, nil
}

// ResizeCache changes the cache capacity; dirty entries are flushed first.
// A negative size disables caching, same as a negative Options.CacheSize.
func (s *Store) ResizeCache(size int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.cache.Resize(size)
}

// Flush commits all pending cache writes and syncs the backend.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.cache.Flush(); err != nil {
		return err
	}
	return s.backend.Flush()
}

// Close flushes every pending write and closes the backend. Safe to call
// once; the store is unusable afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.cache.Close(); err != nil {
		s.backend.Close()
		return err
	}
	return s.backend.Close()
}

type StoreStats struct {
	Reads          uint64
	Writes         uint64
	CacheHits      uint64
	CacheMisses    uint64
	CacheEvictions uint64
}

func (s *Store) Stats() StoreStats {
	hits, misses, evictions := s.cache.Stats()
	return StoreStats{
		Reads:          s.readCount.Load(),
		Writes:         s.writeCount.Load(),
		CacheHits:      hits,
		CacheMisses:    misses,
		CacheEvictions: evictions,
	}
}
