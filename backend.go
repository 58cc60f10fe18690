package beliefdb

// Backend is the flat physical storage a Store runs on top of. Keys are
// Location paths; each key holds an ordered list of values. Backends also
// keep a registry of primitive entities and answer structural queries
// (subslot listing, whole-store entity iteration) derived from stored keys.
//
// Backends are non-transactional: each call is applied individually. They
// must support concurrent readers; writes are serialized by the Store.
type Backend interface {
	// Get returns the value list stored at loc, with false if no record
	// exists there.
	Get(loc Location) ([]Value, bool, error)

	// Put stores the value list at loc, replacing any previous record, and
	// registers loc's primitive entity. The caller retains no right to
	// mutate vals afterwards.
	Put(loc Location, vals []Value) error

	// Remove deletes the record at loc. Removing a missing record is not
	// an error.
	Remove(loc Location) error

	// ListSubslots returns the child elements present directly beneath
	// loc, in key order, or nil if there are none. Structure is implied by
	// stored records: a child is listed while any record exists at or
	// below it.
	ListSubslots(loc Location) ([]Element, error)

	// AddEntity registers a primitive entity that may hold no records yet.
	AddEntity(name string) error

	// RemoveEntity drops an entity from the registry. Records below it
	// must already be gone.
	RemoveEntity(name string) error

	// HasEntity reports whether the entity is registered.
	HasEntity(name string) (bool, error)

	// Entities iterates registered primitive entities in name order,
	// stopping at the first error fn returns.
	Entities(fn func(name string) error) error

	// Flush forces buffered writes to durable storage, where applicable.
	Flush() error

	// Close releases the backend. Further calls return ErrClosed.
	Close() error
}
