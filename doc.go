/*
Package beliefdb implements the storage and indexing core of a
knowledge-representation engine. It stores beliefs of the form
(Entity, Slot, Value), where a value may itself reference another location
in the store, so beliefs about beliefs nest arbitrarily.

We implement:

1. An immutable Location/Value model with a strict total order over
heterogeneous value kinds, computable without touching the backend.

2. A master/slave inverse resolver: a relationship stored under a master
slot is navigable through its declared inverse slot without duplicating
data, while symmetric slots are deliberately double-stored so they read
identically from both endpoints.

3. A reverse-pointer index: every stored entity reference gets a hidden
derived entry under the referenced location, so "who points at me through
slot X" is a single lookup, with cascading cleanup on delete.

4. A bounded LRU cache fronting the flat backend, write-through or
write-back, guaranteeing no dirty entry is lost to eviction or close.

# Technical Details

**Backends.**
The physical layer is a flat key-value store holding ordered value lists
under Location path keys. Child keys extend their parent's key, so subslot
listing is a key-prefix scan and no separate structure records exist. Two
backends ship with the package: a Bolt-backed durable one and a transient
in-memory one for tests.

**Derived index namespace.**
Reverse-pointer entries live under the reserved "#refs" slot beneath the
referenced location. '#' is illegal in application slot names, so the
namespace cannot collide; subslot listings filter it out.

**Slot metadata.**
An entity becomes a slot by holding (X, isa, =slot). Inverse pairs declare
each other via the built-in symmetric "inverse" slot, with
masterinverse=true marking the side that physically stores values. The
slave→master maps are computed at open by traversing the slot hierarchy
and patched synchronously whenever metadata is written.

**Durability.**
The backend is non-transactional. The guarantee maintained here is "no
dangling derived index entry", not crash atomicity; every dirty cache
entry is committed exactly once at eviction, flush, resize or close.
*/
package beliefdb
