package beliefdb

// Canonicalization and cascades are bounded by sanity ceilings; exceeding
// one means a cyclic inverse configuration, not a legitimate store.
const (
	maxRewrites      = 64
	maxValidateDepth = 64
	maxCascadeOps    = 100000
)

// inversionTable holds the slave→master and master→slave maps computed from
// the slot hierarchy at open, and patched synchronously whenever a write
// touches an entity's inverse/masterinverse metadata. A symmetric slot
// appears only in slaveToMaster, mapped to itself.
//
// Slots whose metadata is inconsistent land in broken: queries touching them
// fail with a ConfigurationError, everything else proceeds.
type inversionTable struct {
	slaveToMaster map[string]string
	masterToSlave map[string]string
	broken        map[string]error
}

func newInversionTable() *inversionTable {
	return &inversionTable{
		slaveToMaster: make(map[string]string),
		masterToSlave: make(map[string]string),
		broken:        make(map[string]error),
	}
}

// masterOf returns the master of a slave slot. For a symmetric slot it
// returns the slot itself.
func (inv *inversionTable) masterOf(slot string) (string, bool) {
	m, ok := inv.slaveToMaster[slot]
	return m, ok
}

func (inv *inversionTable) isSymmetric(slot string) bool {
	return inv.slaveToMaster[slot] == slot
}

// isSlave reports whether slot is a non-symmetric slave: reads and writes
// through it are mirrored onto the master side.
func (inv *inversionTable) isSlave(slot string) bool {
	m, ok := inv.slaveToMaster[slot]
	return ok && m != slot
}

func (inv *inversionTable) errFor(slot string) error {
	return inv.broken[slot]
}

// dropSlot removes every mapping that involves slot, in either role.
func (inv *inversionTable) dropSlot(slot string) {
	if m, ok := inv.slaveToMaster[slot]; ok {
		delete(inv.slaveToMaster, slot)
		if inv.masterToSlave[m] == slot {
			delete(inv.masterToSlave, m)
		}
	}
	if sl, ok := inv.masterToSlave[slot]; ok {
		delete(inv.masterToSlave, slot)
		if inv.slaveToMaster[sl] == slot {
			delete(inv.slaveToMaster, sl)
		}
	}
	delete(inv.broken, slot)
}

// refreshSlot recomputes the inversion entries for the given slot entity
// from its stored metadata. Called at open for every slot in the hierarchy,
// and synchronously after any write to (slot, inverse) or
// (slot, masterinverse).
func (s *Store) refreshSlot(name string) error {
	inv := s.inv
	inv.dropSlot(name)

	invVals, _, err := s.physGet(At(name, inverseSlot))
	if err != nil {
		return err
	}
	if len(invVals) == 0 {
		return nil // plain slot
	}
	if len(invVals) > 1 {
		inv.broken[name] = configErrf(At(name, inverseSlot), name, "slot declares %d inverses, expected one", len(invVals))
		return nil
	}
	ref, ok := invVals[0].RefLocation()
	if !ok || ref.Len() != 1 {
		inv.broken[name] = configErrf(At(name, inverseSlot), name, "inverse metadata is not a primitive entity reference: %v", invVals[0])
		return nil
	}
	partner := ref.EntityName()

	selfMaster, err := s.masterFlag(name)
	if err != nil {
		return err
	}

	if partner == name {
		// Symmetric: the slot is its own inverse and must carry the master
		// flag.
		if !selfMaster {
			inv.broken[name] = configErrf(Entity(name), name, "symmetric slot lacks masterinverse=true")
			return nil
		}
		inv.slaveToMaster[name] = name
		delete(inv.broken, name)
		return nil
	}

	partnerMaster, err := s.masterFlag(partner)
	if err != nil {
		return err
	}
	switch {
	case selfMaster && partnerMaster:
		err := configErrf(Entity(name), name, "both %q and %q declare masterinverse=true", name, partner)
		inv.broken[name] = err
		inv.broken[partner] = err
	case selfMaster:
		inv.masterToSlave[name] = partner
		inv.slaveToMaster[partner] = name
		delete(inv.broken, name)
		delete(inv.broken, partner)
	case partnerMaster:
		inv.masterToSlave[partner] = name
		inv.slaveToMaster[name] = partner
		delete(inv.broken, name)
		delete(inv.broken, partner)
	default:
		err := configErrf(Entity(name), name, "inverse pair %q/%q declares no master", name, partner)
		inv.broken[name] = err
		inv.broken[partner] = err
	}
	return nil
}

func (s *Store) masterFlag(slot string) (bool, error) {
	vals, _, err := s.physGet(At(slot, masterInverseSlot))
	if err != nil {
		return false, err
	}
	return containsValue(vals, Bool(true)), nil
}

// buildInversionTable walks the slot hierarchy rooted at the built-in slot
// entity (following reverse isa pointers, so slot taxonomies nest) and
// refreshes every slot found.
func (s *Store) buildInversionTable() error {
	seen := map[string]bool{}
	queue := []string{slotEntity}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true

		if cur != slotEntity {
			if err := s.refreshSlot(cur); err != nil {
				return err
			}
		}
		srcs, err := s.reversePointersRaw(Entity(cur), isaSlot)
		if err != nil {
			return err
		}
		for _, src := range srcs {
			if src.Len() == 1 {
				queue = append(queue, src.EntityName())
			}
		}
		if len(seen) > maxCascadeOps {
			return configErrf(Entity(cur), "", "slot hierarchy traversal exceeded sanity ceiling")
		}
	}
	return nil
}

// canonicalLoc rewrites any slave-slot usage in loc, including inside
// nested ref values, into master form. Implemented as an iterative fixpoint
// with a shared rewrite budget: exceeding it indicates a cyclic inverse
// configuration and raises a ConfigurationError.
func (s *Store) canonicalLoc(loc Location) (Location, error) {
	budget := maxRewrites
	return s.canonicalLocBudget(loc, &budget)
}

func (s *Store) canonicalLocBudget(loc Location, budget *int) (Location, error) {
	inv := s.inv
restart:
	for {
		if *budget <= 0 {
			return Location{}, configErrf(loc, "", "canonicalization exceeded %d rewrites, cyclic inverse configuration?", maxRewrites)
		}

		// Canonicalize values wrapped in ref elements first; a rewrite there
		// can expose a slave pattern at this level.
		for i := 0; i < loc.Len(); i++ {
			if !loc.IsRefAt(i) {
				continue
			}
			cv, changed, err := s.canonicalValueBudget(loc.At(i).Value(), budget)
			if err != nil {
				return Location{}, err
			}
			if changed {
				*budget--
				loc = replaceElem(loc, i, RefElem(cv))
				continue restart
			}
		}

		// Scan left to right for [..., slaveSlot, =ref] prefixes.
		for i := 1; i+1 < loc.Len(); i++ {
			if loc.IsRefAt(i) || !loc.IsRefAt(i+1) {
				continue
			}
			slot := loc.At(i).Name()
			master, ok := inv.masterOf(slot)
			if !ok {
				continue
			}
			wrapped := loc.At(i + 1).Value()
			target, isRef := wrapped.RefLocation()
			if !isRef {
				continue
			}
			prefix := loc.Prefix(i)
			if inv.isSymmetric(slot) {
				// Symmetric: rewrite only when the (entity, value) pair is
				// out of canonical order.
				if Compare(Ref(prefix), wrapped) <= 0 {
					continue
				}
			}
			rewritten := target.AppendSlot(master).AppendRef(Ref(prefix))
			for j := i + 2; j < loc.Len(); j++ {
				rewritten = rewritten.Append(loc.At(j))
			}
			*budget--
			loc = rewritten
			continue restart
		}

		return loc, nil
	}
}

func (s *Store) canonicalValueBudget(v Value, budget *int) (Value, bool, error) {
	switch v.Kind() {
	case KindRef:
		loc, _ := v.RefLocation()
		cl, err := s.canonicalLocBudget(loc, budget)
		if err != nil {
			return Value{}, false, err
		}
		if cl.Equal(loc) {
			return v, false, nil
		}
		return Ref(cl), true, nil
	case KindList:
		items := v.ListValue()
		var out []Value
		for i, item := range items {
			ci, changed, err := s.canonicalValueBudget(item, budget)
			if err != nil {
				return Value{}, false, err
			}
			if changed && out == nil {
				out = make([]Value, i, len(items))
				copy(out, items[:i])
			}
			if out != nil {
				out = append(out, ci)
			}
		}
		if out == nil {
			return v, false, nil
		}
		return ListOf(out...), true, nil
	default:
		return v, false, nil
	}
}

// replaceElem rebuilds loc with element i replaced.
func replaceElem(loc Location, i int, e Element) Location {
	out := loc.Prefix(i).Append(e)
	for j := i + 1; j < loc.Len(); j++ {
		out = out.Append(loc.At(j))
	}
	return out
}
