package beliefdb

// The reverse-pointer index lives in hidden locations under the reserved
// refSlot name: a pointer Ref(L) stored at (..., S) is recorded at
// [L..., #refs, S] as a Ref to the holder's parent location. Derived entries
// are physical records but never primary data; subslot listings returned to
// callers filter them out.

// physGet reads a value list through the cache.
func (s *Store) physGet(loc Location) ([]Value, bool, error) {
	s.readCount.Add(1)
	return s.cache.Get(loc)
}

func (s *Store) physPut(loc Location, vals []Value) error {
	s.writeCount.Add(1)
	return s.cache.Put(loc, vals)
}

func (s *Store) physRemove(loc Location) error {
	s.writeCount.Add(1)
	return s.cache.Remove(loc)
}

// listRaw lists children including derived entries. Structural queries read
// the backend directly, so pending cache writes are committed first.
func (s *Store) listRaw(loc Location) ([]Element, error) {
	if s.cache.HasDirty() {
		if err := s.cache.Flush(); err != nil {
			return nil, err
		}
	}
	return s.backend.ListSubslots(loc)
}

// addRaw stores a value at a canonical query location, validating pointer
// referents and maintaining the derived index. Returns false if the value
// was already present.
func (s *Store) addRaw(qloc Location, v Value) (bool, error) {
	slot, ok := qloc.LastSlot()
	if !ok {
		return false, &TypeMismatchError{Loc: qloc, Expected: KindNone, Actual: KindRef, Msg: "addValue target must end in a slot name"}
	}

	vals, _, err := s.physGet(qloc)
	if err != nil {
		return false, err
	}
	if containsValue(vals, v) {
		return false, nil
	}

	// Validate before any write so a failed add leaves the store untouched.
	if err := s.validateValueRefs(qloc, v, 0); err != nil {
		return false, err
	}

	newVals, _ := insertValue(vals, v)
	if err := s.physPut(qloc, newVals); err != nil {
		return false, err
	}
	if target, isRef := v.RefLocation(); isRef {
		if err := s.addDerived(target, slot, qloc.Parent()); err != nil {
			return false, err
		}
	}
	if err := s.noteMetadataWrite(qloc); err != nil {
		return true, err
	}
	return true, nil
}

// validateValueRefs checks every pointer inside v, recursively through
// lists, against the store. Only top-level refs get derived entries; nested
// ones still must not dangle at store time.
func (s *Store) validateValueRefs(at Location, v Value, depth int) error {
	if depth > maxValidateDepth {
		return configErrf(at, "", "pointer validation exceeded depth %d", maxValidateDepth)
	}
	switch v.Kind() {
	case KindRef:
		target, _ := v.RefLocation()
		exists, err := s.locationExists(target, depth+1)
		if err != nil {
			return err
		}
		if !exists {
			return &ReferentNotFoundError{Loc: at, Ref: target}
		}
	case KindList:
		for _, item := range v.ListValue() {
			if err := s.validateValueRefs(at, item, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// locationExists checks a pointer target: a primitive entity must be
// registered; a belief location must have each wrapped value actually stored
// at its position; a trailing slot must hold values or structure.
func (s *Store) locationExists(loc Location, depth int) (bool, error) {
	if depth > maxValidateDepth {
		return false, configErrf(loc, "", "existence check exceeded depth %d", maxValidateDepth)
	}
	if loc.IsZero() {
		return false, nil
	}
	ok, err := s.backend.HasEntity(loc.EntityName())
	if err != nil || !ok {
		return false, err
	}

	prefix := loc.Prefix(1)
	for i := 1; i < loc.Len(); i++ {
		e := loc.At(i)
		if e.IsRef() {
			if _, endsInSlot := prefix.LastSlot(); !endsInSlot && prefix.Len() > 1 {
				return false, nil
			}
			vals, _, err := s.physGet(prefix)
			if err != nil {
				return false, err
			}
			if !containsValue(vals, e.Value()) {
				return false, nil
			}
		}
		prefix = prefix.Append(e)
	}

	if _, endsInSlot := loc.LastSlot(); endsInSlot && loc.Len() > 1 {
		vals, _, err := s.physGet(loc)
		if err != nil {
			return false, err
		}
		if len(vals) > 0 {
			return true, nil
		}
		children, err := s.listRaw(loc)
		if err != nil {
			return false, err
		}
		return len(children) > 0, nil
	}
	return true, nil
}

// addDerived records source as a pointer holder in the derived entry keyed
// by (target, slot).
func (s *Store) addDerived(target Location, slot string, source Location) error {
	dloc := target.AppendSlot(refSlot).AppendSlot(slot)
	vals, _, err := s.physGet(dloc)
	if err != nil {
		return err
	}
	newVals, added := insertValue(vals, Ref(source))
	if !added {
		return nil
	}
	return s.physPut(dloc, newVals)
}

// removeDerived drops source from the derived entry keyed by (target, slot).
// A missing entry is index corruption, never silently continued past.
func (s *Store) removeDerived(target Location, slot string, source Location) error {
	dloc := target.AppendSlot(refSlot).AppendSlot(slot)
	vals, _, err := s.physGet(dloc)
	if err != nil {
		return err
	}
	newVals, removed := removeValue(vals, Ref(source))
	if !removed {
		return &IndexCorruptionError{Loc: target, Slot: slot, Source: source}
	}
	if len(newVals) == 0 {
		return s.physRemove(dloc)
	}
	return s.physPut(dloc, newVals)
}

// reversePointersRaw dereferences the derived entry for (target, slot).
func (s *Store) reversePointersRaw(target Location, slot string) ([]Location, error) {
	dloc := target.AppendSlot(refSlot).AppendSlot(slot)
	vals, _, err := s.physGet(dloc)
	if err != nil {
		return nil, err
	}
	out := make([]Location, 0, len(vals))
	for _, v := range vals {
		src, isRef := v.RefLocation()
		if !isRef {
			return nil, &IndexCorruptionError{Loc: target, Slot: slot, Msg: "non-pointer value in derived entry"}
		}
		out = append(out, src)
	}
	return out, nil
}

// deleteRaw removes a value from a canonical query location, cleaning up the
// belief's subtree and derived entries first, then the physical record.
// Returns false if the value was not present.
func (s *Store) deleteRaw(qloc Location, v Value, budget *int) (bool, error) {
	slot, ok := qloc.LastSlot()
	if !ok {
		return false, &TypeMismatchError{Loc: qloc, Expected: KindNone, Actual: KindRef, Msg: "deleteValue target must end in a slot name"}
	}
	vals, _, err := s.physGet(qloc)
	if err != nil {
		return false, err
	}
	if !containsValue(vals, v) {
		return false, nil
	}

	// Everything about the belief goes first: pointers held beneath it,
	// and pointers at it (whose holding values get deleted in turn).
	belief := qloc.AppendRef(v)
	if err := s.removeSubtree(belief, budget); err != nil {
		return false, err
	}

	// The cascade ran arbitrary deletes; refetch. If it consumed our own
	// value, the two cascade paths collided: surface it rather than guess a
	// resolution order.
	vals, _, err = s.physGet(qloc)
	if err != nil {
		return false, err
	}
	if !containsValue(vals, v) {
		return false, &IndexCorruptionError{Loc: qloc, Slot: slot, Msg: "value vanished during its own delete cascade"}
	}

	if target, isRef := v.RefLocation(); isRef {
		if err := s.removeDerived(target, slot, qloc.Parent()); err != nil {
			return false, err
		}
	}

	newVals, _ := removeValue(vals, v)
	if len(newVals) == 0 {
		if err := s.physRemove(qloc); err != nil {
			return false, err
		}
		// The slot subtree is gone with its last value; clean up anything
		// still hanging beneath it (pointers at the bare query, say).
		if err := s.removeSubtree(qloc, budget); err != nil {
			return false, err
		}
	} else {
		if err := s.physPut(qloc, newVals); err != nil {
			return false, err
		}
	}
	if err := s.noteMetadataWrite(qloc); err != nil {
		return true, err
	}
	return true, nil
}

// removeSubtree deletes everything beneath loc, cleaning the derived index
// as it goes: values holding pointers lose their derived entries elsewhere,
// and holders of pointers at anything beneath loc lose those values. The
// walk refetches the child list each round, so deletes triggered mid-walk
// are safe.
func (s *Store) removeSubtree(loc Location, budget *int) error {
	for {
		*budget--
		if *budget <= 0 {
			return configErrf(loc, "", "cascading delete exceeded %d operations", maxCascadeOps)
		}
		children, err := s.listRaw(loc)
		if err != nil {
			return err
		}
		if len(children) == 0 {
			return nil
		}
		child := children[0]
		cl := loc.Append(child)

		switch {
		case !child.IsRef() && child.Name() == refSlot:
			if err := s.removeDerivedSubtree(cl, budget); err != nil {
				return err
			}
		case !child.IsRef():
			vals, _, err := s.physGet(cl)
			if err != nil {
				return err
			}
			if len(vals) > 0 {
				if _, err := s.deleteRaw(cl, vals[0], budget); err != nil {
					return err
				}
			} else {
				// Slot with structure but no values of its own: descend.
				if err := s.removeSubtree(cl, budget); err != nil {
					return err
				}
				if err := s.physRemove(cl); err != nil {
					return err
				}
			}
		default:
			// A belief anchor. If its value is still stored, delete it the
			// regular way (which removes this subtree); otherwise the
			// structure dangles and is cleaned directly.
			vals, _, err := s.physGet(loc)
			if err != nil {
				return err
			}
			if containsValue(vals, child.Value()) {
				if _, err := s.deleteRaw(loc, child.Value(), budget); err != nil {
					return err
				}
			} else {
				if err := s.removeSubtree(cl, budget); err != nil {
					return err
				}
			}
		}
	}
}

// removeDerivedSubtree handles a #refs bucket found under a location being
// removed: every source recorded there still holds a pointer at the dying
// location, so those values are deleted through the regular path, which
// clears the derived entries themselves.
func (s *Store) removeDerivedSubtree(refsLoc Location, budget *int) error {
	target := refsLoc.Parent()
	for {
		*budget--
		if *budget <= 0 {
			return configErrf(refsLoc, "", "cascading delete exceeded %d operations", maxCascadeOps)
		}
		slots, err := s.listRaw(refsLoc)
		if err != nil {
			return err
		}
		if len(slots) == 0 {
			return nil
		}
		if slots[0].IsRef() {
			return &IndexCorruptionError{Loc: target, Slot: "", Msg: "ref element inside derived index bucket"}
		}
		slot := slots[0].Name()
		dloc := refsLoc.Append(slots[0])
		vals, _, err := s.physGet(dloc)
		if err != nil {
			return err
		}
		if len(vals) == 0 {
			// Stale record with no sources left.
			if err := s.physRemove(dloc); err != nil {
				return err
			}
			continue
		}
		src, isRef := vals[0].RefLocation()
		if !isRef {
			return &IndexCorruptionError{Loc: target, Slot: slot, Msg: "non-pointer value in derived entry"}
		}
		removed, err := s.deleteRaw(src.AppendSlot(slot), Ref(target), budget)
		if err != nil {
			return err
		}
		if !removed {
			// The derived entry names a holder that doesn't hold the
			// pointer: the index lies.
			return &IndexCorruptionError{Loc: target, Slot: slot, Source: src}
		}
	}
}

// noteMetadataWrite patches the inversion table after a write that touched
// an entity's inverse/masterinverse metadata, before the mutation returns.
func (s *Store) noteMetadataWrite(qloc Location) error {
	if qloc.Len() != 2 || qloc.IsRefAt(1) {
		return nil
	}
	switch qloc.At(1).Name() {
	case inverseSlot, masterInverseSlot:
		return s.refreshSlot(qloc.EntityName())
	}
	return nil
}
