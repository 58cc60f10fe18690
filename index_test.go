package beliefdb

import (
	"errors"
	"testing"
)

func TestReferentValidation(t *testing.T) {
	s := setup(t)

	var rnf *ReferentNotFoundError
	if _, err := s.AddValue(At("Bob", "knows"), EntityRef("Nobody")); !errors.As(err, &rnf) {
		t.Fatalf("** pointer to unknown entity stored: %v", err)
	}
	if !rnf.Ref.Equal(Entity("Nobody")) {
		t.Errorf("** error names referent %v, wanted Nobody", rnf.Ref)
	}

	// The failed add wrote nothing.
	eqValues(t, valuesOf(t, s, At("Bob", "knows")))
	deepEqual(t, len(must(s.Subslots(Entity("Bob")))), 0)

	// Pointers nested in lists are validated too.
	if _, err := s.AddValue(At("Bob", "tags"), ListOf(Int(1), EntityRef("Nobody"))); !errors.As(err, &rnf) {
		t.Fatalf("** list with dangling pointer stored: %v", err)
	}

	// A pointer to a belief requires the belief's value to actually be
	// stored, not just its entity.
	ensure(s.AddEntity("Tokyo"))
	bobLives := At("Bob", "livesIn").AppendRef(EntityRef("Tokyo"))
	if _, err := s.AddValue(At("x", "cites"), Ref(bobLives)); !errors.As(err, &rnf) {
		t.Fatalf("** pointer to unstored belief accepted: %v", err)
	}
	addV(t, s, At("Bob", "livesIn"), EntityRef("Tokyo"))
	addV(t, s, At("x", "cites"), Ref(bobLives))
	eqValues(t, valuesOf(t, s, At("x", "cites")), Ref(bobLives))

	// Entity known, but no such value at the belief position.
	if _, err := s.AddValue(At("x", "cites"), Ref(At("Bob", "livesIn").AppendRef(Int(7)))); !errors.As(err, &rnf) {
		t.Fatalf("** pointer to absent belief value accepted: %v", err)
	}
}

func TestReversePointerIndex(t *testing.T) {
	s := setup(t)
	ensure(s.AddEntity("Tokyo"))
	addV(t, s, At("Bob", "livesIn"), EntityRef("Tokyo"))
	addV(t, s, At("Alice", "livesIn"), EntityRef("Tokyo"))
	addV(t, s, At("Alice", "visited"), EntityRef("Tokyo"))

	eqLocs(t, revOf(t, s, Entity("Tokyo"), "livesIn"), Entity("Alice"), Entity("Bob"))
	eqLocs(t, revOf(t, s, Entity("Tokyo"), "visited"), Entity("Alice"))
	eqLocs(t, revOf(t, s, Entity("Tokyo"), "attackedBy"))

	delV(t, s, At("Alice", "livesIn"), EntityRef("Tokyo"))
	eqLocs(t, revOf(t, s, Entity("Tokyo"), "livesIn"), Entity("Bob"))
	eqLocs(t, revOf(t, s, Entity("Tokyo"), "visited"), Entity("Alice"))
}

func TestPointersAtBeliefs(t *testing.T) {
	s := setup(t)
	ensure(s.AddEntity("Tokyo"))
	ensure(s.AddEntity("Japan"))
	addV(t, s, At("Bob", "livesIn"), EntityRef("Tokyo"))
	addV(t, s, At("Gojira", "attacks"), EntityRef("Japan"))

	bobLives := At("Bob", "livesIn").AppendRef(EntityRef("Tokyo"))
	gojiraAttacks := At("Gojira", "attacks").AppendRef(EntityRef("Japan"))

	// A belief about a belief: the attack causes Bob's move.
	addV(t, s, bobLives.AppendSlot("causes"), Ref(gojiraAttacks))

	// The derived entry hangs off the pointed-at belief, not off Japan.
	eqLocs(t, revOf(t, s, gojiraAttacks, "causes"), bobLives)
	eqLocs(t, revOf(t, s, Entity("Japan"), "causes"))
	eqLocs(t, revOf(t, s, Entity("Japan"), "attacks"), Entity("Gojira"))

	eqValues(t, valuesOf(t, s, bobLives.AppendSlot("causes")), Ref(gojiraAttacks))
}

func TestDeleteCascadesThroughBeliefSubtree(t *testing.T) {
	s := setup(t)
	ensure(s.AddEntity("Tokyo"))
	ensure(s.AddEntity("Japan"))
	addV(t, s, At("Bob", "livesIn"), EntityRef("Tokyo"))
	addV(t, s, At("Gojira", "attacks"), EntityRef("Japan"))

	bobLives := At("Bob", "livesIn").AppendRef(EntityRef("Tokyo"))
	gojiraAttacks := At("Gojira", "attacks").AppendRef(EntityRef("Japan"))
	addV(t, s, bobLives.AppendSlot("since"), Int(1999))
	addV(t, s, bobLives.AppendSlot("causes"), Ref(gojiraAttacks))

	// Deleting the attack belief takes out pointers at it, wherever held.
	deepEqual(t, delV(t, s, At("Gojira", "attacks"), EntityRef("Japan")), true)

	eqValues(t, valuesOf(t, s, At("Gojira", "attacks")))
	eqValues(t, valuesOf(t, s, bobLives.AppendSlot("causes")))
	eqLocs(t, revOf(t, s, Entity("Japan"), "attacks"))

	// Unrelated facts under the surviving belief stay.
	eqValues(t, valuesOf(t, s, bobLives.AppendSlot("since")), Int(1999))
	eqValues(t, valuesOf(t, s, At("Bob", "livesIn")), EntityRef("Tokyo"))
}

func TestDeleteEntityCascade(t *testing.T) {
	s := setup(t)
	ensure(s.AddEntity("Tokyo"))
	ensure(s.AddEntity("Japan"))
	addV(t, s, At("Bob", "livesIn"), EntityRef("Tokyo"))
	addV(t, s, At("Gojira", "attacks"), EntityRef("Japan"))

	bobLives := At("Bob", "livesIn").AppendRef(EntityRef("Tokyo"))
	gojiraAttacks := At("Gojira", "attacks").AppendRef(EntityRef("Japan"))
	addV(t, s, bobLives.AppendSlot("causes"), Ref(gojiraAttacks))
	addV(t, s, At("Japan", "population"), Int(125_000_000))

	deepEqual(t, must(s.DeleteEntity("Japan")), true)

	// Everything reachable from Japan is gone, two pointer hops deep: the
	// attack belief, and the causes belief that pointed at it.
	eqValues(t, valuesOf(t, s, At("Gojira", "attacks")))
	eqValues(t, valuesOf(t, s, bobLives.AppendSlot("causes")))
	eqLocs(t, revOf(t, s, Entity("Japan"), "attacks"))

	// Bob's unrelated belief survives.
	eqValues(t, valuesOf(t, s, At("Bob", "livesIn")), EntityRef("Tokyo"))
	deepEqual(t, len(must(s.Subslots(Entity("Gojira")))), 0)
}

func TestDeleteLastValueRemovesSlotStructure(t *testing.T) {
	s := setup(t)
	addV(t, s, At("Bob", "age"), Int(42))
	delV(t, s, At("Bob", "age"), Int(42))

	deepEqual(t, len(must(s.Subslots(Entity("Bob")))), 0)

	// Other slots at the same entity are unaffected.
	addV(t, s, At("Bob", "a"), Int(1))
	addV(t, s, At("Bob", "b"), Int(2))
	delV(t, s, At("Bob", "a"), Int(1))
	children := must(s.Subslots(Entity("Bob")))
	deepEqual(t, len(children), 1)
	deepEqual(t, children[0].Name(), "b")
}

func TestDeleteValueWithRemainingValuesKeepsSubtree(t *testing.T) {
	s := setup(t)
	addV(t, s, At("Bob", "age"), Int(42))
	addV(t, s, At("Bob", "age"), Int(7))
	b42 := At("Bob", "age").AppendRef(Int(42))
	addV(t, s, b42.AppendSlot("source"), Str("census"))

	// Removing one value deletes that value's subtree only.
	delV(t, s, At("Bob", "age"), Int(7))
	eqValues(t, valuesOf(t, s, At("Bob", "age")), Int(42))
	eqValues(t, valuesOf(t, s, b42.AppendSlot("source")), Str("census"))

	delV(t, s, At("Bob", "age"), Int(42))
	eqValues(t, valuesOf(t, s, b42.AppendSlot("source")))
}

func TestListValuesIndexOnlyTopLevelPointers(t *testing.T) {
	s := setup(t)
	ensure(s.AddEntity("Tokyo"))

	// A pointer inside a list is validated but gets no derived entry.
	addV(t, s, At("Bob", "route"), ListOf(EntityRef("Tokyo"), Str("north")))
	eqLocs(t, revOf(t, s, Entity("Tokyo"), "route"))

	addV(t, s, At("Bob", "destination"), EntityRef("Tokyo"))
	eqLocs(t, revOf(t, s, Entity("Tokyo"), "destination"), Entity("Bob"))
}

func TestIndexCorruptionSurfaces(t *testing.T) {
	backend := NewMemBackend()
	s := must(Open(backend, Options{AutoFix: true}))
	t.Cleanup(func() { s.Close() })
	ensure(s.AddEntity("X"))
	ensure(s.AddEntity("Y"))

	// Inject a derived entry naming a holder that holds no such pointer.
	dloc := Entity("X").AppendSlot("#refs").AppendSlot("knows")
	ensure(backend.Put(dloc, []Value{EntityRef("Y")}))

	var ice *IndexCorruptionError
	if _, err := s.DeleteEntity("X"); !errors.As(err, &ice) {
		t.Fatalf("** corrupt index not detected: %v", err)
	}
}

func TestCascadeBudget(t *testing.T) {
	s := setup(t)

	// A long chain of beliefs about beliefs deletes fine within the ceiling.
	loc := At("a", "s")
	addV(t, s, loc, Int(0))
	for i := 1; i < 30; i++ {
		loc = loc.AppendRef(Int(int64(i - 1))).AppendSlot("s")
		addV(t, s, loc, Int(int64(i)))
	}
	deepEqual(t, delV(t, s, At("a", "s"), Int(0)), true)
	deepEqual(t, len(must(s.Subslots(Entity("a")))), 0)
}
