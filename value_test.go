package beliefdb

import (
	"math"
	"testing"
)

// orderedValues lists values in strictly ascending Compare order: kinds by
// declaration, then within each kind per its own rule. Lists and ref
// locations order shorter-first.
func orderedValues() []Value {
	deepList := ListOf(Int(1), ListOf(Int(1), ListOf(Int(2), ListOf(Int(3), Int(4)))))
	deepRef := Ref(At("a", "b").AppendRef(Ref(At("a", "b").AppendRef(EntityRef("c")))))
	return []Value{
		None(),
		Bool(false),
		Bool(true),
		Int(-5),
		Int(0),
		Int(7),
		Float(math.NaN()),
		Float(math.Inf(-1)),
		Float(-1.5),
		Float(2.25),
		Float(math.Inf(1)),
		ListOf(),
		ListOf(Int(9)),
		ListOf(ListOf(Int(1))),
		ListOf(Int(1), Int(2)),
		deepList,
		Ref(Entity("a")),
		Ref(Entity("b")),
		Ref(At("a", "b")),
		deepRef,
		Str(""),
		Str("a"),
		Str("ab"),
		Str("b"),
	}
}

func TestValueCompareTotalOrder(t *testing.T) {
	vals := orderedValues()
	for i, a := range vals {
		for j, b := range vals {
			c := Compare(a, b)
			switch {
			case i == j && c != 0:
				t.Errorf("** Compare(%v, %v) = %d, wanted 0", a, b, c)
			case i < j && c >= 0:
				t.Errorf("** Compare(%v, %v) = %d, wanted < 0", a, b, c)
			case i > j && c <= 0:
				t.Errorf("** Compare(%v, %v) = %d, wanted > 0", a, b, c)
			}
			if c2 := Compare(b, a); c2 != -c {
				t.Errorf("** Compare(%v, %v) = %d but reversed = %d", a, b, c, c2)
			}
		}
	}
}

func TestValueEqual(t *testing.T) {
	a := ListOf(Int(1), Ref(At("x", "y")), Str("z"))
	b := ListOf(Int(1), Ref(At("x", "y")), Str("z"))
	if !a.Equal(b) {
		t.Errorf("** separately built equal lists not Equal")
	}
	if a.Equal(ListOf(Int(1), Ref(At("x", "y")), Str("w"))) {
		t.Errorf("** distinct lists reported Equal")
	}
}

func TestValueAccessors(t *testing.T) {
	deepEqual(t, Bool(true).BoolValue(), true)
	deepEqual(t, Int(-3).IntValue(), int64(-3))
	deepEqual(t, Float(0.5).FloatValue(), 0.5)
	deepEqual(t, Str("hi").StrValue(), "hi")
	deepEqual(t, len(ListOf(Int(1), Int(2)).ListValue()), 2)
	deepEqual(t, None().IsNone(), true)
	deepEqual(t, Int(1).IsNone(), false)

	loc, ok := EntityRef("Tokyo").RefLocation()
	deepEqual(t, ok, true)
	deepEqual(t, loc.Key(), "Tokyo")
	_, ok = Int(1).RefLocation()
	deepEqual(t, ok, false)
}

func TestValueSliceOps(t *testing.T) {
	orig := []Value{Int(1), Int(3), Int(5)}

	out, added := insertValue(orig, Int(2))
	deepEqual(t, added, true)
	deepEqual(t, len(out), 4)
	deepEqual(t, out[1].IntValue(), int64(2))
	deepEqual(t, len(orig), 3) // input untouched
	deepEqual(t, orig[1].IntValue(), int64(3))

	_, added = insertValue(orig, Int(3))
	deepEqual(t, added, false)

	out, removed := removeValue(orig, Int(3))
	deepEqual(t, removed, true)
	deepEqual(t, len(out), 2)
	deepEqual(t, len(orig), 3)

	_, removed = removeValue(orig, Int(4))
	deepEqual(t, removed, false)

	deepEqual(t, containsValue(orig, Int(5)), true)
	deepEqual(t, containsValue(orig, Int(4)), false)
	deepEqual(t, containsValue(nil, Int(4)), false)

	// NaN is a legal float value and must be findable once stored.
	withNaN, added := insertValue([]Value{Float(-1), Float(1)}, Float(math.NaN()))
	deepEqual(t, added, true)
	deepEqual(t, containsValue(withNaN, Float(math.NaN())), true)
	deepEqual(t, withNaN[0].Equal(Float(math.NaN())), true)
	_, added = insertValue(withNaN, Float(math.NaN()))
	deepEqual(t, added, false)
}

func TestValueKeyEncoding(t *testing.T) {
	o := func(v Value, expected string) {
		t.Helper()
		if a := v.String(); a != expected {
			t.Errorf("** String(%#v) = %q, wanted %q", v, a, expected)
		}
	}
	o(None(), "_")
	o(Bool(true), "T")
	o(Bool(false), "F")
	o(Int(-17), "i-17")
	o(Float(2.5), "f2.5")
	o(Str("a/b"), `sa\/b`)
	o(ListOf(Int(1), Str("x")), "l(i1,sx)")
	o(Ref(At("Bob", "livesIn")), "r(Bob/livesIn)")
	o(Ref(At("Bob", "livesIn").AppendRef(EntityRef("Tokyo"))), `r(Bob/livesIn/=r(Tokyo))`)
}
