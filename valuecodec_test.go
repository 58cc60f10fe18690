package beliefdb

import (
	"errors"
	"testing"
)

func TestRecordCodec(t *testing.T) {
	loc := At("Bob", "livesIn").AppendRef(Ref(At("Tokyo", "ward"))).AppendSlot("since")
	vals := []Value{
		None(),
		Bool(true),
		Int(-42),
		Float(3.5),
		Str("ok"),
		ListOf(Int(1), ListOf(Str("x"), EntityRef("e"))),
		Ref(At("a", "b").AppendRef(Bool(false))),
	}

	data := must(encodeRecord(loc, vals))
	loc2, vals2, err := decodeRecord(loc.Key(), data)
	ensure(err)

	if !loc2.Equal(loc) {
		t.Errorf("** decoded location %v, wanted %v", loc2, loc)
	}
	deepEqual(t, loc2.Key(), loc.Key())
	eqValues(t, vals2, vals...)
}

func TestRecordCodecDeterminism(t *testing.T) {
	loc := At("Bob", "age")
	vals := []Value{Int(1), Str("x")}
	a := must(encodeRecord(loc, vals))
	b := must(encodeRecord(loc, vals))
	deepEqual(t, a, b)
}

func TestRecordCodecBadData(t *testing.T) {
	_, _, err := decodeRecord("Bob/age", []byte{0xC1, 0xFF, 0x00})
	var de *DataError
	if !errors.As(err, &de) {
		t.Fatalf("** garbage decoded: %v, wanted DataError", err)
	}
	deepEqual(t, de.Key, "Bob/age")
	if de.Unwrap() == nil {
		t.Errorf("** DataError lost its cause")
	}
}
