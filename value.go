package beliefdb

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value. The declaration order is the
// ordering precedence between kinds: a value of a lower kind sorts before
// every value of a higher kind.
type Kind int

const (
	KindNone Kind = iota
	KindBool
	KindInt
	KindFloat
	KindList
	KindRef
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindList:
		return "list"
	case KindRef:
		return "ref"
	case KindString:
		return "string"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Value is an immutable tagged union: none, bool, int64, float64, string,
// list of values, or a reference to another Location in the knowledge base.
type Value struct {
	kind Kind
	b    bool
	n    int64
	f    float64
	s    string
	list []Value
	loc  Location
}

func None() Value          { return Value{} }
func Bool(b bool) Value    { return Value{kind: KindBool, b: b} }
func Int(n int64) Value    { return Value{kind: KindInt, n: n} }
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }
func Str(s string) Value   { return Value{kind: KindString, s: s} }

func ListOf(items ...Value) Value {
	return Value{kind: KindList, list: items}
}

// Ref returns a pointer value referencing loc.
func Ref(loc Location) Value {
	if loc.IsZero() {
		panic("beliefdb: Ref of zero Location")
	}
	return Value{kind: KindRef, loc: loc}
}

// EntityRef is shorthand for Ref(Entity(name)).
func EntityRef(name string) Value { return Ref(Entity(name)) }

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNone() bool { return v.kind == KindNone }

func (v Value) BoolValue() bool     { v.check(KindBool); return v.b }
func (v Value) IntValue() int64     { v.check(KindInt); return v.n }
func (v Value) FloatValue() float64 { v.check(KindFloat); return v.f }
func (v Value) StrValue() string    { v.check(KindString); return v.s }
func (v Value) ListValue() []Value  { v.check(KindList); return v.list }

// RefLocation returns the referenced location and true if v is a ref.
func (v Value) RefLocation() (Location, bool) {
	if v.kind != KindRef {
		return Location{}, false
	}
	return v.loc, true
}

func (v Value) check(k Kind) {
	if v.kind != k {
		panic(fmt.Errorf("beliefdb: %v value accessed as %v", v.kind, k))
	}
}

func (v Value) Equal(other Value) bool {
	return Compare(v, other) == 0
}

// Compare imposes a strict total order over all values, computable without
// backend access: kinds order by declaration; false < true; ints and floats
// order numerically within their kind; strings lexicographically; lists and
// ref locations shorter-first, then element by element.
func Compare(a, b Value) int {
	if a.kind != b.kind {
		if a.kind < b.kind {
			return -1
		}
		return 1
	}
	switch a.kind {
	case KindNone:
		return 0
	case KindBool:
		if a.b == b.b {
			return 0
		}
		if !a.b {
			return -1
		}
		return 1
	case KindInt:
		if a.n < b.n {
			return -1
		} else if a.n > b.n {
			return 1
		}
		return 0
	case KindFloat:
		// NaN never compares via <, so order it explicitly: before every
		// other float, equal only to itself.
		if an, bn := math.IsNaN(a.f), math.IsNaN(b.f); an || bn {
			if an && bn {
				return 0
			}
			if an {
				return -1
			}
			return 1
		}
		if a.f < b.f {
			return -1
		} else if a.f > b.f {
			return 1
		}
		return 0
	case KindString:
		return strings.Compare(a.s, b.s)
	case KindList:
		if d := len(a.list) - len(b.list); d != 0 {
			if d < 0 {
				return -1
			}
			return 1
		}
		for i := range a.list {
			if c := Compare(a.list[i], b.list[i]); c != 0 {
				return c
			}
		}
		return 0
	case KindRef:
		return compareLocations(a.loc, b.loc)
	default:
		panic(fmt.Errorf("beliefdb: bad value kind %d", int(a.kind)))
	}
}

func (v Value) appendKey(sb *strings.Builder) {
	switch v.kind {
	case KindNone:
		sb.WriteByte('_')
	case KindBool:
		if v.b {
			sb.WriteByte('T')
		} else {
			sb.WriteByte('F')
		}
	case KindInt:
		sb.WriteByte('i')
		sb.WriteString(strconv.FormatInt(v.n, 10))
	case KindFloat:
		sb.WriteByte('f')
		sb.WriteString(strconv.FormatFloat(v.f, 'g', -1, 64))
	case KindString:
		sb.WriteByte('s')
		appendEscaped(sb, v.s)
	case KindList:
		sb.WriteString("l(")
		for i, item := range v.list {
			if i > 0 {
				sb.WriteByte(',')
			}
			item.appendKey(sb)
		}
		sb.WriteByte(')')
	case KindRef:
		sb.WriteString("r(")
		sb.WriteString(v.loc.key)
		sb.WriteByte(')')
	default:
		panic(fmt.Errorf("beliefdb: bad value kind %d", int(v.kind)))
	}
}

func (v Value) String() string {
	var sb strings.Builder
	v.appendKey(&sb)
	return sb.String()
}

// insertValue adds v to an ordered slice, returning a fresh slice and
// whether v was actually inserted (false if already present). The input is
// never mutated; cached value lists are shared and treated as immutable.
func insertValue(vals []Value, v Value) ([]Value, bool) {
	i, found := searchValue(vals, v)
	if found {
		return vals, false
	}
	out := make([]Value, len(vals)+1)
	copy(out, vals[:i])
	out[i] = v
	copy(out[i+1:], vals[i:])
	return out, true
}

// removeValue removes v from an ordered slice without mutating the input,
// reporting whether it was there.
func removeValue(vals []Value, v Value) ([]Value, bool) {
	i, found := searchValue(vals, v)
	if !found {
		return vals, false
	}
	out := make([]Value, 0, len(vals)-1)
	out = append(out, vals[:i]...)
	out = append(out, vals[i+1:]...)
	return out, true
}

func containsValue(vals []Value, v Value) bool {
	_, found := searchValue(vals, v)
	return found
}

func searchValue(vals []Value, v Value) (int, bool) {
	lo, hi := 0, len(vals)
	for lo < hi {
		mid := (lo + hi) / 2
		c := Compare(vals[mid], v)
		if c == 0 {
			return mid, true
		} else if c < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, false
}
