package beliefdb

import (
	"slices"
	"strings"
)

// Element is a single step of a Location: either a slot name or an
// element-ref wrapping a Value. Element 0 of any Location is always the
// name of a primitive entity.
type Element struct {
	name string
	ref  *Value
}

func SlotElem(name string) Element {
	return Element{name: name}
}

func RefElem(v Value) Element {
	return Element{ref: &v}
}

func (e Element) IsRef() bool { return e.ref != nil }

// Name returns the slot (or entity) name; panics on a ref element.
func (e Element) Name() string {
	if e.ref != nil {
		panic("beliefdb: Name called on a ref element")
	}
	return e.name
}

// Value returns the wrapped value; panics on a name element.
func (e Element) Value() Value {
	if e.ref == nil {
		panic("beliefdb: Value called on a name element")
	}
	return *e.ref
}

func (e Element) Equal(other Element) bool {
	return compareElements(e, other) == 0
}

// compareElements orders name elements lexicographically and before ref
// elements at the same position; ref elements recurse into their values.
func compareElements(a, b Element) int {
	if a.ref == nil && b.ref == nil {
		return strings.Compare(a.name, b.name)
	}
	if a.ref == nil {
		return -1
	}
	if b.ref == nil {
		return 1
	}
	return Compare(*a.ref, *b.ref)
}

func (e Element) appendKey(sb *strings.Builder) {
	if e.ref == nil {
		appendEscaped(sb, e.name)
	} else {
		sb.WriteByte('=')
		e.ref.appendKey(sb)
	}
}

func (e Element) String() string {
	var sb strings.Builder
	e.appendKey(&sb)
	return sb.String()
}

// Location is an immutable path into the knowledge base. Deriving a parent
// or a prefix shares the backing array and never copies elements; appending
// copies, so derived locations are safe to keep around.
type Location struct {
	elems []Element
	key   string
}

// Entity returns the location of a primitive entity.
func Entity(name string) Location {
	var sb strings.Builder
	appendEscaped(&sb, name)
	return Location{elems: []Element{{name: name}}, key: sb.String()}
}

// At is a convenience constructor for a query location: an entity followed
// by slot names.
func At(entity string, slots ...string) Location {
	loc := Entity(entity)
	for _, s := range slots {
		loc = loc.Append(SlotElem(s))
	}
	return loc
}

func (l Location) IsZero() bool { return len(l.elems) == 0 }

func (l Location) Len() int { return len(l.elems) }

func (l Location) At(i int) Element { return l.elems[i] }

func (l Location) IsRefAt(i int) bool { return l.elems[i].ref != nil }

// EntityName returns the primitive entity name the location starts at.
func (l Location) EntityName() string {
	if len(l.elems) == 0 {
		panic("beliefdb: EntityName on zero Location")
	}
	return l.elems[0].name
}

// LastSlot returns the final element's slot name and true if the location
// ends in a slot name.
func (l Location) LastSlot() (string, bool) {
	if n := len(l.elems); n > 0 && l.elems[n-1].ref == nil {
		return l.elems[n-1].name, true
	}
	return "", false
}

func (l Location) Append(e Element) Location {
	var sb strings.Builder
	sb.Grow(len(l.key) + 8)
	sb.WriteString(l.key)
	if len(l.elems) > 0 {
		sb.WriteByte('/')
	}
	e.appendKey(&sb)
	return Location{
		elems: append(slices.Clip(l.elems), e),
		key:   sb.String(),
	}
}

func (l Location) AppendSlot(name string) Location { return l.Append(SlotElem(name)) }

func (l Location) AppendRef(v Value) Location { return l.Append(RefElem(v)) }

// Parent returns the location without its last element.
func (l Location) Parent() Location {
	n := len(l.elems)
	if n == 0 {
		panic("beliefdb: Parent of zero Location")
	}
	return l.Prefix(n - 1)
}

// Prefix returns the first n elements without copying them.
func (l Location) Prefix(n int) Location {
	if n == len(l.elems) {
		return l
	}
	if n == 0 {
		return Location{}
	}
	i := len(l.key)
	for k := len(l.elems); k > n; k-- {
		i = lastSepIndex(l.key, i)
	}
	return Location{elems: l.elems[:n], key: l.key[:i]}
}

// lastSepIndex finds the top-level element separator preceding key[end:],
// scanning backwards. Separators inside parenthesized value encodings do not
// count, and neither do escaped characters.
func lastSepIndex(key string, end int) int {
	depth := 0
	for i := end - 1; i >= 0; i-- {
		c := key[i]
		if c != '/' && c != '(' && c != ')' {
			continue
		}
		j := i - 1
		for j >= 0 && key[j] == '\\' {
			j--
		}
		if (i-1-j)%2 == 1 {
			continue // escaped
		}
		switch c {
		case '(':
			depth--
		case ')':
			depth++
		case '/':
			if depth == 0 {
				return i
			}
		}
	}
	return 0
}

// Key returns a deterministic string encoding of the location, usable as a
// map key and as a flat backend key. Child keys extend their parent's key
// with "/", so backends can treat descendants as a key-prefix range.
func (l Location) Key() string { return l.key }

func (l Location) Equal(other Location) bool {
	return l.key == other.key
}

// compareLocations orders shorter locations first; equal lengths compare
// element by element.
func compareLocations(a, b Location) int {
	if d := len(a.elems) - len(b.elems); d != 0 {
		if d < 0 {
			return -1
		}
		return 1
	}
	for i := range a.elems {
		if c := compareElements(a.elems[i], b.elems[i]); c != 0 {
			return c
		}
	}
	return 0
}

func (l Location) String() string {
	return "[" + l.key + "]"
}

const keyEscapables = "\\/=(),#"

func appendEscaped(sb *strings.Builder, s string) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if strings.IndexByte(keyEscapables, c) >= 0 {
			sb.WriteByte('\\')
		}
		sb.WriteByte(c)
	}
}
