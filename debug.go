package beliefdb

import (
	"fmt"
	"strings"
)

type DumpFlags uint64

const (
	DumpEntities = DumpFlags(1 << iota)
	DumpValues
	DumpDerived

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)

	indentStep = "  "
)

var dumpSep = strings.Repeat("=", 60)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump renders the physical contents of the store for troubleshooting,
// derived index entries included when DumpDerived is set.
func (s *Store) Dump(f DumpFlags) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var buf strings.Builder
	if s.closed {
		return "STORE CLOSED"
	}
	names, err := func() ([]string, error) {
		var names []string
		err := s.backend.Entities(func(name string) error {
			names = append(names, name)
			return nil
		})
		return names, err
	}()
	if err != nil {
		fmt.Fprintf(&buf, "ERROR: %v\n", err)
		return buf.String()
	}
	for i, name := range names {
		if f.Contains(DumpEntities) {
			fmt.Fprintf(&buf, "%s\nENTITY %d/%d: %s\n", dumpSep, i+1, len(names), name)
		}
		s.dumpSubtree(&buf, indentStep, f, Entity(name))
	}
	return buf.String()
}

func (s *Store) dumpSubtree(buf *strings.Builder, indent string, f DumpFlags, loc Location) {
	if vals, found, err := s.physGet(loc); err != nil {
		fmt.Fprintf(buf, "%sERROR at %v: %v\n", indent, loc, err)
	} else if found && f.Contains(DumpValues) {
		fmt.Fprintf(buf, "%s%v = ", indent, loc)
		for i, v := range vals {
			if i > 0 {
				buf.WriteString(", ")
			}
			buf.WriteString(v.String())
		}
		buf.WriteByte('\n')
	}
	children, err := s.listRaw(loc)
	if err != nil {
		fmt.Fprintf(buf, "%sERROR listing %v: %v\n", indent, loc, err)
		return
	}
	for _, child := range children {
		if !child.IsRef() && child.Name() == refSlot && !f.Contains(DumpDerived) {
			continue
		}
		s.dumpSubtree(buf, indent+indentStep, f, loc.Append(child))
	}
}
