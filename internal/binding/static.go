// Package binding resolves the function references a caller declares to
// absolute module function indices.
package binding

import (
	"fmt"

	"github.com/tinyrange/jitlink/internal/ir"
)

// Static is a fixed table of call-site bindings, populated before linking.
type Static struct {
	refs map[int][]int
}

func NewStatic() *Static {
	return &Static{refs: make(map[int][]int)}
}

// Bind records that ref, as declared by the function at absolute index
// caller, names the function at absolute index target.
func (s *Static) Bind(caller int, ref ir.FuncRef, target int) {
	table := s.refs[caller]
	for len(table) <= int(ref) {
		table = append(table, -1)
	}
	table[ref] = target
	s.refs[caller] = table
}

// FunctionIndex returns the absolute index bound to (caller, ref).
func (s *Static) FunctionIndex(caller int, ref ir.FuncRef) (int, error) {
	table := s.refs[caller]
	if int(ref) >= len(table) || table[ref] < 0 {
		return 0, fmt.Errorf("binding: %s of function %d is not bound", ref, caller)
	}
	return table[ref], nil
}

// Len returns the number of callers with at least one binding.
func (s *Static) Len() int { return len(s.refs) }
