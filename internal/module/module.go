// Package module describes a translated module ready for code generation.
package module

import (
	"fmt"

	"github.com/tinyrange/jitlink/internal/ir"
)

// NoStart marks a module without an entry function.
const NoStart = -1

// Module is the input of code generation. Functions holds only the locally
// defined functions; the function at Functions[i] has absolute index
// ImportCount+i. Imports occupy the indices below ImportCount.
type Module struct {
	Functions   []*ir.Function
	ImportCount int
	Start       int
}

// New returns an empty module without a start function.
func New(importCount int) *Module {
	return &Module{ImportCount: importCount, Start: NoStart}
}

// Add appends a local function and returns its absolute index.
func (m *Module) Add(fn *ir.Function) int {
	m.Functions = append(m.Functions, fn)
	return m.ImportCount + len(m.Functions) - 1
}

// HasStart reports whether an entry function was designated.
func (m *Module) HasStart() bool { return m.Start != NoStart }

// NumFunctions returns the size of the absolute index space.
func (m *Module) NumFunctions() int { return m.ImportCount + len(m.Functions) }

// IsImport reports whether the absolute index names an imported function.
func (m *Module) IsImport(index int) bool { return index >= 0 && index < m.ImportCount }

// Local converts an absolute index into an index of Functions.
func (m *Module) Local(index int) (int, error) {
	local := index - m.ImportCount
	if local < 0 || local >= len(m.Functions) {
		return 0, fmt.Errorf("module: function %d is not defined locally", index)
	}
	return local, nil
}

// Name returns a printable name for an absolute index.
func (m *Module) Name(index int) string {
	if local, err := m.Local(index); err == nil && m.Functions[local].Name != "" {
		return m.Functions[local].Name
	}
	return fmt.Sprintf("func%d", index)
}
