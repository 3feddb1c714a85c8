package link

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/tinyrange/jitlink/internal/codegen"
	"github.com/tinyrange/jitlink/internal/isa"
	"github.com/tinyrange/jitlink/internal/memory"
	"github.com/tinyrange/jitlink/internal/module"
	"github.com/tinyrange/jitlink/internal/timeslice"
)

var (
	tsPlace    = timeslice.RegisterKind("link.place")
	tsRelocate = timeslice.RegisterKind("link.relocate")
)

const padByte = 0xCC // int3

// Module is a linked module: every local function's code in one region,
// patched and ready for the launcher. It is owned by the caller.
type Module struct {
	region      *memory.Region
	code        [][]byte
	names       []string
	importCount int
	start       int
	cfg         isa.Config
}

// Link copies the compiled functions of mod into a single read+write region,
// each aligned to cfg.FunctionAlign, and resolves their relocations. The
// compiled buffers in funcs are not modified.
func Link(mod *module.Module, funcs []codegen.Function, b Binding, cfg isa.Config) (*Module, error) {
	if len(funcs) != len(mod.Functions) {
		return nil, fmt.Errorf("link: %d compiled functions for %d module functions", len(funcs), len(mod.Functions))
	}

	align := cfg.FunctionAlign()
	starts := make([]int, len(funcs))
	total := 0
	for i, f := range funcs {
		total = roundUp(total, align)
		starts[i] = total
		total += len(f.Code)
		if total > math.MaxInt32 {
			return nil, fmt.Errorf("%w: module code exceeds 2GiB", ErrDisplacementRange)
		}
	}

	m := &Module{
		code:        make([][]byte, len(funcs)),
		names:       make([]string, len(funcs)),
		importCount: mod.ImportCount,
		start:       mod.Start,
		cfg:         cfg,
	}
	for i := range funcs {
		m.names[i] = mod.Name(mod.ImportCount + i)
	}
	if total == 0 {
		return m, nil
	}

	rec := timeslice.NewRecorder()
	region, err := memory.Allocate(total)
	if err != nil {
		return nil, fmt.Errorf("allocate code region: %w", err)
	}
	m.region = region

	mem := region.Bytes()
	for i := range mem {
		mem[i] = padByte
	}
	for i, f := range funcs {
		end := starts[i] + len(f.Code)
		copy(mem[starts[i]:end], f.Code)
		m.code[i] = mem[starts[i]:end:end]
	}

	rec.Record(tsPlace)

	if err := Relocate(mod.ImportCount, funcs, m.code, b); err != nil {
		region.Release()
		return nil, err
	}
	rec.Record(tsRelocate)

	slog.Debug("linked module",
		"functions", len(funcs),
		"size", total,
		"base", fmt.Sprintf("%#x", region.Base()),
	)
	return m, nil
}

func roundUp(n, align int) int {
	if align <= 1 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}

// Start returns the absolute index of the entry function or module.NoStart.
func (m *Module) Start() int { return m.start }

func (m *Module) HasStart() bool { return m.start != module.NoStart }

func (m *Module) ImportCount() int { return m.importCount }

// Len returns the number of local functions.
func (m *Module) Len() int { return len(m.code) }

// Code returns the linked code of local function i. The slice aliases the
// code region and must not be modified.
func (m *Module) Code(i int) []byte { return m.code[i] }

// Address returns the entry address of local function i.
func (m *Module) Address(i int) uintptr {
	if len(m.code[i]) == 0 {
		return 0
	}
	return address(m.code[i])
}

func (m *Module) Name(i int) string { return m.names[i] }

func (m *Module) Config() isa.Config { return m.cfg }

// Region returns the memory backing the code, or nil for a module without
// code.
func (m *Module) Region() *memory.Region { return m.region }

// Local converts an absolute function index into a local index.
func (m *Module) Local(index int) (int, error) {
	local := index - m.importCount
	if local < 0 || local >= len(m.code) {
		return 0, fmt.Errorf("link: function %d is not defined locally", index)
	}
	return local, nil
}

// Release unmaps the code region. Code slices and entry points obtained from
// the module must not be used afterwards.
func (m *Module) Release() error {
	if m.region == nil {
		return nil
	}
	region := m.region
	m.region = nil
	for i := range m.code {
		m.code[i] = nil
	}
	return region.Release()
}
