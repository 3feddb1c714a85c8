package module

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/tinyrange/jitlink/internal/binding"
	"github.com/tinyrange/jitlink/internal/ir"
)

// CurrentFormat is the descriptor format version written by this package.
// Descriptors with the same major version are accepted.
const CurrentFormat = "v1.0.0"

// Descriptor is the YAML form of a module:
//
//	format: v1.0.0
//	imports: [host_print]
//	start: main
//	functions:
//	  - name: main
//	    calls: [helper]
//	    blocks:
//	      - name: entry
//	        code: [iconst 5, call helper, return]
type Descriptor struct {
	Format    string               `yaml:"format,omitempty"`
	Imports   []string             `yaml:"imports,omitempty"`
	Start     string               `yaml:"start,omitempty"`
	Functions []FunctionDescriptor `yaml:"functions"`
}

type FunctionDescriptor struct {
	Name   string            `yaml:"name"`
	Calls  []string          `yaml:"calls,omitempty"`
	Tables []TableDescriptor `yaml:"tables,omitempty"`
	Blocks []BlockDescriptor `yaml:"blocks"`
}

type TableDescriptor struct {
	Name    string   `yaml:"name"`
	Targets []string `yaml:"targets"`
}

type BlockDescriptor struct {
	Name string   `yaml:"name"`
	Code []string `yaml:"code"`
}

// Load reads and translates a descriptor file.
func Load(path string) (*Module, *binding.Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read module descriptor: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML descriptor and translates it into a Module plus the
// call bindings its functions declare.
func Parse(data []byte) (*Module, *binding.Static, error) {
	var desc Descriptor
	if err := yaml.Unmarshal(data, &desc); err != nil {
		return nil, nil, fmt.Errorf("parse module descriptor: %w", err)
	}
	return desc.Translate()
}

func checkFormat(format string) error {
	if format == "" {
		return nil
	}
	if !semver.IsValid(format) {
		return fmt.Errorf("module: invalid format version %q", format)
	}
	if semver.Major(format) != semver.Major(CurrentFormat) {
		return fmt.Errorf("module: unsupported format %s (want %s.x)", format, semver.Major(CurrentFormat))
	}
	return nil
}

// Translate builds the Module and its bindings.
func (d *Descriptor) Translate() (*Module, *binding.Static, error) {
	if err := checkFormat(d.Format); err != nil {
		return nil, nil, err
	}

	mod := New(len(d.Imports))
	indices := make(map[string]int, len(d.Imports)+len(d.Functions))
	for i, name := range d.Imports {
		if _, dup := indices[name]; dup || name == "" {
			return nil, nil, fmt.Errorf("module: invalid or duplicate import name %q", name)
		}
		indices[name] = i
	}
	for i, fd := range d.Functions {
		if _, dup := indices[fd.Name]; dup || fd.Name == "" {
			return nil, nil, fmt.Errorf("module: invalid or duplicate function name %q", fd.Name)
		}
		indices[fd.Name] = mod.ImportCount + i
	}

	if d.Start != "" {
		start, ok := indices[d.Start]
		if !ok {
			return nil, nil, fmt.Errorf("module: start function %q is not defined", d.Start)
		}
		mod.Start = start
	}

	bindings := binding.NewStatic()
	for _, fd := range d.Functions {
		fn, err := fd.translate()
		if err != nil {
			return nil, nil, fmt.Errorf("function %q: %w", fd.Name, err)
		}
		caller := mod.Add(fn)
		for ref, callee := range fd.Calls {
			target, ok := indices[callee]
			if !ok {
				return nil, nil, fmt.Errorf("function %q: call to unknown function %q", fd.Name, callee)
			}
			bindings.Bind(caller, ir.FuncRef(ref), target)
		}
	}
	return mod, bindings, nil
}

func (fd *FunctionDescriptor) translate() (*ir.Function, error) {
	fn := ir.NewFunction(fd.Name)

	funcRefs := make(map[string]ir.FuncRef, len(fd.Calls))
	for _, callee := range fd.Calls {
		if _, dup := funcRefs[callee]; dup {
			return nil, fmt.Errorf("duplicate callee %q", callee)
		}
		funcRefs[callee] = fn.DeclareFunc(callee)
	}

	blocks := make(map[string]ir.Block, len(fd.Blocks))
	for i, bd := range fd.Blocks {
		if _, dup := blocks[bd.Name]; dup || bd.Name == "" {
			return nil, fmt.Errorf("invalid or duplicate block name %q", bd.Name)
		}
		blocks[bd.Name] = ir.Block(i)
	}

	tables := make(map[string]ir.JumpTable, len(fd.Tables))
	for _, td := range fd.Tables {
		if _, dup := tables[td.Name]; dup || td.Name == "" {
			return nil, fmt.Errorf("invalid or duplicate table name %q", td.Name)
		}
		targets := make([]ir.Block, 0, len(td.Targets))
		for _, name := range td.Targets {
			b, ok := blocks[name]
			if !ok {
				return nil, fmt.Errorf("table %q: unknown block %q", td.Name, name)
			}
			targets = append(targets, b)
		}
		tables[td.Name] = fn.DeclareJumpTable(targets...)
	}

	p := instParser{funcs: funcRefs, blocks: blocks, tables: tables}
	for _, bd := range fd.Blocks {
		blk := fn.AddBlock()
		for i, line := range bd.Code {
			inst, err := p.parse(line)
			if err != nil {
				return nil, fmt.Errorf("block %q line %d: %w", bd.Name, i+1, err)
			}
			fn.Append(blk, inst)
		}
	}
	return fn, nil
}

type instParser struct {
	funcs  map[string]ir.FuncRef
	blocks map[string]ir.Block
	tables map[string]ir.JumpTable
}

func (p instParser) parse(line string) (ir.Inst, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ir.Inst{}, fmt.Errorf("empty instruction")
	}
	op, ok := ir.ParseOpcode(fields[0])
	if !ok {
		return ir.Inst{}, fmt.Errorf("unknown instruction %q", fields[0])
	}

	want := 2
	if op == ir.OpReturn {
		want = 1
	}
	if len(fields) != want {
		return ir.Inst{}, fmt.Errorf("%s takes %d operand(s), got %d", op, want-1, len(fields)-1)
	}

	switch op {
	case ir.OpIconst:
		v, err := strconv.ParseInt(fields[1], 0, 64)
		if err != nil {
			return ir.Inst{}, fmt.Errorf("iconst: %w", err)
		}
		return ir.Iconst(v), nil
	case ir.OpIadd:
		v, err := strconv.ParseInt(fields[1], 0, 32)
		if err != nil {
			return ir.Inst{}, fmt.Errorf("iadd: %w", err)
		}
		return ir.Iadd(int32(v)), nil
	case ir.OpLoad, ir.OpStore:
		addr, err := strconv.ParseUint(fields[1], 0, 64)
		if err != nil {
			return ir.Inst{}, fmt.Errorf("%s: %w", op, err)
		}
		return ir.Inst{Op: op, Addr: addr}, nil
	case ir.OpCall:
		ref, ok := p.funcs[fields[1]]
		if !ok {
			return ir.Inst{}, fmt.Errorf("call: %q is not listed in calls", fields[1])
		}
		return ir.Call(ref), nil
	case ir.OpJump, ir.OpBrz, ir.OpBrnz:
		b, ok := p.blocks[fields[1]]
		if !ok {
			return ir.Inst{}, fmt.Errorf("%s: unknown block %q", op, fields[1])
		}
		return ir.Inst{Op: op, Dest: b}, nil
	case ir.OpBrTable:
		jt, ok := p.tables[fields[1]]
		if !ok {
			return ir.Inst{}, fmt.Errorf("br_table: unknown table %q", fields[1])
		}
		return ir.BrTable(jt), nil
	case ir.OpReturn:
		return ir.Return(), nil
	}
	return ir.Inst{}, fmt.Errorf("unsupported instruction %s", op)
}
