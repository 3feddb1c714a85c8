package ir

import (
	"fmt"
	"strings"
)

// Entity names a location inside a function for diagnostics.
type Entity interface {
	fmt.Stringer
	isEntity()
}

// FuncEntity refers to the function as a whole.
type FuncEntity struct{}

func (FuncEntity) String() string { return "function" }
func (FuncEntity) isEntity()      {}

// BlockEntity refers to a whole block.
type BlockEntity struct {
	Block Block
}

func (b BlockEntity) String() string { return b.Block.String() }
func (BlockEntity) isEntity()        {}

// InstRef refers to the Index'th instruction of Block.
type InstRef struct {
	Block Block
	Index int
}

func (r InstRef) String() string { return fmt.Sprintf("%s.%d", r.Block, r.Index) }
func (InstRef) isEntity()        {}

func (i Inst) String() string {
	switch i.Op {
	case OpIconst, OpIadd:
		return fmt.Sprintf("%s %d", i.Op, i.Imm)
	case OpLoad, OpStore:
		return fmt.Sprintf("%s %#x", i.Op, i.Addr)
	case OpCall:
		return fmt.Sprintf("%s %s", i.Op, i.Func)
	case OpJump, OpBrz, OpBrnz:
		return fmt.Sprintf("%s %s", i.Op, i.Dest)
	case OpBrTable:
		return fmt.Sprintf("%s %s", i.Op, i.Table)
	default:
		return i.Op.String()
	}
}

// DisplayInst renders the instruction at ref, including its declared callee
// name for calls.
func (f *Function) DisplayInst(ref InstRef) string {
	inst, ok := f.Inst(ref)
	if !ok {
		return "<invalid instruction>"
	}
	if inst.Op == OpCall && int(inst.Func) < len(f.FuncRefs) {
		if name := f.FuncRefs[inst.Func].Name; name != "" {
			return fmt.Sprintf("%s ; %s", inst, name)
		}
	}
	return inst.String()
}

// Display renders the whole function in its textual form.
func (f *Function) Display() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "function %q {\n", f.Name)
	for i, ext := range f.FuncRefs {
		fmt.Fprintf(&sb, "    %s = %q\n", FuncRef(i), ext.Name)
	}
	for i, jt := range f.JumpTables {
		targets := make([]string, len(jt))
		for j, b := range jt {
			targets[j] = b.String()
		}
		fmt.Fprintf(&sb, "    %s = [%s]\n", JumpTable(i), strings.Join(targets, ", "))
	}
	for i, b := range f.Blocks {
		if i > 0 || len(f.FuncRefs) > 0 || len(f.JumpTables) > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%s:\n", Block(i))
		for _, inst := range b.Insts {
			fmt.Fprintf(&sb, "    %s\n", inst)
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}

func (f *Function) String() string { return f.Display() }
