package ir

import "fmt"

// Block identifies a basic block inside a single function. Blocks are
// numbered in layout order starting at zero; block0 is the entry block.
type Block uint32

func (b Block) String() string { return fmt.Sprintf("block%d", uint32(b)) }

// FuncRef identifies a function declared in the caller's FuncRefs table. The
// mapping from a FuncRef to a module function index belongs to the runtime
// binding, not to the IR.
type FuncRef uint32

func (f FuncRef) String() string { return fmt.Sprintf("fn%d", uint32(f)) }

// JumpTable identifies an entry in a function's JumpTables.
type JumpTable uint32

func (j JumpTable) String() string { return fmt.Sprintf("jt%d", uint32(j)) }

type Opcode uint8

const (
	OpInvalid Opcode = iota
	// OpIconst loads Imm into the accumulator.
	OpIconst
	// OpIadd adds Imm (a signed 32-bit value) to the accumulator.
	OpIadd
	// OpLoad loads the 64-bit word at Addr into the accumulator.
	OpLoad
	// OpStore writes the accumulator to the 64-bit word at Addr.
	OpStore
	// OpCall calls Func directly.
	OpCall
	// OpJump transfers control to Dest.
	OpJump
	// OpBrz branches to Dest when the accumulator is zero.
	OpBrz
	// OpBrnz branches to Dest when the accumulator is not zero.
	OpBrnz
	// OpBrTable dispatches through Table.
	OpBrTable
	// OpReturn returns to the caller.
	OpReturn
)

var opcodeNames = [...]string{
	OpInvalid: "invalid",
	OpIconst:  "iconst",
	OpIadd:    "iadd",
	OpLoad:    "load",
	OpStore:   "store",
	OpCall:    "call",
	OpJump:    "jump",
	OpBrz:     "brz",
	OpBrnz:    "brnz",
	OpBrTable: "br_table",
	OpReturn:  "return",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) {
		return opcodeNames[op]
	}
	return fmt.Sprintf("op%d", uint8(op))
}

// ParseOpcode returns the opcode for its textual name.
func ParseOpcode(name string) (Opcode, bool) {
	for op, n := range opcodeNames {
		if n == name && Opcode(op) != OpInvalid {
			return Opcode(op), true
		}
	}
	return OpInvalid, false
}

// IsTerminator reports whether op ends a block.
func (op Opcode) IsTerminator() bool {
	switch op {
	case OpJump, OpBrTable, OpReturn:
		return true
	}
	return false
}

// IsBranch reports whether op names a destination block.
func (op Opcode) IsBranch() bool {
	switch op {
	case OpJump, OpBrz, OpBrnz:
		return true
	}
	return false
}

// Inst is a single instruction. Only the operand fields relevant to Op are
// meaningful.
type Inst struct {
	Op    Opcode
	Imm   int64
	Addr  uint64
	Dest  Block
	Func  FuncRef
	Table JumpTable
}

func Iconst(v int64) Inst          { return Inst{Op: OpIconst, Imm: v} }
func Iadd(v int32) Inst            { return Inst{Op: OpIadd, Imm: int64(v)} }
func Load(addr uint64) Inst        { return Inst{Op: OpLoad, Addr: addr} }
func Store(addr uint64) Inst       { return Inst{Op: OpStore, Addr: addr} }
func Call(fn FuncRef) Inst         { return Inst{Op: OpCall, Func: fn} }
func Jump(dest Block) Inst         { return Inst{Op: OpJump, Dest: dest} }
func Brz(dest Block) Inst          { return Inst{Op: OpBrz, Dest: dest} }
func Brnz(dest Block) Inst         { return Inst{Op: OpBrnz, Dest: dest} }
func BrTable(table JumpTable) Inst { return Inst{Op: OpBrTable, Table: table} }
func Return() Inst                 { return Inst{Op: OpReturn} }

type BlockData struct {
	Insts []Inst
}

// ExtFunc declares a callee. Name is informational; the runtime binding
// decides which module function a FuncRef resolves to.
type ExtFunc struct {
	Name string
}

// Function is the backend-agnostic form of one module function.
type Function struct {
	Name       string
	Blocks     []BlockData
	FuncRefs   []ExtFunc
	JumpTables [][]Block
}

// NewFunction returns an empty function with the given name.
func NewFunction(name string) *Function {
	return &Function{Name: name}
}

// AddBlock appends a block and returns its reference.
func (f *Function) AddBlock(insts ...Inst) Block {
	f.Blocks = append(f.Blocks, BlockData{Insts: append([]Inst(nil), insts...)})
	return Block(len(f.Blocks) - 1)
}

// Append adds instructions to the end of an existing block.
func (f *Function) Append(b Block, insts ...Inst) {
	f.Blocks[b].Insts = append(f.Blocks[b].Insts, insts...)
}

// DeclareFunc adds a callee declaration and returns its reference.
func (f *Function) DeclareFunc(name string) FuncRef {
	f.FuncRefs = append(f.FuncRefs, ExtFunc{Name: name})
	return FuncRef(len(f.FuncRefs) - 1)
}

// DeclareJumpTable adds a jump table and returns its reference.
func (f *Function) DeclareJumpTable(targets ...Block) JumpTable {
	f.JumpTables = append(f.JumpTables, append([]Block(nil), targets...))
	return JumpTable(len(f.JumpTables) - 1)
}

// Inst returns the instruction at ref, or false when ref is out of range.
func (f *Function) Inst(ref InstRef) (Inst, bool) {
	if int(ref.Block) >= len(f.Blocks) {
		return Inst{}, false
	}
	insts := f.Blocks[ref.Block].Insts
	if ref.Index < 0 || ref.Index >= len(insts) {
		return Inst{}, false
	}
	return insts[ref.Index], true
}

// Clone returns a deep copy of f.
func (f *Function) Clone() *Function {
	out := &Function{
		Name:     f.Name,
		Blocks:   make([]BlockData, len(f.Blocks)),
		FuncRefs: append([]ExtFunc(nil), f.FuncRefs...),
	}
	for i, b := range f.Blocks {
		out.Blocks[i] = BlockData{Insts: append([]Inst(nil), b.Insts...)}
	}
	if f.JumpTables != nil {
		out.JumpTables = make([][]Block, len(f.JumpTables))
		for i, jt := range f.JumpTables {
			out.JumpTables[i] = append([]Block(nil), jt...)
		}
	}
	return out
}
