// Package binemit holds the relocation records a backend produces while
// emitting machine code for one function.
package binemit

import (
	"fmt"

	"github.com/tinyrange/jitlink/internal/ir"
)

// CodeOffset is a byte offset into a function's code buffer.
type CodeOffset = uint32

// Kind tags a relocation record.
type Kind uint8

const (
	// CallFunc is a direct call to another (or the same) module function.
	CallFunc Kind = iota + 1
	// JumpBlock is a branch to a block of the emitting function.
	JumpBlock
	// JumpTableRef is a reference to a jump table of the emitting function.
	JumpTableRef
)

func (k Kind) String() string {
	switch k {
	case CallFunc:
		return "call"
	case JumpBlock:
		return "block"
	case JumpTableRef:
		return "jump_table"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Reloc records one site whose 32-bit displacement must be patched once all
// code addresses are known. The displacement field lives at Offset+4.
type Reloc struct {
	Kind   Kind
	Offset CodeOffset
	Func   ir.FuncRef
	Block  ir.Block
	Table  ir.JumpTable
}

func (r Reloc) String() string {
	switch r.Kind {
	case CallFunc:
		return fmt.Sprintf("%#x: %s %s", r.Offset, r.Kind, r.Func)
	case JumpBlock:
		return fmt.Sprintf("%#x: %s %s", r.Offset, r.Kind, r.Block)
	case JumpTableRef:
		return fmt.Sprintf("%#x: %s %s", r.Offset, r.Kind, r.Table)
	default:
		return fmt.Sprintf("%#x: %s", r.Offset, r.Kind)
	}
}

// Sink receives relocation sites from a backend during emission.
type Sink interface {
	RelocFunc(offset CodeOffset, fn ir.FuncRef)
	RelocBlock(offset CodeOffset, block ir.Block)
	RelocJumpTable(offset CodeOffset, jt ir.JumpTable)
}

// Relocs is an ordered list of relocation records. It implements Sink.
type Relocs []Reloc

var (
	_ Sink = (*Relocs)(nil)
)

func (r *Relocs) RelocFunc(offset CodeOffset, fn ir.FuncRef) {
	*r = append(*r, Reloc{Kind: CallFunc, Offset: offset, Func: fn})
}

func (r *Relocs) RelocBlock(offset CodeOffset, block ir.Block) {
	*r = append(*r, Reloc{Kind: JumpBlock, Offset: offset, Block: block})
}

func (r *Relocs) RelocJumpTable(offset CodeOffset, jt ir.JumpTable) {
	*r = append(*r, Reloc{Kind: JumpTableRef, Offset: offset, Table: jt})
}

// Count returns how many records of kind k the list holds.
func (r Relocs) Count(k Kind) int {
	n := 0
	for _, rel := range r {
		if rel.Kind == k {
			n++
		}
	}
	return n
}

// Replay feeds every record to sink in order.
func (r Relocs) Replay(sink Sink) {
	for _, rel := range r {
		switch rel.Kind {
		case CallFunc:
			sink.RelocFunc(rel.Offset, rel.Func)
		case JumpBlock:
			sink.RelocBlock(rel.Offset, rel.Block)
		case JumpTableRef:
			sink.RelocJumpTable(rel.Offset, rel.Table)
		}
	}
}
