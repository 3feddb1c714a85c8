package ir

import (
	"fmt"
	"math"
)

// VerifierError describes the first problem found in a function.
type VerifierError struct {
	Location Entity
	Message  string
}

func (e *VerifierError) Error() string {
	return fmt.Sprintf("%s: %s", e.Location, e.Message)
}

func verifierErrorf(loc Entity, format string, args ...any) *VerifierError {
	return &VerifierError{Location: loc, Message: fmt.Sprintf(format, args...)}
}

// Verify checks the structural invariants a backend relies on. The first
// violation is returned as a *VerifierError.
func Verify(f *Function) error {
	if f == nil {
		return verifierErrorf(FuncEntity{}, "function is nil")
	}
	if len(f.Blocks) == 0 {
		return verifierErrorf(FuncEntity{}, "function has no blocks")
	}

	for jt, targets := range f.JumpTables {
		if len(targets) == 0 {
			return verifierErrorf(FuncEntity{}, "%s has no targets", JumpTable(jt))
		}
		for _, b := range targets {
			if int(b) >= len(f.Blocks) {
				return verifierErrorf(FuncEntity{}, "%s targets undefined %s", JumpTable(jt), b)
			}
		}
	}

	for bi, block := range f.Blocks {
		blk := Block(bi)
		if len(block.Insts) == 0 {
			return verifierErrorf(BlockEntity{Block: blk}, "block is empty")
		}
		last := len(block.Insts) - 1
		for ii, inst := range block.Insts {
			ref := InstRef{Block: blk, Index: ii}
			if err := verifyInst(f, ref, inst); err != nil {
				return err
			}
			if inst.Op.IsTerminator() && ii != last {
				return verifierErrorf(ref, "terminator %s in the middle of %s", inst.Op, blk)
			}
		}
		if !block.Insts[last].Op.IsTerminator() {
			return verifierErrorf(InstRef{Block: blk, Index: last}, "%s does not end with a terminator", blk)
		}
	}
	return nil
}

func verifyInst(f *Function, ref InstRef, inst Inst) error {
	switch inst.Op {
	case OpIconst, OpLoad, OpStore, OpReturn:
	case OpIadd:
		if inst.Imm < math.MinInt32 || inst.Imm > math.MaxInt32 {
			return verifierErrorf(ref, "iadd immediate %d does not fit in 32 bits", inst.Imm)
		}
	case OpCall:
		if int(inst.Func) >= len(f.FuncRefs) {
			return verifierErrorf(ref, "call to undeclared %s", inst.Func)
		}
	case OpJump, OpBrz, OpBrnz:
		if int(inst.Dest) >= len(f.Blocks) {
			return verifierErrorf(ref, "branch to undefined %s", inst.Dest)
		}
	case OpBrTable:
		if int(inst.Table) >= len(f.JumpTables) {
			return verifierErrorf(ref, "undeclared %s", inst.Table)
		}
	default:
		return verifierErrorf(ref, "unknown opcode %s", inst.Op)
	}
	return nil
}
