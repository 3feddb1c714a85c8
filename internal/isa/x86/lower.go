package x86

import (
	"fmt"
	"math"

	"github.com/tinyrange/jitlink/internal/binemit"
	"github.com/tinyrange/jitlink/internal/ir"
)

// Relocated control transfers follow the linker's displacement rule: the
// rel32 field sits at site+4 and receives target-field. The CPU adds the
// displacement to the end of the instruction (field+4), so execution arrives
// four bytes past the named target. Each block therefore opens with a four
// byte landing pad that callers and branches skip and fall-through executes.

type compiled struct {
	code    []byte
	relocs  binemit.Relocs
	offsets []uint32
}

func (c *compiled) CodeSize() int { return len(c.code) }

func (c *compiled) Offsets() []uint32 { return append([]uint32(nil), c.offsets...) }

func (c *compiled) EmitTo(buf []byte, sink binemit.Sink) (int, error) {
	if len(buf) < len(c.code) {
		return 0, fmt.Errorf("x86: emit buffer holds %d bytes, need %d", len(buf), len(c.code))
	}
	n := copy(buf, c.code)
	if sink != nil {
		c.relocs.Replay(sink)
	}
	return n, nil
}

func lower(fn *ir.Function) (*compiled, error) {
	out := &compiled{
		offsets: make([]uint32, len(fn.Blocks)),
	}
	code := make([]byte, 0, 16*len(fn.Blocks))

	for bi, block := range fn.Blocks {
		if len(code) > math.MaxInt32 {
			return nil, fmt.Errorf("x86: function %q exceeds 2GiB", fn.Name)
		}
		out.offsets[bi] = uint32(len(code))
		code = append(code, landingPad...)

		for ii, inst := range block.Insts {
			var site int
			switch inst.Op {
			case ir.OpIconst:
				code = encodeMovRegImm(code, accumulator, inst.Imm)
			case ir.OpIadd:
				if inst.Imm < math.MinInt32 || inst.Imm > math.MaxInt32 {
					return nil, fmt.Errorf("x86: %s: immediate %d out of range", ir.InstRef{Block: ir.Block(bi), Index: ii}, inst.Imm)
				}
				code = encodeAddRegImm(code, accumulator, int32(inst.Imm))
			case ir.OpLoad:
				code = encodeMovRegImm64(code, scratch, inst.Addr)
				code = encodeMovRegMem(code, accumulator, scratch)
			case ir.OpStore:
				code = encodeMovRegImm64(code, scratch, inst.Addr)
				code = encodeMovMemReg(code, scratch, accumulator)
			case ir.OpCall:
				code, site = encodeRelocated(code, callDirect)
				out.relocs.RelocFunc(uint32(site), inst.Func)
			case ir.OpJump:
				code, site = encodeRelocated(code, jumpAlways)
				out.relocs.RelocBlock(uint32(site), inst.Dest)
			case ir.OpBrz, ir.OpBrnz:
				code = encodeTestRegReg(code, accumulator, accumulator)
				kind := jumpEqual
				if inst.Op == ir.OpBrnz {
					kind = jumpNotEqual
				}
				code, site = encodeRelocated(code, kind)
				out.relocs.RelocBlock(uint32(site), inst.Dest)
			case ir.OpBrTable:
				// Table dispatch needs a data-relative relocation the linker
				// does not provide; the jump is recorded so linking rejects it.
				code, site = encodeRelocated(code, jumpAlways)
				out.relocs.RelocJumpTable(uint32(site), inst.Table)
			case ir.OpReturn:
				code = append(code, opRet...)
			default:
				return nil, fmt.Errorf("x86: %s: cannot lower %s", ir.InstRef{Block: ir.Block(bi), Index: ii}, inst.Op)
			}
		}
	}

	out.code = code
	return out, nil
}
