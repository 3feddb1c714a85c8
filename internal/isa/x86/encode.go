package x86

import (
	"encoding/binary"
	"fmt"
	"math"
)

type reg uint8

const (
	rax reg = 0
	rcx reg = 1
	rdx reg = 2
	rbx reg = 3
	rsp reg = 4
	rbp reg = 5
	rsi reg = 6
	rdi reg = 7
	r8  reg = 8
	r11 reg = 11
	r12 reg = 12
	r13 reg = 13
	r15 reg = 15
)

// The accumulator holds every IR value; the scratch register carries absolute
// addresses for loads and stores. Both are caller-saved in the host ABI so
// generated code never has to spill them.
const (
	accumulator = rax
	scratch     = r11
)

func (r reg) code() byte { return byte(r) & 7 }
func (r reg) high() bool { return r >= r8 }

func rexPrefix(w, r, x, b bool) byte {
	if !w && !r && !x && !b {
		return 0
	}
	prefix := byte(0x40)
	if w {
		prefix |= 0x08
	}
	if r {
		prefix |= 0x04
	}
	if x {
		prefix |= 0x02
	}
	if b {
		prefix |= 0x01
	}
	return prefix
}

func appendRex(out []byte, w, r, x, b bool) []byte {
	if prefix := rexPrefix(w, r, x, b); prefix != 0 {
		out = append(out, prefix)
	}
	return out
}

// Fixed byte sequences. Every relocated instruction is preceded by padding so
// that its rel32 field starts exactly four bytes after the relocation site,
// and every block starts with a four byte landing pad (see lower.go).
var (
	nop2       = []byte{0x66, 0x90}
	nop3       = []byte{0x0F, 0x1F, 0x00}
	landingPad = []byte{0x0F, 0x1F, 0x40, 0x00}
	opRet      = []byte{0xC3}
)

const (
	relocPrefixSize = 4
	rel32Size       = 4
)

// encodeMovRegImm picks the shortest encoding for value the same way the
// assembler does: zero-extended imm32, sign-extended imm32, then imm64.
func encodeMovRegImm(out []byte, dst reg, value int64) []byte {
	switch {
	case value >= 0 && value <= math.MaxUint32:
		out = appendRex(out, false, false, false, dst.high())
		out = append(out, 0xB8+dst.code())
		return binary.LittleEndian.AppendUint32(out, uint32(value))
	case value >= math.MinInt32 && value < 0:
		out = appendRex(out, true, false, false, dst.high())
		out = append(out, 0xC7, 0xC0|dst.code())
		return binary.LittleEndian.AppendUint32(out, uint32(int32(value)))
	default:
		out = appendRex(out, true, false, false, dst.high())
		out = append(out, 0xB8+dst.code())
		return binary.LittleEndian.AppendUint64(out, uint64(value))
	}
}

// encodeMovRegImm64 always uses the ten byte form; absolute addresses keep a
// fixed size regardless of their value.
func encodeMovRegImm64(out []byte, dst reg, value uint64) []byte {
	out = appendRex(out, true, false, false, dst.high())
	out = append(out, 0xB8+dst.code())
	return binary.LittleEndian.AppendUint64(out, value)
}

func encodeAddRegImm(out []byte, dst reg, value int32) []byte {
	out = appendRex(out, true, false, false, dst.high())
	if value >= math.MinInt8 && value <= math.MaxInt8 {
		return append(out, 0x83, 0xC0|dst.code(), byte(int8(value)))
	}
	out = append(out, 0x81, 0xC0|dst.code())
	return binary.LittleEndian.AppendUint32(out, uint32(value))
}

// encodeMemRM encodes [base] for the given reg field, handling the rsp/r12
// (SIB required) and rbp/r13 (disp8 required) special cases.
func encodeMemRM(out []byte, regField byte, base reg) []byte {
	switch base.code() {
	case rsp.code():
		return append(out, 0x00|regField<<3|0x04, 0x24)
	case rbp.code():
		return append(out, 0x40|regField<<3|0x05, 0x00)
	default:
		return append(out, 0x00|regField<<3|base.code())
	}
}

// encodeMovMemReg encodes mov qword [base], src.
func encodeMovMemReg(out []byte, base, src reg) []byte {
	out = appendRex(out, true, src.high(), false, base.high())
	out = append(out, 0x89)
	return encodeMemRM(out, src.code(), base)
}

// encodeMovRegMem encodes mov dst, qword [base].
func encodeMovRegMem(out []byte, dst, base reg) []byte {
	out = appendRex(out, true, dst.high(), false, base.high())
	out = append(out, 0x8B)
	return encodeMemRM(out, dst.code(), base)
}

func encodeTestRegReg(out []byte, dst, src reg) []byte {
	out = appendRex(out, true, src.high(), false, dst.high())
	return append(out, 0x85, 0xC0|src.code()<<3|dst.code())
}

type jumpKind int

const (
	jumpAlways jumpKind = iota
	jumpEqual
	jumpNotEqual
	callDirect
)

// encodeRelocated appends a padded rel32 instruction with a zero
// displacement. It returns the offset of the relocation site, which is
// always relocPrefixSize bytes before the rel32 field.
func encodeRelocated(out []byte, kind jumpKind) ([]byte, int) {
	site := len(out)
	switch kind {
	case callDirect:
		out = append(out, nop3...)
		out = append(out, 0xE8)
	case jumpAlways:
		out = append(out, nop3...)
		out = append(out, 0xE9)
	case jumpEqual:
		out = append(out, nop2...)
		out = append(out, 0x0F, 0x84)
	case jumpNotEqual:
		out = append(out, nop2...)
		out = append(out, 0x0F, 0x85)
	default:
		panic(fmt.Sprintf("x86: unsupported jump kind %d", kind))
	}
	out = append(out, 0, 0, 0, 0)
	return out, site
}
