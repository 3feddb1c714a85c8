// Package link places compiled functions in memory and resolves the
// relocations between them.
package link

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"unsafe"

	"github.com/tinyrange/jitlink/internal/binemit"
	"github.com/tinyrange/jitlink/internal/codegen"
	"github.com/tinyrange/jitlink/internal/ir"
)

var (
	// ErrPatchRange reports a relocation whose displacement field lies past
	// the end of its code buffer.
	ErrPatchRange = errors.New("link: patch site outside code buffer")
	// ErrDisplacementRange reports a target more than 2GiB from its site.
	ErrDisplacementRange = errors.New("link: displacement does not fit in 32 bits")
	// ErrJumpTable is returned for any jump table relocation.
	ErrJumpTable = errors.New("link: jump table relocations are not supported")
	// ErrUnlinkableCall reports a call bound to an import or to an index
	// outside the module.
	ErrUnlinkableCall = errors.New("link: call target is not a local function")
)

// Binding maps the function references declared by a caller to absolute
// module function indices.
type Binding interface {
	FunctionIndex(caller int, ref ir.FuncRef) (int, error)
}

// rel32Field is the distance from a relocation site to its 32-bit
// displacement field.
const rel32Field = 4

// PatchRel32 writes value little endian into the displacement field of the
// relocation at site, i.e. buf[site+4:site+8].
func PatchRel32(buf []byte, site binemit.CodeOffset, value int32) error {
	field := uint64(site) + rel32Field
	if field+4 > uint64(len(buf)) {
		return fmt.Errorf("%w: site %#x in %d-byte buffer", ErrPatchRange, site, len(buf))
	}
	binary.LittleEndian.PutUint32(buf[field:field+4], uint32(value))
	return nil
}

func address(buf []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
}

// displacement returns target minus the address of the field belonging to
// the relocation at site in buf.
func displacement(buf []byte, site binemit.CodeOffset, target uintptr) (int32, error) {
	field := address(buf) + uintptr(site) + rel32Field
	delta := int64(target) - int64(field)
	if delta < math.MinInt32 || delta > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %#x -> %#x", ErrDisplacementRange, field, target)
	}
	return int32(delta), nil
}

// Relocate patches every call and block relocation of funcs. code[i] is the
// final buffer of funcs[i] and must not move afterwards: displacements are
// computed from the buffers' addresses.
func Relocate(importCount int, funcs []codegen.Function, code [][]byte, b Binding) error {
	if len(code) != len(funcs) {
		return fmt.Errorf("link: %d code buffers for %d functions", len(code), len(funcs))
	}

	for i, f := range funcs {
		buf := code[i]
		caller := importCount + i
		for _, r := range f.Relocs {
			var target uintptr
			switch r.Kind {
			case binemit.CallFunc:
				index, err := b.FunctionIndex(caller, r.Func)
				if err != nil {
					return fmt.Errorf("link: function %d %s: %w", caller, r, err)
				}
				local := index - importCount
				if local < 0 || local >= len(code) {
					return fmt.Errorf("%w: function %d %s resolves to %d", ErrUnlinkableCall, caller, r, index)
				}
				target = address(code[local])
			case binemit.JumpBlock:
				if int(r.Block) >= len(f.Offsets) {
					return fmt.Errorf("link: function %d %s: no offset for %s", caller, r, r.Block)
				}
				target = address(buf) + uintptr(f.Offsets[r.Block])
			case binemit.JumpTableRef:
				return fmt.Errorf("%w: function %d %s", ErrJumpTable, caller, r)
			default:
				return fmt.Errorf("link: function %d: unknown relocation kind %s", caller, r.Kind)
			}

			if uint64(r.Offset)+rel32Field+4 > uint64(len(buf)) {
				return fmt.Errorf("function %d %s: %w", caller, r, ErrPatchRange)
			}
			value, err := displacement(buf, r.Offset, target)
			if err != nil {
				return fmt.Errorf("function %d %s: %w", caller, r, err)
			}
			if err := PatchRel32(buf, r.Offset, value); err != nil {
				return fmt.Errorf("function %d %s: %w", caller, r, err)
			}

			slog.Debug("patched relocation",
				"function", caller,
				"reloc", r.String(),
				"value", value,
			)
		}
	}
	return nil
}
