// Package memory manages the page-aligned anonymous mappings that hold
// generated code.
package memory

import (
	"errors"
	"fmt"
	"unsafe"
)

type Protection int

const (
	ReadWrite Protection = iota
	ReadExecute
	ReadWriteExecute
)

func (p Protection) String() string {
	switch p {
	case ReadWrite:
		return "rw-"
	case ReadExecute:
		return "r-x"
	case ReadWriteExecute:
		return "rwx"
	default:
		return fmt.Sprintf("protection(%d)", int(p))
	}
}

// Executable reports whether code in a region with protection p may run.
func (p Protection) Executable() bool {
	return p == ReadExecute || p == ReadWriteExecute
}

var ErrReleased = errors.New("memory: region already released")

// Region is an anonymous mapping. It starts out read+write and may be
// transitioned to an executable protection once. Callers own it exclusively.
type Region struct {
	mem  []byte
	size int
	prot Protection
}

// Bytes returns the usable part of the region (the size passed to
// Allocate). It is only writable while the protection is writable.
func (r *Region) Bytes() []byte {
	if r.mem == nil {
		return nil
	}
	return r.mem[:r.size:r.size]
}

// Base returns the address of the first byte of the region.
func (r *Region) Base() uintptr {
	if len(r.mem) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&r.mem[0]))
}

// Len returns the usable size of the region.
func (r *Region) Len() int { return r.size }

// Mapped returns the page-rounded size of the mapping.
func (r *Region) Mapped() int { return len(r.mem) }

// Protection returns the current protection.
func (r *Region) Protection() Protection { return r.prot }

// Contains reports whether buf lies entirely inside the region.
func (r *Region) Contains(buf []byte) bool {
	if len(buf) == 0 || r.mem == nil {
		return false
	}
	start := uintptr(unsafe.Pointer(&buf[0]))
	base := r.Base()
	return start >= base && start+uintptr(len(buf)) <= base+uintptr(r.size)
}

func roundUp(n, align int) int {
	return ((n + align - 1) / align) * align
}
