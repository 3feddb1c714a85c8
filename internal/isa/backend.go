// Package isa describes code generation targets and keeps the registry of
// backends that can lower IR functions to machine code.
package isa

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tinyrange/jitlink/internal/binemit"
	"github.com/tinyrange/jitlink/internal/ir"
)

// Backend lowers single IR functions to machine code for one target.
type Backend interface {
	Name() string
	Config() Config

	// Verify checks fn, returning an *ir.VerifierError on failure.
	Verify(fn *ir.Function) error

	// Compile performs instruction selection and layout for fn. The returned
	// Compiled knows its exact code size before any bytes are written.
	Compile(fn *ir.Function) (Compiled, error)
}

// Compiled is the result of Backend.Compile for one function.
type Compiled interface {
	// CodeSize is the exact number of bytes EmitTo will write.
	CodeSize() int

	// Offsets maps each block of the function to its byte offset.
	Offsets() []uint32

	// EmitTo writes the machine code into buf, which must hold at least
	// CodeSize bytes, and reports every relocation site to sink.
	EmitTo(buf []byte, sink binemit.Sink) (int, error)
}

// Factory builds a backend for a validated Config.
type Factory func(cfg Config) (Backend, error)

var (
	backendsMu sync.RWMutex
	backends   = make(map[Arch]Factory)
)

// RegisterBackend wires an architecture-specific backend into Lookup. It
// panics when the same architecture is registered twice so mistakes are
// caught during init.
func RegisterBackend(arch Arch, factory Factory) {
	if arch == ArchInvalid {
		panic("isa: cannot register backend for invalid architecture")
	}
	if factory == nil {
		panic("isa: backend factory must be non-nil")
	}

	backendsMu.Lock()
	defer backendsMu.Unlock()

	if _, exists := backends[arch]; exists {
		panic(fmt.Sprintf("isa: backend for %s already registered", arch))
	}
	backends[arch] = factory
}

// Lookup returns the backend registered for cfg.Arch(), configured by cfg.
func Lookup(cfg Config) (Backend, error) {
	backendsMu.RLock()
	factory, ok := backends[cfg.Arch()]
	backendsMu.RUnlock()

	if !ok {
		if cfg.Arch() == ArchInvalid {
			return nil, fmt.Errorf("isa: architecture must be specified")
		}
		return nil, fmt.Errorf("isa: no backend registered for %q (available: %s)", cfg.Arch(), available())
	}
	return factory(cfg)
}

// Registered lists the architectures with a backend, sorted by name.
func Registered() []Arch {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	out := make([]Arch, 0, len(backends))
	for arch := range backends {
		out = append(out, arch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func available() string {
	archs := Registered()
	if len(archs) == 0 {
		return "none"
	}
	names := make([]string, len(archs))
	for i, arch := range archs {
		names[i] = string(arch)
	}
	return strings.Join(names, ", ")
}
