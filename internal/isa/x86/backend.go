// Package x86 is the x86-64 code generation backend.
package x86

import (
	"fmt"

	"github.com/tinyrange/jitlink/internal/ir"
	"github.com/tinyrange/jitlink/internal/isa"
)

type backend struct {
	cfg isa.Config
}

var (
	_ isa.Backend = backend{}
)

func init() {
	isa.RegisterBackend(isa.ArchX86_64, New)
}

// New returns the x86-64 backend for cfg.
func New(cfg isa.Config) (isa.Backend, error) {
	if cfg.Arch() != isa.ArchX86_64 {
		return nil, fmt.Errorf("x86: config targets %s", cfg.Arch())
	}
	if !cfg.Is64Bit() {
		return nil, fmt.Errorf("x86: %d-bit pointers are not supported", cfg.PointerWidth())
	}
	return backend{cfg: cfg}, nil
}

func (backend) Name() string { return "x86_64" }

func (b backend) Config() isa.Config { return b.cfg }

func (backend) Verify(fn *ir.Function) error {
	return ir.Verify(fn)
}

// Compile lowers fn. With the verifier enabled the function is checked again
// first, so a function mutated after Verify still fails with a verifier error.
func (b backend) Compile(fn *ir.Function) (isa.Compiled, error) {
	if b.cfg.EnableVerifier() {
		if err := ir.Verify(fn); err != nil {
			return nil, err
		}
	}
	c, err := lower(fn)
	if err != nil {
		return nil, err
	}
	return c, nil
}
