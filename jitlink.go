// Package jitlink compiles a module of IR functions to native code, links the
// functions in memory and runs the module's start function in-process.
package jitlink

import (
	"fmt"

	"github.com/tinyrange/jitlink/internal/binding"
	"github.com/tinyrange/jitlink/internal/codegen"
	"github.com/tinyrange/jitlink/internal/isa"
	_ "github.com/tinyrange/jitlink/internal/isa/x86"
	"github.com/tinyrange/jitlink/internal/launch"
	"github.com/tinyrange/jitlink/internal/link"
	"github.com/tinyrange/jitlink/internal/module"
)

// -----------------------------------------------------------------------------
// Type Aliases - These re-export types from the internal packages
// -----------------------------------------------------------------------------

// Module is a module ready for code generation.
type Module = module.Module

// Binding resolves the callees a function declares to module indices.
type Binding = link.Binding

// Bindings is the static Binding produced by the module descriptor loader.
type Bindings = binding.Static

// Config describes the code generation target.
type Config = isa.Config

// ConfigOption adjusts a Config.
type ConfigOption = isa.Option

// Linked is a module whose code has been placed and patched.
type Linked = link.Module

// Error kinds.
var (
	ErrNoCode            = codegen.ErrNoCode
	ErrImportedStart     = codegen.ErrImportedStart
	ErrStartRange        = codegen.ErrStartRange
	ErrNoStart           = launch.ErrNoStart
	ErrPatchRange        = link.ErrPatchRange
	ErrDisplacementRange = link.ErrDisplacementRange
	ErrJumpTable         = link.ErrJumpTable
	ErrUnlinkableCall    = link.ErrUnlinkableCall
)

type (
	VerifyError  = codegen.VerifyError
	BackendError = codegen.BackendError
	ProtectError = launch.ProtectError
)

// -----------------------------------------------------------------------------
// Pipeline
// -----------------------------------------------------------------------------

// NewConfig builds a target configuration for the host by default.
func NewConfig(opts ...ConfigOption) (Config, error) { return isa.NewConfig(opts...) }

// LoadConfig reads a YAML target configuration.
func LoadConfig(path string, opts ...ConfigOption) (Config, error) {
	return isa.LoadConfig(path, opts...)
}

// Load reads a YAML module descriptor.
func Load(path string) (*Module, *Bindings, error) { return module.Load(path) }

// Parse decodes a YAML module descriptor.
func Parse(data []byte) (*Module, *Bindings, error) { return module.Parse(data) }

// Options observe compilation.
type Options struct {
	// Progress is called after each function is compiled.
	Progress func(done, total int)
}

// Compile generates code for every local function of mod and links the
// result. The returned module is not executable until Execute; the caller
// must Release it.
func Compile(mod *Module, b Binding, cfg Config, opts Options) (*Linked, error) {
	backend, err := isa.Lookup(cfg)
	if err != nil {
		return nil, fmt.Errorf("select backend: %w", err)
	}

	funcs, err := codegen.Compile(mod, backend, codegen.Options{Progress: opts.Progress})
	if err != nil {
		return nil, err
	}

	linked, err := link.Link(mod, funcs, b, cfg)
	if err != nil {
		return nil, fmt.Errorf("link module: %w", err)
	}
	return linked, nil
}

// Execute runs the start function of a linked module.
func Execute(m *Linked) error { return launch.Execute(m) }

// Run compiles, links and executes mod, then releases its code.
func Run(mod *Module, b Binding, cfg Config, opts Options) error {
	linked, err := Compile(mod, b, cfg, opts)
	if err != nil {
		return err
	}
	defer linked.Release()

	return Execute(linked)
}
