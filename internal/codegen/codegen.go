// Package codegen drives a backend over every local function of a module and
// collects the emitted code, block offsets and relocation records.
package codegen

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinyrange/jitlink/internal/binemit"
	"github.com/tinyrange/jitlink/internal/ir"
	"github.com/tinyrange/jitlink/internal/isa"
	"github.com/tinyrange/jitlink/internal/module"
	"github.com/tinyrange/jitlink/internal/timeslice"
)

var tsCompileFunction = timeslice.RegisterKind("codegen.function")

// Function is the compiled form of one local function. Func is a private
// copy of the IR taken after compilation. Code is not executable.
type Function struct {
	Index   int
	Func    *ir.Function
	Code    []byte
	Relocs  binemit.Relocs
	Offsets []uint32
}

// Options tunes a Compile run.
type Options struct {
	// Progress, when set, is called after each function is compiled.
	Progress func(done, total int)
}

// Compile generates code for every local function of mod, in order. The
// first failure aborts the whole module.
func Compile(mod *module.Module, backend isa.Backend, opts Options) ([]Function, error) {
	if err := checkStart(mod); err != nil {
		return nil, err
	}

	verify := backend.Config().EnableVerifier()
	out := make([]Function, 0, len(mod.Functions))
	for i, fn := range mod.Functions {
		index := mod.ImportCount + i
		start := time.Now()
		f, err := compileFunction(backend, verify, index, fn)
		if err != nil {
			return nil, err
		}
		timeslice.Record(tsCompileFunction, time.Since(start))

		slog.Debug("compiled function",
			"index", index,
			"name", fn.Name,
			"size", len(f.Code),
			"relocs", len(f.Relocs),
		)

		out = append(out, f)
		if opts.Progress != nil {
			opts.Progress(i+1, len(mod.Functions))
		}
	}
	return out, nil
}

func checkStart(mod *module.Module) error {
	if !mod.HasStart() {
		return nil
	}
	switch {
	case mod.Start < 0 || mod.Start >= mod.NumFunctions():
		return fmt.Errorf("%w: %d (module has %d functions)", ErrStartRange, mod.Start, mod.NumFunctions())
	case mod.IsImport(mod.Start):
		return fmt.Errorf("%w: %d (%d imports)", ErrImportedStart, mod.Start, mod.ImportCount)
	}
	return nil
}

func compileFunction(backend isa.Backend, verify bool, index int, fn *ir.Function) (Function, error) {
	name := fmt.Sprintf("func%d", index)
	if fn == nil {
		return Function{}, &BackendError{Index: index, Name: name, Err: errors.New("function is nil")}
	}
	if fn.Name != "" {
		name = fn.Name
	}

	if verify {
		if err := backend.Verify(fn); err != nil {
			return Function{}, classify(fn, index, name, err)
		}
	}

	compiled, err := backend.Compile(fn)
	if err != nil {
		return Function{}, classify(fn, index, name, err)
	}

	size := compiled.CodeSize()
	if size == 0 {
		return Function{}, fmt.Errorf("function %d (%s): %w", index, name, ErrNoCode)
	}
	if size < 0 {
		return Function{}, &BackendError{Index: index, Name: name, Err: fmt.Errorf("negative code size %d", size)}
	}

	code := make([]byte, size)
	var relocs binemit.Relocs
	n, err := compiled.EmitTo(code, &relocs)
	if err != nil {
		return Function{}, &BackendError{Index: index, Name: name, Err: fmt.Errorf("emit: %w", err)}
	}
	if n != size {
		return Function{}, &BackendError{Index: index, Name: name, Err: fmt.Errorf("emitted %d bytes, reported %d", n, size)}
	}

	return Function{
		Index:   index,
		Func:    fn.Clone(),
		Code:    code,
		Relocs:  relocs,
		Offsets: compiled.Offsets(),
	}, nil
}

func classify(fn *ir.Function, index int, name string, err error) error {
	var verr *ir.VerifierError
	if errors.As(err, &verr) {
		return &VerifyError{Index: index, Name: name, Err: verr, Text: PrettyVerifierError(fn, verr)}
	}
	return &BackendError{Index: index, Name: name, Err: err}
}
