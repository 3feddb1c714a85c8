package codegen

import (
	"errors"
	"fmt"

	"github.com/tinyrange/jitlink/internal/ir"
)

var (
	// ErrNoCode is returned when a backend reports success but produces no
	// machine code for a function.
	ErrNoCode = errors.New("no code generated")

	// ErrImportedStart is returned when the start index names an import.
	ErrImportedStart = errors.New("codegen: start function is an import")
	// ErrStartRange is returned when the start index names no function.
	ErrStartRange = errors.New("codegen: start function index out of range")
)

// VerifyError reports a function rejected by the IR verifier, either before
// compilation or by the backend itself. Error returns the full diagnostic.
type VerifyError struct {
	Index int
	Name  string
	Err   *ir.VerifierError
	Text  string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("function %d (%s) failed verification: %s", e.Index, e.Name, e.Text)
}

func (e *VerifyError) Unwrap() error { return e.Err }

// BackendError reports a code generation failure that is not a verifier
// error.
type BackendError struct {
	Index int
	Name  string
	Err   error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("compile function %d (%s): %v", e.Index, e.Name, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }
