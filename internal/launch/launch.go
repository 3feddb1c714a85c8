// Package launch makes a linked module executable and calls its start
// function.
package launch

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/tinyrange/jitlink/internal/isa"
	"github.com/tinyrange/jitlink/internal/link"
	"github.com/tinyrange/jitlink/internal/memory"
	"github.com/tinyrange/jitlink/internal/timeslice"
)

var (
	tsProtect = timeslice.RegisterKind("launch.protect")
	tsRun     = timeslice.RegisterKind("launch.run")
)

// ErrNoStart is returned when asked to run a module without a start function.
var ErrNoStart = errors.New("launch: module has no start function")

// ProtectError reports that the operating system refused to make the code
// executable.
type ProtectError struct {
	Protection memory.Protection
	Err        error
}

func (e *ProtectError) Error() string {
	return fmt.Sprintf("failed to give executable permission to code: %v", e.Err)
}

func (e *ProtectError) Unwrap() error { return e.Err }

// Entry is the address of a native function taking no arguments and
// returning nothing. Only Prepare creates one, after the code it points at
// became executable.
type Entry uintptr

// Prepare transitions the region holding the start function of m to an
// executable protection and returns its entry point. Modules configured for
// write-xor-execute become read+execute, all others read+write+execute.
func Prepare(m *link.Module) (Entry, error) {
	if !m.HasStart() {
		return 0, ErrNoStart
	}
	local, err := m.Local(m.Start())
	if err != nil {
		return 0, fmt.Errorf("launch: %w", err)
	}
	if !nativeCalls {
		return 0, errUnsupported
	}
	if arch := m.Config().Arch(); arch != isa.ArchNative {
		return 0, fmt.Errorf("launch: cannot run %s code on %s", arch, runtime.GOARCH)
	}

	prot := memory.ReadWriteExecute
	if m.Config().WriteXorExecute() {
		prot = memory.ReadExecute
	}
	region := m.Region()
	if region == nil {
		return 0, fmt.Errorf("launch: module code was released")
	}
	if !region.Contains(m.Code(local)) {
		return 0, fmt.Errorf("launch: start function %d lies outside the code region", m.Start())
	}
	if region.Protection() != prot {
		start := time.Now()
		if err := region.Protect(prot); err != nil {
			return 0, &ProtectError{Protection: prot, Err: err}
		}
		timeslice.Record(tsProtect, time.Since(start))
	}

	entry := Entry(m.Address(local))
	slog.Debug("prepared entry",
		"function", m.Start(),
		"name", m.Name(local),
		"protection", prot.String(),
		"entry", fmt.Sprintf("%#x", uintptr(entry)),
	)
	return entry, nil
}

// Execute runs the start function of m to completion.
func Execute(m *link.Module) error {
	entry, err := Prepare(m)
	if err != nil {
		return err
	}
	start := time.Now()
	entry.Call()
	timeslice.Record(tsRun, time.Since(start))
	return nil
}
