//go:build unix

package launch

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/tinyrange/jitlink/internal/binding"
	"github.com/tinyrange/jitlink/internal/codegen"
	"github.com/tinyrange/jitlink/internal/isa"
	_ "github.com/tinyrange/jitlink/internal/isa/x86"
	"github.com/tinyrange/jitlink/internal/link"
	"github.com/tinyrange/jitlink/internal/memory"
	"github.com/tinyrange/jitlink/internal/module"
)

func linkDescriptor(t *testing.T, src string, opts ...isa.Option) *link.Module {
	t.Helper()
	mod, bindings, err := module.Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return linkParsed(t, mod, bindings, opts...)
}

func linkParsed(t *testing.T, mod *module.Module, bindings *binding.Static, opts ...isa.Option) *link.Module {
	t.Helper()
	cfg, err := isa.NewConfig(append([]isa.Option{isa.WithArch(isa.ArchX86_64)}, opts...)...)
	if err != nil {
		t.Fatalf("NewConfig failed: %v", err)
	}
	backend, err := isa.Lookup(cfg)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	funcs, err := codegen.Compile(mod, backend, codegen.Options{})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	m, err := link.Link(mod, funcs, bindings, cfg)
	if err != nil {
		t.Fatalf("Link failed: %v", err)
	}
	t.Cleanup(func() { m.Release() })
	return m
}

const noStartModule = `
functions:
  - name: idle
    blocks:
      - name: entry
        code: [return]
`

func TestExecuteWithoutStart(t *testing.T) {
	m := linkDescriptor(t, noStartModule)

	if err := Execute(m); !errors.Is(err, ErrNoStart) {
		t.Fatalf("Execute=%v, want ErrNoStart", err)
	}
	if got := m.Region().Protection(); got != memory.ReadWrite {
		t.Fatalf("protection after failed launch=%s, want rw-", got)
	}
}

func TestPrepareAfterRelease(t *testing.T) {
	m := linkDescriptor(t, "start: idle\n"+strings.TrimPrefix(noStartModule, "\n"))
	if err := m.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := Prepare(m); err == nil {
		t.Fatalf("Prepare succeeded on a released module")
	}
}

func TestProtectError(t *testing.T) {
	err := error(&ProtectError{Protection: memory.ReadWriteExecute, Err: unix.EACCES})
	if !errors.Is(err, unix.EACCES) {
		t.Fatalf("ProtectError does not unwrap the errno")
	}
	if !strings.HasPrefix(err.Error(), "failed to give executable permission to code: ") {
		t.Fatalf("ProtectError message=%q", err.Error())
	}
}
