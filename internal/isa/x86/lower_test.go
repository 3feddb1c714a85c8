package x86

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/tinyrange/jitlink/internal/binemit"
	"github.com/tinyrange/jitlink/internal/ir"
	"github.com/tinyrange/jitlink/internal/isa"
)

func mustBackend(t *testing.T, opts ...isa.Option) isa.Backend {
	t.Helper()
	cfg, err := isa.NewConfig(append([]isa.Option{isa.WithArch(isa.ArchX86_64)}, opts...)...)
	if err != nil {
		t.Fatalf("NewConfig failed: %v", err)
	}
	b, err := isa.Lookup(cfg)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	return b
}

func emit(t *testing.T, c isa.Compiled) ([]byte, binemit.Relocs) {
	t.Helper()
	buf := make([]byte, c.CodeSize())
	var relocs binemit.Relocs
	n, err := c.EmitTo(buf, &relocs)
	if err != nil {
		t.Fatalf("EmitTo failed: %v", err)
	}
	if n != c.CodeSize() {
		t.Fatalf("EmitTo wrote %d bytes, CodeSize=%d", n, c.CodeSize())
	}
	return buf, relocs
}

func TestCompileCallLayout(t *testing.T) {
	fn := ir.NewFunction("caller")
	callee := fn.DeclareFunc("callee")
	fn.AddBlock(ir.Iconst(5), ir.Call(callee), ir.Return())

	c, err := mustBackend(t).Compile(fn)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	code, relocs := emit(t, c)

	expectHex(t, "caller", code,
		"0f1f4000"+ // landing pad
			"b805000000"+ // mov eax, 5
			"0f1f00e800000000"+ // call rel32
			"c3")

	want := binemit.Relocs{{Kind: binemit.CallFunc, Offset: 9, Func: callee}}
	if !reflect.DeepEqual(relocs, want) {
		t.Fatalf("relocs=%v, want %v", relocs, want)
	}
	if got := c.Offsets(); !reflect.DeepEqual(got, []uint32{0}) {
		t.Fatalf("Offsets=%v, want [0]", got)
	}
}

func TestCompileBlockOffsets(t *testing.T) {
	fn := ir.NewFunction("loop")
	entry := fn.AddBlock()
	body := fn.AddBlock()
	exit := fn.AddBlock(ir.Return())
	fn.Append(entry, ir.Iconst(3), ir.Jump(body))
	fn.Append(body, ir.Iadd(-1), ir.Brnz(body), ir.Jump(exit))

	c, err := mustBackend(t).Compile(fn)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	code, relocs := emit(t, c)

	// entry: pad(4) mov(5) jmp(8)               = 17
	// body:  pad(4) add(4) test(3) jnz(8) jmp(8) = 27
	wantOffsets := []uint32{0, 17, 44}
	if got := c.Offsets(); !reflect.DeepEqual(got, wantOffsets) {
		t.Fatalf("Offsets=%v, want %v", got, wantOffsets)
	}
	if got, want := len(code), 44+4+1; got != want {
		t.Fatalf("code size=%d, want %d", got, want)
	}

	wantRelocs := binemit.Relocs{
		{Kind: binemit.JumpBlock, Offset: 9, Block: body},
		{Kind: binemit.JumpBlock, Offset: 28, Block: body},
		{Kind: binemit.JumpBlock, Offset: 36, Block: exit},
	}
	if !reflect.DeepEqual(relocs, wantRelocs) {
		t.Fatalf("relocs=%v, want %v", relocs, wantRelocs)
	}

	for _, off := range c.Offsets() {
		if !bytes.Equal(code[off:off+4], landingPad) {
			t.Fatalf("block at %#x does not start with a landing pad: %x", off, code[off:off+4])
		}
	}
}

func TestCompileDeterministic(t *testing.T) {
	build := func() *ir.Function {
		fn := ir.NewFunction("f")
		ref := fn.DeclareFunc("g")
		exit := ir.Block(1)
		fn.AddBlock(ir.Load(0x2000), ir.Brz(exit), ir.Call(ref), ir.Store(0x2008), ir.Jump(exit))
		fn.AddBlock(ir.Return())
		return fn
	}

	b := mustBackend(t)
	c1, err := b.Compile(build())
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	c2, err := b.Compile(build())
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	code1, relocs1 := emit(t, c1)
	code2, relocs2 := emit(t, c2)
	if !bytes.Equal(code1, code2) {
		t.Fatalf("code differs between compilations:\n%x\n%x", code1, code2)
	}
	if !reflect.DeepEqual(relocs1, relocs2) {
		t.Fatalf("relocs differ: %v vs %v", relocs1, relocs2)
	}
}

func TestCompileJumpTableRecordsRelocation(t *testing.T) {
	fn := ir.NewFunction("dispatch")
	target := ir.Block(1)
	jt := fn.DeclareJumpTable(target)
	fn.AddBlock(ir.BrTable(jt))
	fn.AddBlock(ir.Return())

	c, err := mustBackend(t).Compile(fn)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	_, relocs := emit(t, c)
	if got := relocs.Count(binemit.JumpTableRef); got != 1 {
		t.Fatalf("jump table relocs=%d, want 1", got)
	}
}

func TestCompileVerifiesLate(t *testing.T) {
	fn := ir.NewFunction("broken")
	fn.AddBlock(ir.Iconst(1))

	_, err := mustBackend(t).Compile(fn)
	var verr *ir.VerifierError
	if !errors.As(err, &verr) {
		t.Fatalf("Compile error=%v, want *ir.VerifierError", err)
	}

	// Without the verifier the function still lowers; the missing
	// terminator is the caller's problem.
	c, err := mustBackend(t, isa.WithVerifier(false)).Compile(fn)
	if err != nil {
		t.Fatalf("Compile without verifier failed: %v", err)
	}
	if c.CodeSize() == 0 {
		t.Fatalf("CodeSize=0")
	}
}

func TestEmitToShortBuffer(t *testing.T) {
	fn := ir.NewFunction("f")
	fn.AddBlock(ir.Return())
	c, err := mustBackend(t).Compile(fn)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if _, err := c.EmitTo(make([]byte, c.CodeSize()-1), nil); err == nil {
		t.Fatalf("EmitTo accepted a short buffer")
	}
}

func TestNewRejects32Bit(t *testing.T) {
	cfg, err := isa.NewConfig(isa.WithArch(isa.ArchX86_64), isa.WithPointerWidth(32))
	if err != nil {
		t.Fatalf("NewConfig failed: %v", err)
	}
	if _, err := isa.Lookup(cfg); err == nil {
		t.Fatalf("Lookup accepted a 32-bit x86 target")
	}
}
