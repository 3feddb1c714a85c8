package isa

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg, err := NewConfig()
	if err != nil {
		t.Fatalf("NewConfig failed: %v", err)
	}
	if cfg.Arch() == ArchInvalid {
		t.Fatalf("default arch is invalid")
	}
	if !cfg.Is64Bit() {
		t.Fatalf("PointerWidth=%d, want 64", cfg.PointerWidth())
	}
	if !cfg.EnableVerifier() {
		t.Fatalf("verifier disabled by default")
	}
	if cfg.WriteXorExecute() {
		t.Fatalf("write-xor-execute enabled by default")
	}
	if got, want := cfg.FunctionAlign(), 16; got != want {
		t.Fatalf("FunctionAlign=%d, want %d", got, want)
	}
}

func TestNewConfigRejects(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
		want string
	}{
		{"pointer width", WithPointerWidth(48), "pointer width 48"},
		{"alignment", WithFunctionAlign(12), "not a power of two"},
		{"zero alignment", WithFunctionAlign(0), "not a power of two"},
		{"arch", WithArch(ArchInvalid), "architecture must be specified"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConfig(tt.opt)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("NewConfig error=%v, want %q", err, tt.want)
			}
		})
	}
}

func TestWithLeavesOriginalUntouched(t *testing.T) {
	base, err := NewConfig()
	if err != nil {
		t.Fatalf("NewConfig failed: %v", err)
	}
	derived, err := base.With(WithVerifier(false), WithFunctionAlign(64))
	if err != nil {
		t.Fatalf("With failed: %v", err)
	}
	if !base.EnableVerifier() || base.FunctionAlign() != 16 {
		t.Fatalf("base config modified: %s", base)
	}
	if derived.EnableVerifier() || derived.FunctionAlign() != 64 {
		t.Fatalf("derived config=%s", derived)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "target.yaml")
	data := []byte("arch: x86_64\nenable_verifier: false\nwrite_xor_execute: true\nfunction_align: 32\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Arch() != ArchX86_64 {
		t.Fatalf("Arch=%s, want %s", cfg.Arch(), ArchX86_64)
	}
	if cfg.EnableVerifier() {
		t.Fatalf("verifier enabled, want disabled")
	}
	if !cfg.WriteXorExecute() {
		t.Fatalf("write-xor-execute disabled, want enabled")
	}
	if got, want := cfg.FunctionAlign(), 32; got != want {
		t.Fatalf("FunctionAlign=%d, want %d", got, want)
	}

	// Options passed explicitly win over the file.
	cfg, err = LoadConfig(path, WithVerifier(true))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if !cfg.EnableVerifier() {
		t.Fatalf("explicit option did not override file")
	}
}

func TestParseConfigInvalidYAML(t *testing.T) {
	if _, err := ParseConfig([]byte("arch: [")); err == nil {
		t.Fatalf("ParseConfig accepted invalid YAML")
	}
}

func TestLookupUnknownArch(t *testing.T) {
	cfg, err := NewConfig(WithArch("pdp11"))
	if err != nil {
		t.Fatalf("NewConfig failed: %v", err)
	}
	if _, err := Lookup(cfg); err == nil || !strings.Contains(err.Error(), "no backend registered") {
		t.Fatalf("Lookup error=%v, want no backend registered", err)
	}
}

func TestLookupListsRegistered(t *testing.T) {
	RegisterBackend("vax", func(cfg Config) (Backend, error) {
		return nil, fmt.Errorf("vax backend is a placeholder")
	})

	found := false
	for _, arch := range Registered() {
		if arch == "vax" {
			found = true
		}
	}
	if !found {
		t.Fatalf("Registered()=%v, want vax", Registered())
	}

	cfg, err := NewConfig(WithArch("pdp11"))
	if err != nil {
		t.Fatalf("NewConfig failed: %v", err)
	}
	if _, err := Lookup(cfg); err == nil || !strings.Contains(err.Error(), "available: vax") {
		t.Fatalf("Lookup error=%v, want it to list vax", err)
	}
}
