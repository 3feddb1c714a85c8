package isa

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

type Arch string

const (
	ArchInvalid Arch = ""
	ArchX86_64  Arch = "x86_64"
)

// ArchNative is the architecture of the running process, or ArchInvalid
// when no backend exists for it.
var ArchNative = func() Arch {
	switch runtime.GOARCH {
	case "amd64":
		return ArchX86_64
	default:
		return ArchInvalid
	}
}()

func (a Arch) String() string {
	if a == ArchInvalid {
		return "invalid"
	}
	return string(a)
}

// Config is the target description handed to a backend. It is built once
// and never modified; use the With* options to derive a different one.
type Config struct {
	arch            Arch
	pointerWidth    int
	enableVerifier  bool
	writeXorExecute bool
	functionAlign   int
}

// Option adjusts a Config under construction.
type Option func(*Config)

// WithArch selects the instruction set.
func WithArch(arch Arch) Option { return func(c *Config) { c.arch = arch } }

// WithPointerWidth sets the pointer width in bits.
func WithPointerWidth(bits int) Option { return func(c *Config) { c.pointerWidth = bits } }

// WithVerifier toggles IR verification before and during code generation.
func WithVerifier(enabled bool) Option { return func(c *Config) { c.enableVerifier = enabled } }

// WithWriteXorExecute makes the launcher map code read+execute instead of
// read+write+execute.
func WithWriteXorExecute(enabled bool) Option { return func(c *Config) { c.writeXorExecute = enabled } }

// WithFunctionAlign sets the byte alignment of each function inside the code
// region. It must be a power of two.
func WithFunctionAlign(align int) Option { return func(c *Config) { c.functionAlign = align } }

// NewConfig returns a validated Config. Defaults: native architecture,
// 64-bit pointers, verifier enabled, RWX code, 16 byte function alignment.
func NewConfig(opts ...Option) (Config, error) {
	c := Config{
		arch:           ArchNative,
		pointerWidth:   64,
		enableVerifier: true,
		functionAlign:  16,
	}
	if c.arch == ArchInvalid {
		c.arch = ArchX86_64
	}
	for _, opt := range opts {
		opt(&c)
	}
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) validate() error {
	if c.arch == ArchInvalid {
		return fmt.Errorf("isa: architecture must be specified")
	}
	switch c.pointerWidth {
	case 32, 64:
	default:
		return fmt.Errorf("isa: unsupported pointer width %d", c.pointerWidth)
	}
	if c.functionAlign <= 0 || c.functionAlign&(c.functionAlign-1) != 0 {
		return fmt.Errorf("isa: function alignment %d is not a power of two", c.functionAlign)
	}
	return nil
}

func (c Config) Arch() Arch            { return c.arch }
func (c Config) PointerWidth() int     { return c.pointerWidth }
func (c Config) EnableVerifier() bool  { return c.enableVerifier }
func (c Config) WriteXorExecute() bool { return c.writeXorExecute }
func (c Config) FunctionAlign() int    { return c.functionAlign }
func (c Config) Is64Bit() bool         { return c.pointerWidth == 64 }

// With derives a new Config from c.
func (c Config) With(opts ...Option) (Config, error) {
	for _, opt := range opts {
		opt(&c)
	}
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) String() string {
	return fmt.Sprintf("%s/%d verifier=%t wx=%t align=%d",
		c.arch, c.pointerWidth, c.enableVerifier, c.writeXorExecute, c.functionAlign)
}

// File is the on-disk form of a Config.
type File struct {
	Arch            string `yaml:"arch,omitempty"`
	PointerWidth    int    `yaml:"pointer_width,omitempty"`
	EnableVerifier  *bool  `yaml:"enable_verifier,omitempty"`
	WriteXorExecute bool   `yaml:"write_xor_execute,omitempty"`
	FunctionAlign   int    `yaml:"function_align,omitempty"`
}

// Options converts the fields present in f into Config options.
func (f File) Options() []Option {
	var opts []Option
	if f.Arch != "" {
		opts = append(opts, WithArch(Arch(f.Arch)))
	}
	if f.PointerWidth != 0 {
		opts = append(opts, WithPointerWidth(f.PointerWidth))
	}
	if f.EnableVerifier != nil {
		opts = append(opts, WithVerifier(*f.EnableVerifier))
	}
	if f.WriteXorExecute {
		opts = append(opts, WithWriteXorExecute(true))
	}
	if f.FunctionAlign != 0 {
		opts = append(opts, WithFunctionAlign(f.FunctionAlign))
	}
	return opts
}

// ParseConfig decodes a YAML target description. Extra options are applied
// after the file contents.
func ParseConfig(data []byte, extra ...Option) (Config, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Config{}, fmt.Errorf("parse target config: %w", err)
	}
	return NewConfig(append(f.Options(), extra...)...)
}

// LoadConfig reads a YAML target description from path.
func LoadConfig(path string, extra ...Option) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read target config: %w", err)
	}
	return ParseConfig(data, extra...)
}
