//go:build unix

package memory

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Allocate maps a fresh read+write region of at least size bytes.
func Allocate(size int) (*Region, error) {
	if size <= 0 {
		return nil, fmt.Errorf("memory: invalid region size %d", size)
	}

	allocSize := roundUp(size, unix.Getpagesize())

	mem, err := unix.Mmap(-1, 0, allocSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("mmap code region: %w", err)
	}

	return &Region{mem: mem, size: size, prot: ReadWrite}, nil
}

func (p Protection) unixFlags() (int, error) {
	switch p {
	case ReadWrite:
		return unix.PROT_READ | unix.PROT_WRITE, nil
	case ReadExecute:
		return unix.PROT_READ | unix.PROT_EXEC, nil
	case ReadWriteExecute:
		return unix.PROT_READ | unix.PROT_WRITE | unix.PROT_EXEC, nil
	default:
		return 0, fmt.Errorf("memory: unknown protection %d", int(p))
	}
}

// Protect changes the protection of the whole mapping. The error wraps the
// errno reported by the kernel.
func (r *Region) Protect(p Protection) error {
	if r.mem == nil {
		return ErrReleased
	}
	flags, err := p.unixFlags()
	if err != nil {
		return err
	}
	if err := unix.Mprotect(r.mem, flags); err != nil {
		return fmt.Errorf("mprotect code region %s: %w", p, err)
	}
	r.prot = p
	return nil
}

// Release unmaps the region. Any code or function pointer into it becomes
// invalid.
func (r *Region) Release() error {
	if r.mem == nil {
		return ErrReleased
	}
	mem := r.mem
	r.mem = nil
	if err := unix.Munmap(mem); err != nil {
		return fmt.Errorf("munmap code region: %w", err)
	}
	return nil
}
