//go:build !unix

package memory

import (
	"errors"
	"runtime"
)

var errUnsupported = errors.New("memory: executable regions are not supported on " + runtime.GOOS)

func Allocate(size int) (*Region, error) {
	return nil, errUnsupported
}

func (r *Region) Protect(p Protection) error {
	return errUnsupported
}

func (r *Region) Release() error {
	return errUnsupported
}
