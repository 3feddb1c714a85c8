//go:build (darwin || freebsd || linux) && (amd64 || arm64)

package launch

import "github.com/ebitengine/purego"

const nativeCalls = true

var errUnsupported error

// Call invokes the function using the platform C calling convention.
func (e Entry) Call() {
	purego.SyscallN(uintptr(e))
}
