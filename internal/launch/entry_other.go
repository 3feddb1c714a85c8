//go:build !((darwin || freebsd || linux) && (amd64 || arm64))

package launch

import (
	"fmt"
	"runtime"
)

const nativeCalls = false

var errUnsupported = fmt.Errorf("launch: native calls are not supported on %s/%s", runtime.GOOS, runtime.GOARCH)

func (e Entry) Call() {
	panic(errUnsupported)
}
