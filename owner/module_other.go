//go:build !linux && !windows

package owner

import (
	"fmt"
	"runtime"

	"memrelay/process"
)

func locateModule(addr uintptr) (string, process.ProcessMemoryAddress, error) {
	return "", 0, fmt.Errorf("module lookup unsupported on %s: %w", runtime.GOOS, process.ErrModuleNotFound)
}
