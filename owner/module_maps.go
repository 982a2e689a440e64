//go:build linux || windows

package owner

import (
	"fmt"
	"os"
	"path/filepath"

	"memrelay/process"
	"memrelay/process/memory_map"
)

// locateModule finds the file-backed mapping that holds addr, falling back
// to the executable when addr sits in its anonymous bss mapping
func locateModule(addr uintptr) (string, process.ProcessMemoryAddress, error) {
	mm, err := memory_map.ReadMemoryMap(os.Getpid())
	if err != nil {
		return "", 0, fmt.Errorf("read own memory map: %w", err)
	}

	path := ""
	if item := memory_map.Find(uint64(addr), mm); item != nil && item.Path != "" && filepath.IsAbs(item.Path) {
		path = item.Path
	}
	if path == "" {
		if path, err = os.Executable(); err != nil {
			return "", 0, err
		}
	}

	base := memory_map.ModuleBaseByPath(mm, path)
	if base == 0 || base > uint64(addr) {
		return "", 0, fmt.Errorf("%s is not mapped below %s: %w", path, process.ProcessMemoryAddress(addr).ToString(), process.ErrModuleNotFound)
	}
	return path, process.ProcessMemoryAddress(base), nil
}
