//go:build linux

package process_linux

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"memrelay/process"
)

// ListByName returns all processes whose comm or exe basename equals name.
// name match is case-sensitive (like pidof). The kernel truncates comm to 15
// bytes, so long names usually match through the exe basename.
func ListByName(name string) ([]process.ProcessInfo, error) {
	if name == "" {
		return nil, errors.New("empty name")
	}

	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, fmt.Errorf("read /proc: %w", err)
	}

	var out []process.ProcessInfo

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(e.Name())
		if err != nil || pid <= 0 {
			continue // not a PID dir
		}

		// Resolve /proc/<pid>/exe symlink; may fail if zombie or permission
		exe, _ := os.Readlink(filepath.Join("/proc", e.Name(), "exe"))

		comm, _ := os.ReadFile(filepath.Join("/proc", e.Name(), "comm"))
		comm = bytesTrimNL(comm)

		switch {
		case string(comm) == name:
			out = append(out, process.ProcessInfo{PID: process.ProcessID(pid), Name: string(comm), Exe: exe})
		case exe != "" && filepath.Base(exe) == name:
			out = append(out, process.ProcessInfo{PID: process.ProcessID(pid), Name: filepath.Base(exe), Exe: exe})
		}
	}

	return out, nil
}

// OneByName returns the first match for name (lowest PID), or os.ErrNotExist if none.
func OneByName(name string) (process.ProcessInfo, error) {
	ps, err := ListByName(name)
	if err != nil {
		return process.ProcessInfo{}, err
	}
	if len(ps) == 0 {
		return process.ProcessInfo{}, os.ErrNotExist
	}
	// pick the lowest PID for determinism
	minIdx := 0
	for i := 1; i < len(ps); i++ {
		if ps[i].PID < ps[minIdx].PID {
			minIdx = i
		}
	}
	return ps[minIdx], nil
}

func bytesTrimNL(b []byte) []byte {
	// Trim trailing '\n' if present (comm has a newline).
	for len(b) > 0 {
		switch b[len(b)-1] {
		case '\n', '\r', ' ', '\t':
			b = b[:len(b)-1]
		default:
			return b
		}
	}
	return b
}
