//go:build windows

package memory_map

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

const memMapped = 0x40000

// Module is a loaded image as reported by a toolhelp module snapshot
type Module struct {
	Name string
	Path string
	Base uint64
	Size uint
}

func (m Module) End() uint64 {
	return m.Base + uint64(m.Size)
}

// ReadModules lists the modules loaded in pid
func ReadModules(pid int) ([]Module, error) {
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPMODULE|windows.TH32CS_SNAPMODULE32, uint32(pid))
	if err != nil {
		return nil, fmt.Errorf("module snapshot of %d: %w", pid, err)
	}
	defer windows.CloseHandle(snapshot)

	var entry windows.ModuleEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	var modules []Module
	err = windows.Module32First(snapshot, &entry)
	for err == nil {
		modules = append(modules, Module{
			Name: windows.UTF16ToString(entry.Module[:]),
			Path: windows.UTF16ToString(entry.ExePath[:]),
			Base: uint64(entry.ModBaseAddr),
			Size: uint(entry.ModBaseSize),
		})
		err = windows.Module32Next(snapshot, &entry)
	}
	if !errors.Is(err, windows.ERROR_NO_MORE_FILES) {
		return nil, fmt.Errorf("module walk of %d: %w", pid, err)
	}
	return modules, nil
}

// ReadMemoryMap walks the committed regions of pid with VirtualQueryEx.
// Regions inside a loaded image carry the image path, so ModuleBase and
// ModuleBaseByPath work the same way they do on /proc maps.
func ReadMemoryMap(pid int) ([]MemoryMapItem, error) {
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_INFORMATION, false, uint32(pid))
	if err != nil {
		return nil, fmt.Errorf("open process %d: %w", pid, err)
	}
	defer windows.CloseHandle(handle)

	modules, err := ReadModules(pid)
	if err != nil {
		return nil, err
	}

	var (
		mm   []MemoryMapItem
		addr uintptr
		mbi  windows.MemoryBasicInformation
	)
	for {
		if err := windows.VirtualQueryEx(handle, addr, &mbi, unsafe.Sizeof(mbi)); err != nil {
			break
		}
		base := mbi.BaseAddress
		size := mbi.RegionSize
		if size == 0 {
			break
		}

		if mbi.State == windows.MEM_COMMIT {
			item := MemoryMapItem{
				Address: uint64(base),
				Size:    uint(size),
				Perms:   protectPerms(mbi.Protect, mbi.Type),
			}
			for _, m := range modules {
				if item.Address >= m.Base && item.Address < m.End() {
					item.Path = m.Path
					item.Offset = item.Address - m.Base
					break
				}
			}
			mm = append(mm, item)
		}

		addr = base + size
		if addr < base {
			break
		}
	}

	if len(mm) == 0 {
		return nil, fmt.Errorf("no committed regions in %d", pid)
	}
	Sort(mm)
	return mm, nil
}

// protectPerms renders a page protection in the "rwxp" form of /proc maps.
// Guard and no-access pages are reported unreadable.
func protectPerms(protect, typ uint32) string {
	perms := []byte("---p")
	if typ == memMapped {
		perms[3] = 's'
	}
	if protect&windows.PAGE_GUARD != 0 {
		return string(perms)
	}

	switch protect &^ (windows.PAGE_NOCACHE | windows.PAGE_WRITECOMBINE) {
	case windows.PAGE_READONLY:
		perms[0] = 'r'
	case windows.PAGE_READWRITE, windows.PAGE_WRITECOPY:
		perms[0], perms[1] = 'r', 'w'
	case windows.PAGE_EXECUTE:
		perms[2] = 'x'
	case windows.PAGE_EXECUTE_READ:
		perms[0], perms[2] = 'r', 'x'
	case windows.PAGE_EXECUTE_READWRITE, windows.PAGE_EXECUTE_WRITECOPY:
		perms[0], perms[1], perms[2] = 'r', 'w', 'x'
	}
	return string(perms)
}
