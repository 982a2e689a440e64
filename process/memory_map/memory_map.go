package memory_map

import (
	"fmt"
	"path/filepath"
	"sort"
)

// MemoryMapItem represents a memory region in a process's address space
type MemoryMapItem struct {
	Address uint64 `json:"address"` // The starting address of the memory region
	Size    uint   `json:"size"`    // The size of the memory region in bytes
	Perms   string `json:"perms"`   // Permissions (e.g., "r-xp" for read, execute, private)
	Offset  uint64 `json:"offset"`  // Offset into the backing file
	Path    string `json:"path"`    // Backing file, empty for anonymous mappings
}

// String returns a string representation of the memory map item
func (mmItem MemoryMapItem) String() string {
	return fmt.Sprintf("Address: %x, Size: %d, Perms: %s, Path: %s", mmItem.Address, mmItem.Size, mmItem.Perms, mmItem.Path)
}

func (mmItem MemoryMapItem) End() uint64 {
	return mmItem.Address + uint64(mmItem.Size)
}

func (mmItem MemoryMapItem) IsReadable() bool {
	return len(mmItem.Perms) > 0 && mmItem.Perms[0] == 'r'
}

func (mmItem MemoryMapItem) IsWritable() bool {
	return len(mmItem.Perms) > 1 && mmItem.Perms[1] == 'w'
}

// Sort orders the map by address, which Find requires
func Sort(memoryMap []MemoryMapItem) {
	sort.Slice(memoryMap, func(i, j int) bool {
		return memoryMap[i].Address < memoryMap[j].Address
	})
}

// Find returns the region containing addr in an address-sorted map, or nil
func Find(addr uint64, memoryMap []MemoryMapItem) *MemoryMapItem {
	i := sort.Search(len(memoryMap), func(i int) bool {
		return memoryMap[i].End() > addr
	})
	if i < len(memoryMap) && memoryMap[i].Address <= addr {
		return &memoryMap[i]
	}

	return nil
}

// Covers reports whether [addr, addr+size) lies entirely inside regions that
// pass the check, allowing the range to span adjacent regions.
func Covers(addr uint64, size uint64, memoryMap []MemoryMapItem, check func(MemoryMapItem) bool) bool {
	end := addr + size
	for addr < end {
		item := Find(addr, memoryMap)
		if item == nil || !check(*item) {
			return false
		}
		addr = item.End()
	}
	return true
}

// ModuleBase returns the lowest mapped address whose backing file has the
// given base name, or 0 when the module is not mapped.
func ModuleBase(memoryMap []MemoryMapItem, module string) uint64 {
	var base uint64
	for _, item := range memoryMap {
		if item.Path == "" || filepath.Base(item.Path) != module {
			continue
		}
		if base == 0 || item.Address < base {
			base = item.Address
		}
	}
	return base
}

// ModuleBaseByPath is ModuleBase matching the full backing path
func ModuleBaseByPath(memoryMap []MemoryMapItem, path string) uint64 {
	var base uint64
	for _, item := range memoryMap {
		if item.Path != path {
			continue
		}
		if base == 0 || item.Address < base {
			base = item.Address
		}
	}
	return base
}
