//go:build windows

package memory_map

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unsafe"

	"golang.org/x/sys/windows"
)

var imageData = [16]byte{1}

func TestProtectPerms(t *testing.T) {
	tests := []struct {
		protect, typ uint32
		want         string
	}{
		{windows.PAGE_READONLY, 0, "r--p"},
		{windows.PAGE_READWRITE, 0, "rw-p"},
		{windows.PAGE_WRITECOPY, 0, "rw-p"},
		{windows.PAGE_EXECUTE_READ, 0, "r-xp"},
		{windows.PAGE_EXECUTE_READWRITE | windows.PAGE_NOCACHE, 0, "rwxp"},
		{windows.PAGE_READWRITE | windows.PAGE_GUARD, 0, "---p"},
		{windows.PAGE_NOACCESS, 0, "---p"},
		{windows.PAGE_READWRITE, memMapped, "rw-s"},
	}
	for _, tt := range tests {
		if got := protectPerms(tt.protect, tt.typ); got != tt.want {
			t.Errorf("protectPerms(%#x, %#x) = %q, want %q", tt.protect, tt.typ, got, tt.want)
		}
	}
}

func TestReadMemoryMapSelf(t *testing.T) {
	mm, err := ReadMemoryMap(os.Getpid())
	if err != nil {
		t.Fatalf("ReadMemoryMap: %v", err)
	}

	addr := uint64(uintptr(unsafe.Pointer(&imageData[0])))
	item := Find(addr, mm)
	if item == nil {
		t.Fatalf("%#x not in memory map", addr)
	}
	if !item.IsReadable() || !item.IsWritable() {
		t.Fatalf("data region perms = %q", item.Perms)
	}

	exe, _ := os.Executable()
	if !strings.EqualFold(filepath.Base(item.Path), filepath.Base(exe)) {
		t.Fatalf("data region path = %q, want %s", item.Path, exe)
	}

	base := ModuleBaseByPath(mm, item.Path)
	if base == 0 || base > addr {
		t.Fatalf("image base %#x above data %#x", base, addr)
	}
}
