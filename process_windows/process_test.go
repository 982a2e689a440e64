//go:build windows

package process_windows

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unsafe"

	"memrelay/process"
)

// lives in the executable's data section, so it sits inside the image
var imageData = [32]byte{'i', 'm', 'a', 'g', 'e'}

func openLocal(t *testing.T) *WindowsProvider {
	t.Helper()
	p, err := Open([]string{"-device", "local"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p.(*WindowsProvider)
}

func TestPidFromNameSelf(t *testing.T) {
	p := openLocal(t)

	exe, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}
	name := filepath.Base(exe)
	for _, n := range []string{name, strings.ToUpper(name), strings.TrimSuffix(name, filepath.Ext(name))} {
		pid, err := p.PidFromName(n)
		if err != nil {
			t.Fatalf("PidFromName(%q): %v", n, err)
		}
		if pid > process.ProcessID(os.Getpid()) {
			t.Fatalf("PidFromName(%q) = %d, not the lowest match for own pid %d", n, pid, os.Getpid())
		}
	}

	if _, err := p.PidFromName("no-such-process-name.exe"); !errors.Is(err, process.ErrProcessNotFound) {
		t.Fatalf("PidFromName(missing) = %v", err)
	}
}

func TestModuleBaseSelf(t *testing.T) {
	p := openLocal(t)
	self := process.ProcessID(os.Getpid())

	exe, _ := os.Executable()
	base, err := p.ModuleBase(self, filepath.Base(exe))
	if err != nil {
		t.Fatal(err)
	}
	addr := process.ProcessMemoryAddress(uintptr(unsafe.Pointer(&imageData[0])))
	if base == 0 || base > addr {
		t.Fatalf("ModuleBase = %s, data at %s", base.ToString(), addr.ToString())
	}

	base, err = p.ModuleBase(self, "not-a-module.dll")
	if err != nil || base != 0 {
		t.Fatalf("ModuleBase(missing) = %s, %v", base.ToString(), err)
	}
}

func TestReadWriteSelf(t *testing.T) {
	p := openLocal(t)
	self := process.ProcessID(os.Getpid())

	buf := make([]byte, 64)
	copy(buf, "control channel")
	addr := process.ProcessMemoryAddress(uintptr(unsafe.Pointer(&buf[0])))

	got, err := p.ReadMemory(self, addr, 15)
	if err != nil {
		t.Fatalf("ReadMemory: %v", err)
	}
	if string(got) != "control channel" {
		t.Fatalf("ReadMemory = %q", got)
	}

	if err := p.WriteMemory(self, addr.Add(8), []byte("CHANNEL")); err != nil {
		t.Fatalf("WriteMemory: %v", err)
	}
	if !bytes.Equal(buf[:15], []byte("control CHANNEL")) {
		t.Fatalf("buffer after write = %q", buf[:15])
	}

	data := process.ProcessMemoryAddress(uintptr(unsafe.Pointer(&imageData[0])))
	if err := p.WriteMemory(self, data, []byte("IMAGE")); err != nil {
		t.Fatalf("WriteMemory(image data): %v", err)
	}
	if string(imageData[:5]) != "IMAGE" {
		t.Fatalf("image data after write = %q", imageData[:5])
	}
}

func TestRejectsUnmapped(t *testing.T) {
	p := openLocal(t)
	self := process.ProcessID(os.Getpid())

	if _, err := p.ReadMemory(self, 0x1000, 16); !errors.Is(err, process.ErrAddressNotMapped) {
		t.Fatalf("ReadMemory(0x1000) = %v", err)
	}
	if err := p.WriteMemory(self, 0x1000, []byte{1}); !errors.Is(err, process.ErrAddressNotMapped) {
		t.Fatalf("WriteMemory(0x1000) = %v", err)
	}
}

func TestClosed(t *testing.T) {
	p := openLocal(t)
	self := process.ProcessID(os.Getpid())

	buf := make([]byte, 8)
	addr := process.ProcessMemoryAddress(uintptr(unsafe.Pointer(&buf[0])))
	if _, err := p.ReadMemory(self, addr, 8); err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := p.PidFromName("System"); err == nil {
		t.Fatal("closed provider answered PidFromName")
	}
	if _, err := p.ReadMemory(self, addr, 8); err == nil {
		t.Fatal("closed provider answered ReadMemory")
	}
}
