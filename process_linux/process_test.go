//go:build linux

package process_linux

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"unsafe"

	"memrelay/process"
)

func openLocal(t *testing.T) *LinuxProvider {
	t.Helper()
	p, err := Open([]string{"-device", "local"})
	if err != nil {
		t.Skipf("local provider unavailable: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p.(*LinuxProvider)
}

func TestPidFromNameSelf(t *testing.T) {
	p := openLocal(t)

	exe, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}
	pid, err := p.PidFromName(filepath.Base(exe))
	if err != nil {
		t.Fatalf("PidFromName: %v", err)
	}
	if pid > process.ProcessID(os.Getpid()) {
		t.Fatalf("pid %d is not the lowest match for own pid %d", pid, os.Getpid())
	}

	if _, err := p.PidFromName("no-such-process-name"); !errors.Is(err, process.ErrProcessNotFound) {
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
	if base == 0 {
		t.Fatal("own executable not found in memory map")
	}

	base, err = p.ModuleBase(self, "not-a-module.so")
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
	p.Close()
	if _, err := p.PidFromName("init"); err == nil {
		t.Fatal("closed provider answered")
	}
}
