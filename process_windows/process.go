//go:build windows

package process_windows

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"memrelay/process"
	"memrelay/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"golang.org/x/sys/windows"
)

const processAccess = windows.PROCESS_VM_READ | windows.PROCESS_VM_WRITE |
	windows.PROCESS_VM_OPERATION | windows.PROCESS_QUERY_INFORMATION

var _ process.AccessProvider = (*WindowsProvider)(nil)

// WindowsProvider implements process.AccessProvider for local processes using
// toolhelp snapshots and ReadProcessMemory/WriteProcessMemory. Process handles
// are opened on first use and kept until Close.
type WindowsProvider struct {
	log     *logger.Logger
	mu      sync.Mutex
	handles map[process.ProcessID]windows.Handle
	mm      map[process.ProcessID][]memory_map.MemoryMapItem
	closed  bool
}

// Open is the process.ProviderOpener for "-device local"
func Open(args []string) (process.AccessProvider, error) {
	p := &WindowsProvider{
		log:     logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "provider-local")),
		handles: make(map[process.ProcessID]windows.Handle),
		mm:      make(map[process.ProcessID][]memory_map.MemoryMapItem),
	}
	p.log.Infoln("Local provider opened with args", args)
	return p, nil
}

func (p *WindowsProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for pid, h := range p.handles {
		if err := windows.CloseHandle(h); err != nil {
			errs = append(errs, fmt.Errorf("CloseHandle for %d: %w", pid, err))
		}
	}
	p.handles = make(map[process.ProcessID]windows.Handle)
	p.mm = make(map[process.ProcessID][]memory_map.MemoryMapItem)
	p.closed = true
	p.log.Infoln("Local provider closed")
	return errors.Join(errs...)
}

// PidFromName resolves the lowest PID whose image name equals name, with or
// without the .exe extension, ignoring case
func (p *WindowsProvider) PidFromName(name string) (process.ProcessID, error) {
	if err := p.checkOpen(); err != nil {
		return 0, err
	}

	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return 0, fmt.Errorf("process snapshot: %w", err)
	}
	defer windows.CloseHandle(snapshot)

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	var pid process.ProcessID
	err = windows.Process32First(snapshot, &entry)
	for err == nil {
		exe := windows.UTF16ToString(entry.ExeFile[:])
		if matchImageName(exe, name) {
			if id := process.ProcessID(entry.ProcessID); pid == 0 || id < pid {
				pid = id
			}
		}
		err = windows.Process32Next(snapshot, &entry)
	}
	if !errors.Is(err, windows.ERROR_NO_MORE_FILES) {
		return 0, fmt.Errorf("process walk: %w", err)
	}

	if pid == 0 {
		return 0, fmt.Errorf("no process found with name '%s': %w", name, process.ErrProcessNotFound)
	}
	return pid, nil
}

func matchImageName(exe, name string) bool {
	return strings.EqualFold(exe, name) || strings.EqualFold(strings.TrimSuffix(strings.ToLower(exe), ".exe"), name)
}

// ModuleBase returns the load address of the named module in pid, 0 if not loaded
func (p *WindowsProvider) ModuleBase(pid process.ProcessID, module string) (process.ProcessMemoryAddress, error) {
	if err := p.checkOpen(); err != nil {
		return 0, err
	}

	modules, err := memory_map.ReadModules(int(pid))
	if err != nil {
		return 0, err
	}
	for _, m := range modules {
		if strings.EqualFold(m.Name, module) {
			return process.ProcessMemoryAddress(m.Base), nil
		}
	}
	return 0, nil
}

// ReadMemory reads size bytes at addr in pid
func (p *WindowsProvider) ReadMemory(pid process.ProcessID, addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}

	if err := p.validRange(pid, addr, size, memory_map.MemoryMapItem.IsReadable); err != nil {
		return nil, fmt.Errorf("read at %s: %w", addr.ToString(), err)
	}

	handle, err := p.handle(pid)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, size)
	var bytesRead uintptr
	if err := windows.ReadProcessMemory(handle, uintptr(addr), &buf[0], uintptr(size), &bytesRead); err != nil {
		return nil, fmt.Errorf("ReadProcessMemory failed: %w", err)
	}
	if bytesRead != uintptr(size) {
		return nil, fmt.Errorf("read incomplete: expected %d, got %d", size, bytesRead)
	}
	return buf, nil
}

// WriteMemory writes data to pid at addr in one transfer
func (p *WindowsProvider) WriteMemory(pid process.ProcessID, addr process.ProcessMemoryAddress, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	if err := p.validRange(pid, addr, process.ProcessMemorySize(len(data)), memory_map.MemoryMapItem.IsWritable); err != nil {
		return fmt.Errorf("write at %s: %w", addr.ToString(), err)
	}

	handle, err := p.handle(pid)
	if err != nil {
		return err
	}

	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	var written uintptr
	if err := windows.WriteProcessMemory(handle, uintptr(addr), &dataCopy[0], uintptr(len(dataCopy)), &written); err != nil {
		return fmt.Errorf("WriteProcessMemory failed: %w", err)
	}
	if written != uintptr(len(data)) {
		return fmt.Errorf("only wrote %d of %d bytes", written, len(data))
	}
	return nil
}

func (p *WindowsProvider) checkOpen() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("local provider closed")
	}
	return nil
}

// handle returns the cached handle for pid, opening it on first use
func (p *WindowsProvider) handle(pid process.ProcessID) (windows.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, fmt.Errorf("local provider closed")
	}
	if h, ok := p.handles[pid]; ok {
		return h, nil
	}

	h, err := windows.OpenProcess(processAccess, false, uint32(pid))
	if err != nil {
		return 0, fmt.Errorf("OpenProcess %d failed: %w", pid, err)
	}
	p.handles[pid] = h
	p.log.Debugln("Opened process", pid)
	return h, nil
}

func (p *WindowsProvider) updateMemoryMap(pid process.ProcessID) ([]memory_map.MemoryMapItem, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}

	mm, err := memory_map.ReadMemoryMap(int(pid))
	if err != nil {
		return nil, fmt.Errorf("failed to read memory map: %w", err)
	}

	p.mu.Lock()
	p.mm[pid] = mm
	p.mu.Unlock()

	return mm, nil
}

// validRange checks [addr, addr+size) against the cached map for pid,
// refreshing the map once on a miss
func (p *WindowsProvider) validRange(pid process.ProcessID, addr process.ProcessMemoryAddress, size process.ProcessMemorySize, check func(memory_map.MemoryMapItem) bool) error {
	if addr <= 0x10000 {
		return process.ErrAddressNotMapped
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("local provider closed")
	}
	mm, cached := p.mm[pid]
	p.mu.Unlock()

	if cached && memory_map.Covers(uint64(addr), uint64(size), mm, check) {
		return nil
	}

	mm, err := p.updateMemoryMap(pid)
	if err != nil {
		return err
	}
	if !memory_map.Covers(uint64(addr), uint64(size), mm, check) {
		return process.ErrAddressNotMapped
	}
	return nil
}
