//go:build linux

package process_linux

import (
	"fmt"
	"os"
	"sync"

	"memrelay/process"
	"memrelay/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

var _ process.AccessProvider = (*LinuxProvider)(nil)

// LinuxProvider implements process.AccessProvider for local processes using
// /proc and the process_vm_readv/process_vm_writev syscalls
type LinuxProvider struct {
	log *logger.Logger
	mu  sync.Mutex
	mm  map[process.ProcessID][]memory_map.MemoryMapItem
	// closed is guarded by mu
	closed bool
}

// Open is the process.ProviderOpener for "-device local"
func Open(args []string) (process.AccessProvider, error) {
	if _, err := os.Stat("/proc/self/maps"); err != nil {
		return nil, fmt.Errorf("procfs unavailable: %v: %w", err, process.ErrSessionInitFailed)
	}

	p := &LinuxProvider{
		log: logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "provider-local")),
		mm:  make(map[process.ProcessID][]memory_map.MemoryMapItem),
	}
	p.log.Infoln("Local provider opened with args", args)
	return p, nil
}

func (p *LinuxProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	p.mm = make(map[process.ProcessID][]memory_map.MemoryMapItem)
	p.log.Infoln("Local provider closed")
	return nil
}

// PidFromName resolves the lowest PID whose comm or exe basename equals name
func (p *LinuxProvider) PidFromName(name string) (process.ProcessID, error) {
	if err := p.checkOpen(); err != nil {
		return 0, err
	}

	proc, err := OneByName(name)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("no process found with name '%s': %w", name, process.ErrProcessNotFound)
		}
		return 0, err
	}
	return proc.PID, nil
}

// ModuleBase returns the lowest mapped address of the named file in pid, 0 if not mapped
func (p *LinuxProvider) ModuleBase(pid process.ProcessID, module string) (process.ProcessMemoryAddress, error) {
	mm, err := p.updateMemoryMap(pid)
	if err != nil {
		return 0, err
	}
	return process.ProcessMemoryAddress(memory_map.ModuleBase(mm, module)), nil
}

func (p *LinuxProvider) checkOpen() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("local provider closed")
	}
	return nil
}

func (p *LinuxProvider) updateMemoryMap(pid process.ProcessID) ([]memory_map.MemoryMapItem, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}

	// read the maps file without holding the lock
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
// refreshing the map once on a miss since regions come and go
func (p *LinuxProvider) validRange(pid process.ProcessID, addr process.ProcessMemoryAddress, size process.ProcessMemorySize, check func(memory_map.MemoryMapItem) bool) error {
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
