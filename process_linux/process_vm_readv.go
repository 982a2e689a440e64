//go:build linux

package process_linux

import (
	"fmt"
	"unsafe"

	"memrelay/process"
	"memrelay/process/memory_map"

	"golang.org/x/sys/unix"
)

// process_vm_readv uses the process_vm_readv syscall to read memory from another process
func process_vm_readv(
	pid process.ProcessID,
	remoteAddr process.ProcessMemoryAddress,
	bytesToRead process.ProcessMemorySize,
) ([]byte, error) {
	localBuf := make([]byte, bytesToRead)

	localIov := unix.Iovec{Base: &localBuf[0]}
	localIov.SetLen(int(bytesToRead))

	remoteIov := unix.RemoteIovec{
		Base: uintptr(remoteAddr),
		Len:  int(bytesToRead),
	}

	n, _, errno := unix.Syscall6(
		unix.SYS_PROCESS_VM_READV,
		uintptr(pid),                        // Remote process PID
		uintptr(unsafe.Pointer(&localIov)),  // Local iovec
		uintptr(1),                          // Number of local iovecs
		uintptr(unsafe.Pointer(&remoteIov)), // Remote iovec
		uintptr(1),                          // Number of remote iovecs
		uintptr(0),                          // Flags (reserved for future use)
	)

	if errno != 0 {
		return nil, fmt.Errorf("process_vm_readv failed: %s (errno: %d)", errno.Error(), errno)
	}

	if int(n) != int(bytesToRead) {
		return localBuf[:n], fmt.Errorf("partial read: %d of %d bytes", n, bytesToRead)
	}

	return localBuf, nil
}

// ReadMemory reads memory from pid at the specified address
func (p *LinuxProvider) ReadMemory(pid process.ProcessID, addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}

	if err := p.validRange(pid, addr, size, memory_map.MemoryMapItem.IsReadable); err != nil {
		return nil, fmt.Errorf("read at %s: %w", addr.ToString(), err)
	}

	data, err := process_vm_readv(pid, addr, size)
	if err != nil {
		return nil, fmt.Errorf("process_vm_readv: failed to read process memory: %w", err)
	}

	return data, nil
}
