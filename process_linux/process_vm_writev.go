//go:build linux

package process_linux

import (
	"fmt"
	"unsafe"

	"memrelay/process"
	"memrelay/process/memory_map"

	"golang.org/x/sys/unix"
)

// process_vm_writev uses the process_vm_writev syscall to write memory to another process
func process_vm_writev(
	pid process.ProcessID,
	localBuf []byte,
	remoteAddr process.ProcessMemoryAddress,
) (int, error) {
	localIov := unix.Iovec{Base: &localBuf[0]}
	localIov.SetLen(len(localBuf))

	remoteIov := unix.RemoteIovec{
		Base: uintptr(remoteAddr),
		Len:  len(localBuf),
	}

	n, _, errno := unix.Syscall6(
		unix.SYS_PROCESS_VM_WRITEV,
		uintptr(pid),                        // Remote process PID
		uintptr(unsafe.Pointer(&localIov)),  // Local iovec
		uintptr(1),                          // Number of local iovecs
		uintptr(unsafe.Pointer(&remoteIov)), // Remote iovec
		uintptr(1),                          // Number of remote iovecs
		uintptr(0),                          // Flags (reserved for future use)
	)

	if errno != 0 {
		return 0, fmt.Errorf("process_vm_writev failed: %s (errno: %d)", errno.Error(), errno)
	}

	return int(n), nil
}

// WriteMemory writes data to pid at the specified address in one transfer
func (p *LinuxProvider) WriteMemory(pid process.ProcessID, addr process.ProcessMemoryAddress, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	if err := p.validRange(pid, addr, process.ProcessMemorySize(len(data)), memory_map.MemoryMapItem.IsWritable); err != nil {
		return fmt.Errorf("write at %s: %w", addr.ToString(), err)
	}

	// Create a copy of the data to avoid potential modification during the write
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	written, err := process_vm_writev(pid, dataCopy, addr)
	if err != nil {
		return fmt.Errorf("failed to write process memory: %w", err)
	}

	if written != len(data) {
		return fmt.Errorf("only wrote %d of %d bytes", written, len(data))
	}

	return nil
}
