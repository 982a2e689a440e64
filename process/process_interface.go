package process

// AccessProvider is the byte-level memory capability the relay consumes.
// It knows nothing about the control record; it only resolves processes and
// modules and moves bytes at absolute addresses.
//
// Implementations must be safe for concurrent use: a call abandoned after a
// timeout may still be in flight when the next one starts.
type AccessProvider interface {
	// PidFromName resolves a process identifier by image name
	PidFromName(name string) (ProcessID, error)

	// ModuleBase returns the load address of a named module in pid, or 0 if
	// the module is not loaded
	ModuleBase(pid ProcessID, module string) (ProcessMemoryAddress, error)

	// ReadMemory reads size bytes at addr in pid
	ReadMemory(pid ProcessID, addr ProcessMemoryAddress, size ProcessMemorySize) ([]byte, error)

	// WriteMemory writes data at addr in pid as a single transfer
	WriteMemory(pid ProcessID, addr ProcessMemoryAddress, data []byte) error

	// Close releases the provider session
	Close() error
}

// ProviderOpener opens a provider session from a device-selector argument
// list such as []string{"-device", "local"}.
type ProviderOpener func(args []string) (AccessProvider, error)
