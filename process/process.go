// Package process provides the shared vocabulary for reaching into another
// process's memory through an access provider.
package process

import "errors"

// ShortNameLimit is the longest process name the access providers match
// reliably; longer names are truncated internally by the provider.
const ShortNameLimit = 14

var (
	// ErrSessionInitFailed is returned when the access provider could not be opened.
	ErrSessionInitFailed = errors.New("access provider initialization failed")

	// ErrProcessNotFound is returned when no process matches the requested name.
	ErrProcessNotFound = errors.New("target process not found")

	// ErrModuleNotFound is returned when none of the module name candidates
	// resolves to a non-zero load address.
	ErrModuleNotFound = errors.New("module base address not found")

	// ErrSignatureNotFound is returned when neither the fixed-offset probe nor
	// the fallback scan located a control record.
	ErrSignatureNotFound = errors.New("control record signature not found")

	ErrReadFailed  = errors.New("memory read failed")
	ErrWriteFailed = errors.New("memory write failed")

	// ErrTimeout is returned when a single channel operation exceeds its deadline.
	// The session stays usable.
	ErrTimeout = errors.New("channel operation timed out")

	// ErrNotInitialized is returned when a session is used before Initialize
	// or after Shutdown.
	ErrNotInitialized = errors.New("session not initialized")

	// ErrAddressNotMapped is returned when a memory address is not found within any mapped region of a process.
	ErrAddressNotMapped = errors.New("address not mapped")
)
