package process_blob

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"memrelay/process"
	"memrelay/process/memory_map"
)

var _ process.AccessProvider = (*Image)(nil)

// ErrInjectedFault is returned by reads that hit a failure registered on the image
var ErrInjectedFault = errors.New("injected read fault")

type blob struct {
	baseaddress process.ProcessMemoryAddress
	data        []byte
	perms       string
}

func (b *blob) end() process.ProcessMemoryAddress {
	return b.baseaddress + process.ProcessMemoryAddress(len(b.data))
}

type faultRange struct {
	start, end process.ProcessMemoryAddress
}

// Image is an in-memory address space for a single process. It serves the
// AccessProvider interface from mapped blobs, which makes it the backing
// store for snapshots and the stand-in channel in tests.
type Image struct {
	mu sync.Mutex

	pid     process.ProcessID
	name    string
	modules map[string]process.ProcessMemoryAddress
	blobs   []*blob // sorted by address, non-overlapping

	faults      []faultRange
	maxReadSize process.ProcessMemorySize
	reads       int
	writes      int
	lookups     []string
	closed      bool
}

// NewImage creates an empty image for a process called name
func NewImage(pid process.ProcessID, name string) *Image {
	return &Image{
		pid:     pid,
		name:    name,
		modules: make(map[string]process.ProcessMemoryAddress),
	}
}

func (img *Image) PID() process.ProcessID {
	return img.pid
}

func (img *Image) Name() string {
	return img.name
}

// AddModule registers a module load address
func (img *Image) AddModule(name string, base process.ProcessMemoryAddress) {
	img.mu.Lock()
	defer img.mu.Unlock()
	img.modules[name] = base
}

// Map adds a read-write region initialized from data
func (img *Image) Map(addr process.ProcessMemoryAddress, data []byte) error {
	return img.MapPerms(addr, data, "rw-p")
}

// MapZero adds a zero-filled read-write region
func (img *Image) MapZero(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) error {
	return img.Map(addr, make([]byte, size))
}

// MapPerms adds a region with explicit permissions
func (img *Image) MapPerms(addr process.ProcessMemoryAddress, data []byte, perms string) error {
	img.mu.Lock()
	defer img.mu.Unlock()

	nb := &blob{baseaddress: addr, data: append([]byte(nil), data...), perms: perms}
	for _, b := range img.blobs {
		if nb.baseaddress < b.end() && b.baseaddress < nb.end() {
			return fmt.Errorf("region %s+%d overlaps %s", addr.ToString(), len(data), b.baseaddress.ToString())
		}
	}

	img.blobs = append(img.blobs, nb)
	sort.Slice(img.blobs, func(i, j int) bool {
		return img.blobs[i].baseaddress < img.blobs[j].baseaddress
	})
	return nil
}

// Poke writes directly into the image, bypassing permissions and faults
func (img *Image) Poke(addr process.ProcessMemoryAddress, data []byte) error {
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.copyIn(addr, data, false)
}

// Peek reads directly from the image, bypassing faults
func (img *Image) Peek(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.copyOut(addr, size)
}

// FailRange makes every read overlapping [addr, addr+size) fail
func (img *Image) FailRange(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) {
	img.mu.Lock()
	defer img.mu.Unlock()
	img.faults = append(img.faults, faultRange{start: addr, end: addr.Add(size)})
}

// FailReadsLargerThan makes reads of more than size bytes fail, which is
// how an unreliable channel rejects a bulk transfer it would accept in pieces
func (img *Image) FailReadsLargerThan(size process.ProcessMemorySize) {
	img.mu.Lock()
	defer img.mu.Unlock()
	img.maxReadSize = size
}

// Reads returns how many reads the image served or rejected
func (img *Image) Reads() int {
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.reads
}

// Writes returns how many writes succeeded
func (img *Image) Writes() int {
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.writes
}

// Lookups returns every name passed to PidFromName, in order
func (img *Image) Lookups() []string {
	img.mu.Lock()
	defer img.mu.Unlock()
	return append([]string(nil), img.lookups...)
}

// MemoryMap describes the mapped regions
func (img *Image) MemoryMap() []memory_map.MemoryMapItem {
	img.mu.Lock()
	defer img.mu.Unlock()

	items := make([]memory_map.MemoryMapItem, 0, len(img.blobs))
	for _, b := range img.blobs {
		items = append(items, memory_map.MemoryMapItem{
			Address: uint64(b.baseaddress),
			Size:    uint(len(b.data)),
			Perms:   b.perms,
		})
	}
	return items
}

func (img *Image) PidFromName(name string) (process.ProcessID, error) {
	img.mu.Lock()
	defer img.mu.Unlock()

	img.lookups = append(img.lookups, name)
	if name != img.name {
		return 0, fmt.Errorf("no process named '%s': %w", name, process.ErrProcessNotFound)
	}
	return img.pid, nil
}

func (img *Image) ModuleBase(pid process.ProcessID, module string) (process.ProcessMemoryAddress, error) {
	img.mu.Lock()
	defer img.mu.Unlock()

	if pid != img.pid {
		return 0, fmt.Errorf("process with PID %d does not exist", pid)
	}
	return img.modules[module], nil
}

func (img *Image) ReadMemory(pid process.ProcessID, addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	img.mu.Lock()
	defer img.mu.Unlock()

	img.reads++

	if err := img.check(pid); err != nil {
		return nil, err
	}
	if img.maxReadSize != 0 && size > img.maxReadSize {
		return nil, fmt.Errorf("read of %s at %s exceeds transfer limit: %w", size.ToString(), addr.ToString(), ErrInjectedFault)
	}

	end := addr.Add(size)
	for _, f := range img.faults {
		if addr < f.end && f.start < end {
			return nil, fmt.Errorf("read at %s: %w", addr.ToString(), ErrInjectedFault)
		}
	}

	return img.copyOut(addr, size)
}

func (img *Image) WriteMemory(pid process.ProcessID, addr process.ProcessMemoryAddress, data []byte) error {
	img.mu.Lock()
	defer img.mu.Unlock()

	if err := img.check(pid); err != nil {
		return err
	}
	if err := img.copyIn(addr, data, true); err != nil {
		return err
	}

	img.writes++
	return nil
}

func (img *Image) Close() error {
	img.mu.Lock()
	defer img.mu.Unlock()
	img.closed = true
	return nil
}

// Closed reports whether Close was called
func (img *Image) Closed() bool {
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.closed
}

func (img *Image) check(pid process.ProcessID) error {
	if img.closed {
		return errors.New("image closed")
	}
	if pid != img.pid {
		return fmt.Errorf("process with PID %d does not exist", pid)
	}
	return nil
}

// copyOut assumes the mutex is held. Reads may span adjacent regions.
func (img *Image) copyOut(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	out := make([]byte, size)
	done := process.ProcessMemorySize(0)
	for done < size {
		b := img.find(addr.Add(done))
		if b == nil {
			return nil, fmt.Errorf("read at %s: %w", addr.Add(done).ToString(), process.ErrAddressNotMapped)
		}
		offset := addr.Add(done) - b.baseaddress
		done += process.ProcessMemorySize(copy(out[done:], b.data[offset:]))
	}
	return out, nil
}

// copyIn assumes the mutex is held
func (img *Image) copyIn(addr process.ProcessMemoryAddress, data []byte, checkPerms bool) error {
	// validate the whole range before touching anything so writes are all-or-nothing
	for done := 0; done < len(data); {
		b := img.find(addr.Add(process.ProcessMemorySize(done)))
		if b == nil {
			return fmt.Errorf("write at %s: %w", addr.ToString(), process.ErrAddressNotMapped)
		}
		if checkPerms && (len(b.perms) < 2 || b.perms[1] != 'w') {
			return fmt.Errorf("memory region at %s is not writable", b.baseaddress.ToString())
		}
		done += int(b.end() - addr.Add(process.ProcessMemorySize(done)))
	}

	for done := 0; done < len(data); {
		cur := addr.Add(process.ProcessMemorySize(done))
		b := img.find(cur)
		done += copy(b.data[cur-b.baseaddress:], data[done:])
	}
	return nil
}

func (img *Image) find(addr process.ProcessMemoryAddress) *blob {
	i := sort.Search(len(img.blobs), func(i int) bool {
		return img.blobs[i].end() > addr
	})
	if i < len(img.blobs) && img.blobs[i].baseaddress <= addr {
		return img.blobs[i]
	}
	return nil
}
