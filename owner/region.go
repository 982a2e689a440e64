// Package owner hosts the control record inside the owner process and
// applies the movement requests a controller writes into it.
package owner

import (
	"errors"
	"fmt"
	"sync"

	"memrelay/control"
	"memrelay/process"
)

// ErrRegionInUse is returned by Open while another Region is open
var ErrRegionInUse = errors.New("control region already open")

// block is statically allocated so its offset from the executable's load
// address is fixed for a given build
var block control.Block

var (
	regionMu   sync.Mutex
	regionOpen bool
)

// Region is the exclusive handle on the process-wide control block
type Region struct {
	address    process.ProcessMemoryAddress
	module     string
	moduleBase process.ProcessMemoryAddress

	closeOnce sync.Once
}

// Open resets the control block to idle and reports where it lives. Only
// one Region can be open at a time.
func Open() (*Region, error) {
	regionMu.Lock()
	defer regionMu.Unlock()

	if regionOpen {
		return nil, ErrRegionInUse
	}

	block.Reset()

	r := &Region{address: process.ProcessMemoryAddress(block.Address())}
	module, base, err := locateModule(block.Address())
	if err != nil {
		log.Warn("Could not resolve the module holding the control block: ", err)
	} else {
		r.module = module
		r.moduleBase = base
	}

	regionOpen = true
	log.Infoln("Control block ready at", r.address.ToString(), "module", r.module, "base", r.moduleBase.ToString())
	return r, nil
}

// Block is the shared control block
func (r *Region) Block() *control.Block {
	return &block
}

// Address is the control block address in this process
func (r *Region) Address() process.ProcessMemoryAddress {
	return r.address
}

// Module is the path of the executable holding the block, "" if unknown
func (r *Region) Module() string {
	return r.module
}

// ModuleBase is the load address of the executable, 0 if unknown
func (r *Region) ModuleBase() process.ProcessMemoryAddress {
	return r.moduleBase
}

// Offset is the block's distance from ModuleBase; a controller probing
// this build should use it as its fixed offset
func (r *Region) Offset() process.ProcessMemorySize {
	if r.moduleBase == 0 {
		return 0
	}
	return process.ProcessMemorySize(r.address - r.moduleBase)
}

func (r *Region) String() string {
	return fmt.Sprintf("block %s base %s offset 0x%X", r.address.ToString(), r.moduleBase.ToString(), uint(r.Offset()))
}

// Close clears the block, signature included, and releases the region
func (r *Region) Close() error {
	r.closeOnce.Do(func() {
		regionMu.Lock()
		defer regionMu.Unlock()

		block.Clear()
		regionOpen = false
		log.Infoln("Control block released")
	})
	return nil
}
