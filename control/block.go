package control

import (
	"sync/atomic"
	"unsafe"
)

// Block is the in-process layout of a Record. The remote controller mutates
// it through the memory channel, so every field access goes through an atomic
// load or store; nothing in this process synchronizes with those writes.
type Block struct {
	DeltaX    atomic.Int32
	DeltaY    atomic.Int32
	Active    atomic.Int32
	Signature atomic.Uint32
}

// the block must stay byte-compatible with the wire layout
var _ [RecordSize]byte = [unsafe.Sizeof(Block{})]byte{}
var _ [OffsetSignature]byte = [unsafe.Offsetof(Block{}.Signature)]byte{}

// Reset puts the block into the idle state with its signature set
func (b *Block) Reset() {
	b.Signature.Store(Signature)
	b.DeltaX.Store(0)
	b.DeltaY.Store(0)
	b.Active.Store(Idle)
}

// Clear zeroes every field, including the signature, so a stale address
// no longer validates
func (b *Block) Clear() {
	b.Active.Store(Idle)
	b.DeltaX.Store(0)
	b.DeltaY.Store(0)
	b.Signature.Store(0)
}

// Snapshot returns the current field values
func (b *Block) Snapshot() Record {
	return Record{
		DeltaX:    b.DeltaX.Load(),
		DeltaY:    b.DeltaY.Load(),
		Active:    b.Active.Load(),
		Signature: b.Signature.Load(),
	}
}

// Address returns the block's location in this process
func (b *Block) Address() uintptr {
	return uintptr(unsafe.Pointer(b))
}

// Consume performs the Pending -> Idle transition. When Active is set and
// the signature matches, apply receives the deltas and the block is cleared
// back to idle; the clear happens even if apply fails so a delta is never
// replayed. Any other state leaves the block untouched.
func (b *Block) Consume(apply func(dx, dy int32) error) (bool, error) {
	if b.Active.Load() != Pending {
		return false, nil
	}
	if b.Signature.Load() != Signature {
		// not fully written or not ours, wait for the next poll
		return false, nil
	}

	dx := b.DeltaX.Load()
	dy := b.DeltaY.Load()

	err := apply(dx, dy)

	b.DeltaX.Store(0)
	b.DeltaY.Store(0)
	b.Active.Store(Idle)

	return true, err
}
