// Package control defines the 16-byte control record shared between the
// remote controller and the control-block owner, and the owner-side block
// that hosts it.
//
// Wire layout, little-endian, no padding:
//
//	offset 0   int32   DeltaX
//	offset 4   int32   DeltaY
//	offset 8   int32   Active    (1 = pending, 0 = idle)
//	offset 12  uint32  Signature (0xDEADBEEF)
package control

import (
	"encoding/binary"
	"fmt"
)

const (
	// Signature marks a control record. It never changes over the record's lifetime.
	Signature uint32 = 0xDEADBEEF

	RecordSize = 16

	OffsetDeltaX    = 0x0
	OffsetDeltaY    = 0x4
	OffsetActive    = 0x8
	OffsetSignature = 0xC

	// SignatureAlignment is the stride the scan steps at
	SignatureAlignment = 4
)

const (
	Idle    int32 = 0
	Pending int32 = 1
)

// Record is the decoded form of the wire layout
type Record struct {
	DeltaX    int32
	DeltaY    int32
	Active    int32
	Signature uint32
}

// NewPending builds the record the controller writes: both deltas, the
// freshness flag raised and the signature re-asserted.
func NewPending(dx, dy int32) Record {
	return Record{
		DeltaX:    dx,
		DeltaY:    dy,
		Active:    Pending,
		Signature: Signature,
	}
}

// Valid reports whether the signature matches
func (r Record) Valid() bool {
	return r.Signature == Signature
}

// IsPending reports whether the record holds an unconsumed, trustworthy write
func (r Record) IsPending() bool {
	return r.Active == Pending && r.Valid()
}

func (r Record) String() string {
	return fmt.Sprintf("dx=%d dy=%d active=%d sig=0x%08X", r.DeltaX, r.DeltaY, r.Active, r.Signature)
}

// Encode writes the wire form into dst, which must hold RecordSize bytes
func (r Record) Encode(dst []byte) {
	_ = dst[RecordSize-1]
	binary.LittleEndian.PutUint32(dst[OffsetDeltaX:], uint32(r.DeltaX))
	binary.LittleEndian.PutUint32(dst[OffsetDeltaY:], uint32(r.DeltaY))
	binary.LittleEndian.PutUint32(dst[OffsetActive:], uint32(r.Active))
	binary.LittleEndian.PutUint32(dst[OffsetSignature:], r.Signature)
}

// Bytes returns the 16-byte wire form
func (r Record) Bytes() []byte {
	buf := make([]byte, RecordSize)
	r.Encode(buf)
	return buf
}

// Decode parses the first RecordSize bytes of src
func Decode(src []byte) (Record, error) {
	if len(src) < RecordSize {
		return Record{}, fmt.Errorf("control record needs %d bytes, got %d", RecordSize, len(src))
	}
	return Record{
		DeltaX:    int32(binary.LittleEndian.Uint32(src[OffsetDeltaX:])),
		DeltaY:    int32(binary.LittleEndian.Uint32(src[OffsetDeltaY:])),
		Active:    int32(binary.LittleEndian.Uint32(src[OffsetActive:])),
		Signature: binary.LittleEndian.Uint32(src[OffsetSignature:]),
	}, nil
}

// SignatureAt reports whether buf holds the signature at off
func SignatureAt(buf []byte, off int) bool {
	if off < 0 || off+4 > len(buf) {
		return false
	}
	return binary.LittleEndian.Uint32(buf[off:]) == Signature
}
