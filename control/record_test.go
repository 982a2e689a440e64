package control

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRecordWireLayout(t *testing.T) {
	r := NewPending(-3, 7)
	want := []byte{
		0xFD, 0xFF, 0xFF, 0xFF, // deltaX = -3
		0x07, 0x00, 0x00, 0x00, // deltaY = 7
		0x01, 0x00, 0x00, 0x00, // active = 1
		0xEF, 0xBE, 0xAD, 0xDE, // signature
	}
	if got := r.Bytes(); !bytes.Equal(got, want) {
		t.Fatalf("Bytes() = % X, want % X", got, want)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	cases := []Record{
		NewPending(0, 0),
		NewPending(100, 0),
		NewPending(-2147483648, 2147483647),
		{DeltaX: 5, DeltaY: 6, Active: Idle, Signature: 0x12345678},
	}
	for _, want := range cases {
		got, err := Decode(want.Bytes())
		if err != nil {
			t.Fatalf("Decode(%v): %v", want, err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestDecodeShort(t *testing.T) {
	if _, err := Decode(make([]byte, RecordSize-1)); err == nil {
		t.Fatal("expected error for short buffer")
	}
}

func TestPendingRequiresSignature(t *testing.T) {
	r := NewPending(1, 1)
	if !r.IsPending() {
		t.Fatal("NewPending record must be pending")
	}
	r.Signature = 0x12345678
	if r.IsPending() {
		t.Fatal("record with wrong signature must not be pending")
	}
}

func TestSignatureAt(t *testing.T) {
	buf := make([]byte, 32)
	NewPending(1, 2).Encode(buf[8:])

	if !SignatureAt(buf, 8+OffsetSignature) {
		t.Error("signature not found at its offset")
	}
	if SignatureAt(buf, 8) {
		t.Error("false positive at record start")
	}
	if SignatureAt(buf, 30) || SignatureAt(buf, -1) {
		t.Error("out-of-range offsets must report false")
	}
}
