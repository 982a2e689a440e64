package discovery

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"memrelay/control"
	"memrelay/process"
	"memrelay/process_blob"
)

const moduleBase = process.ProcessMemoryAddress(0x7FF600000000)

type imageReader struct {
	img *process_blob.Image
}

func (r imageReader) ReadMemory(ctx context.Context, addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	return r.img.ReadMemory(r.img.PID(), addr, size)
}

// newModule maps the default scan window, which also contains the fixed offset
func newModule(t *testing.T) *process_blob.Image {
	t.Helper()
	img := process_blob.NewImage(1, "relay_owner")
	img.AddModule("relay_owner", moduleBase)
	if err := img.MapZero(moduleBase+DefaultScanOffset, DefaultScanSize); err != nil {
		t.Fatal(err)
	}
	return img
}

func putSignature(t *testing.T, img *process_blob.Image, addr process.ProcessMemoryAddress, sig uint32) {
	t.Helper()
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], sig)
	if err := img.Poke(addr, b[:]); err != nil {
		t.Fatal(err)
	}
}

func TestLocateProbeHit(t *testing.T) {
	img := newModule(t)
	if err := img.Poke(moduleBase+DefaultFixedOffset, control.Record{Signature: control.Signature}.Bytes()); err != nil {
		t.Fatal(err)
	}

	res, err := Locate(context.Background(), imageReader{img}, moduleBase, DefaultOptions())
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if res.Address != moduleBase+0x44000 || res.Strategy != StrategyProbe {
		t.Fatalf("Locate = %s via %s", res.Address.ToString(), res.Strategy)
	}
	if img.Reads() != 1 {
		t.Fatalf("probe hit should need exactly one read, got %d", img.Reads())
	}
}

func TestLocateProbeMismatchFallsBackToScan(t *testing.T) {
	img := newModule(t)
	putSignature(t, img, moduleBase+DefaultFixedOffset+control.OffsetSignature, 0x12345678)
	putSignature(t, img, moduleBase+0x40000+0x100C, control.Signature)

	res, err := Locate(context.Background(), imageReader{img}, moduleBase, DefaultOptions())
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if want := moduleBase + 0x40000 + 0x1000; res.Address != want {
		t.Fatalf("Locate = %s, want %s", res.Address.ToString(), want.ToString())
	}
	if res.Strategy != StrategyScan || !res.Stats.Bulk {
		t.Fatalf("strategy=%s stats=%+v", res.Strategy, res.Stats)
	}
	if !errors.Is(res.ProbeErr, process.ErrSignatureNotFound) {
		t.Fatalf("ProbeErr = %v", res.ProbeErr)
	}
}

func TestLocateProbeReadFailureFallsBackToScan(t *testing.T) {
	img := process_blob.NewImage(1, "relay_owner")
	// window mapped but smaller, so the fixed offset is unmapped
	img.MapZero(moduleBase+0x40000, 0x1000)
	putSignature(t, img, moduleBase+0x40000+0x2C, control.Signature)

	opts := DefaultOptions()
	opts.ScanSize = 0x1000
	res, err := Locate(context.Background(), imageReader{img}, moduleBase, opts)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if res.Address != moduleBase+0x40000+0x20 {
		t.Fatalf("Locate = %s", res.Address.ToString())
	}
}

func TestLocateZeroFixedOffsetForcesScan(t *testing.T) {
	img := newModule(t)
	putSignature(t, img, moduleBase+0x40000+0x10, control.Signature)

	opts := DefaultOptions()
	opts.FixedOffset = 0
	res, err := Locate(context.Background(), imageReader{img}, moduleBase, opts)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if res.Strategy != StrategyScan || res.Address != moduleBase+0x40000+0x4 {
		t.Fatalf("Locate = %s via %s", res.Address.ToString(), res.Strategy)
	}
	if img.Reads() != 1 {
		t.Fatalf("expected only the bulk scan read, got %d reads", img.Reads())
	}
}

func TestScanDeterminism(t *testing.T) {
	for _, off := range []process.ProcessMemorySize{0xC, 0x10, 0x100C, DefaultScanSize - 4} {
		img := newModule(t)
		start := moduleBase + DefaultScanOffset
		putSignature(t, img, start.Add(off), control.Signature)

		addr, _, err := Scan(context.Background(), imageReader{img}, start, DefaultScanSize, DefaultChunkSize)
		if err != nil {
			t.Fatalf("offset %#x: %v", off, err)
		}
		if want := start.Add(off) - 12; addr != want {
			t.Errorf("offset %#x: got %s, want %s", off, addr.ToString(), want.ToString())
		}
	}
}

func TestScanFirstMatchWins(t *testing.T) {
	img := newModule(t)
	start := moduleBase + DefaultScanOffset
	putSignature(t, img, start+0x800C, control.Signature)
	putSignature(t, img, start+0x200C, control.Signature)

	addr, _, err := Scan(context.Background(), imageReader{img}, start, DefaultScanSize, DefaultChunkSize)
	if err != nil {
		t.Fatal(err)
	}
	if addr != start+0x2000 {
		t.Fatalf("got %s, want first match at %s", addr.ToString(), (start + 0x2000).ToString())
	}
}

func TestScanIgnoresUnalignedSignature(t *testing.T) {
	img := newModule(t)
	start := moduleBase + DefaultScanOffset
	putSignature(t, img, start+0x102, control.Signature)

	_, _, err := Scan(context.Background(), imageReader{img}, start, DefaultScanSize, DefaultChunkSize)
	if !errors.Is(err, process.ErrSignatureNotFound) {
		t.Fatalf("err = %v, want ErrSignatureNotFound", err)
	}
}

func TestScanDegradesToChunks(t *testing.T) {
	img := newModule(t)
	start := moduleBase + DefaultScanOffset
	putSignature(t, img, start+0x900C, control.Signature)

	img.FailReadsLargerThan(0x1000)
	img.FailRange(start, 0x1000) // the first chunk is unreadable, the hit is elsewhere

	addr, stats, err := Scan(context.Background(), imageReader{img}, start, DefaultScanSize, 0x1000)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if addr != start+0x9000 {
		t.Fatalf("Scan = %s", addr.ToString())
	}
	if stats.Bulk || stats.ChunksRead != 15 || stats.ChunksFailed != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestScanSignatureInUnreadableChunk(t *testing.T) {
	img := newModule(t)
	start := moduleBase + DefaultScanOffset
	putSignature(t, img, start+0x900C, control.Signature)

	img.FailReadsLargerThan(0x1000)
	img.FailRange(start+0x9000, 0x1000)

	_, stats, err := Scan(context.Background(), imageReader{img}, start, DefaultScanSize, 0x1000)
	if !errors.Is(err, process.ErrSignatureNotFound) {
		t.Fatalf("err = %v, want ErrSignatureNotFound", err)
	}
	if stats.ChunksFailed != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestScanChunkLargerThanWindow(t *testing.T) {
	img := newModule(t)
	start := moduleBase + DefaultScanOffset
	putSignature(t, img, start+0x10, control.Signature)
	img.FailRange(start+0x8000, 4) // bulk and the single 1 MiB chunk both fail

	_, stats, err := Scan(context.Background(), imageReader{img}, start, DefaultScanSize, DefaultChunkSize)
	if !errors.Is(err, process.ErrSignatureNotFound) {
		t.Fatalf("err = %v", err)
	}
	if stats.ChunksRead != 0 || stats.ChunksFailed != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestScanCancelled(t *testing.T) {
	img := newModule(t)
	img.FailReadsLargerThan(0x10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := Scan(ctx, imageReader{img}, moduleBase+DefaultScanOffset, DefaultScanSize, 0x1000)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
