package discovery

import (
	"context"
	"fmt"

	"memrelay/control"
	"memrelay/process"
)

// ScanStats describes how the scan window was read
type ScanStats struct {
	Bulk         bool // the single bulk read succeeded
	ChunksRead   int
	ChunksFailed int
}

// Scan reads [start, start+size) into a local buffer and looks for the
// signature at 4-byte aligned offsets. The window is read in one transfer
// when possible; otherwise it is re-read chunk by chunk, and chunks that
// fail stay zeroed so a signature in any readable chunk is still found.
// The first match wins.
func Scan(ctx context.Context, r MemoryReader, start process.ProcessMemoryAddress, size, chunkSize process.ProcessMemorySize) (process.ProcessMemoryAddress, ScanStats, error) {
	var stats ScanStats

	if size < control.SignatureAlignment {
		return 0, stats, fmt.Errorf("scan window of %s cannot hold a signature: %w", size.ToString(), process.ErrSignatureNotFound)
	}

	buf, stats, err := readWindow(ctx, r, start, size, chunkSize)
	if err != nil {
		return 0, stats, err
	}

	if off, ok := findSignature(buf); ok {
		sigAddr := start.Add(process.ProcessMemorySize(off))
		return sigAddr - control.OffsetSignature, stats, nil
	}

	if !stats.Bulk && stats.ChunksRead == 0 {
		return 0, stats, fmt.Errorf("scan of %s at %s: no chunk was readable: %w", size.ToString(), start.ToString(), process.ErrSignatureNotFound)
	}
	return 0, stats, fmt.Errorf("scan of %s at %s: %w", size.ToString(), start.ToString(), process.ErrSignatureNotFound)
}

func readWindow(ctx context.Context, r MemoryReader, start process.ProcessMemoryAddress, size, chunkSize process.ProcessMemorySize) ([]byte, ScanStats, error) {
	var stats ScanStats
	buf := make([]byte, size)

	data, err := r.ReadMemory(ctx, start, size)
	if err == nil && len(data) == len(buf) {
		copy(buf, data)
		stats.Bulk = true
		return buf, stats, nil
	}
	if ctx.Err() != nil {
		return nil, stats, ctx.Err()
	}

	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}

	log.Warn("Bulk read of ", size.ToString(), " at ", start.ToString(), " failed, trying chunked read: ", err)

	for off := process.ProcessMemorySize(0); off < size; off += chunkSize {
		n := chunkSize
		if off+n > size {
			n = size - off
		}

		chunk, err := r.ReadMemory(ctx, start.Add(off), n)
		if err != nil || len(chunk) != int(n) {
			if ctx.Err() != nil {
				return nil, stats, ctx.Err()
			}
			log.Debugln("Chunk at", start.Add(off).ToString(), "unreadable:", err)
			stats.ChunksFailed++
			continue
		}

		copy(buf[off:], chunk)
		stats.ChunksRead++
	}

	log.Infoln("Chunked read:", stats.ChunksRead, "successful chunks,", stats.ChunksFailed, "failed")
	return buf, stats, nil
}

// findSignature returns the first 4-byte aligned offset holding the signature
func findSignature(buf []byte) (int, bool) {
	for i := 0; i+4 <= len(buf); i += control.SignatureAlignment {
		if control.SignatureAt(buf, i) {
			return i, true
		}
	}
	return 0, false
}
