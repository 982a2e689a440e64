// Package discovery locates a control record inside a remote module.
//
// Discovery is one operation with two strategies: a cheap probe at a
// previously observed offset from the module base, and a bounded scan of a
// window around it when the probe does not validate. The offsets are
// artifacts of one build of the owner and are configuration, not protocol.
package discovery

import (
	"context"
	"fmt"

	"memrelay/control"
	"memrelay/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

const (
	DefaultFixedOffset = 0x44000
	DefaultScanOffset  = 0x40000
	DefaultScanSize    = 0x10000
	DefaultChunkSize   = 0x100000
)

var log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "discovery"))

// MemoryReader reads bytes from one already-resolved process
type MemoryReader interface {
	ReadMemory(ctx context.Context, addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error)
}

// Options are the tunable offsets, all relative to the module base
type Options struct {
	// FixedOffset is where the record was last observed. Zero skips the probe.
	FixedOffset process.ProcessMemorySize
	// ScanOffset and ScanSize bound the fallback window
	ScanOffset process.ProcessMemorySize
	ScanSize   process.ProcessMemorySize
	// ChunkSize is the read size used when the bulk read of the window fails
	ChunkSize process.ProcessMemorySize
}

func DefaultOptions() Options {
	return Options{
		FixedOffset: DefaultFixedOffset,
		ScanOffset:  DefaultScanOffset,
		ScanSize:    DefaultScanSize,
		ChunkSize:   DefaultChunkSize,
	}
}

// Strategy names which half of discovery produced an address
type Strategy string

const (
	StrategyProbe Strategy = "probe"
	StrategyScan  Strategy = "scan"
)

// Result is a discovered control record address
type Result struct {
	Address  process.ProcessMemoryAddress
	Strategy Strategy
	// ProbeErr is why the probe did not validate, nil when it did or was skipped
	ProbeErr error
	Stats    ScanStats
}

// Locate finds the control record for a module loaded at base: the probe
// first, then the scan if the probe fails for any reason.
func Locate(ctx context.Context, r MemoryReader, base process.ProcessMemoryAddress, opts Options) (Result, error) {
	var probeErr error
	if opts.FixedOffset != 0 {
		addr, err := Probe(ctx, r, base, opts.FixedOffset)
		if err == nil {
			log.Infoln("Probe validated control record at", addr.ToString())
			return Result{Address: addr, Strategy: StrategyProbe}, nil
		}
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		probeErr = err
		log.Warn("Probe at offset ", fmt.Sprintf("0x%X", uint(opts.FixedOffset)), " failed, scanning: ", err)
	}

	start := base.Add(opts.ScanOffset)
	addr, stats, err := Scan(ctx, r, start, opts.ScanSize, opts.ChunkSize)
	if err != nil {
		return Result{ProbeErr: probeErr, Stats: stats}, err
	}

	log.Infoln("Scan located control record at", addr.ToString())
	return Result{Address: addr, Strategy: StrategyScan, ProbeErr: probeErr, Stats: stats}, nil
}

// Probe reads a whole record at base+offset and accepts it iff the read
// succeeds and the signature matches. A matching signature is conclusive.
func Probe(ctx context.Context, r MemoryReader, base process.ProcessMemoryAddress, offset process.ProcessMemorySize) (process.ProcessMemoryAddress, error) {
	candidate := base.Add(offset)

	data, err := r.ReadMemory(ctx, candidate, control.RecordSize)
	if err != nil {
		return 0, fmt.Errorf("probe read at %s: %w", candidate.ToString(), err)
	}

	rec, err := control.Decode(data)
	if err != nil {
		return 0, fmt.Errorf("probe read at %s: %w", candidate.ToString(), err)
	}

	if !rec.Valid() {
		return 0, fmt.Errorf("probe at %s: signature 0x%08X does not match: %w", candidate.ToString(), rec.Signature, process.ErrSignatureNotFound)
	}

	return candidate, nil
}
