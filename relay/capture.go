package relay

import (
	"context"
	"fmt"

	"memrelay/control"
	"memrelay/process"
	"memrelay/process_blob"
)

// CaptureStats summarizes what a capture could read
type CaptureStats struct {
	Regions      int
	Bytes        process.ProcessMemorySize
	ChunksFailed int
}

// Capture copies the discovery window and the probe record of the attached
// process into a snapshot directory. Unreadable chunks are left out, so the
// snapshot replays the same discovery outcome through "-device snapshot".
func (s *Session) Capture(ctx context.Context, dir string) (CaptureStats, error) {
	var stats CaptureStats

	st, err := s.state()
	if err != nil {
		return stats, err
	}

	img := process_blob.NewImage(st.pid, s.cfg.ProcessName)
	img.AddModule(st.module, st.base)

	opts := s.cfg.DiscoveryOptions()
	start := st.base.Add(opts.ScanOffset)
	end := start.Add(opts.ScanSize)

	chunk := opts.ChunkSize
	if chunk == 0 || chunk > opts.ScanSize {
		chunk = opts.ScanSize
	}

	for off := process.ProcessMemorySize(0); off < opts.ScanSize; off += chunk {
		n := chunk
		if off+n > opts.ScanSize {
			n = opts.ScanSize - off
		}

		addr := start.Add(off)
		data, err := st.ch.readMemory(ctx, st.pid, addr, n)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			s.log.Warn("Capture skipped ", n.ToString(), " at ", addr.ToString(), ": ", err)
			stats.ChunksFailed++
			continue
		}
		if err := img.Map(addr, data); err != nil {
			return stats, err
		}
		stats.Regions++
		stats.Bytes += n
	}

	// the probe record lives outside the window when offsets were reconfigured
	probe := st.base.Add(opts.FixedOffset)
	if opts.FixedOffset != 0 && (probe.Add(control.RecordSize) <= start || probe >= end) {
		data, err := st.ch.readMemory(ctx, st.pid, probe, control.RecordSize)
		if err == nil {
			if err := img.Map(probe, data); err != nil {
				return stats, err
			}
			stats.Regions++
			stats.Bytes += control.RecordSize
		} else {
			s.log.Warn("Capture skipped probe record at ", probe.ToString(), ": ", err)
		}
	}

	if stats.Regions == 0 {
		return stats, fmt.Errorf("capture of %s: nothing readable: %w", start.ToString(), process.ErrReadFailed)
	}

	if err := img.Save(dir); err != nil {
		return stats, fmt.Errorf("capture: %w", err)
	}
	return stats, nil
}
