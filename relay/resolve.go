package relay

import (
	"context"
	"errors"
	"fmt"

	"memrelay/process"
)

// resolveProcess looks the owner up by its full name and, for names longer
// than the providers match reliably, once more by the truncated name. A
// provider may report a miss as pid 0 with no error.
func (s *Session) resolveProcess(ctx context.Context, ch *channel, name string) (process.ProcessID, error) {
	pid, err := lookupPid(ctx, ch, name)
	if err == nil {
		return pid, nil
	}
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	if len(name) > process.ShortNameLimit {
		short := name[:process.ShortNameLimit]
		s.log.Debugln("Lookup of", name, "failed, retrying as", short, ":", err)

		pid, err = lookupPid(ctx, ch, short)
		if err == nil {
			return pid, nil
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
	}

	if errors.Is(err, process.ErrTimeout) || errors.Is(err, process.ErrProcessNotFound) {
		return 0, fmt.Errorf("resolve %s: %w", name, err)
	}
	return 0, fmt.Errorf("resolve %s: %v: %w", name, err, process.ErrProcessNotFound)
}

func lookupPid(ctx context.Context, ch *channel, name string) (process.ProcessID, error) {
	pid, err := ch.pidFromName(ctx, name)
	if err != nil {
		return 0, err
	}
	if pid == 0 {
		return 0, fmt.Errorf("no process named '%s': %w", name, process.ErrProcessNotFound)
	}
	return pid, nil
}

// resolveModuleBase returns the first candidate with a non-zero load address
func (s *Session) resolveModuleBase(ctx context.Context, ch *channel, pid process.ProcessID, candidates []string) (string, process.ProcessMemoryAddress, error) {
	var lastErr error
	for _, module := range candidates {
		base, err := ch.moduleBase(ctx, pid, module)
		if err != nil {
			if ctx.Err() != nil {
				return "", 0, ctx.Err()
			}
			if errors.Is(err, process.ErrTimeout) {
				return "", 0, fmt.Errorf("module %s: %w", module, err)
			}
			s.log.Debugln("Module lookup", module, "failed:", err)
			lastErr = err
			continue
		}
		if base != 0 {
			return module, base, nil
		}
	}

	if lastErr != nil {
		return "", 0, fmt.Errorf("modules %v in pid %d: %v: %w", candidates, pid, lastErr, process.ErrModuleNotFound)
	}
	return "", 0, fmt.Errorf("modules %v in pid %d: %w", candidates, pid, process.ErrModuleNotFound)
}
