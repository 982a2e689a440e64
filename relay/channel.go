package relay

import (
	"context"
	"fmt"
	"time"

	"memrelay/discovery"
	"memrelay/process"
)

// channel bounds every provider call with a deadline. Providers are blocking
// and not cancellable, so a call that overruns is abandoned to finish on its
// own goroutine and its result is dropped.
type channel struct {
	provider process.AccessProvider
	timeout  time.Duration
}

func call[T any](ctx context.Context, timeout time.Duration, op string, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case r := <-done:
		return r.v, r.err
	case <-expired:
		return zero, fmt.Errorf("%s after %v: %w", op, timeout, process.ErrTimeout)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (c *channel) pidFromName(ctx context.Context, name string) (process.ProcessID, error) {
	return call(ctx, c.timeout, "pid lookup", func() (process.ProcessID, error) {
		return c.provider.PidFromName(name)
	})
}

func (c *channel) moduleBase(ctx context.Context, pid process.ProcessID, module string) (process.ProcessMemoryAddress, error) {
	return call(ctx, c.timeout, "module lookup", func() (process.ProcessMemoryAddress, error) {
		return c.provider.ModuleBase(pid, module)
	})
}

func (c *channel) readMemory(ctx context.Context, pid process.ProcessID, addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	return call(ctx, c.timeout, "read", func() ([]byte, error) {
		return c.provider.ReadMemory(pid, addr, size)
	})
}

func (c *channel) writeMemory(ctx context.Context, pid process.ProcessID, addr process.ProcessMemoryAddress, data []byte) error {
	_, err := call(ctx, c.timeout, "write", func() (struct{}, error) {
		return struct{}{}, c.provider.WriteMemory(pid, addr, data)
	})
	return err
}

// reader binds the channel to one process for discovery
func (c *channel) reader(pid process.ProcessID) discovery.MemoryReader {
	return pidReader{c: c, pid: pid}
}

type pidReader struct {
	c   *channel
	pid process.ProcessID
}

func (r pidReader) ReadMemory(ctx context.Context, addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	return r.c.readMemory(ctx, r.pid, addr, size)
}
