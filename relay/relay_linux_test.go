//go:build linux

package relay

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"memrelay/config"
	"memrelay/control"
	"memrelay/discovery"
	"memrelay/owner"
	"memrelay/process"
	"memrelay/process_linux"
)

// TestLocalRelay drives this process's own control block through the local
// provider: the test binary is both the owner and the controller.
func TestLocalRelay(t *testing.T) {
	region, err := owner.Open()
	if err != nil {
		t.Fatal(err)
	}
	defer region.Close()
	if region.ModuleBase() == 0 {
		t.Skip("own module base unavailable")
	}

	exe, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.DeviceArgs = []string{"-device", "local"}
	cfg.ProcessName = filepath.Base(exe)
	cfg.ModuleNames = []string{filepath.Base(region.Module())}
	cfg.FixedOffset = region.Offset()

	s := New(cfg, process_linux.Open)
	ctx := context.Background()
	if err := s.Initialize(ctx); err != nil {
		t.Skipf("local provider unavailable: %v", err)
	}
	defer s.Shutdown()
	if s.PID() != process.ProcessID(os.Getpid()) {
		t.Skipf("%s resolved to another process (pid %d)", cfg.ProcessName, s.PID())
	}

	if s.Address() != region.Address() || s.Located().Strategy != discovery.StrategyProbe {
		t.Fatalf("located %s via %s, block is at %s", s.Address().ToString(), s.Located().Strategy, region.Address().ToString())
	}

	// round trip before the owner consumes anything
	if err := s.Send(ctx, 7, -9); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := region.Block().Snapshot(); got != control.NewPending(7, -9) {
		t.Fatalf("block after send = %s", got)
	}

	var mu sync.Mutex
	var moves [][2]int32
	act := owner.FuncActuator(func(dx, dy int32) error {
		mu.Lock()
		moves = append(moves, [2]int32{dx, dy})
		mu.Unlock()
		return nil
	})

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		owner.Run(runCtx, region, act, time.Millisecond)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(moves)
		mu.Unlock()
		if n == 1 && region.Block().Active.Load() == control.Idle {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("owner never consumed the request")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	if moves[0] != [2]int32{7, -9} {
		t.Fatalf("owner applied %v", moves[0])
	}
	rec, err := s.ReadRecord(ctx)
	if err != nil || rec != (control.Record{Signature: control.Signature}) {
		t.Fatalf("record after consume = %s, %v", rec, err)
	}
}
