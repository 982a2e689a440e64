// Package relay is the controller side of the control channel: it opens an
// access provider, finds the owner process and its control record, and
// writes movement requests into it.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"memrelay/config"
	"memrelay/control"
	"memrelay/discovery"
	"memrelay/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// Session is one connection to the owner's control record. The discovered
// address is cached for the lifetime of the session; call Initialize again
// to rediscover.
type Session struct {
	cfg  config.Config
	open process.ProviderOpener
	log  *logger.Logger

	// initMu serializes Initialize so concurrent calls cannot leak a provider
	initMu sync.Mutex

	mu       sync.Mutex
	ch       *channel
	pid      process.ProcessID
	module   string
	base     process.ProcessMemoryAddress
	located  discovery.Result
	lastErr  error
	sendSeq  uint64
	attached bool
}

// New creates an uninitialized session. open is called with cfg.DeviceArgs
// on every Initialize.
func New(cfg config.Config, open process.ProviderOpener) *Session {
	return &Session{
		cfg:  cfg,
		open: open,
		log:  logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "relay")),
	}
}

func (s *Session) Config() config.Config {
	return s.cfg
}

// Initialize opens the provider, resolves the owner process and module base,
// and discovers the control record. An initialized session is shut down
// first. On failure nothing is left open.
func (s *Session) Initialize(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	if s.Connected() {
		s.log.Infoln("Session already initialized, reinitializing")
		s.Shutdown()
	}

	if s.open == nil {
		return s.fail(fmt.Errorf("no provider opener: %w", process.ErrSessionInitFailed))
	}

	provider, err := s.open(s.cfg.DeviceArgs)
	if err != nil {
		if !errors.Is(err, process.ErrSessionInitFailed) {
			err = fmt.Errorf("open provider %v: %v: %w", s.cfg.DeviceArgs, err, process.ErrSessionInitFailed)
		}
		return s.fail(err)
	}
	if provider == nil {
		return s.fail(fmt.Errorf("open provider %v returned nothing: %w", s.cfg.DeviceArgs, process.ErrSessionInitFailed))
	}

	ch := &channel{provider: provider, timeout: s.cfg.OpTimeout}

	abort := func(err error) error {
		if cerr := provider.Close(); cerr != nil {
			s.log.Warn("Provider close after failed initialize: ", cerr)
		}
		return s.fail(err)
	}

	pid, err := s.resolveProcess(ctx, ch, s.cfg.ProcessName)
	if err != nil {
		return abort(err)
	}
	s.log.Infoln("Resolved", s.cfg.ProcessName, "to pid", pid)

	module, base, err := s.resolveModuleBase(ctx, ch, pid, s.cfg.ModuleCandidates())
	if err != nil {
		return abort(err)
	}
	s.log.Infoln("Module", module, "loaded at", base.ToString())

	res, err := discovery.Locate(ctx, ch.reader(pid), base, s.cfg.DiscoveryOptions())
	if err != nil {
		return abort(fmt.Errorf("locate control record in %s: %w", module, err))
	}

	s.mu.Lock()
	s.ch = ch
	s.pid = pid
	s.module = module
	s.base = base
	s.located = res
	s.lastErr = nil
	s.sendSeq = 0
	s.attached = true
	s.mu.Unlock()

	s.log.Infoln("Control record at", res.Address.ToString(), "via", string(res.Strategy),
		"offset", fmt.Sprintf("0x%X", uint64(res.Address-base)))
	return nil
}

// Send writes a pending record carrying (dx, dy) in a single transfer. It
// does not wait for the owner to consume the previous request; an
// unconsumed request is overwritten.
func (s *Session) Send(ctx context.Context, dx, dy int32) error {
	st, err := s.state()
	if err != nil {
		return err
	}

	rec := control.NewPending(dx, dy)
	if err := st.ch.writeMemory(ctx, st.pid, st.addr, rec.Bytes()); err != nil {
		return s.fail(fmt.Errorf("send %s to %s: %w: %w", rec, st.addr.ToString(), process.ErrWriteFailed, err))
	}

	s.mu.Lock()
	s.sendSeq++
	s.mu.Unlock()
	return nil
}

// ReadRecord reads the control record back from the owner
func (s *Session) ReadRecord(ctx context.Context) (control.Record, error) {
	st, err := s.state()
	if err != nil {
		return control.Record{}, err
	}

	data, err := st.ch.readMemory(ctx, st.pid, st.addr, control.RecordSize)
	if err != nil {
		return control.Record{}, s.fail(fmt.Errorf("read record at %s: %w: %w", st.addr.ToString(), process.ErrReadFailed, err))
	}

	rec, err := control.Decode(data)
	if err != nil {
		return control.Record{}, s.fail(fmt.Errorf("read record at %s: %w: %w", st.addr.ToString(), process.ErrReadFailed, err))
	}
	return rec, nil
}

// Shutdown releases the provider. The session can be initialized again.
func (s *Session) Shutdown() {
	s.mu.Lock()
	ch := s.ch
	attached := s.attached
	s.ch = nil
	s.attached = false
	s.pid = 0
	s.module = ""
	s.base = 0
	s.located = discovery.Result{}
	s.mu.Unlock()

	if !attached {
		return
	}
	if err := ch.provider.Close(); err != nil {
		s.log.Warn("Provider close: ", err)
	}
	s.log.Infoln("Session shut down")
}

func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attached
}

func (s *Session) PID() process.ProcessID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pid
}

// Module is the module name that resolved to a non-zero base
func (s *Session) Module() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.module
}

func (s *Session) ModuleBase() process.ProcessMemoryAddress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base
}

// Address is the discovered control record address, 0 when not initialized
func (s *Session) Address() process.ProcessMemoryAddress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.located.Address
}

// Located describes how the current address was discovered
func (s *Session) Located() discovery.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.located
}

// Sent counts successful sends since the last Initialize
func (s *Session) Sent() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendSeq
}

func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

type sessionState struct {
	ch     *channel
	pid    process.ProcessID
	module string
	base   process.ProcessMemoryAddress
	addr   process.ProcessMemoryAddress
}

func (s *Session) state() (sessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.attached {
		return sessionState{}, process.ErrNotInitialized
	}
	return sessionState{ch: s.ch, pid: s.pid, module: s.module, base: s.base, addr: s.located.Address}, nil
}

func (s *Session) fail(err error) error {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	return err
}
