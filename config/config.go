// Package config holds the tunables shared by the controller and the owner.
// The discovery offsets belong to one build of the owner and are expected to
// be overridden whenever that build changes.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"memrelay/discovery"
	"memrelay/process"

	"github.com/google/shlex"
)

const (
	DefaultProcessName  = "relay_owner"
	DefaultOpTimeout    = 2 * time.Second
	DefaultSendInterval = time.Millisecond
	DefaultPollInterval = 5 * time.Millisecond
)

// Config is the full set of tunables
type Config struct {
	// DeviceArgs is the device-selector argument list handed to the provider
	DeviceArgs []string

	ProcessName string
	// ModuleNames are tried in order when resolving the module base; empty
	// means derive candidates from ProcessName
	ModuleNames []string

	FixedOffset process.ProcessMemorySize
	ScanOffset  process.ProcessMemorySize
	ScanSize    process.ProcessMemorySize
	ChunkSize   process.ProcessMemorySize

	// OpTimeout bounds every single provider call, zero disables it
	OpTimeout time.Duration

	SendInterval time.Duration
	PollInterval time.Duration
}

func Default() Config {
	return Config{
		DeviceArgs:   []string{"-device", "local"},
		ProcessName:  DefaultProcessName,
		FixedOffset:  discovery.DefaultFixedOffset,
		ScanOffset:   discovery.DefaultScanOffset,
		ScanSize:     discovery.DefaultScanSize,
		ChunkSize:    discovery.DefaultChunkSize,
		OpTimeout:    DefaultOpTimeout,
		SendInterval: DefaultSendInterval,
		PollInterval: DefaultPollInterval,
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.ProcessName == "" {
		errs = append(errs, errors.New("process name is required"))
	}
	if len(c.DeviceArgs) == 0 {
		errs = append(errs, errors.New("device arguments are required"))
	}
	if c.ScanSize < 4 {
		errs = append(errs, fmt.Errorf("scan size %d cannot hold a signature", c.ScanSize))
	}
	if c.ScanOffset%4 != 0 || c.FixedOffset%4 != 0 {
		errs = append(errs, errors.New("scan and fixed offsets must be 4-byte aligned"))
	}
	if c.ChunkSize == 0 {
		errs = append(errs, errors.New("chunk size must be non-zero"))
	}
	if c.OpTimeout < 0 || c.SendInterval < 0 || c.PollInterval <= 0 {
		errs = append(errs, errors.New("intervals must be positive"))
	}
	return errors.Join(errs...)
}

func (c Config) DiscoveryOptions() discovery.Options {
	return discovery.Options{
		FixedOffset: c.FixedOffset,
		ScanOffset:  c.ScanOffset,
		ScanSize:    c.ScanSize,
		ChunkSize:   c.ChunkSize,
	}
}

// ModuleCandidates returns the module names to try for the base address:
// the configured list, or the process name followed by the same name with
// its extension toggled ("owner.exe" -> "owner", "owner" -> "owner.exe").
func (c Config) ModuleCandidates() []string {
	if len(c.ModuleNames) > 0 {
		return c.ModuleNames
	}

	name := c.ProcessName
	if ext := filepath.Ext(name); ext != "" {
		return []string{name, strings.TrimSuffix(name, ext)}
	}
	return []string{name, name + ".exe"}
}

// ParseDeviceArgs splits a shell-quoted device selector such as
// `-device snapshot -path "/tmp/my capture"`
func ParseDeviceArgs(s string) ([]string, error) {
	args, err := shlex.Split(s)
	if err != nil {
		return nil, fmt.Errorf("invalid device arguments %q: %w", s, err)
	}
	return args, nil
}

// DeviceName returns the value of -device, or "" if absent
func DeviceName(args []string) string {
	for i, a := range args {
		if a == "-device" && i+1 < len(args) {
			return args[i+1]
		}
		if v, ok := strings.CutPrefix(a, "-device="); ok {
			return v
		}
	}
	return ""
}
