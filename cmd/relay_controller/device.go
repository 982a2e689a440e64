package main

import (
	"fmt"
	"sort"

	"memrelay/config"
	"memrelay/process"
	"memrelay/process_blob"
)

// devices maps a -device value to its provider
var devices = map[string]process.ProviderOpener{
	"snapshot": process_blob.OpenSnapshot,
}

func openerFor(cfg config.Config) (process.ProviderOpener, error) {
	name := config.DeviceName(cfg.DeviceArgs)
	open, ok := devices[name]
	if !ok {
		known := make([]string, 0, len(devices))
		for k := range devices {
			known = append(known, k)
		}
		sort.Strings(known)
		return nil, fmt.Errorf("unknown device %q, available: %v: %w", name, known, process.ErrSessionInitFailed)
	}
	return open, nil
}
