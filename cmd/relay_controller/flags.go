package main

import (
	"fmt"
	"strconv"
	"strings"

	"memrelay/config"
	"memrelay/process"

	"github.com/urfave/cli"
)

func sessionFlags() []cli.Flag {
	def := config.Default()
	return []cli.Flag{
		cli.StringFlag{
			Name:  "device",
			Value: strings.Join(def.DeviceArgs, " "),
			Usage: `device selector, e.g. "-device local" or "-device snapshot -path ./capture"`,
		},
		cli.StringFlag{
			Name:  "process, p",
			Value: def.ProcessName,
			Usage: "owner process name",
		},
		cli.StringSliceFlag{
			Name:  "module, m",
			Usage: "module name to resolve the base from, repeatable; defaults to the process name",
		},
		cli.StringFlag{
			Name:  "fixed-offset",
			Value: fmt.Sprintf("0x%X", uint(def.FixedOffset)),
			Usage: "offset of the control record from the module base, 0 to always scan",
		},
		cli.StringFlag{
			Name:  "scan-offset",
			Value: fmt.Sprintf("0x%X", uint(def.ScanOffset)),
			Usage: "start of the fallback scan window",
		},
		cli.StringFlag{
			Name:  "scan-size",
			Value: fmt.Sprintf("0x%X", uint(def.ScanSize)),
			Usage: "size of the fallback scan window",
		},
		cli.StringFlag{
			Name:  "chunk-size",
			Value: fmt.Sprintf("0x%X", uint(def.ChunkSize)),
			Usage: "read size used when the window cannot be read at once",
		},
		cli.DurationFlag{
			Name:  "timeout",
			Value: def.OpTimeout,
			Usage: "deadline for each memory operation",
		},
	}
}

func configFromContext(c *cli.Context) (config.Config, error) {
	cfg := config.Default()

	args, err := config.ParseDeviceArgs(c.String("device"))
	if err != nil {
		return cfg, err
	}
	cfg.DeviceArgs = args
	cfg.ProcessName = c.String("process")
	cfg.ModuleNames = c.StringSlice("module")
	cfg.OpTimeout = c.Duration("timeout")

	for _, o := range []struct {
		flag string
		dst  *process.ProcessMemorySize
	}{
		{"fixed-offset", &cfg.FixedOffset},
		{"scan-offset", &cfg.ScanOffset},
		{"scan-size", &cfg.ScanSize},
		{"chunk-size", &cfg.ChunkSize},
	} {
		v, err := strconv.ParseUint(c.String(o.flag), 0, 64)
		if err != nil {
			return cfg, fmt.Errorf("--%s: %w", o.flag, err)
		}
		*o.dst = process.ProcessMemorySize(v)
	}

	if c.IsSet("interval") {
		cfg.SendInterval = c.Duration("interval")
	}

	return cfg, cfg.Validate()
}
