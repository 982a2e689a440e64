package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"memrelay/config"
	"memrelay/control"
	"memrelay/discovery"
	"memrelay/hexdump"
	"memrelay/input"
	"memrelay/relay"

	"github.com/mattn/go-isatty"
	"github.com/urfave/cli"
)

var run = cli.Command{
	Name:  "run",
	Usage: "relay a movement script, or the demo sequence when none is given",
	Flags: append(sessionFlags(),
		cli.StringFlag{
			Name:  "moves",
			Usage: `space separated dx,dy steps, e.g. "100,0 -5,5"`,
		},
		cli.IntFlag{
			Name:  "repeat",
			Value: 1,
			Usage: "number of times to play the script",
		},
		cli.DurationFlag{
			Name:  "interval",
			Value: config.DefaultSendInterval,
			Usage: "delay between sends",
		},
	),
	Action: func(c *cli.Context) error {
		return withSession(c, func(ctx context.Context, s *relay.Session) error {
			script, err := buildScript(c.String("moves"), c.Int("repeat"))
			if err != nil {
				return err
			}

			ctrl := &relay.Controller{Session: s, Source: script, Interval: s.Config().SendInterval}
			if stdoutIsTerminal() {
				sent := 0
				ctrl.OnSend = func(dx, dy int32, err error) {
					sent++
					fmt.Printf("\r%6d sent, last (%d,%d)   ", sent, dx, dy)
				}
			}

			stats, err := ctrl.Run(ctx)
			fmt.Printf("\nsent %d, failed %d\n", stats.Sent, stats.Failed)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	},
}

var locate = cli.Command{
	Name:  "locate",
	Usage: "discover the control record and print where it is",
	Flags: sessionFlags(),
	Action: func(c *cli.Context) error {
		return withSession(c, func(ctx context.Context, s *relay.Session) error {
			loc := s.Located()
			fmt.Printf("pid          %d\n", s.PID())
			fmt.Printf("module       %s at %s\n", s.Module(), s.ModuleBase().ToString())
			fmt.Printf("record       %s (offset 0x%X)\n", loc.Address.ToString(), uint64(loc.Address-s.ModuleBase()))
			fmt.Printf("strategy     %s\n", loc.Strategy)
			if loc.ProbeErr != nil {
				fmt.Printf("probe        %v\n", loc.ProbeErr)
			}
			if loc.Strategy == discovery.StrategyScan {
				fmt.Printf("scan         bulk=%t chunks read=%d failed=%d\n", loc.Stats.Bulk, loc.Stats.ChunksRead, loc.Stats.ChunksFailed)
			}
			return nil
		})
	},
}

var status = cli.Command{
	Name:  "status",
	Usage: "read the control record back",
	Flags: sessionFlags(),
	Action: func(c *cli.Context) error {
		return withSession(c, func(ctx context.Context, s *relay.Session) error {
			rec, err := s.ReadRecord(ctx)
			if err != nil {
				return err
			}

			state := "idle"
			if rec.IsPending() {
				state = "pending"
			}
			fmt.Printf("%s  %s\n", rec, state)

			opts := hexdump.DefaultOptions()
			opts.StartAddress = uint64(s.Address())
			opts.Highlight = rec.Bytes()[control.OffsetSignature:]
			opts.Plain = !stdoutIsTerminal()
			fmt.Print(hexdump.Dump(rec.Bytes(), opts))
			return nil
		})
	},
}

var capture = cli.Command{
	Name:      "capture",
	Usage:     "save the discovery window to a snapshot directory for offline replay",
	ArgsUsage: "<dir>",
	Flags:     sessionFlags(),
	Action: func(c *cli.Context) error {
		dir := c.Args().First()
		if dir == "" {
			return fmt.Errorf("capture needs an output directory")
		}
		return withSession(c, func(ctx context.Context, s *relay.Session) error {
			stats, err := s.Capture(ctx, dir)
			if err != nil {
				return err
			}
			fmt.Printf("captured %d regions, %d bytes, %d unreadable chunks to %s\n", stats.Regions, stats.Bytes, stats.ChunksFailed, dir)
			return nil
		})
	},
}

// withSession initializes a session from the command flags, runs fn until
// it returns or the process is interrupted, and shuts the session down
func withSession(c *cli.Context, fn func(context.Context, *relay.Session) error) error {
	cfg, err := configFromContext(c)
	if err != nil {
		return err
	}

	open, err := openerFor(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := relay.New(cfg, open)
	if err := s.Initialize(ctx); err != nil {
		return err
	}
	defer s.Shutdown()

	return fn(ctx, s)
}

func buildScript(moves string, repeat int) (*input.Script, error) {
	if strings.TrimSpace(moves) == "" {
		return input.Demo(), nil
	}

	var steps [][2]int32
	for _, field := range strings.Fields(moves) {
		x, y, ok := strings.Cut(field, ",")
		if !ok {
			return nil, fmt.Errorf("step %q is not dx,dy", field)
		}
		dx, err := strconv.ParseInt(x, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("step %q: %w", field, err)
		}
		dy, err := strconv.ParseInt(y, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("step %q: %w", field, err)
		}
		steps = append(steps, [2]int32{int32(dx), int32(dy)})
	}

	script := input.NewScript()
	for i := 0; i < max(repeat, 1); i++ {
		for _, s := range steps {
			script.Push(s[0], s[1])
		}
	}
	return script, nil
}

func stdoutIsTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}
