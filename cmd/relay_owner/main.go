package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"memrelay/config"
	"memrelay/owner"

	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "relay_owner"
	app.Usage = "host a control record and apply the movements a controller writes into it"
	app.Flags = []cli.Flag{
		cli.DurationFlag{
			Name:  "interval",
			Value: config.DefaultPollInterval,
			Usage: "poll period of the control record",
		},
	}
	app.Action = serve

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func serve(c *cli.Context) error {
	region, err := owner.Open()
	if err != nil {
		return err
	}
	defer region.Close()

	fmt.Printf("pid          %d\n", os.Getpid())
	fmt.Printf("record       %s\n", region.Address().ToString())
	if region.ModuleBase() != 0 {
		module := filepath.Base(region.Module())
		fmt.Printf("module       %s at %s\n", module, region.ModuleBase().ToString())
		fmt.Printf("offset       0x%X\n", uint(region.Offset()))
		fmt.Printf("controller   relay_controller run -p %s -m %s --fixed-offset 0x%X\n", module, module, uint(region.Offset()))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, err := owner.Run(ctx, region, owner.LogActuator{}, c.Duration("interval"))
	fmt.Printf("applied %d movements, %d errors\n", stats.Movements, stats.Errors)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
