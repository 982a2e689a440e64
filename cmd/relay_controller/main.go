package main

import (
	"log"
	"os"

	"github.com/urfave/cli"
)

const usage = `relays movement requests into a running owner process by writing its
             control record through a memory access provider`

func main() {
	app := cli.NewApp()
	app.Name = "relay_controller"
	app.Usage = usage
	app.Commands = []cli.Command{
		run,
		locate,
		status,
		capture,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
