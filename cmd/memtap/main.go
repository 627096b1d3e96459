package main

import (
	"log"
	"os"

	"github.com/urfave/cli"
)

const usage = `memtap reads live process memory through validated offset chains,
serving raw reads and radar snapshots over a unix socket`

var cfg config

func main() {
	if err := loadConfig(&cfg); err != nil {
		log.Fatal(err)
	}

	app := cli.NewApp()
	app.Name = "memtap"
	app.Usage = usage
	app.Commands = []cli.Command{
		serveCmd,
		radarCmd,
		readCmd,
		findCmd,
		huntCmd,
		dumpCmd,
		psCmd,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
