package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"memtap/driver"
	"memtap/driver_socket"
)

var serveCmd = cli.Command{
	Name:  "serve",
	Usage: "serve reads on a unix socket",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "socket, s",
			Usage: "unix socket path to listen on",
		},
	},
	Action: func(c *cli.Context) error {
		socket := c.String("socket")
		if socket == "" {
			socket = cfg.Socket
		}

		host, err := newHost()
		if err != nil {
			return err
		}
		srv := driver_socket.NewServer(driver.NewService(host))

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sig
			srv.Close()
		}()

		return srv.ListenAndServe(socket)
	},
}
