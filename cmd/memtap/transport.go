package main

import (
	"fmt"

	"github.com/urfave/cli"

	"memtap/driver"
	"memtap/driver_socket"
	"memtap/target"
)

// openTransport returns a socket client when --socket is set, otherwise a
// direct in-process service. Direct access needs the privileges serve runs
// with; the socket path works from any user that can reach the socket.
func openTransport(c *cli.Context) (driver.Transport, error) {
	if socket := c.String("socket"); socket != "" {
		return driver_socket.Dial(socket)
	}
	host, err := newHost()
	if err != nil {
		return nil, err
	}
	return driver.Direct(driver.NewService(host)), nil
}

// resolvePid picks the target process: --pid, then --name, then the
// environment defaults.
func resolvePid(c *cli.Context) (target.PID, error) {
	switch {
	case c.Int("pid") > 0:
		return target.PID(c.Int("pid")), nil
	case c.String("name") != "":
		return findByName(c.String("name"))
	case cfg.Pid > 0:
		return target.PID(cfg.Pid), nil
	case cfg.Target != "":
		return findByName(cfg.Target)
	}
	return 0, fmt.Errorf("no target: pass --pid or --name, or set MEMTAP_PID/MEMTAP_TARGET")
}

var targetFlags = []cli.Flag{
	cli.IntFlag{
		Name:  "pid, p",
		Usage: "target process id",
	},
	cli.StringFlag{
		Name:  "name, n",
		Usage: "target process name, lowest matching pid wins",
	},
	cli.StringFlag{
		Name:  "socket, s",
		Usage: "read through a memtap serve socket instead of directly",
	},
}
