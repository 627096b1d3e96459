package main

import (
	"fmt"

	"github.com/urfave/cli"

	"memtap/target"
)

type procInfo struct {
	PID     target.PID
	Name    string
	State   string
	Threads int
	RSS     int64
	Cmdline string
}

var psCmd = cli.Command{
	Name:      "ps",
	Usage:     "list processes matching a name",
	ArgsUsage: "name",
	Action: func(c *cli.Context) error {
		name := c.Args().First()
		if name == "" {
			return fmt.Errorf("name argument is required")
		}

		procs, err := listProcesses(name)
		if err != nil {
			return err
		}
		if len(procs) == 0 {
			fmt.Println("no matches")
			return nil
		}
		for _, p := range procs {
			label := p.Name
			if p.Cmdline != "" {
				label = p.Cmdline
			}
			fmt.Printf("%7d  %-2s %3d  %8d KiB  %s\n", p.PID, p.State, p.Threads, p.RSS, label)
		}
		return nil
	},
}
