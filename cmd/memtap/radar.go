package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli"

	"memtap/game"
	"memtap/radar"
	"memtap/state"
	"memtap/target"
)

var radarCmd = cli.Command{
	Name:  "radar",
	Usage: "print world snapshots of the target",
	Flags: append(targetFlags,
		cli.StringFlag{
			Name:  "schema",
			Usage: "offset schema yaml, defaults to built-in offsets",
		},
		cli.DurationFlag{
			Name:  "interval, i",
			Usage: "snapshot interval",
		},
		cli.BoolFlag{
			Name:  "once",
			Usage: "print one snapshot and exit",
		},
	),
	Action: runRadar,
}

func runRadar(c *cli.Context) error {
	pid, err := resolvePid(c)
	if err != nil {
		return err
	}
	sch, err := loadSchema(c)
	if err != nil {
		return err
	}
	tp, err := openTransport(c)
	if err != nil {
		return err
	}
	defer tp.Close()

	rd, err := game.NewReader(tp, pid, sch)
	if err != nil {
		return err
	}

	states := state.New()
	game.RegisterStates(states, rd, sch)
	gen := radar.NewGenerator(states, rd, sch)

	interval := c.Duration("interval")
	if interval <= 0 {
		interval = cfg.Interval
	}

	for {
		snap, err := gen.Snapshot()
		switch {
		case err == nil:
			printSnapshot(snap)
			if c.Bool("once") {
				return nil
			}
		case errors.Is(err, target.ErrUnknownProcess):
			return fmt.Errorf("target %d is gone: %w", pid, err)
		default:
			// Transient: the target rewrites its world between our reads.
			if c.Bool("once") {
				return err
			}
			fmt.Println("snapshot failed:", err)
		}
		time.Sleep(interval)
	}
}

func loadSchema(c *cli.Context) (*game.Schema, error) {
	path := c.String("schema")
	if path == "" {
		path = cfg.Schema
	}
	if path == "" {
		return game.DefaultSchema(), nil
	}
	return game.LoadSchema(path)
}

func printSnapshot(snap *radar.Snapshot) {
	fmt.Printf("[%d] %s  players=%d\n", snap.TickCount, snap.MapName, len(snap.Players))
	for _, p := range snap.Players {
		line := fmt.Sprintf("  #%-3d team %d  hp %-3d  %-16s (%.0f %.0f %.0f)",
			p.EntityIndex, p.Team, p.Health, p.Name,
			p.Position[0], p.Position[1], p.Position[2])
		if p.HasDefuser {
			line += " [kit]"
		}
		if p.FlashTime > 0 {
			line += " [flashed]"
		}
		fmt.Println(line)
	}

	if b := snap.Planted; b != nil {
		switch b.State {
		case radar.ChargeActive:
			fmt.Printf("  charge at site %c: %.1fs of %.1fs",
				'A'+b.Site, b.TimeDetonation, b.TimeTotal)
			if b.Defuser != nil {
				fmt.Printf("  (%s defusing, %.1fs of %.1fs)",
					b.Defuser.PlayerName, b.Defuser.TimeRemaining, b.Defuser.TimeTotal)
			}
			fmt.Println()
		default:
			fmt.Printf("  charge %s\n", b.State)
		}
	}

	for _, ch := range snap.Carried {
		owner := "dropped"
		if ch.Owner.Valid() {
			owner = fmt.Sprintf("held by #%d", ch.Owner.Index())
		}
		fmt.Printf("  carried charge #%d %s (%.0f %.0f %.0f)\n",
			ch.EntityIndex, owner, ch.Position[0], ch.Position[1], ch.Position[2])
	}
}
