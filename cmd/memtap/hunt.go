package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli"

	"memtap/protocol"
	"memtap/scan"
)

var huntCmd = cli.Command{
	Name:      "hunt",
	Usage:     "discover offset chains leading to a byte pattern",
	ArgsUsage: "<base> <pattern>   e.g. 0x400000 \"ef be ad de\"",
	Flags: append(targetFlags,
		cli.StringFlag{
			Name:  "module, m",
			Usage: "rebase the base address on this module",
		},
		cli.IntFlag{
			Name:  "depth, d",
			Usage: "pointer hops to follow",
			Value: 3,
		},
		cli.UintFlag{
			Name:  "window, w",
			Usage: "bytes scanned at each visited address",
			Value: 256,
		},
		cli.UintFlag{
			Name:  "align, a",
			Usage: "scan step inside a window",
			Value: 4,
		},
	),
	Action: runHunt,
}

func runHunt(c *cli.Context) error {
	pid, err := resolvePid(c)
	if err != nil {
		return err
	}
	args := c.Args()
	if len(args) < 2 {
		return fmt.Errorf("hunt needs a base address and a pattern")
	}
	base, err := strconv.ParseUint(args[0], 0, 64)
	if err != nil {
		return fmt.Errorf("bad base %q: %w", args[0], err)
	}
	pat, err := scan.Parse(strings.Join(args[1:], " "))
	if err != nil {
		return err
	}

	tp, err := openTransport(c)
	if err != nil {
		return err
	}
	defer tp.Close()

	if mod := c.String("module"); mod != "" {
		modReq, err := protocol.NewModuleRequest(uint32(pid), mod)
		if err != nil {
			return err
		}
		modResp, err := tp.Module(modReq)
		if err != nil {
			return err
		}
		if modResp.Status != protocol.ModuleSuccess {
			return fmt.Errorf("module %s: %s", mod, modResp.Status)
		}
		base += modResp.Base
	}

	results, err := scan.Hunt(tp, pid, base, pat,
		scan.WithMaxDepth(c.Int("depth")),
		scan.WithWindowSize(uint32(c.Uint("window"))),
		scan.WithAlignment(uint32(c.Uint("align"))),
	)
	if err != nil {
		return err
	}

	fmt.Printf("%d routes to %s from %#x\n", len(results), pat, base)
	for _, res := range results {
		// Each route prints as a chain the read command accepts verbatim.
		parts := make([]string, len(res.Path))
		parts[0] = fmt.Sprintf("%#x", base+uint64(res.Path[0]))
		for i, off := range res.Path[1:] {
			parts[i+1] = fmt.Sprintf("%#x", off)
		}
		fmt.Printf("  %s  @ %#x\n", strings.Join(parts, ","), res.Address)
	}
	return nil
}
