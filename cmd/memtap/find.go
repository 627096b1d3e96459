package main

import (
	"fmt"
	"strings"

	"github.com/urfave/cli"

	"memtap/driver"
	"memtap/hexdump"
	"memtap/protocol"
	"memtap/scan"
	"memtap/target"
)

var findCmd = cli.Command{
	Name:      "find",
	Usage:     "scan a module for a masked byte pattern",
	ArgsUsage: `pattern, e.g. "48 8b ?? c3"`,
	Flags: append(targetFlags,
		cli.StringFlag{
			Name:  "module, m",
			Usage: "module to sweep",
		},
	),
	Action: runFind,
}

func runFind(c *cli.Context) error {
	pid, err := resolvePid(c)
	if err != nil {
		return err
	}
	module := c.String("module")
	if module == "" {
		return fmt.Errorf("--module is required")
	}
	pat, err := scan.Parse(strings.Join(c.Args(), " "))
	if err != nil {
		return err
	}

	tp, err := openTransport(c)
	if err != nil {
		return err
	}
	defer tp.Close()

	matches, err := scan.Find(tp, pid, module, pat)
	if err != nil {
		return err
	}

	fmt.Printf("%d matches for %s in %s\n", len(matches), pat, module)
	for _, addr := range matches {
		fmt.Printf("%#x\n", addr)
		printContext(tp, pid, addr, pat)
	}
	return nil
}

// printContext dumps the match with 16 lead-in bytes, highlighting the
// matched run. Context that cannot be read anymore is silently skipped.
func printContext(tp driver.Transport, pid target.PID, addr uint64, pat scan.Pattern) {
	const lead = 16
	if addr < lead {
		return
	}
	size := uint32(pat.Len() + 2*lead)

	req, err := protocol.NewReadRequest(uint32(pid), size, int64(addr-lead))
	if err != nil {
		return
	}
	buf := make([]byte, size)
	resp, err := tp.Read(req, buf)
	if err != nil || resp.Status != protocol.ReadSuccess {
		return
	}

	fmt.Print(hexdump.Dump(buf, hexdump.Options{
		Base:      addr - lead,
		Highlight: buf[lead : lead+pat.Len()],
	}))
}
