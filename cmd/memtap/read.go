package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli"

	"memtap/hexdump"
	"memtap/protocol"
	"memtap/target"
)

var readCmd = cli.Command{
	Name:      "read",
	Usage:     "read bytes through an offset chain and hexdump them",
	ArgsUsage: "offset[,offset...]   first offset is the base, the rest deref",
	Flags: append(targetFlags,
		cli.UintFlag{
			Name:  "size",
			Usage: "bytes to read at the end of the chain",
			Value: 64,
		},
		cli.StringFlag{
			Name:  "module, m",
			Usage: "rebase the first offset on this module",
		},
	),
	Action: runRead,
}

func runRead(c *cli.Context) error {
	pid, err := resolvePid(c)
	if err != nil {
		return err
	}
	offsets, err := parseChain(c.Args().First())
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
		offsets[0] += int64(modResp.Base)
	}

	size := c.Uint("size")
	req, err := protocol.NewReadRequest(uint32(pid), uint32(size), offsets...)
	if err != nil {
		return err
	}
	dst := make([]byte, size)
	resp, err := tp.Read(req, dst)
	if err != nil {
		return err
	}

	switch resp.Status {
	case protocol.ReadSuccess:
	case protocol.ReadUnknownProcess:
		return fmt.Errorf("pid %d: %w", pid, target.ErrUnknownProcess)
	default:
		return fmt.Errorf("chain broke after %d of %d hops, resolved %#x",
			resp.ResolvedCount, req.OffsetCount-1, resp.Trace())
	}

	fmt.Print(hexdump.DumpAt(dst, finalAddress(req, resp)))
	return nil
}

// parseChain reads "0x400000,0x10,-0x8" into signed offsets. ParseInt base 0
// takes hex with 0x, plain decimal and negatives.
func parseChain(arg string) ([]int64, error) {
	parts := strings.FieldsFunc(arg, func(r rune) bool {
		return r == ',' || r == ' '
	})
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty offset chain")
	}
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseInt(p, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("bad offset %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// finalAddress replays the hop arithmetic over the response trace to label
// the dump with the address the payload came from.
func finalAddress(req *protocol.ReadRequest, resp protocol.ReadResponse) uint64 {
	addr := uint64(req.Offsets[0])
	for i, ptr := range resp.Trace() {
		addr = ptr + uint64(req.Offsets[i+1])
	}
	return addr
}
