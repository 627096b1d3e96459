package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli"

	"memtap/protocol"
	"memtap/target"
)

const dumpChunk = 0x10000

var dumpCmd = cli.Command{
	Name:      "dump",
	Usage:     "save a module's bytes to a file",
	ArgsUsage: "<module>",
	Flags: append(targetFlags,
		cli.StringFlag{
			Name:  "out, o",
			Usage: "output `file`, defaults to <module>.bin",
		},
	),
	Action: runDump,
}

func runDump(c *cli.Context) error {
	pid, err := resolvePid(c)
	if err != nil {
		return err
	}
	mod := c.Args().First()
	if mod == "" {
		return fmt.Errorf("dump needs a module name")
	}

	tp, err := openTransport(c)
	if err != nil {
		return err
	}
	defer tp.Close()

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

	out := c.String("out")
	if out == "" {
		out = filepath.Base(mod) + ".bin"
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()

	var holes int
	buf := make([]byte, dumpChunk)
	for off := uint64(0); off < modResp.Size; off += dumpChunk {
		want := modResp.Size - off
		if want > dumpChunk {
			want = dumpChunk
		}

		req, err := protocol.NewReadRequest(uint32(pid), uint32(want), int64(modResp.Base+off))
		if err != nil {
			return err
		}
		resp, err := tp.Read(req, buf[:want])
		switch {
		case err != nil:
			return err
		case resp.Status == protocol.ReadSuccess:
		case resp.Status == protocol.ReadUnknownProcess:
			return fmt.Errorf("pid %d: %w", pid, target.ErrUnknownProcess)
		default:
			// Unreadable stretches come out as zeros so file offsets keep
			// lining up with module offsets.
			holes++
			for i := range buf[:want] {
				buf[i] = 0
			}
		}
		if _, err := f.Write(buf[:want]); err != nil {
			return err
		}
	}
	if err := f.Close(); err != nil {
		return err
	}

	fmt.Printf("wrote %d bytes of %s (base %#x) to %s\n", modResp.Size, mod, modResp.Base, out)
	if holes > 0 {
		fmt.Printf("%d unreadable chunks zero-filled\n", holes)
	}
	return nil
}
