// Package scan searches target module memory for masked byte patterns.
package scan

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"memtap/driver"
	"memtap/protocol"
	"memtap/target"
)

// ErrPatternNotFound is returned by FindFirst when the module holds no match.
var ErrPatternNotFound = errors.New("pattern not found")

// readChunk bounds a single protocol read during a module sweep.
const readChunk = 0x10000

// Pattern is a masked byte sequence. A mask byte of 0xff compares the whole
// data byte, 0x00 skips it, anything in between compares just the masked bits.
type Pattern struct {
	Bytes []byte
	Mask  []byte
}

// Parse reads patterns like "48 8b ?? c3" or "00,ba,ad,??,f0": hex byte
// pairs separated by spaces or commas, with ?? (or ?) as a wildcard.
func Parse(s string) (Pattern, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' '
	})
	if len(parts) == 0 {
		return Pattern{}, fmt.Errorf("empty pattern %q", s)
	}

	pat := Pattern{
		Bytes: make([]byte, 0, len(parts)),
		Mask:  make([]byte, 0, len(parts)),
	}
	for _, part := range parts {
		if part == "??" || part == "?" {
			pat.Bytes = append(pat.Bytes, 0)
			pat.Mask = append(pat.Mask, 0)
			continue
		}
		val, err := strconv.ParseUint(part, 16, 8)
		if err != nil {
			return Pattern{}, fmt.Errorf("invalid hex byte %q in pattern", part)
		}
		pat.Bytes = append(pat.Bytes, byte(val))
		pat.Mask = append(pat.Mask, 0xff)
	}
	return pat, nil
}

// Len returns the number of target bytes the pattern covers.
func (p Pattern) Len() int {
	return len(p.Bytes)
}

func (p Pattern) String() string {
	var sb strings.Builder
	for i, b := range p.Bytes {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if p.Mask[i] == 0 {
			sb.WriteString("??")
		} else {
			fmt.Fprintf(&sb, "%02x", b)
		}
	}
	return sb.String()
}

// Match reports whether the pattern matches at the start of data.
func (p Pattern) Match(data []byte) bool {
	if len(data) < len(p.Bytes) {
		return false
	}
	for i, m := range p.Mask {
		if data[i]&m != p.Bytes[i]&m {
			return false
		}
	}
	return true
}

// Find sweeps the named module of pid through the transport and returns the
// absolute address of every match, in address order. The sweep reads the
// module in readChunk pieces with a pattern-length overlap so matches
// straddling a chunk boundary are still seen. Chunks the target has since
// unmapped or protected are skipped, not fatal.
func Find(tp driver.Transport, pid target.PID, module string, pat Pattern) ([]uint64, error) {
	if len(pat.Bytes) == 0 {
		return nil, fmt.Errorf("empty pattern")
	}
	if len(pat.Mask) != len(pat.Bytes) {
		return nil, fmt.Errorf("mask length %d does not match pattern length %d",
			len(pat.Mask), len(pat.Bytes))
	}

	modReq, err := protocol.NewModuleRequest(uint32(pid), module)
	if err != nil {
		return nil, err
	}
	mod, err := tp.Module(modReq)
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", module, err)
	}
	switch mod.Status {
	case protocol.ModuleSuccess:
	case protocol.ModuleUnknownProcess:
		return nil, fmt.Errorf("module %s: %w", module, target.ErrUnknownProcess)
	default:
		return nil, fmt.Errorf("module %s: %w", module, target.ErrUnknownModule)
	}

	plen := uint64(pat.Len())
	buf := make([]byte, readChunk+plen-1)

	var out []uint64
	for off := uint64(0); off < mod.Size; off += readChunk {
		want := mod.Size - off
		if want > readChunk+plen-1 {
			want = readChunk + plen - 1
		}
		if want < plen {
			break
		}

		chunk, err := sweepRead(tp, uint32(pid), mod.Base+off, want, buf)
		if err != nil {
			return nil, fmt.Errorf("module %s at %#x: %w", module, mod.Base+off, err)
		}
		if chunk == nil {
			continue
		}

		for i := 0; i+int(plen) <= len(chunk); i++ {
			if pat.Match(chunk[i:]) {
				out = append(out, mod.Base+off+uint64(i))
			}
		}
	}
	return out, nil
}

// sweepRead fetches one sweep chunk. A faulting read is retried without the
// overlap tail, since the tail may be what crossed into an unreadable page;
// matches needing those bytes could never match anyway. A chunk that still
// faults is a hole, reported as a nil slice.
func sweepRead(tp driver.Transport, pid uint32, addr, want uint64, buf []byte) ([]byte, error) {
	for {
		req, err := protocol.NewReadRequest(pid, uint32(want), int64(addr))
		if err != nil {
			return nil, err
		}
		resp, err := tp.Read(req, buf[:want])
		if err != nil {
			return nil, err
		}
		switch resp.Status {
		case protocol.ReadSuccess:
			return buf[:want], nil
		case protocol.ReadUnknownProcess:
			return nil, target.ErrUnknownProcess
		}

		if want <= readChunk {
			return nil, nil
		}
		want = readChunk
	}
}

// FindFirst returns the lowest match address, or ErrPatternNotFound.
func FindFirst(tp driver.Transport, pid target.PID, module string, pat Pattern) (uint64, error) {
	matches, err := Find(tp, pid, module, pat)
	if err != nil {
		return 0, err
	}
	if len(matches) == 0 {
		return 0, fmt.Errorf("%s: %w", pat, ErrPatternNotFound)
	}
	return matches[0], nil
}
