package scan

import (
	"encoding/binary"
	"fmt"

	"memtap/driver"
	"memtap/protocol"
	"memtap/target"
)

// HuntResult is one discovered route to the pattern. Path holds
// displacements from the hunt base: every element but the last is the
// offset of a pointer that was followed, the last is the offset of the
// match inside the structure it landed in. Address is where the match
// lived when the hunt saw it.
type HuntResult struct {
	Path    []int64
	Address uint64
}

type hunter struct {
	window    uint32
	maxDepth  int
	alignment uint32
}

// HuntOption configures a Hunt.
type HuntOption func(*hunter)

// WithWindowSize sets how many bytes are scanned at each visited address.
func WithWindowSize(size uint32) HuntOption {
	return func(h *hunter) {
		h.window = size
	}
}

// WithMaxDepth sets how many pointer hops the hunt may follow. Zero scans
// only the base window.
func WithMaxDepth(depth int) HuntOption {
	return func(h *hunter) {
		h.maxDepth = depth
	}
}

// WithAlignment sets the scan step inside a window.
func WithAlignment(align uint32) HuntOption {
	return func(h *hunter) {
		h.alignment = align
	}
}

// Hunt searches memory reachable from base for the pattern, following
// candidate pointers up to the configured depth, and reports every hit as
// the offset path that led there. The point of a hunt is chain discovery: a
// Path that keeps turning up across runs is a stable route to a value whose
// address moves.
//
// Windows that cannot be read are skipped, like everything else the target
// invalidates mid-flight. Each address is visited once, so pointer cycles
// terminate.
func Hunt(tp driver.Transport, pid target.PID, base uint64, pat Pattern, options ...HuntOption) ([]HuntResult, error) {
	if len(pat.Bytes) == 0 {
		return nil, fmt.Errorf("empty pattern")
	}

	h := &hunter{window: 256, maxDepth: 3, alignment: 4}
	for _, opt := range options {
		opt(h)
	}
	if h.alignment == 0 {
		h.alignment = 4
	}
	if h.window == 0 {
		h.window = 256
	}
	if h.window > protocol.MaxReadSize {
		h.window = protocol.MaxReadSize
	}

	var results []HuntResult
	visited := make(map[uint64]bool)

	var walk func(addr uint64, depth int, path []int64)
	walk = func(addr uint64, depth int, path []int64) {
		if visited[addr] {
			return
		}
		visited[addr] = true

		req, err := protocol.NewReadRequest(uint32(pid), h.window, int64(addr))
		if err != nil {
			return
		}
		buf := make([]byte, h.window)
		resp, err := tp.Read(req, buf)
		if err != nil || resp.Status != protocol.ReadSuccess {
			return
		}

		for off := uint32(0); off < h.window; off += h.alignment {
			if pat.Match(buf[off:]) {
				results = append(results, HuntResult{
					Path:    appendPath(path, int64(off)),
					Address: addr + uint64(off),
				})
			}

			// Pointer slots are assumed 8-aligned. Wild candidates cost one
			// faulting window read and nothing else.
			if off%8 == 0 && off+8 <= h.window && depth < h.maxDepth {
				ptr := binary.LittleEndian.Uint64(buf[off:])
				if ptr != 0 {
					walk(ptr, depth+1, appendPath(path, int64(off)))
				}
			}
		}
	}
	walk(base, 0, nil)

	return results, nil
}

func appendPath(path []int64, off int64) []int64 {
	out := make([]int64, len(path), len(path)+1)
	copy(out, path)
	return append(out, off)
}
