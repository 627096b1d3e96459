// Package target_sim provides scripted in-memory targets. A sim host stands
// in for a real operating system so service behavior can be exercised
// without a live victim process: tests map regions, plant bytes, corrupt
// pointers, and kill processes at will.
package target_sim

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"memtap/target"
)

// Host maps pids to scripted address spaces.
type Host struct {
	mu     sync.Mutex
	spaces map[target.PID]*Space
}

func NewHost() *Host {
	return &Host{spaces: make(map[target.PID]*Space)}
}

// AddProcess registers a space under pid and returns it for scripting.
func (h *Host) AddProcess(pid target.PID) *Space {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := NewSpace()
	h.spaces[pid] = s
	return s
}

// RemoveProcess simulates the process exiting. Later attaches fail; already
// attached spaces keep working, as a real memory snapshot would.
func (h *Host) RemoveProcess(pid target.PID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.spaces, pid)
}

func (h *Host) Attach(pid target.PID) (target.AddressSpace, error) {
	h.mu.Lock()
	s, ok := h.spaces[pid]
	h.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("attach pid %d: %w", pid, target.ErrUnknownProcess)
	}
	s.mu.Lock()
	s.stats.Attaches++
	s.mu.Unlock()
	return &attachment{space: s}, nil
}

// Stats counts the traffic a space has seen, for asserting on service
// behavior: what was probed, what was read, whether attachments were
// released.
type Stats struct {
	Attaches int
	Detaches int
	Probes   int
	Reads    int
}

// Space is one scripted address space. Builder methods panic on addresses
// outside mapped regions; a test writing to unmapped memory is broken, not
// exercising a target condition.
type Space struct {
	mu      sync.Mutex
	regions []target.Region   // sorted by base
	data    map[uint64][]byte // region base -> backing bytes
	stats   Stats
}

func NewSpace() *Space {
	return &Space{data: make(map[uint64][]byte)}
}

// MapRegion adds a zero-filled region. Overlapping maps are a script bug and
// panic.
func (s *Space) MapRegion(base, size uint64, perms, path string) *Space {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.regions {
		if base < r.End() && r.Base < base+size {
			panic(fmt.Sprintf("target_sim: region %#x-%#x overlaps %#x-%#x", base, base+size, r.Base, r.End()))
		}
	}

	s.regions = append(s.regions, target.Region{Base: base, Size: size, Perms: perms, Path: path})
	target.SortRegions(s.regions)
	s.data[base] = make([]byte, size)
	return s
}

// Unmap drops the region starting at base, leaving a hole.
func (s *Space) Unmap(base uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, r := range s.regions {
		if r.Base == base {
			s.regions = append(s.regions[:i], s.regions[i+1:]...)
			delete(s.data, base)
			return
		}
	}
	panic(fmt.Sprintf("target_sim: no region at %#x", base))
}

// Stats returns a snapshot of the traffic counters.
func (s *Space) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Space) locate(addr uint64) ([]byte, uint64) {
	r := target.RegionFor(s.regions, addr)
	if r == nil {
		panic(fmt.Sprintf("target_sim: address %#x not mapped", addr))
	}
	return s.data[r.Base], addr - r.Base
}

// PutBytes copies b into mapped memory at addr. Writes may cross the seam
// between contiguous regions, the same way reads do.
func (s *Space) PutBytes(addr uint64, b []byte) *Space {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(b) > 0 {
		buf, off := s.locate(addr)
		n := copy(buf[off:], b)
		b = b[n:]
		addr += uint64(n)
	}
	return s
}

func (s *Space) PutU8(addr uint64, v uint8) *Space {
	return s.PutBytes(addr, []byte{v})
}

func (s *Space) PutU16(addr uint64, v uint16) *Space {
	return s.PutBytes(addr, binary.LittleEndian.AppendUint16(nil, v))
}

func (s *Space) PutU32(addr uint64, v uint32) *Space {
	return s.PutBytes(addr, binary.LittleEndian.AppendUint32(nil, v))
}

func (s *Space) PutU64(addr uint64, v uint64) *Space {
	return s.PutBytes(addr, binary.LittleEndian.AppendUint64(nil, v))
}

func (s *Space) PutF32(addr uint64, v float32) *Space {
	return s.PutU32(addr, math.Float32bits(v))
}

// PutString writes v as a NUL-terminated string.
func (s *Space) PutString(addr uint64, v string) *Space {
	return s.PutBytes(addr, append([]byte(v), 0))
}

func (s *Space) probe(addr, size uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Probes++
	return target.ProbeRange(s.regions, addr, size)
}

func (s *Space) readAt(buf []byte, addr uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Reads++
	for len(buf) > 0 {
		r := target.RegionFor(s.regions, addr)
		if r == nil || !r.IsReadable() {
			return fmt.Errorf("read %d bytes at %#x: %w", len(buf), addr, target.ErrAddressNotMapped)
		}
		n := copy(buf, s.data[r.Base][addr-r.Base:])
		buf = buf[n:]
		addr += uint64(n)
	}
	return nil
}

func (s *Space) module(name string) (target.Region, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return target.ModuleSpan(s.regions, name)
}

// attachment is one scoped view of a space, handed out by Host.Attach.
type attachment struct {
	space  *Space
	closed bool
}

var _ target.AddressSpace = (*attachment)(nil)

func (a *attachment) Probe(addr, size uint64) bool {
	if a.closed {
		return false
	}
	return a.space.probe(addr, size)
}

func (a *attachment) ReadAt(buf []byte, addr uint64) error {
	if a.closed {
		return target.ErrSpaceClosed
	}
	return a.space.readAt(buf, addr)
}

func (a *attachment) Module(name string) (target.Region, error) {
	if a.closed {
		return target.Region{}, target.ErrSpaceClosed
	}
	return a.space.module(name)
}

func (a *attachment) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true

	a.space.mu.Lock()
	a.space.stats.Detaches++
	a.space.mu.Unlock()
	return nil
}
