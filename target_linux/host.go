//go:build linux

package target_linux

import (
	"fmt"
	"os"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"

	"memtap/target"
)

// Userspace mappings outside this window are garbage pointers, not
// addresses worth probing.
const (
	minUserAddress = 0x10000
	maxUserAddress = 0x7FFFFFFFFFFF
)

// Host attaches to live Linux processes. Each Attach takes a fresh
// /proc/<pid>/maps snapshot, so an attachment sees the region table as it
// was when the operation started.
type Host struct {
	log *logger.Logger
}

func NewHost() *Host {
	return &Host{
		log: logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "target-linux")),
	}
}

func (h *Host) Attach(pid target.PID) (target.AddressSpace, error) {
	if pid <= 0 {
		return nil, fmt.Errorf("attach pid %d: %w", pid, target.ErrUnknownProcess)
	}

	f, err := os.Open(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("attach pid %d: %w", pid, target.ErrUnknownProcess)
		}
		return nil, fmt.Errorf("attach pid %d: %w", pid, err)
	}
	defer f.Close()

	regions, err := ParseMaps(f)
	if err != nil {
		return nil, fmt.Errorf("attach pid %d: parse maps: %w", pid, err)
	}

	h.log.Debugln("attached pid", pid, "with", len(regions), "regions")

	return &procSpace{pid: pid, regions: regions}, nil
}

// procSpace is one attachment to a live process.
type procSpace struct {
	pid     target.PID
	regions []target.Region
}

var _ target.AddressSpace = (*procSpace)(nil)

func (p *procSpace) Probe(addr, size uint64) bool {
	if p.regions == nil {
		return false
	}
	if addr < minUserAddress || addr > maxUserAddress {
		return false
	}
	return target.ProbeRange(p.regions, addr, size)
}

func (p *procSpace) ReadAt(buf []byte, addr uint64) error {
	if p.regions == nil {
		return target.ErrSpaceClosed
	}
	if len(buf) == 0 {
		return nil
	}
	return vmReadv(p.pid, buf, addr)
}

func (p *procSpace) Module(name string) (target.Region, error) {
	if p.regions == nil {
		return target.Region{}, target.ErrSpaceClosed
	}
	return target.ModuleSpan(p.regions, name)
}

func (p *procSpace) Close() error {
	p.regions = nil
	return nil
}
