package game

import (
	"errors"
	"fmt"

	"memtap/driver"
	"memtap/protocol"
	"memtap/target"
)

// ErrStaleChain means a chain read broke partway: an offset in the schema
// no longer leads through live pointers. The concrete error is a
// *StaleChainError carrying the partial trace.
var ErrStaleChain = errors.New("offset chain stale")

// StaleChainError reports where a chain read broke. Trace holds the pointer
// values resolved before the failing hop, in hop order.
type StaleChainError struct {
	Chain Chain
	Trace []uint64
}

func (e *StaleChainError) Error() string {
	return fmt.Sprintf("chain %#x stale after %d of %d hops (trace %#x)",
		[]int64(e.Chain), len(e.Trace), len(e.Chain)-1, e.Trace)
}

func (e *StaleChainError) Is(err error) bool {
	return err == ErrStaleChain
}

// Reader issues chain reads against one target process through a transport.
// The module base is resolved once at construction; a restarted target needs
// a new Reader.
type Reader struct {
	tp   driver.Transport
	pid  uint32
	base uint64
	size uint64
}

// NewReader locates the schema's module inside pid and binds a reader to
// it.
func NewReader(tp driver.Transport, pid target.PID, sch *Schema) (*Reader, error) {
	req, err := protocol.NewModuleRequest(uint32(pid), sch.Module)
	if err != nil {
		return nil, err
	}

	resp, err := tp.Module(req)
	if err != nil {
		return nil, fmt.Errorf("locate module %s: %w", sch.Module, err)
	}
	switch resp.Status {
	case protocol.ModuleSuccess:
	case protocol.ModuleUnknownProcess:
		return nil, fmt.Errorf("pid %d: %w", pid, target.ErrUnknownProcess)
	case protocol.ModuleUnknownModule:
		return nil, fmt.Errorf("pid %d has no module %s: %w", pid, sch.Module, target.ErrUnknownModule)
	default:
		return nil, fmt.Errorf("locate module %s: unexpected status %v", sch.Module, resp.Status)
	}

	return &Reader{tp: tp, pid: uint32(pid), base: resp.Base, size: resp.Size}, nil
}

// ModuleBase returns the resolved base address of the schema module.
func (r *Reader) ModuleBase() uint64 {
	return r.base
}

// Read fills dst by walking chain. Target-side failures come back as
// *StaleChainError or target.ErrUnknownProcess; either way the schema data
// and the target disagree, and the caller decides how much to throw away.
func (r *Reader) Read(dst []byte, chain Chain) error {
	req, err := protocol.NewReadRequest(r.pid, uint32(len(dst)), chain...)
	if err != nil {
		return err
	}

	resp, err := r.tp.Read(req, dst)
	if err != nil {
		return err
	}

	switch resp.Status {
	case protocol.ReadSuccess:
		return nil
	case protocol.ReadUnknownProcess:
		return fmt.Errorf("pid %d: %w", r.pid, target.ErrUnknownProcess)
	case protocol.ReadInvalidAddress:
		trace := make([]uint64, len(resp.Trace()))
		copy(trace, resp.Trace())
		return &StaleChainError{Chain: chain, Trace: trace}
	}
	return fmt.Errorf("read pid %d: unexpected status %v", r.pid, resp.Status)
}

// Blob reads size bytes at the end of chain as a struct image.
func (r *Reader) Blob(chain Chain, size uint32) (Struct, error) {
	dst := make([]byte, size)
	if err := r.Read(dst, chain); err != nil {
		return nil, err
	}
	return Struct(dst), nil
}

func (r *Reader) U8(chain Chain) (uint8, error) {
	var buf [1]byte
	err := r.Read(buf[:], chain)
	return buf[0], err
}

func (r *Reader) U16(chain Chain) (uint16, error) {
	b, err := r.Blob(chain, 2)
	if err != nil {
		return 0, err
	}
	return b.U16(0)
}

func (r *Reader) U32(chain Chain) (uint32, error) {
	b, err := r.Blob(chain, 4)
	if err != nil {
		return 0, err
	}
	return b.U32(0)
}

func (r *Reader) U64(chain Chain) (uint64, error) {
	b, err := r.Blob(chain, 8)
	if err != nil {
		return 0, err
	}
	return b.U64(0)
}

func (r *Reader) I32(chain Chain) (int32, error) {
	v, err := r.U32(chain)
	return int32(v), err
}

func (r *Reader) F32(chain Chain) (float32, error) {
	b, err := r.Blob(chain, 4)
	if err != nil {
		return 0, err
	}
	return b.F32(0)
}

// String reads up to max bytes at the end of chain and cuts at the first
// NUL. The whole window must be readable in the target, so max should stay
// within the struct or allocation the chain lands on.
func (r *Reader) String(chain Chain, max uint32) (string, error) {
	b, err := r.Blob(chain, max)
	if err != nil {
		return "", err
	}
	for i, c := range b {
		if c == 0 {
			return string(b[:i]), nil
		}
	}
	return string(b), nil
}
