// Package protocol defines the fixed-layout contract between the privileged
// read service and its consumers. Every message is a flat struct of
// fixed-size fields so the wire image stays stable across builds on either
// side of the channel.
package protocol

import (
	"errors"
	"fmt"
)

const (
	// MaxDerefCount is the most offsets a single read request may carry,
	// counting the absolute base address as the first entry.
	MaxDerefCount = 31

	// MaxReadSize bounds the byte count of a single read request.
	MaxReadSize = 1 << 20

	// MaxModuleName bounds the name field of a module request.
	MaxModuleName = 64
)

// ErrBadRequest marks requests the service refuses to execute: offset counts
// outside 1..MaxDerefCount, oversized reads, undersized destination buffers.
// These are caller bugs, not target conditions, and are reported as errors
// rather than through the response status.
var ErrBadRequest = errors.New("bad request")

// ReadRequest asks the service to walk an offset chain inside one target
// process and copy Size bytes from the final address.
//
// Offsets[0] is the absolute starting address. Each later entry is a signed
// displacement applied after dereferencing a pointer at the current address.
type ReadRequest struct {
	Pid         uint32
	OffsetCount uint32
	Offsets     [MaxDerefCount]int64
	Size        uint32
}

// NewReadRequest builds a read request from an offset chain. The first
// element of offsets is the absolute starting address.
func NewReadRequest(pid uint32, size uint32, offsets ...int64) (*ReadRequest, error) {
	if len(offsets) == 0 || len(offsets) > MaxDerefCount {
		return nil, fmt.Errorf("%w: offset count %d outside 1..%d", ErrBadRequest, len(offsets), MaxDerefCount)
	}
	if size > MaxReadSize {
		return nil, fmt.Errorf("%w: read size %#x exceeds %#x", ErrBadRequest, size, MaxReadSize)
	}

	req := &ReadRequest{
		Pid:         pid,
		OffsetCount: uint32(len(offsets)),
		Size:        size,
	}
	copy(req.Offsets[:], offsets)
	return req, nil
}

// Validate checks the request bounds without touching any target memory.
func (r *ReadRequest) Validate() error {
	if r.OffsetCount == 0 || r.OffsetCount > MaxDerefCount {
		return fmt.Errorf("%w: offset count %d outside 1..%d", ErrBadRequest, r.OffsetCount, MaxDerefCount)
	}
	if r.Size > MaxReadSize {
		return fmt.Errorf("%w: read size %#x exceeds %#x", ErrBadRequest, r.Size, MaxReadSize)
	}
	return nil
}

// Chain returns the active slice of the offset array.
func (r *ReadRequest) Chain() []int64 {
	return r.Offsets[:r.OffsetCount]
}

// ReadStatus reports how a well-formed read request fared against the target.
type ReadStatus uint8

const (
	// ReadSuccess means every hop resolved and the payload was copied out.
	ReadSuccess ReadStatus = iota

	// ReadUnknownProcess means the pid did not name a live process.
	ReadUnknownProcess

	// ReadInvalidAddress means a probe failed or a read faulted somewhere
	// along the chain. The response trace shows how far resolution got.
	ReadInvalidAddress
)

func (s ReadStatus) String() string {
	switch s {
	case ReadSuccess:
		return "success"
	case ReadUnknownProcess:
		return "unknown process"
	case ReadInvalidAddress:
		return "invalid address"
	}
	return fmt.Sprintf("read status %d", uint8(s))
}

// ReadResponse is the service's verdict on a read request. On success the
// payload bytes travel separately; the response itself stays fixed-size.
//
// ResolvedOffsets[:ResolvedCount] holds every pointer value successfully
// dereferenced before the chain completed or broke, so a caller can see
// exactly which hop went stale. ResolvedCount is always strictly less than
// the request's OffsetCount.
type ReadResponse struct {
	Status          ReadStatus
	ResolvedCount   uint32
	ResolvedOffsets [MaxDerefCount]uint64
}

// Trace returns the pointer values dereferenced so far, in hop order.
func (r *ReadResponse) Trace() []uint64 {
	n := r.ResolvedCount
	if n > MaxDerefCount {
		n = MaxDerefCount
	}
	return r.ResolvedOffsets[:n]
}

// ModuleRequest asks the service where a named module is mapped inside a
// target process. The name is NUL-padded to keep the frame fixed-size.
type ModuleRequest struct {
	Pid  uint32
	Name [MaxModuleName]byte
}

// NewModuleRequest builds a module request, rejecting names that do not fit.
func NewModuleRequest(pid uint32, name string) (*ModuleRequest, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty module name", ErrBadRequest)
	}
	if len(name) > MaxModuleName {
		return nil, fmt.Errorf("%w: module name %q longer than %d bytes", ErrBadRequest, name, MaxModuleName)
	}

	req := &ModuleRequest{Pid: pid}
	copy(req.Name[:], name)
	return req, nil
}

// ModuleName returns the request name with NUL padding stripped.
func (r *ModuleRequest) ModuleName() string {
	for i, b := range r.Name {
		if b == 0 {
			return string(r.Name[:i])
		}
	}
	return string(r.Name[:])
}

// ModuleStatus reports how a module request fared against the target.
type ModuleStatus uint8

const (
	ModuleSuccess ModuleStatus = iota
	ModuleUnknownProcess
	ModuleUnknownModule
)

func (s ModuleStatus) String() string {
	switch s {
	case ModuleSuccess:
		return "success"
	case ModuleUnknownProcess:
		return "unknown process"
	case ModuleUnknownModule:
		return "unknown module"
	}
	return fmt.Sprintf("module status %d", uint8(s))
}

// ModuleResponse carries the mapped span of the requested module.
type ModuleResponse struct {
	Status ModuleStatus
	Base   uint64
	Size   uint64
}
