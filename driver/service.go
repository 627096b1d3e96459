// Package driver implements the privileged side of the read protocol: a
// service that resolves offset chains inside target processes and copies
// bytes out, degrading target-side faults into status responses instead of
// failures.
package driver

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"

	"memtap/protocol"
	"memtap/target"
)

// Service executes protocol requests against a host. It holds no per-request
// state, so a single Service handles any number of concurrent callers; each
// request attaches to its target for the duration of that request only.
type Service struct {
	host target.Host
	log  *logger.Logger
}

func NewService(host target.Host) *Service {
	return &Service{
		host: host,
		log:  logger.NewLogger(coloransi.Color(coloransi.ColorTeal, coloransi.ColorOrange, "driver")),
	}
}

// Read walks the request's offset chain inside the target and copies
// req.Size bytes from the final address into dst.
//
// The error return covers caller mistakes only: malformed requests and
// destination buffers smaller than req.Size. Everything the target can do
// wrong, from dying before attach to a pointer going stale mid-chain, is
// reported through the response status. An InvalidAddress response carries
// the pointer values resolved before the chain broke; its ResolvedCount is
// always strictly less than req.OffsetCount.
func (s *Service) Read(req *protocol.ReadRequest, dst []byte) (protocol.ReadResponse, error) {
	var resp protocol.ReadResponse

	space, err := s.host.Attach(target.PID(req.Pid))
	if err != nil {
		if errors.Is(err, target.ErrUnknownProcess) {
			resp.Status = protocol.ReadUnknownProcess
			return resp, nil
		}
		return resp, fmt.Errorf("attach pid %d: %w", req.Pid, err)
	}
	defer space.Close()

	// Bounds are checked before any target memory is touched, so a bogus
	// offset count can never leak a partial trace.
	if err := req.Validate(); err != nil {
		return resp, err
	}
	if uint32(len(dst)) < req.Size {
		return resp, fmt.Errorf("%w: destination holds %d of %d bytes", protocol.ErrBadRequest, len(dst), req.Size)
	}

	// Offsets[0] is the absolute base; every later offset first dereferences
	// a pointer at the current address, then displaces the result.
	addr := uint64(req.Offsets[0])
	hops := int(req.OffsetCount) - 1

	var ptrBuf [8]byte
	for i := 0; i < hops; i++ {
		if !space.Probe(addr, 8) {
			return s.invalidAddress(resp, req, addr), nil
		}
		if err := space.ReadAt(ptrBuf[:], addr); err != nil {
			return s.invalidAddress(resp, req, addr), nil
		}

		ptr := binary.LittleEndian.Uint64(ptrBuf[:])
		resp.ResolvedOffsets[resp.ResolvedCount] = ptr
		resp.ResolvedCount++

		// Signed displacement; wrapping on overflow matches the target's
		// own pointer arithmetic.
		addr = ptr + uint64(req.Offsets[i+1])
	}

	if req.Size > 0 {
		if !space.Probe(addr, uint64(req.Size)) {
			return s.invalidAddress(resp, req, addr), nil
		}
		if err := space.ReadAt(dst[:req.Size], addr); err != nil {
			return s.invalidAddress(resp, req, addr), nil
		}
	}

	resp.Status = protocol.ReadSuccess
	return resp, nil
}

func (s *Service) invalidAddress(resp protocol.ReadResponse, req *protocol.ReadRequest, addr uint64) protocol.ReadResponse {
	resp.Status = protocol.ReadInvalidAddress
	s.log.Debugln("read pid", req.Pid, "broke at", fmt.Sprintf("%#x", addr),
		"after", resp.ResolvedCount, "of", req.OffsetCount, "offsets")
	return resp
}

// Module reports where the named module is mapped inside the target.
func (s *Service) Module(req *protocol.ModuleRequest) (protocol.ModuleResponse, error) {
	var resp protocol.ModuleResponse

	name := req.ModuleName()
	if name == "" {
		return resp, fmt.Errorf("%w: empty module name", protocol.ErrBadRequest)
	}

	space, err := s.host.Attach(target.PID(req.Pid))
	if err != nil {
		if errors.Is(err, target.ErrUnknownProcess) {
			resp.Status = protocol.ModuleUnknownProcess
			return resp, nil
		}
		return resp, fmt.Errorf("attach pid %d: %w", req.Pid, err)
	}
	defer space.Close()

	region, err := space.Module(name)
	if err != nil {
		if errors.Is(err, target.ErrUnknownModule) {
			resp.Status = protocol.ModuleUnknownModule
			return resp, nil
		}
		return resp, fmt.Errorf("module %q pid %d: %w", name, req.Pid, err)
	}

	resp.Status = protocol.ModuleSuccess
	resp.Base = region.Base
	resp.Size = region.Size
	return resp, nil
}
