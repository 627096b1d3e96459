package protocol

import (
	"encoding/binary"
	"fmt"
)

// Wire sizes of the fixed message bodies, in bytes. Fields are packed
// little-endian in declaration order with no padding.
const (
	ReadRequestWireSize  = 4 + 4 + 8*MaxDerefCount + 4
	ReadResponseWireSize = 1 + 4 + 8*MaxDerefCount

	ModuleRequestWireSize  = 4 + MaxModuleName
	ModuleResponseWireSize = 1 + 8 + 8
)

// ErrShortFrame marks a message body shorter than its fixed wire size.
var ErrShortFrame = fmt.Errorf("%w: short frame", ErrBadRequest)

// EncodeReadRequest appends the wire image of req to dst.
func EncodeReadRequest(dst []byte, req *ReadRequest) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, req.Pid)
	dst = binary.LittleEndian.AppendUint32(dst, req.OffsetCount)
	for _, off := range req.Offsets {
		dst = binary.LittleEndian.AppendUint64(dst, uint64(off))
	}
	return binary.LittleEndian.AppendUint32(dst, req.Size)
}

// DecodeReadRequest parses a wire image produced by EncodeReadRequest. It
// checks only the frame length; semantic bounds stay with Validate.
func DecodeReadRequest(b []byte) (*ReadRequest, error) {
	if len(b) < ReadRequestWireSize {
		return nil, fmt.Errorf("%w: read request %d of %d bytes", ErrShortFrame, len(b), ReadRequestWireSize)
	}

	req := &ReadRequest{
		Pid:         binary.LittleEndian.Uint32(b[0:]),
		OffsetCount: binary.LittleEndian.Uint32(b[4:]),
	}
	for i := range req.Offsets {
		req.Offsets[i] = int64(binary.LittleEndian.Uint64(b[8+8*i:]))
	}
	req.Size = binary.LittleEndian.Uint32(b[8+8*MaxDerefCount:])
	return req, nil
}

// EncodeReadResponse appends the wire image of resp to dst.
func EncodeReadResponse(dst []byte, resp *ReadResponse) []byte {
	dst = append(dst, byte(resp.Status))
	dst = binary.LittleEndian.AppendUint32(dst, resp.ResolvedCount)
	for _, off := range resp.ResolvedOffsets {
		dst = binary.LittleEndian.AppendUint64(dst, off)
	}
	return dst
}

// DecodeReadResponse parses a wire image produced by EncodeReadResponse.
func DecodeReadResponse(b []byte) (*ReadResponse, error) {
	if len(b) < ReadResponseWireSize {
		return nil, fmt.Errorf("%w: read response %d of %d bytes", ErrShortFrame, len(b), ReadResponseWireSize)
	}

	resp := &ReadResponse{
		Status:        ReadStatus(b[0]),
		ResolvedCount: binary.LittleEndian.Uint32(b[1:]),
	}
	for i := range resp.ResolvedOffsets {
		resp.ResolvedOffsets[i] = binary.LittleEndian.Uint64(b[5+8*i:])
	}
	return resp, nil
}

// EncodeModuleRequest appends the wire image of req to dst.
func EncodeModuleRequest(dst []byte, req *ModuleRequest) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, req.Pid)
	return append(dst, req.Name[:]...)
}

// DecodeModuleRequest parses a wire image produced by EncodeModuleRequest.
func DecodeModuleRequest(b []byte) (*ModuleRequest, error) {
	if len(b) < ModuleRequestWireSize {
		return nil, fmt.Errorf("%w: module request %d of %d bytes", ErrShortFrame, len(b), ModuleRequestWireSize)
	}

	req := &ModuleRequest{Pid: binary.LittleEndian.Uint32(b[0:])}
	copy(req.Name[:], b[4:4+MaxModuleName])
	return req, nil
}

// EncodeModuleResponse appends the wire image of resp to dst.
func EncodeModuleResponse(dst []byte, resp *ModuleResponse) []byte {
	dst = append(dst, byte(resp.Status))
	dst = binary.LittleEndian.AppendUint64(dst, resp.Base)
	return binary.LittleEndian.AppendUint64(dst, resp.Size)
}

// DecodeModuleResponse parses a wire image produced by EncodeModuleResponse.
func DecodeModuleResponse(b []byte) (*ModuleResponse, error) {
	if len(b) < ModuleResponseWireSize {
		return nil, fmt.Errorf("%w: module response %d of %d bytes", ErrShortFrame, len(b), ModuleResponseWireSize)
	}

	return &ModuleResponse{
		Status: ModuleStatus(b[0]),
		Base:   binary.LittleEndian.Uint64(b[1:]),
		Size:   binary.LittleEndian.Uint64(b[9:]),
	}, nil
}
