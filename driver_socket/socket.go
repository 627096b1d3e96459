// Package driver_socket carries the read protocol over a Unix domain
// socket. Frames are a single kind byte followed by the fixed-size message
// body from the protocol package; a successful read response is followed by
// exactly the requested payload bytes. Nothing on the wire is
// variable-length, so both ends always know how much to read next.
package driver_socket

import (
	"errors"
)

const (
	kindReadRequest    byte = 0x01
	kindModuleRequest  byte = 0x02
	kindReadResponse   byte = 0x81
	kindModuleResponse byte = 0x82
	kindReject         byte = 0xff
)

// Reject reasons, one byte on the wire.
const (
	reasonBadRequest byte = 1
	reasonInternal   byte = 2
)

// ErrRejected means the service refused a request for an internal reason:
// the channel is healthy but this request could not be served.
var ErrRejected = errors.New("request rejected by service")
