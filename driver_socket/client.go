package driver_socket

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"sync"

	"memtap/driver"
	"memtap/protocol"
)

// Client is the consumer end of a socket channel. It implements
// driver.Transport, so consumers cannot tell it from an in-process service.
// Calls are serialized on the single connection; it is safe for concurrent
// use.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
	rd   *bufio.Reader
	buf  []byte
}

var _ driver.Transport = (*Client)(nil)

// Dial connects to a server's Unix socket at path.
func Dial(path string) (*Client, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", path, err)
	}
	return &Client{
		conn: conn,
		rd:   bufio.NewReader(conn),
		buf:  make([]byte, 0, protocol.ReadRequestWireSize+1),
	}, nil
}

func (c *Client) Read(req *protocol.ReadRequest, dst []byte) (protocol.ReadResponse, error) {
	var resp protocol.ReadResponse

	// Checked locally so a bad request costs no round trip and fails with
	// the same error it would on the service side.
	if err := req.Validate(); err != nil {
		return resp, err
	}
	if uint32(len(dst)) < req.Size {
		return resp, fmt.Errorf("%w: destination holds %d of %d bytes", protocol.ErrBadRequest, len(dst), req.Size)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	out := append(c.buf[:0], kindReadRequest)
	out = protocol.EncodeReadRequest(out, req)
	if _, err := c.conn.Write(out); err != nil {
		return resp, fmt.Errorf("write read request: %w", err)
	}

	body, err := c.readFrame(kindReadResponse, protocol.ReadResponseWireSize)
	if err != nil {
		return resp, err
	}
	decoded, err := protocol.DecodeReadResponse(body)
	if err != nil {
		return resp, err
	}
	resp = *decoded

	if resp.Status == protocol.ReadSuccess && req.Size > 0 {
		if _, err := io.ReadFull(c.rd, dst[:req.Size]); err != nil {
			return resp, fmt.Errorf("read payload: %w", err)
		}
	}
	return resp, nil
}

func (c *Client) Module(req *protocol.ModuleRequest) (protocol.ModuleResponse, error) {
	var resp protocol.ModuleResponse

	c.mu.Lock()
	defer c.mu.Unlock()

	out := append(c.buf[:0], kindModuleRequest)
	out = protocol.EncodeModuleRequest(out, req)
	if _, err := c.conn.Write(out); err != nil {
		return resp, fmt.Errorf("write module request: %w", err)
	}

	body, err := c.readFrame(kindModuleResponse, protocol.ModuleResponseWireSize)
	if err != nil {
		return resp, err
	}
	decoded, err := protocol.DecodeModuleResponse(body)
	if err != nil {
		return resp, err
	}
	return *decoded, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// readFrame reads one response frame, expecting the given kind, and returns
// its body. Reject frames become errors.
func (c *Client) readFrame(wantKind byte, bodySize int) ([]byte, error) {
	kind, err := c.rd.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("read response kind: %w", err)
	}

	switch kind {
	case wantKind:
		body := make([]byte, bodySize)
		if _, err := io.ReadFull(c.rd, body); err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
		return body, nil

	case kindReject:
		reason, err := c.rd.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("read reject reason: %w", err)
		}
		if reason == reasonBadRequest {
			return nil, fmt.Errorf("service: %w", protocol.ErrBadRequest)
		}
		return nil, ErrRejected

	default:
		return nil, fmt.Errorf("unexpected frame kind %#x", kind)
	}
}
