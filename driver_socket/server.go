package driver_socket

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"

	"memtap/driver"
	"memtap/protocol"
)

// Server accepts protocol connections and feeds them to a driver service.
// Connections are independent; each gets its own goroutine and buffers.
type Server struct {
	svc *driver.Service
	log *logger.Logger

	mu    sync.Mutex
	ln    net.Listener
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

func NewServer(svc *driver.Service) *Server {
	return &Server{
		svc:   svc,
		log:   logger.NewLogger(coloransi.Color(coloransi.ColorTeal, coloransi.ColorOrange, "driver-socket")),
		conns: make(map[net.Conn]struct{}),
	}
}

// ListenAndServe binds a Unix socket at path and serves until Close. A stale
// socket file from a previous run is removed first.
func (s *Server) ListenAndServe(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket %s: %w", path, err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("listen %s: %w", path, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until the listener is closed.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.log.Infoln("serving on", ln.Addr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// Close stops accepting and tears down every open connection.
func (s *Server) Close() error {
	s.mu.Lock()
	ln := s.ln
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	if ln != nil {
		return ln.Close()
	}
	return nil
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	rd := bufio.NewReader(conn)
	body := make([]byte, protocol.ReadRequestWireSize)
	scratch := make([]byte, 0, protocol.ReadResponseWireSize+1)

	for {
		kind, err := rd.ReadByte()
		if err != nil {
			return
		}

		switch kind {
		case kindReadRequest:
			err = s.serveRead(conn, rd, body, scratch)
		case kindModuleRequest:
			err = s.serveModule(conn, rd, body, scratch)
		default:
			// The stream cannot be resynced after an unknown kind.
			s.log.Warn("unknown frame kind ", kind, " from ", conn.RemoteAddr())
			s.reject(conn, reasonBadRequest)
			return
		}
		if err != nil {
			return
		}
	}
}

func (s *Server) serveRead(conn net.Conn, rd io.Reader, body, scratch []byte) error {
	if _, err := io.ReadFull(rd, body[:protocol.ReadRequestWireSize]); err != nil {
		return err
	}
	req, err := protocol.DecodeReadRequest(body)
	if err != nil {
		return s.reject(conn, reasonBadRequest)
	}

	// Bounds come before the payload allocation so a hostile size cannot
	// balloon the server. The frame stays intact either way, so a rejected
	// request does not poison the connection.
	if err := req.Validate(); err != nil {
		s.log.Debugln("rejecting read:", err)
		return s.reject(conn, reasonBadRequest)
	}

	dst := make([]byte, req.Size)
	resp, err := s.svc.Read(req, dst)
	if err != nil {
		if errors.Is(err, protocol.ErrBadRequest) {
			return s.reject(conn, reasonBadRequest)
		}
		s.log.Warn("read pid ", req.Pid, ": ", err)
		return s.reject(conn, reasonInternal)
	}

	out := append(scratch[:0], kindReadResponse)
	out = protocol.EncodeReadResponse(out, &resp)
	if _, err := conn.Write(out); err != nil {
		return err
	}
	if resp.Status == protocol.ReadSuccess && req.Size > 0 {
		if _, err := conn.Write(dst); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) serveModule(conn net.Conn, rd io.Reader, body, scratch []byte) error {
	if _, err := io.ReadFull(rd, body[:protocol.ModuleRequestWireSize]); err != nil {
		return err
	}
	req, err := protocol.DecodeModuleRequest(body)
	if err != nil {
		return s.reject(conn, reasonBadRequest)
	}

	resp, err := s.svc.Module(req)
	if err != nil {
		if errors.Is(err, protocol.ErrBadRequest) {
			return s.reject(conn, reasonBadRequest)
		}
		s.log.Warn("module pid ", req.Pid, ": ", err)
		return s.reject(conn, reasonInternal)
	}

	out := append(scratch[:0], kindModuleResponse)
	out = protocol.EncodeModuleResponse(out, &resp)
	_, err = conn.Write(out)
	return err
}

func (s *Server) reject(conn net.Conn, reason byte) error {
	_, err := conn.Write([]byte{kindReject, reason})
	return err
}
