package driver

import (
	"memtap/protocol"
)

// Transport is the consumer's handle on the read service, whatever channel
// it sits behind. The in-process form wraps a Service directly; the socket
// client in driver_socket carries the same calls across a connection.
type Transport interface {
	// Read executes a chained read. dst must hold at least req.Size bytes.
	Read(req *protocol.ReadRequest, dst []byte) (protocol.ReadResponse, error)

	// Module locates a named module inside the target.
	Module(req *protocol.ModuleRequest) (protocol.ModuleResponse, error)

	Close() error
}

// Direct returns a Transport that invokes svc in-process, for consumers
// living in the same binary as the service.
func Direct(svc *Service) Transport {
	return directTransport{svc: svc}
}

type directTransport struct {
	svc *Service
}

func (d directTransport) Read(req *protocol.ReadRequest, dst []byte) (protocol.ReadResponse, error) {
	return d.svc.Read(req, dst)
}

func (d directTransport) Module(req *protocol.ModuleRequest) (protocol.ModuleResponse, error) {
	return d.svc.Module(req)
}

func (d directTransport) Close() error {
	return nil
}
