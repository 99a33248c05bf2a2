// Package blocker provides typed request builders and a Transport
// abstraction standing in for the out-of-scope shared-memory request ring
// that connects the mapper to the data and map blocker processes.
//
// A real deployment wires Transport to that ring; this package also ships
// reference implementations (see blocker/devtransport, blocker/devstore)
// so the mapper is runnable end to end without the external services.
package blocker

import (
	"context"
	"errors"
)

// Status is the outcome of a submitted request, mirroring xseg's binary
// SERVED/FAILED outcome.
type Status int

const (
	StatusServed Status = iota
	StatusFailed
)

// Request is one blocker request: a target object/volume name, an opcode,
// an optional offset/size for data-bearing ops, and an optional payload
// (e.g. the source object name for COPY).
type Request struct {
	Op      Op
	Target  string
	Offset  uint64
	Size    uint64
	Flags   Flag
	Payload []byte
}

// Reply is what a Submit call returns on completion.
type Reply struct {
	Status Status
	// Data carries READ payloads and xseg_reply_info-style encoded replies.
	Data []byte
	// Target carries the fresh name minted by SNAPSHOT.
	Target string
	Err    error
}

// ErrTransport is wrapped by Transport implementations on allocation or
// submission failure — failures at the ring itself, distinct from a
// served-but-FAILED reply from the far end.
var ErrTransport = errors.New("blocker: transport failure")

// Transport submits one request to a blocker port and blocks until the
// reply arrives. Implementations must be safe for concurrent use: the
// mapper calls Submit from one goroutine per in-flight handler.
type Transport interface {
	Submit(ctx context.Context, port int, req *Request) (*Reply, error)
}
