// Package devtransport provides an in-memory blocker.Transport that serves
// requests synchronously against a pluggable devstore.BlobStore, standing
// in for the out-of-scope shared-memory request ring so the mapper is
// runnable and testable without the real blocker processes.
package devtransport

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/mapperd/pkg/blocker"
	"github.com/marmos91/mapperd/pkg/blocker/devstore"
	"github.com/marmos91/mapperd/pkg/hash"
)

// Transport serves one blocker port backed by a BlobStore. Two instances —
// one per port — stand in for the data and map blockers.
//
// ACQUIRE/RELEASE track a single exclusive holder per target name; this is
// enough to model the map blocker's lease semantics without a real
// multi-process arbiter.
type Transport struct {
	store devstore.BlobStore

	mu     sync.Mutex
	leases map[string]struct{} // target -> held
}

// New creates a Transport serving store.
func New(store devstore.BlobStore) *Transport {
	return &Transport{store: store, leases: make(map[string]struct{})}
}

// Submit serves req synchronously. The port argument is accepted for
// interface compatibility with a real multi-port transport but is not used
// to route — one Transport instance already corresponds to one port.
func (t *Transport) Submit(ctx context.Context, port int, req *blocker.Request) (*blocker.Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", blocker.ErrTransport, err)
	}

	switch req.Op {
	case blocker.OpRead:
		return t.read(ctx, req)
	case blocker.OpWrite:
		return t.write(ctx, req)
	case blocker.OpCopy:
		return t.copy(ctx, req)
	case blocker.OpSnapshot:
		return t.snapshot(ctx, req)
	case blocker.OpDelete:
		return t.delete(ctx, req)
	case blocker.OpAcquire:
		return t.acquire(req)
	case blocker.OpRelease:
		return t.release(req)
	default:
		return nil, fmt.Errorf("%w: unknown opcode %v", blocker.ErrTransport, req.Op)
	}
}

func (t *Transport) read(ctx context.Context, req *blocker.Request) (*blocker.Reply, error) {
	data, err := t.store.Get(ctx, req.Target)
	if err != nil {
		return &blocker.Reply{Status: blocker.StatusFailed, Err: err}, nil
	}

	if req.Size > 0 {
		end := req.Offset + req.Size
		if end > uint64(len(data)) {
			end = uint64(len(data))
		}
		if req.Offset > uint64(len(data)) {
			data = nil
		} else {
			data = data[req.Offset:end]
		}
	}
	return &blocker.Reply{Status: blocker.StatusServed, Data: data}, nil
}

// write supports both "overwrite the whole blob" (offset==0, no existing
// data expected, e.g. map WRITE of a freshly serialized blob) and
// "patch one record in place" (non-zero offset into an existing blob, used
// for single-node map-record updates).
func (t *Transport) write(ctx context.Context, req *blocker.Request) (*blocker.Reply, error) {
	existing, err := t.store.Get(ctx, req.Target)
	if err != nil && err != devstore.ErrNotFound {
		return &blocker.Reply{Status: blocker.StatusFailed, Err: err}, nil
	}

	needed := req.Offset + uint64(len(req.Payload))
	if uint64(len(existing)) < needed {
		grown := make([]byte, needed)
		copy(grown, existing)
		existing = grown
	}
	copy(existing[req.Offset:], req.Payload)

	if err := t.store.Put(ctx, req.Target, existing); err != nil {
		return &blocker.Reply{Status: blocker.StatusFailed, Err: err}, nil
	}
	return &blocker.Reply{Status: blocker.StatusServed}, nil
}

func (t *Transport) copy(ctx context.Context, req *blocker.Request) (*blocker.Reply, error) {
	src := string(req.Payload)
	data, err := t.store.Get(ctx, src)
	if err != nil {
		return &blocker.Reply{Status: blocker.StatusFailed, Err: err}, nil
	}
	if err := t.store.Put(ctx, req.Target, data); err != nil {
		return &blocker.Reply{Status: blocker.StatusFailed, Err: err}, nil
	}
	return &blocker.Reply{Status: blocker.StatusServed}, nil
}

// snapshot copies req.Target's current bytes under a freshly minted name:
// the hex SHA-256 of the target name and the current time. Unlike copy-up's deterministic name, a snapshot name only needs to
// be collision-free across calls, so it's salted with the wall-clock.
func (t *Transport) snapshot(ctx context.Context, req *blocker.Request) (*blocker.Reply, error) {
	data, err := t.store.Get(ctx, req.Target)
	if err != nil {
		return &blocker.Reply{Status: blocker.StatusFailed, Err: err}, nil
	}

	salted := sha256.Sum256(append(append([]byte(req.Target), '_'), []byte(time.Now().String())...))
	name := hash.Hexlify(hash.Digest(salted))

	if err := t.store.Put(ctx, name, data); err != nil {
		return &blocker.Reply{Status: blocker.StatusFailed, Err: err}, nil
	}
	return &blocker.Reply{Status: blocker.StatusServed, Target: name}, nil
}

func (t *Transport) delete(ctx context.Context, req *blocker.Request) (*blocker.Reply, error) {
	if err := t.store.Delete(ctx, req.Target); err != nil {
		return &blocker.Reply{Status: blocker.StatusFailed, Err: err}, nil
	}
	return &blocker.Reply{Status: blocker.StatusServed}, nil
}

func (t *Transport) acquire(req *blocker.Request) (*blocker.Reply, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, held := t.leases[req.Target]; held && req.Flags&blocker.FlagForce == 0 {
		return &blocker.Reply{Status: blocker.StatusFailed, Err: fmt.Errorf("devtransport: %s already held", req.Target)}, nil
	}
	t.leases[req.Target] = struct{}{}
	return &blocker.Reply{Status: blocker.StatusServed}, nil
}

func (t *Transport) release(req *blocker.Request) (*blocker.Reply, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.leases, req.Target)
	return &blocker.Reply{Status: blocker.StatusServed}, nil
}

var _ blocker.Transport = (*Transport)(nil)
