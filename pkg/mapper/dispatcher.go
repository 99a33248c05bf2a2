package mapper

import (
	"context"
	"fmt"
	"sync"

	"github.com/marmos91/mapperd/internal/logger"
	"github.com/marmos91/mapperd/pkg/mapblob"
)

// RequestKind identifies one of the eight incoming operation types.
type RequestKind int

const (
	OpClone RequestKind = iota
	OpMAPR
	OpMAPW
	OpSnapshot
	OpInfo
	OpDelete
	OpOpen
	OpClose
)

func (k RequestKind) String() string {
	switch k {
	case OpClone:
		return "CLONE"
	case OpMAPR:
		return "MAPR"
	case OpMAPW:
		return "MAPW"
	case OpSnapshot:
		return "SNAPSHOT"
	case OpInfo:
		return "INFO"
	case OpDelete:
		return "DELETE"
	case OpOpen:
		return "OPEN"
	case OpClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// Request is one incoming operation bound for the dispatcher.
type Request struct {
	Kind RequestKind

	Volume string // target volume for every op; parent volume for CLONE
	Offset uint64 // MAPR/MAPW
	Size   uint64 // MAPR/MAPW: byte length; CLONE: requested child size (SizeUnknown inherits parent)

	ChildVolume string // CLONE only
}

// Reply carries whichever of a request's possible results applies.
type Reply struct {
	Segments []Segment // MAPR/MAPW
	Name     string    // SNAPSHOT: new volume name; CLONE: child volume name
	Info     Info      // INFO
}

// Result is what arrives on a Submit channel once a request's goroutine
// finishes.
type Result struct {
	Reply *Reply
	Err   error
}

// Dispatcher routes incoming requests to Service methods, one goroutine per
// request, per spec.md §4.6 — realized with goroutines instead of literal
// cooperative tasks (§5). It tracks in-flight requests with a WaitGroup so
// Shutdown can wait for them to drain before releasing every exclusively
// held map, mirroring custom_peer_finalize.
type Dispatcher struct {
	service *Service
	wg      sync.WaitGroup
}

// NewDispatcher wires a Dispatcher around service.
func NewDispatcher(service *Service) *Dispatcher {
	return &Dispatcher{service: service}
}

// Submit spawns a goroutine to handle req and returns a channel that
// receives exactly one Result once it completes.
func (d *Dispatcher) Submit(ctx context.Context, req *Request) <-chan Result {
	resultCh := make(chan Result, 1)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		reply, err := d.handle(ctx, req)
		resultCh <- Result{Reply: reply, Err: err}
	}()

	return resultCh
}

// Dispatch submits req and blocks for its result — a convenience wrapper
// for callers that don't need Submit's async channel.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) (*Reply, error) {
	res := <-d.Submit(ctx, req)
	return res.Reply, res.Err
}

// validateVolumeName enforces the volume-too-long protocol error, mirroring
// the original's namelen+MAPPER_PREFIX_LEN>MAX_VOLUME_LEN check
// (mt-mapperd.c:1658) against every incoming request's volume name(s).
func validateVolumeName(op, name string) error {
	if len(name) > mapblob.MaxVolumeLen {
		return newError(KindProtocol, op, name, fmt.Errorf("volume name too long: %d bytes (max %d)", len(name), mapblob.MaxVolumeLen))
	}
	return nil
}

func (d *Dispatcher) handle(ctx context.Context, req *Request) (*Reply, error) {
	if err := validateVolumeName(req.Kind.String(), req.Volume); err != nil {
		return nil, err
	}
	if req.Kind == OpClone {
		if err := validateVolumeName(req.Kind.String(), req.ChildVolume); err != nil {
			return nil, err
		}
	}

	switch req.Kind {
	case OpMAPR:
		segs, err := d.service.MAPR(ctx, req.Volume, req.Offset, req.Size)
		if err != nil {
			return nil, err
		}
		return &Reply{Segments: segs}, nil

	case OpMAPW:
		segs, err := d.service.MAPW(ctx, req.Volume, req.Offset, req.Size)
		if err != nil {
			return nil, err
		}
		return &Reply{Segments: segs}, nil

	case OpSnapshot:
		name, err := d.service.DoSnapshot(ctx, req.Volume)
		if err != nil {
			return nil, err
		}
		return &Reply{Name: name}, nil

	case OpDelete:
		if err := d.service.DoDestroy(ctx, req.Volume); err != nil {
			return nil, err
		}
		return &Reply{}, nil

	case OpClone:
		if err := d.service.DoClone(ctx, req.Volume, req.ChildVolume, req.Size); err != nil {
			return nil, err
		}
		return &Reply{Name: req.ChildVolume}, nil

	case OpOpen:
		if err := d.service.DoOpen(ctx, req.Volume); err != nil {
			return nil, err
		}
		return &Reply{}, nil

	case OpClose:
		if err := d.service.DoClose(ctx, req.Volume); err != nil {
			return nil, err
		}
		return &Reply{}, nil

	case OpInfo:
		info, err := d.service.DoInfo(ctx, req.Volume)
		if err != nil {
			return nil, err
		}
		return &Reply{Info: info}, nil

	default:
		logger.WarnCtx(ctx, "dispatcher: unknown opcode, ignoring", "op", req.Kind)
		return nil, newError(KindProtocol, "dispatch", req.Volume, fmt.Errorf("unknown opcode %v", req.Kind))
	}
}

// Shutdown waits for every in-flight request to finish, then releases every
// exclusively held map, mirroring custom_peer_finalize's registry sweep.
func (d *Dispatcher) Shutdown(ctx context.Context) {
	d.wg.Wait()

	for _, volume := range d.service.registry.Volumes() {
		m, ok := d.service.registry.Get(volume)
		if !ok {
			continue
		}

		m.mu.Lock()
		exclusive := m.Has(MapExclusive)
		m.mu.Unlock()
		if !exclusive {
			continue
		}

		if err := d.service.mapBlocker.Release(ctx, volume); err != nil {
			logger.WarnCtx(ctx, "shutdown: release failed", "volume", volume, "err", err)
		}
	}
}
