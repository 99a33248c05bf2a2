// Package mapper implements the volume mapper core: the in-memory Map/Node
// object graph, the registry of live maps, the map-level operations (load,
// write, snapshot, destroy, clone) and the request dispatcher that drives
// them from incoming CLONE/MAPR/MAPW/SNAPSHOT/INFO/DELETE/OPEN/CLOSE requests.
package mapper

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/mapperd/pkg/blocker"
	"github.com/marmos91/mapperd/pkg/hash"
	"github.com/marmos91/mapperd/pkg/mapblob"
	"github.com/marmos91/mapperd/pkg/metrics/prometheus"
)

// OpenFlags controls GetMap and the open_load_map path.
type OpenFlags uint32

const (
	// FlagLoad allows GetMap to create and load the map on a registry miss.
	FlagLoad OpenFlags = 1 << iota
	// FlagExclusive requests an ACQUIRE lease from the map blocker.
	FlagExclusive
	// FlagForce tolerates an ACQUIRE failure: the map is then loaded without
	// EXCLUSIVE.
	FlagForce
)

var (
	errMapNotFound  = errors.New("mapper: map not found")
	errMapDestroyed = errors.New("mapper: map destroyed")
)

// Service holds everything a map-level operation needs: the live-map
// registry, the two blocker clients, metrics, and the copy-up concurrency
// throttle. One Service instance is shared by every request goroutine.
type Service struct {
	registry   *Registry
	data       *blocker.DataBlockerClient
	mapBlocker *blocker.MapBlockerClient
	metrics    *prometheus.MapperMetrics
	copyUpSem  chan struct{}
}

// NewService wires a Service from its blocker clients. copyUpConcurrency
// throttles how many node copy-ups, snapshot issuances and destroy deletes
// run at once; values <= 0 default to 1. The Service holds a single
// semaphore of that size, so the cap is shared by every request on this
// Service rather than applied separately to each request.
func NewService(data *blocker.DataBlockerClient, mapBlocker *blocker.MapBlockerClient, metrics *prometheus.MapperMetrics, copyUpConcurrency int) *Service {
	if copyUpConcurrency <= 0 {
		copyUpConcurrency = 1
	}
	return &Service{
		registry:   NewRegistry(),
		data:       data,
		mapBlocker: mapBlocker,
		metrics:    metrics,
		copyUpSem:  make(chan struct{}, copyUpConcurrency),
	}
}

// Registry exposes the service's live-map registry, e.g. for shutdown drain.
func (s *Service) Registry() *Registry { return s.registry }

// GetMap looks up volume in the registry. On a miss with FlagLoad set, it
// creates and loads a fresh Map. On a miss without FlagLoad, it fails. On a
// hit it waits out any NOT_READY state, fails if the map is DESTROYED, and
// otherwise bumps the refcount and returns it.
func (s *Service) GetMap(ctx context.Context, volume string, flags OpenFlags) (*Map, error) {
	for {
		m, ok := s.registry.Get(volume)
		if !ok {
			if flags&FlagLoad == 0 {
				return nil, newError(KindProtocol, "get-map", volume, errMapNotFound)
			}
			return s.createAndLoad(ctx, volume, flags)
		}

		m.lockUntilReady()
		destroyed := m.Has(MapDestroyed)
		m.mu.Unlock()

		if destroyed {
			return nil, newError(KindConflict, "get-map", volume, errMapDestroyed)
		}

		// The map may have been dropped and a new one created while we
		// slept; only a still-current registry entry is safe to hand back.
		if cur, ok := s.registry.Get(volume); !ok || cur != m {
			continue
		}

		m.addRef()
		return m, nil
	}
}

func (s *Service) createAndLoad(ctx context.Context, volume string, flags OpenFlags) (*Map, error) {
	version := mapblob.VersionPithos
	if mapblob.IsArchipelagoName(volume) {
		version = mapblob.VersionArchipelago
	}

	m := newMap(volume, version)
	m.mu.Lock()
	m.Set(MapLoading)
	m.mu.Unlock()

	if err := s.registry.Insert(m); err != nil {
		return nil, newError(KindConflict, "get-map", volume, err)
	}
	s.metrics.SetRegistrySize(s.registry.Len())

	// newMap left ref at 1: that's the map's own init ref, dropped once by
	// dropCache. Add a second ref for this call's caller, symmetric with the
	// registry-hit path's addRef below — every GetMap caller owns exactly
	// one ref it must release, on top of the map's lifecycle-owned init ref.
	m.addRef()

	if err := s.openLoadMap(ctx, m, flags); err != nil {
		// openLoadMap's own failure paths already dropped the map's cache
		// (and with it the init ref); release the caller ref we just added
		// since we're returning an error, not the map, to the caller.
		m.release()
		return nil, err
	}
	return m, nil
}

// openLoadMap implements spec.md's open_load_map: optionally ACQUIRE an
// exclusive lease, READ the map blob, decode it and populate objects. Any
// failure drops the map's cache before propagating.
func (s *Service) openLoadMap(ctx context.Context, m *Map, flags OpenFlags) error {
	acquired := false
	if flags&FlagExclusive != 0 {
		force := flags&FlagForce != 0
		if err := s.mapBlocker.Acquire(ctx, m.Volume, force); err != nil {
			if !force {
				s.dropCache(ctx, m)
				return newError(KindBlockerFailed, "open-load-map", m.Volume, err)
			}
		} else {
			acquired = true
			m.mu.Lock()
			m.Set(MapExclusive)
			m.mu.Unlock()
		}
	}

	data, err := s.mapBlocker.ReadBlob(ctx, m.Volume)
	if err != nil {
		if acquired {
			_ = s.mapBlocker.Release(ctx, m.Volume)
		}
		s.dropCache(ctx, m)
		return newError(KindBlockerFailed, "open-load-map", m.Volume, err)
	}

	blob, err := mapblob.Decode(m.Volume, data)
	if err != nil {
		if acquired {
			_ = s.mapBlocker.Release(ctx, m.Volume)
		}
		s.dropCache(ctx, m)
		return newError(KindProtocol, "open-load-map", m.Volume, err)
	}

	s.populateNodes(m, blob)

	m.mu.Lock()
	m.Size = blob.Size
	m.Version = blob.Version
	m.Clear(MapLoading)
	m.wake()
	m.mu.Unlock()

	return nil
}

// populateNodes installs one Node per decoded record. For a v1 (archipelago)
// blob, EXIST and the object name follow the record verbatim — an EXIST
// record owns a writable archip_-prefixed object. For a v0 (pithos) blob
// every record names a shared read-only object regardless of its wire
// exist-flag (which only marks "slot in use", not ownership), so EXIST is
// always left clear and the bare hex digest is used as the object name.
func (s *Service) populateNodes(m *Map, blob *mapblob.Blob) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, rec := range blob.Records {
		idx := uint32(i)
		var object string
		var exist bool
		if blob.Version == mapblob.VersionArchipelago {
			object = rec.ObjectName()
			exist = rec.Exist
		} else {
			object = hash.Hexlify(rec.Digest)
			exist = false
		}

		n := newNode(idx, object)
		if exist {
			n.Set(NodeExist)
		}
		n.owner = m
		n.addRef() // table's own ref, on top of newNode's init ref; dropCache releases both.
		m.objects[idx] = n
	}
}

// closeMap issues RELEASE and clears EXCLUSIVE. A RELEASE failure is only
// fatal if the map isn't also DELETED — a deleted map is being torn down
// anyway, so a stale lease release failing is not actionable.
func (s *Service) closeMap(ctx context.Context, m *Map) error {
	m.mu.Lock()
	m.Set(MapClosing)
	exclusive := m.Has(MapExclusive)
	deleted := m.Has(MapDeleted)
	m.mu.Unlock()

	var relErr error
	if exclusive {
		relErr = s.mapBlocker.Release(ctx, m.Volume)
	}

	m.mu.Lock()
	m.Clear(MapExclusive)
	m.Clear(MapClosing)
	m.wake()
	m.mu.Unlock()

	if relErr != nil && !deleted {
		return newError(KindBlockerFailed, "close-map", m.Volume, relErr)
	}
	return nil
}

// dropCache implements do-dropcache: wait out every node's NOT_READY state,
// mark it DESTROYED and drop its two refs (the node's own init ref plus the
// map's), then clear the node table, remove the map from the registry and
// mark it DESTROYED, dropping the map's own init ref last.
func (s *Service) dropCache(ctx context.Context, m *Map) {
	m.mu.Lock()
	m.Set(MapDroppingCache)
	nodes := make([]*Node, 0, len(m.objects))
	for _, n := range m.objects {
		nodes = append(nodes, n)
	}
	m.mu.Unlock()

	for _, n := range nodes {
		n.mu.Lock()
		n.waiters++
		for n.HasAny(NodeNotReady) {
			n.cond.Wait()
		}
		n.waiters--
		n.Set(NodeDestroyed)
		n.owner = nil
		n.mu.Unlock()

		n.release() // local ref held by the node table
		n.release() // init ref from newNode
	}

	m.mu.Lock()
	m.objects = make(map[uint32]*Node)
	m.Clear(MapDroppingCache)
	m.Set(MapDestroyed)
	m.wake()
	m.mu.Unlock()

	s.registry.Remove(m.Volume)
	s.metrics.SetRegistrySize(s.registry.Len())
	m.release() // init ref from newMap
}

// writeMap serializes m's full map blob (header plus every record up to
// calc_map_obj(size)) and persists it via the map blocker.
func (s *Service) writeMap(ctx context.Context, m *Map) error {
	m.mu.Lock()
	m.Set(MapWriting)
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.Clear(MapWriting)
		m.wake()
		m.mu.Unlock()
	}()

	blob, err := s.serializeBlob(m)
	if err != nil {
		return newError(KindProtocol, "write-map", m.Volume, err)
	}

	data, err := mapblob.Encode(blob)
	if err != nil {
		return newError(KindProtocol, "write-map", m.Volume, err)
	}

	if err := s.mapBlocker.WriteBlob(ctx, m.Volume, data); err != nil {
		return newError(KindBlockerFailed, "write-map", m.Volume, err)
	}
	return nil
}

func (s *Service) serializeBlob(m *Map) (*mapblob.Blob, error) {
	nodes := m.snapshotNodeOrder()
	records := make([]mapblob.Record, len(nodes))
	for i, n := range nodes {
		n.mu.Lock()
		exist := n.Has(NodeExist)
		n.mu.Unlock()

		d, err := n.Digest()
		if err != nil {
			return nil, fmt.Errorf("write-map: node %d: %w", n.Index, err)
		}
		records[i] = mapblob.Record{Exist: exist, Digest: d}
	}

	m.mu.Lock()
	version, size := m.Version, m.Size
	m.mu.Unlock()

	return &mapblob.Blob{Version: version, Size: size, Records: records}, nil
}

// snapshotName computes the content address of m's current node records:
// hex(merkle(v0_record[i] for i in 0..n)) — the raw digests, independent of
// each node's EXIST flag, so a snapshot's name only depends on content.
func (s *Service) snapshotName(m *Map) (string, error) {
	nodes := m.snapshotNodeOrder()
	digests := make([]hash.Digest, len(nodes))
	for i, n := range nodes {
		d, err := n.Digest()
		if err != nil {
			return "", fmt.Errorf("snapshot-name: node %d: %w", n.Index, err)
		}
		digests[i] = d
	}
	return hash.Hexlify(hash.Merkle(digests)), nil
}
