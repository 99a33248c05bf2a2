package mapper

import (
	"context"
	"errors"
	"sync"

	"github.com/marmos91/mapperd/internal/logger"
	"github.com/marmos91/mapperd/pkg/hash"
	"github.com/marmos91/mapperd/pkg/mapblob"
)

var errNotExclusive = errors.New("mapper: map not exclusively held")

// DoSnapshot implements do-snapshot: every EXIST node is handed to the data
// blocker's SNAPSHOT op (throttled), its record rewritten to the returned
// name with EXIST cleared, and its old exclusively-owned object deleted
// (best-effort). The resulting content address is the Merkle root of the
// map's final records, written out as a fresh read-only (v0) map blob.
func (s *Service) DoSnapshot(ctx context.Context, volume string) (string, error) {
	m, err := s.GetMap(ctx, volume, FlagLoad|FlagExclusive)
	if err != nil {
		return "", err
	}
	defer m.release()

	m.mu.Lock()
	if !m.Has(MapExclusive) {
		m.mu.Unlock()
		return "", newError(KindConflict, "snapshot", volume, errNotExclusive)
	}
	m.Set(MapSnapshotting)
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.Clear(MapSnapshotting)
		m.wake()
		m.mu.Unlock()
	}()

	var toSnapshot []*Node
	for _, n := range m.snapshotNodeOrder() {
		n.mu.Lock()
		exist := n.Has(NodeExist)
		n.mu.Unlock()
		if exist {
			toSnapshot = append(toSnapshot, n)
		}
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for _, n := range toSnapshot {
		n := n
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.copyUpSem <- struct{}{}
			defer func() { <-s.copyUpSem }()
			if err := s.snapshotNode(ctx, m, n); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if firstErr != nil {
		return "", firstErr
	}

	name, err := s.snapshotName(m)
	if err != nil {
		return "", newError(KindProtocol, "snapshot", volume, err)
	}

	if err := s.writeSnapshotBlob(ctx, m, name); err != nil {
		return "", err
	}
	return name, nil
}

// snapshotNode mints a fresh shared object name for n's current content and
// rewrites its record to reference it, dropping EXIST (the node no longer
// owns an exclusive copy — it points at the new read-only snapshot object).
func (s *Service) snapshotNode(ctx context.Context, m *Map, n *Node) error {
	n.mu.Lock()
	old := n.Object
	n.Set(NodeSnapshotting)
	n.mu.Unlock()

	newName, err := s.data.Snapshot(ctx, old)
	if err != nil {
		n.mu.Lock()
		n.Clear(NodeSnapshotting)
		n.wake()
		n.mu.Unlock()
		return newError(KindBlockerFailed, "snapshot", m.Volume, err)
	}

	n.mu.Lock()
	n.Clear(NodeSnapshotting)
	n.Set(NodeWriting)
	n.mu.Unlock()

	if err := s.writeNodeRecord(ctx, m, n, newName, false); err != nil {
		n.mu.Lock()
		n.Clear(NodeWriting)
		n.wake()
		n.mu.Unlock()
		return err
	}

	n.mu.Lock()
	n.Clear(NodeWriting)
	n.Object = newName
	n.Clear(NodeExist)
	n.wake()
	n.mu.Unlock()

	// Benign: the snapshot is already captured, so a failed cleanup of the
	// old exclusively-owned object is a warning, not a request failure.
	if err := s.data.Delete(ctx, old); err != nil {
		logger.WarnCtx(ctx, "snapshot: failed to delete superseded object",
			"volume", m.Volume, "object", old, "err", err)
	}
	return nil
}

func (s *Service) writeSnapshotBlob(ctx context.Context, m *Map, name string) error {
	nodes := m.snapshotNodeOrder()
	records := make([]mapblob.Record, len(nodes))
	for i, n := range nodes {
		d, err := n.Digest()
		if err != nil {
			return newError(KindProtocol, "snapshot", m.Volume, err)
		}
		records[i] = mapblob.Record{Exist: false, Digest: d}
	}

	m.mu.Lock()
	size := m.Size
	m.mu.Unlock()

	blob := &mapblob.Blob{Version: mapblob.VersionPithos, Size: size, Records: records}
	data, err := mapblob.Encode(blob)
	if err != nil {
		return newError(KindProtocol, "snapshot", m.Volume, err)
	}
	if err := s.mapBlocker.WriteBlob(ctx, name, data); err != nil {
		return newError(KindBlockerFailed, "snapshot", m.Volume, err)
	}
	return nil
}

// DoDestroy implements do-destroy: delete the map blob, delete every
// EXIST node's backing object (throttled), mark every node DESTROYED, then
// mark the map DELETED and drop cache via do_close (RELEASE + dropCache).
func (s *Service) DoDestroy(ctx context.Context, volume string) error {
	m, err := s.GetMap(ctx, volume, FlagLoad|FlagExclusive)
	if err != nil {
		return err
	}
	defer m.release()

	m.mu.Lock()
	if !m.Has(MapExclusive) {
		m.mu.Unlock()
		return newError(KindConflict, "destroy", volume, errNotExclusive)
	}
	m.Set(MapDeleting)
	m.mu.Unlock()

	if err := s.mapBlocker.DeleteBlob(ctx, volume); err != nil {
		m.mu.Lock()
		m.Clear(MapDeleting)
		m.wake()
		m.mu.Unlock()
		return newError(KindBlockerFailed, "destroy", volume, err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for _, n := range m.snapshotNodeOrder() {
		n.mu.Lock()
		exist := n.Has(NodeExist)
		n.mu.Unlock()

		if !exist {
			n.mu.Lock()
			n.Set(NodeDestroyed)
			n.wake()
			n.mu.Unlock()
			continue
		}

		n := n
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.copyUpSem <- struct{}{}
			defer func() { <-s.copyUpSem }()

			n.mu.Lock()
			object := n.Object
			n.Set(NodeDeleting)
			n.mu.Unlock()

			if err := s.data.Delete(ctx, object); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}

			n.mu.Lock()
			n.Clear(NodeDeleting)
			n.Set(NodeDestroyed)
			n.wake()
			n.mu.Unlock()
		}()
	}
	wg.Wait()

	m.mu.Lock()
	m.Clear(MapDeleting)
	m.Set(MapDeleted)
	m.wake()
	m.mu.Unlock()

	if closeErr := s.closeMap(ctx, m); closeErr != nil {
		logger.WarnCtx(ctx, "destroy: close failed", "volume", volume, "err", closeErr)
	}
	s.dropCache(ctx, m)

	if firstErr != nil {
		return newError(KindBlockerFailed, "destroy", volume, firstErr)
	}
	return nil
}

// DoClone implements do-clone: create a v1 map for the child, ACQUIRE it to
// assert non-existence (a successful load means the target already exists),
// resolve the requested size, populate child nodes from the parent's (object
// names carried over, EXIST always cleared — a clone never starts out owning
// exclusive copies), write and close.
func (s *Service) DoClone(ctx context.Context, parentVolume, childVolume string, requestedSize uint64) error {
	parent, err := s.GetMap(ctx, parentVolume, FlagLoad)
	if err != nil {
		return err
	}
	defer parent.release()

	child, err := s.probeNonExistent(ctx, childVolume)
	if err != nil {
		return err
	}
	defer child.release()

	parent.mu.Lock()
	parentSize := parent.Size
	parentNodeCount := mapblob.CalcMapObjs(parent.Size)
	parentNodes := make([]*Node, parentNodeCount)
	for i := uint32(0); i < parentNodeCount; i++ {
		parentNodes[i] = parent.objects[i]
	}
	parent.mu.Unlock()

	size := requestedSize
	if size == SizeUnknown {
		size = parentSize
	}
	if size < parentSize {
		return newError(KindProtocol, "clone", childVolume, errors.New("clone size smaller than parent"))
	}
	if size > mapblob.MaxVolumeSize(mapblob.VersionArchipelago) {
		return newError(KindProtocol, "clone", childVolume, errors.New("clone size exceeds max volume size"))
	}

	childNodeCount := mapblob.CalcMapObjs(size)

	child.mu.Lock()
	child.Size = size
	for i := uint32(0); i < childNodeCount; i++ {
		var object string
		if i < parentNodeCount && parentNodes[i] != nil {
			pn := parentNodes[i]
			pn.mu.Lock()
			object = pn.Object
			pn.mu.Unlock()
		}
		if object == "" {
			object = hash.ZeroBlockHex
		}
		n := newNode(i, object)
		n.owner = child
		n.addRef() // table's own ref, matching populateNodes
		child.objects[i] = n
	}
	child.mu.Unlock()

	if err := s.writeMap(ctx, child); err != nil {
		return err
	}
	return s.closeMap(ctx, child)
}

// probeNonExistent asserts childVolume is free for DoClone: it first tries
// to load the volume, and an existing map blob that decodes successfully
// fails the clone. Otherwise it creates and ACQUIREs a fresh, unloaded map
// for childVolume.
func (s *Service) probeNonExistent(ctx context.Context, volume string) (*Map, error) {
	m, err := s.GetMap(ctx, volume, FlagLoad|FlagExclusive)
	if err == nil {
		// get-map succeeded, meaning open_load_map actually decoded a
		// pre-existing map blob: the target volume already exists.
		m.release()
		return nil, newError(KindConflict, "clone", volume, errors.New("volume exists"))
	}

	// A load failure is exactly what a genuinely free name produces (the
	// map blocker's READ fails because there is no blob yet): build a fresh
	// map directly rather than surfacing this as an error.
	child := newMap(volume, mapblob.VersionArchipelago)
	child.addRef() // caller ref, on top of newMap's init ref (see GetMap).

	if err := s.registry.Insert(child); err != nil {
		child.release()
		child.release()
		return nil, newError(KindConflict, "clone", volume, err)
	}
	s.metrics.SetRegistrySize(s.registry.Len())

	if err := s.mapBlocker.Acquire(ctx, volume, false); err != nil {
		child.release()
		s.dropCache(ctx, child)
		return nil, newError(KindBlockerFailed, "clone", volume, err)
	}

	child.mu.Lock()
	child.Set(MapExclusive)
	child.mu.Unlock()

	return child, nil
}

// DoOpen succeeds iff the map is EXCLUSIVE after GetMap(FlagLoad|FlagExclusive).
func (s *Service) DoOpen(ctx context.Context, volume string) error {
	m, err := s.GetMap(ctx, volume, FlagLoad|FlagExclusive)
	if err != nil {
		return err
	}
	defer m.release()

	m.mu.Lock()
	exclusive := m.Has(MapExclusive)
	m.mu.Unlock()
	if !exclusive {
		return newError(KindConflict, "open", volume, errNotExclusive)
	}
	return nil
}

// DoClose releases the map's lease (if any) and drops its cache.
func (s *Service) DoClose(ctx context.Context, volume string) error {
	m, err := s.GetMap(ctx, volume, 0)
	if err != nil {
		return err
	}
	defer m.release()

	if err := s.closeMap(ctx, m); err != nil {
		return err
	}
	s.dropCache(ctx, m)
	return nil
}

// Info is the do-info reply payload: a map's size.
type Info struct {
	Size uint64
}

// DoInfo fills an Info reply for volume.
func (s *Service) DoInfo(ctx context.Context, volume string) (Info, error) {
	m, err := s.GetMap(ctx, volume, FlagLoad)
	if err != nil {
		return Info{}, err
	}
	defer m.release()

	m.mu.Lock()
	size := m.Size
	m.mu.Unlock()
	return Info{Size: size}, nil
}
