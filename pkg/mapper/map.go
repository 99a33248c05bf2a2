package mapper

import (
	"math"
	"sync"

	"github.com/marmos91/mapperd/pkg/mapblob"
)

// SizeUnknown marks a freshly allocated Map whose size has not been loaded
// yet (UINT64_MAX in the original).
const SizeUnknown = math.MaxUint64

// Map represents one logical volume: a named, versioned, sized aggregate of
// Nodes. Flags and the objects table are guarded by mu; cond is the
// condition variable callers wait on while the map is NOT_READY, realizing
// the "sleep on this flags field until it changes" pattern from the design
// notes with a regular sync.Cond.
type Map struct {
	mu   sync.Mutex
	cond *sync.Cond

	Volume  string
	Version mapblob.Version
	Size    uint64

	objects map[uint32]*Node
	flagSet[MapFlag]

	ref     int
	waiters int
}

func newMap(volume string, version mapblob.Version) *Map {
	m := &Map{
		Volume:  volume,
		Version: version,
		Size:    SizeUnknown,
		objects: make(map[uint32]*Node),
		ref:     1,
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// IsArchipelago reports whether this map is archipelago-managed (v1,
// read-write) as opposed to a read-only pithos (v0) map.
func (m *Map) IsArchipelago() bool {
	return mapblob.IsArchipelagoName(m.Volume)
}

// lockUntilReady blocks until the map is not NOT_READY and returns with m.mu
// held; callers must unlock (defer m.mu.Unlock()).
func (m *Map) lockUntilReady() {
	m.mu.Lock()
	m.waiters++
	for m.HasAny(MapNotReady) {
		m.cond.Wait()
	}
	m.waiters--
}

func (m *Map) wake() {
	m.cond.Broadcast()
}

func (m *Map) addRef() {
	m.mu.Lock()
	m.ref++
	m.mu.Unlock()
}

func (m *Map) release() {
	m.mu.Lock()
	m.ref--
	m.mu.Unlock()
}

// node returns the node at idx, or nil if absent. Caller must hold m.mu.
func (m *Map) node(idx uint32) *Node {
	return m.objects[idx]
}

// setNode installs (or replaces) the node at idx. Caller must hold m.mu.
func (m *Map) setNode(idx uint32, n *Node) {
	m.objects[idx] = n
}

// nodeCount returns len(m.objects) under lock.
func (m *Map) nodeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// snapshotNodeOrder returns the map's nodes ordered by index, used whenever
// the whole blob or its Merkle root must be computed.
func (m *Map) snapshotNodeOrder() []*Node {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := mapblob.CalcMapObjs(m.Size)
	out := make([]*Node, 0, n)
	for i := uint32(0); i < n; i++ {
		if node, ok := m.objects[i]; ok {
			out = append(out, node)
		}
	}
	return out
}
