package mapper

import (
	"sync"

	"github.com/marmos91/mapperd/pkg/hash"
	"github.com/marmos91/mapperd/pkg/mapblob"
)

// Node represents one logical object slot at a fixed offset of a Map: the
// byte range [idx*BlockSize, (idx+1)*BlockSize) of the volume.
//
// A Node's condition variable is the Go realization of the "condition
// variable keyed on an entity" design note: callers sleep on cond while
// flags&NodeNotReady != 0 and recheck on every wake, the same "sleep on this
// flags field until it changes" pattern the original C mapper uses.
type Node struct {
	mu   sync.Mutex
	cond *sync.Cond

	Index  uint32
	Object string // target object name, possibly archip_-prefixed
	flagSet[NodeFlag]

	ref     int
	owner   *Map // back-pointer; never dereferenced once owner has dropped cache
	waiters int
}

func newNode(idx uint32, object string) *Node {
	n := &Node{Index: idx, Object: object, ref: 1}
	n.cond = sync.NewCond(&n.mu)
	return n
}

// Digest parses the node's current object name back into a SHA-256 digest,
// stripping the archip_ prefix if present.
func (n *Node) Digest() (hash.Digest, error) {
	name := n.Object
	if mapblob.IsArchipelagoName(name) {
		name = name[len(mapblob.ArchipelagoPrefix):]
	}
	return hash.Unhexlify(name)
}

// Exists reports whether this node currently owns an exclusive, writable
// copy of its object (EXIST flag), vs. pointing at a shared read-only
// predecessor.
func (n *Node) Exists() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.Has(NodeExist)
}

// lockUntilReady blocks until the node is not NOT_READY, then returns with the
// node's mutex held. Callers must call n.mu.Unlock() (use a defer).
func (n *Node) lockUntilReady() {
	n.mu.Lock()
	n.waiters++
	for n.HasAny(NodeNotReady) {
		n.cond.Wait()
	}
	n.waiters--
}

// wake signals every goroutine parked on the node's condition — used
// whenever a state-changing field (flags, Object) is mutated.
func (n *Node) wake() {
	n.cond.Broadcast()
}

func (n *Node) addRef() {
	n.mu.Lock()
	n.ref++
	n.mu.Unlock()
}

func (n *Node) release() {
	n.mu.Lock()
	n.ref--
	n.mu.Unlock()
}
