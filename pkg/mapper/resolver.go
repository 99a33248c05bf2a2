package mapper

import (
	"fmt"

	"github.com/marmos91/mapperd/pkg/mapblob"
)

// span is one (node, inner_offset, inner_size) triple produced by resolving
// a (offset, size) request against a map's fixed block_size grid: the first
// span may start at a non-zero inner offset, the last may be short, every
// span in between covers a full block.
type span struct {
	index       uint32
	innerOffset uint64
	innerSize   uint64
}

// resolveSpans computes the spans covering [offset, offset+size) on a grid
// of blockSize-sized blocks. size == 0 yields no spans.
func resolveSpans(blockSize, offset, size uint64) []span {
	if size == 0 {
		return nil
	}

	first := offset / blockSize
	last := (offset + size - 1) / blockSize

	spans := make([]span, 0, last-first+1)
	for i := first; i <= last; i++ {
		nodeStart := i * blockSize
		nodeEnd := nodeStart + blockSize

		segStart := nodeStart
		if i == first {
			segStart = offset
		}
		segEnd := nodeEnd
		if i == last {
			segEnd = offset + size
		}

		spans = append(spans, span{
			index:       uint32(i),
			innerOffset: segStart - nodeStart,
			innerSize:   segEnd - segStart,
		})
	}
	return spans
}

// Segment is one entry of a MAPR/MAPW reply: the backing object a portion of
// the request range resolves to, and that portion's bounds — the Go
// analogue of xseg_reply_map's segs[] array.
type Segment struct {
	Target string
	Offset uint64
	Size   uint64
}

// reqToObjs resolves (offset, size) against m into the ordered (node,
// inner_offset, inner_size) spans covering the range. Every span's node must
// already exist in m.objects (populated at load); a missing node is a
// protocol error — the request addresses past the map's loaded node table.
// reqToObjs takes m.mu itself, so the caller must not hold it.
func (m *Map) reqToObjs(offset, size uint64) ([]span, []*Node, error) {
	spans := resolveSpans(mapblob.BlockSize, offset, size)
	nodes := make([]*Node, len(spans))

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range spans {
		n := m.objects[s.index]
		if n == nil {
			return nil, nil, newError(KindProtocol, "req-to-objs", m.Volume,
				fmt.Errorf("node %d not loaded", s.index))
		}
		nodes[i] = n
	}
	return spans, nodes, nil
}
