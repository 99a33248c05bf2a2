package mapper

import "context"

// MAPR resolves (offset, size) against volume's map without mutating
// anything: every span's node keeps its current EXIST flag and object name.
func (s *Service) MAPR(ctx context.Context, volume string, offset, size uint64) ([]Segment, error) {
	m, err := s.GetMap(ctx, volume, FlagLoad)
	if err != nil {
		return nil, err
	}
	defer m.release()

	spans, nodes, err := m.reqToObjs(offset, size)
	if err != nil {
		return nil, err
	}
	return s.buildSegments(spans, nodes), nil
}

// MAPW resolves (offset, size) against volume's map, running copy-up on
// every span's node whose EXIST flag is clear before replying, so that every
// node in the returned range is EXIST afterwards.
func (s *Service) MAPW(ctx context.Context, volume string, offset, size uint64) ([]Segment, error) {
	m, err := s.GetMap(ctx, volume, FlagLoad)
	if err != nil {
		return nil, err
	}
	defer m.release()

	spans, nodes, err := m.reqToObjs(offset, size)
	if err != nil {
		return nil, err
	}

	var toCopy []*Node
	for _, n := range nodes {
		n.mu.Lock()
		exist := n.Has(NodeExist)
		n.mu.Unlock()
		if !exist {
			toCopy = append(toCopy, n)
		}
	}

	if len(toCopy) > 0 {
		if err := s.copyUpNodes(ctx, m, toCopy); err != nil {
			return nil, err
		}
	}

	return s.buildSegments(spans, nodes), nil
}

func (s *Service) buildSegments(spans []span, nodes []*Node) []Segment {
	segments := make([]Segment, len(spans))
	for i, sp := range spans {
		nodes[i].mu.Lock()
		target := nodes[i].Object
		nodes[i].mu.Unlock()
		segments[i] = Segment{Target: target, Offset: sp.innerOffset, Size: sp.innerSize}
	}
	return segments
}
