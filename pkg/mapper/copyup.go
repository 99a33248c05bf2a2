package mapper

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/mapperd/internal/logger"
	"github.com/marmos91/mapperd/pkg/hash"
	"github.com/marmos91/mapperd/pkg/mapblob"
)

// newCopyUpName derives the new exclusively-owned object name for volume's
// node idx: archip_ ∥ hex(SHA256(volume ∥ "_" ∥ dec(idx))). Deterministic, so
// retrying a copy-up after a crash reuses the same name (idempotent).
func newCopyUpName(volume string, idx uint32) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s_%d", volume, idx)))
	return mapblob.ArchipelagoPrefix + hash.Hexlify(hash.Digest(sum))
}

// recordOffset returns the byte offset of node idx's record within a map
// blob of the given version, for the single-record map WRITE copy-up issues.
// Mirrors the original's per-version prepare_write_object dispatch
// (v0_object_to_map/v1_object_to_map), which keys off the map's own version
// rather than assuming the writable v1 layout.
func recordOffset(version mapblob.Version, idx uint32) uint64 {
	return uint64(version.HeaderWidth() + int(idx)*version.RecordWidth())
}

// encodeRecord serializes one record to the on-the-wire width of version: v1
// records carry a leading EXIST byte before the digest, v0 records are the
// bare digest (a non-zero v0 record is implicitly EXIST).
func encodeRecord(version mapblob.Version, rec mapblob.Record) []byte {
	out := make([]byte, version.RecordWidth())
	if version == mapblob.VersionArchipelago {
		if rec.Exist {
			out[0] = 1
		}
		copy(out[1:], rec.Digest[:])
		return out
	}
	copy(out, rec.Digest[:])
	return out
}

// copyUpNodes runs the two-pass copy-up algorithm over spans whose nodes
// have EXIST clear, per spec §4.5: pass A starts every node that is
// immediately ready, skipping NOT_READY nodes for pass B; pass B blocks on
// each skipped node and starts it once ready (unless it was destroyed
// meanwhile). All started copy-ups run concurrently, throttled by sem, and
// the call returns once every one of them has settled.
func (s *Service) copyUpNodes(ctx context.Context, m *Map, nodes []*Node) error {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		firstErr error
	)

	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	start := func(n *Node) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.copyUpSem <- struct{}{}
			defer func() { <-s.copyUpSem }()
			if err := s.doCopyUp(ctx, m, n); err != nil {
				fail(err)
			}
		}()
	}

	// Pass A: non-blocking.
	var pendingB []*Node
	for _, n := range nodes {
		n.mu.Lock()
		switch {
		case n.Has(NodeExist):
			n.mu.Unlock()
		case n.HasAny(NodeNotReady):
			n.mu.Unlock()
			pendingB = append(pendingB, n)
		default:
			n.Set(NodeCopying)
			n.mu.Unlock()
			start(n)
		}

		mu.Lock()
		stop := firstErr != nil
		mu.Unlock()
		if stop {
			break
		}
	}

	// Pass B: blocking.
	for _, n := range pendingB {
		n.mu.Lock()
		n.waiters++
		for n.HasAny(NodeNotReady) {
			n.cond.Wait()
		}
		n.waiters--

		switch {
		case n.Has(NodeDestroyed):
			n.mu.Unlock()
			fail(newError(KindConflict, "copy-up", m.Volume, fmt.Errorf("node %d destroyed", n.Index)))
			continue
		case n.Has(NodeExist):
			n.mu.Unlock()
		default:
			n.Set(NodeCopying)
			n.mu.Unlock()
			start(n)
		}
	}

	wg.Wait()
	return firstErr
}

// doCopyUp materializes an exclusively-owned copy of n's current object and
// installs it in place. n must already have NodeCopying set by the caller.
func (s *Service) doCopyUp(ctx context.Context, m *Map, n *Node) error {
	start := time.Now()

	n.mu.Lock()
	oldObject := n.Object
	n.mu.Unlock()

	newName := newCopyUpName(m.Volume, n.Index)

	if oldObject == hash.ZeroBlockHex {
		// No source data to copy: synthesize the node directly and persist
		// the single-record update.
		if err := s.writeNodeRecord(ctx, m, n, newName, true); err != nil {
			s.finishCopyUp(n, false)
			s.metrics.RecordCopyUp("failed", time.Since(start).Seconds())
			return err
		}
		s.finishCopyUp(n, true)
		s.installNode(n, newName)
		s.metrics.RecordCopyUp("zero_block", time.Since(start).Seconds())
		return nil
	}

	if err := s.data.Copy(ctx, newName, oldObject); err != nil {
		s.finishCopyUp(n, false)
		s.metrics.RecordCopyUp("failed", time.Since(start).Seconds())
		return newError(KindBlockerFailed, "copy-up", m.Volume, err)
	}

	n.mu.Lock()
	n.Clear(NodeCopying)
	n.Set(NodeWriting)
	n.mu.Unlock()

	if err := s.writeNodeRecord(ctx, m, n, newName, true); err != nil {
		n.mu.Lock()
		n.Clear(NodeWriting)
		n.wake()
		n.mu.Unlock()
		s.metrics.RecordCopyUp("failed", time.Since(start).Seconds())
		return err
	}

	n.mu.Lock()
	n.Clear(NodeWriting)
	n.mu.Unlock()
	s.installNode(n, newName)
	s.metrics.RecordCopyUp("completed", time.Since(start).Seconds())
	return nil
}

// installNode adopts newName as n's object, sets EXIST and wakes waiters.
func (s *Service) installNode(n *Node, newName string) {
	n.mu.Lock()
	n.Object = newName
	n.Set(NodeExist)
	n.wake()
	n.mu.Unlock()
}

// finishCopyUp clears NodeCopying (leaving EXIST unset on failure so a
// retry can be attempted) and wakes waiters either way.
func (s *Service) finishCopyUp(n *Node, ok bool) {
	n.mu.Lock()
	n.Clear(NodeCopying)
	if !ok {
		n.wake()
	}
	n.mu.Unlock()
}

// writeNodeRecord persists a one-record update to m's map blob for node n
// adopting newObject, patching only that record's bytes in place.
func (s *Service) writeNodeRecord(ctx context.Context, m *Map, n *Node, newObject string, exist bool) error {
	name := newObject
	if mapblob.IsArchipelagoName(name) {
		name = name[len(mapblob.ArchipelagoPrefix):]
	}
	d, err := hash.Unhexlify(name)
	if err != nil {
		return newError(KindProtocol, "copy-up", m.Volume, err)
	}

	rec := mapblob.Record{Exist: exist, Digest: d}
	payload := encodeRecord(m.Version, rec)

	if err := s.mapBlocker.WriteRecord(ctx, m.Volume, recordOffset(m.Version, n.Index), payload); err != nil {
		logger.WarnCtx(ctx, "copy-up record write failed", "volume", m.Volume, "index", n.Index, "err", err)
		return newError(KindBlockerFailed, "copy-up", m.Volume, err)
	}
	return nil
}
