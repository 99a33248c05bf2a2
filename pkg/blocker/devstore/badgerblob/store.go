// Package badgerblob adapts the BadgerDB block.Store into a
// devstore.BlobStore, giving the dev map/data blocker persistence across
// process restarts (of the dev blocker itself — the mapper core stays
// non-persistent, per its own scope).
package badgerblob

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/mapperd/pkg/blocker/devstore"
	metricsprom "github.com/marmos91/mapperd/pkg/metrics/prometheus"
	"github.com/marmos91/mapperd/pkg/store/block"
	badgerstore "github.com/marmos91/mapperd/pkg/store/block/badger"
)

// cachePollInterval is how often the background goroutine samples BadgerDB's
// cumulative cache counters and turns them into metric deltas.
const cachePollInterval = 5 * time.Second

// Store is a devstore.BlobStore backed by a BadgerDB instance. It polls the
// underlying BadgerDB block/index cache counters on a timer and reports them
// as Prometheus deltas, since badger only exposes cumulative totals.
type Store struct {
	inner   *badgerstore.Store
	metrics *metricsprom.BadgerMetrics

	closeOnce sync.Once
	stopPoll  chan struct{}
	pollDone  chan struct{}

	lastBlockHits, lastBlockMisses uint64
	lastIndexHits, lastIndexMisses uint64
}

// Open opens (or creates) a BadgerDB-backed blob store rooted at dir.
func Open(dir string) (*Store, error) {
	inner, err := badgerstore.Open(dir)
	if err != nil {
		return nil, err
	}

	s := &Store{
		inner:    inner,
		metrics:  metricsprom.NewBadgerMetrics(),
		stopPoll: make(chan struct{}),
		pollDone: make(chan struct{}),
	}

	if s.metrics != nil {
		go s.pollCacheMetrics()
	} else {
		close(s.pollDone)
	}

	return s, nil
}

// pollCacheMetrics samples BadgerDB's cumulative block/index cache hit/miss
// counts on a timer and reports the increase since the last sample, since
// ristretto.Metrics.Hits/Misses never reset for the life of the database.
func (s *Store) pollCacheMetrics() {
	defer close(s.pollDone)

	ticker := time.NewTicker(cachePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopPoll:
			return
		case <-ticker.C:
			s.sampleCacheMetrics()
		}
	}
}

func (s *Store) sampleCacheMetrics() {
	blockHits, blockMisses, indexHits, indexMisses, ok := s.inner.CacheCounts()
	if !ok {
		return
	}

	s.metrics.RecordCacheHit("block", blockHits-s.lastBlockHits)
	s.metrics.RecordCacheMiss("block", blockMisses-s.lastBlockMisses)
	s.metrics.RecordCacheHit("index", indexHits-s.lastIndexHits)
	s.metrics.RecordCacheMiss("index", indexMisses-s.lastIndexMisses)
	s.lastBlockHits, s.lastBlockMisses = blockHits, blockMisses
	s.lastIndexHits, s.lastIndexMisses = indexHits, indexMisses

	if total := blockHits + blockMisses; total > 0 {
		s.metrics.RecordCacheHitRatio("block", float64(blockHits)/float64(total))
	}
	if total := indexHits + indexMisses; total > 0 {
		s.metrics.RecordCacheHitRatio("index", float64(indexHits)/float64(total))
	}
}

func (s *Store) Get(ctx context.Context, name string) ([]byte, error) {
	data, err := s.inner.ReadBlock(ctx, name)
	if err == block.ErrBlockNotFound {
		return nil, devstore.ErrNotFound
	}
	return data, err
}

func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	return s.inner.WriteBlock(ctx, name, data)
}

func (s *Store) Delete(ctx context.Context, name string) error {
	return s.inner.DeleteBlock(ctx, name)
}

func (s *Store) Close() error {
	s.closeOnce.Do(func() { close(s.stopPoll) })
	<-s.pollDone
	return s.inner.Close()
}

var _ devstore.BlobStore = (*Store)(nil)
