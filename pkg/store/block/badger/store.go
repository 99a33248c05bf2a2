// Package badger implements block.Store on BadgerDB, giving a dev blocker
// backend that survives process restarts without any external service.
package badger

import (
	"context"
	"fmt"
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/mapperd/pkg/store/block"
)

// Store implements block.Store on a BadgerDB instance. Block keys are used
// directly as Badger keys.
type Store struct {
	db        *badger.DB
	keyLocks  sync.Map // blockKey -> *sync.Mutex, serializes same-key writes
	closeOnce sync.Once
}

// Open opens (or creates) a BadgerDB store rooted at dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger block store: open %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) lock(blockKey string) *sync.Mutex {
	mu, _ := s.keyLocks.LoadOrStore(blockKey, &sync.Mutex{})
	fileMu := mu.(*sync.Mutex)
	fileMu.Lock()
	return fileMu
}

// WriteBlock writes a single block.
func (s *Store) WriteBlock(ctx context.Context, blockKey string, data []byte) error {
	mu := s.lock(blockKey)
	defer mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	copied := make([]byte, len(data))
	copy(copied, data)

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(blockKey), copied)
	})
}

// ReadBlock reads a complete block.
func (s *Store) ReadBlock(ctx context.Context, blockKey string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(blockKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte(nil), val...)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, block.ErrBlockNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger block store: read %s: %w", blockKey, err)
	}
	return out, nil
}

// ReadBlockRange reads a byte range from a block.
func (s *Store) ReadBlockRange(ctx context.Context, blockKey string, offset, length int64) ([]byte, error) {
	data, err := s.ReadBlock(ctx, blockKey)
	if err != nil {
		return nil, err
	}
	if offset < 0 || offset >= int64(len(data)) {
		return nil, block.ErrBlockNotFound
	}
	end := offset + length
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return data[offset:end], nil
}

// DeleteBlock removes a single block. Missing keys are not an error.
func (s *Store) DeleteBlock(ctx context.Context, blockKey string) error {
	mu := s.lock(blockKey)
	defer mu.Unlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(blockKey))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("badger block store: delete %s: %w", blockKey, err)
	}
	return nil
}

// DeleteByPrefix removes every block whose key begins with prefix.
func (s *Store) DeleteByPrefix(ctx context.Context, prefix string) error {
	keys, err := s.ListByPrefix(ctx, prefix)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListByPrefix lists all block keys with the given prefix.
func (s *Store) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, string(it.Item().Key()))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger block store: list %q: %w", prefix, err)
	}
	return keys, nil
}

// Close closes the underlying BadgerDB handle.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() { err = s.db.Close() })
	return err
}

// HealthCheck reports whether the underlying database handle is usable.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return block.ErrStoreClosed
	}
	return nil
}

// CacheCounts returns BadgerDB's cumulative block- and index-cache hit/miss
// counts. ok is false if block caching is disabled (badger.Options.BlockCacheSize
// or IndexCacheSize is 0), in which case the metrics are unavailable rather
// than zero.
func (s *Store) CacheCounts() (blockHits, blockMisses, indexHits, indexMisses uint64, ok bool) {
	bm := s.db.BlockCacheMetrics()
	im := s.db.IndexCacheMetrics()
	if bm == nil || im == nil {
		return 0, 0, 0, 0, false
	}
	return bm.Hits(), bm.Misses(), im.Hits(), im.Misses(), true
}

var _ block.Store = (*Store)(nil)
