// Package memblob adapts the teacher's in-memory block.Store into a
// devstore.BlobStore: a sync.RWMutex-guarded map[string][]byte, good for
// unit tests and throwaway dev runs.
package memblob

import (
	"context"

	"github.com/marmos91/mapperd/pkg/blocker/devstore"
	"github.com/marmos91/mapperd/pkg/store/block"
	"github.com/marmos91/mapperd/pkg/store/block/memory"
)

// Store is a devstore.BlobStore backed by an in-memory block.Store.
type Store struct {
	inner *memory.Store
}

// New creates an empty in-memory blob store.
func New() *Store {
	return &Store{inner: memory.New()}
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
	return s.inner.Close()
}

var _ devstore.BlobStore = (*Store)(nil)
