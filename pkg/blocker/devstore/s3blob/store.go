// Package s3blob adapts the S3 block.Store into a devstore.BlobStore for
// a data blocker backend that persists objects to S3 (or an S3-compatible
// endpoint) instead of local disk.
package s3blob

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/marmos91/mapperd/pkg/blocker/devstore"
	"github.com/marmos91/mapperd/pkg/store/block"
	s3store "github.com/marmos91/mapperd/pkg/store/block/s3"
)

// Store is a devstore.BlobStore backed by S3.
type Store struct {
	inner *s3store.Store
}

// New wraps an S3 client as a blob store.
func New(client *s3.Client, cfg s3store.Config) *Store {
	return &Store{inner: s3store.New(client, cfg)}
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
