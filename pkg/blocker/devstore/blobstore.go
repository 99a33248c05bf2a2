// Package devstore holds pluggable backing stores for the reference
// blocker transport in blocker/devtransport. A BlobStore holds whole,
// content-addressed blobs (data objects or map blobs) keyed by name; it is
// deliberately simpler than block.Store (no byte-range addressing) since a
// blocker's unit of storage is one full object or map blob.
package devstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when name has no stored blob.
var ErrNotFound = errors.New("devstore: blob not found")

// BlobStore is the storage abstraction a dev blocker backend uses to hold
// bytes for named objects/map blobs.
type BlobStore interface {
	Get(ctx context.Context, name string) ([]byte, error)
	Put(ctx context.Context, name string, data []byte) error
	Delete(ctx context.Context, name string) error
	Close() error
}
