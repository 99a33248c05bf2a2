package memblob

import (
	"context"
	"testing"

	"github.com/marmos91/mapperd/pkg/blocker/devstore"
)

func TestStore_PutGetDelete(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.Put(ctx, "obj", []byte("bytes")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Get(ctx, "obj")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "bytes" {
		t.Errorf("expected %q, got %q", "bytes", got)
	}

	if err := s.Delete(ctx, "obj"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "obj"); err != devstore.ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestStore_GetMissing(t *testing.T) {
	s := New()
	if _, err := s.Get(context.Background(), "missing"); err != devstore.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
