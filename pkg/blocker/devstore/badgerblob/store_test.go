package badgerblob

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/marmos91/mapperd/pkg/blocker/devstore"
	"github.com/marmos91/mapperd/pkg/metrics"
)

func TestStore_PutGetDelete(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "blocks"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

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
	s, err := Open(filepath.Join(t.TempDir(), "blocks"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if _, err := s.Get(context.Background(), "missing"); err != devstore.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_SampleCacheMetrics_RecordsAgainstRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.InitRegistry(reg)
	defer metrics.InitRegistry(nil)

	s, err := Open(filepath.Join(t.TempDir(), "blocks"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if s.metrics == nil {
		t.Fatal("expected metrics to be wired when a registry is installed")
	}

	ctx := context.Background()
	if err := s.Put(ctx, "obj", []byte("bytes")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := s.Get(ctx, "obj"); err != nil {
		t.Fatalf("get: %v", err)
	}

	// Drive a sample directly rather than waiting on the poll ticker. Whether
	// BadgerDB's block cache has actually seen a hit/miss yet depends on LSM
	// internals (memtable vs. flushed sstable), so exercise the recorder
	// methods directly too, which is what asserts the wiring is real.
	s.sampleCacheMetrics()
	s.metrics.RecordCacheHit("block", 1)
	s.metrics.RecordCacheMiss("block", 1)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"mapperd_badger_cache_hits_total",
		"mapperd_badger_cache_misses_total",
	} {
		if !names[want] {
			t.Errorf("expected registry to contain metric family %q", want)
		}
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "blocks")

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s1.Put(context.Background(), "obj", []byte("persisted")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	got, err := s2.Get(context.Background(), "obj")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if string(got) != "persisted" {
		t.Errorf("expected %q, got %q", "persisted", got)
	}
}
