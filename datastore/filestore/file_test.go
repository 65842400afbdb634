package filestore

import (
	"context"
	"testing"

	"github.com/directord/directord/datastore"
)

func TestOpenCreatesRootDirectory(t *testing.T) {
	dir := t.TempDir() + "/db"
	if _, err := Open(dir); err != nil {
		t.Fatalf("open: %v", err)
	}
}

func TestPutGetRoundtrip(t *testing.T) {
	ctx := context.Background()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Put(ctx, "jobs", "job-1", []byte("hello")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Get(ctx, "jobs", "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("expected 'hello', got %q", got)
	}
}

func TestGetMissingReturnsErrNotFound(t *testing.T) {
	ctx := context.Background()
	s, _ := Open(t.TempDir())
	if _, err := s.Get(ctx, "jobs", "missing"); err != datastore.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPutOverwritesExistingKey(t *testing.T) {
	ctx := context.Background()
	s, _ := Open(t.TempDir())
	_ = s.Put(ctx, "jobs", "job-1", []byte("first"))
	_ = s.Put(ctx, "jobs", "job-1", []byte("second"))
	got, err := s.Get(ctx, "jobs", "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "second" {
		t.Fatalf("expected overwritten value 'second', got %q", got)
	}
}

func TestDeleteRemovesKey(t *testing.T) {
	ctx := context.Background()
	s, _ := Open(t.TempDir())
	_ = s.Put(ctx, "jobs", "job-1", []byte("x"))
	if err := s.Delete(ctx, "jobs", "job-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "jobs", "job-1"); err != datastore.ErrNotFound {
		t.Fatalf("expected key to be gone, got %v", err)
	}
}

func TestDeleteMissingKeyIsNotAnError(t *testing.T) {
	ctx := context.Background()
	s, _ := Open(t.TempDir())
	if err := s.Delete(ctx, "jobs", "missing"); err != nil {
		t.Fatalf("expected deleting a missing key to be a no-op, got %v", err)
	}
}

func TestScanFiltersByPrefixAndRecoversOriginalKeys(t *testing.T) {
	ctx := context.Background()
	s, _ := Open(t.TempDir())
	_ = s.Put(ctx, "jobs", "node-a", []byte("1"))
	_ = s.Put(ctx, "jobs", "node-b", []byte("2"))
	_ = s.Put(ctx, "jobs", "other", []byte("3"))

	it, err := s.Scan(ctx, "jobs", "node-")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	var keys []string
	for it.Next() {
		keys = append(keys, it.Key())
	}
	if len(keys) != 2 || keys[0] != "node-a" || keys[1] != "node-b" {
		t.Fatalf("expected [node-a node-b], got %v", keys)
	}
}

func TestScanOnMissingTableReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	s, _ := Open(t.TempDir())
	it, err := s.Scan(ctx, "nonexistent", "")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if it.Next() {
		t.Fatalf("expected no results for a table that was never written to")
	}
}
