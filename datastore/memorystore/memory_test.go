package memorystore

import (
	"context"
	"testing"

	"github.com/directord/directord/datastore"
)

func TestPutGetRoundtrip(t *testing.T) {
	ctx := context.Background()
	s := New()
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
	s := New()
	if _, err := s.Get(ctx, "jobs", "missing"); err != datastore.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteRemovesKey(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.Put(ctx, "jobs", "job-1", []byte("x"))
	if err := s.Delete(ctx, "jobs", "job-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "jobs", "job-1"); err != datastore.ErrNotFound {
		t.Fatalf("expected key to be gone, got %v", err)
	}
}

func TestScanFiltersByPrefixAndIsSorted(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.Put(ctx, "jobs", "b-second", []byte("2"))
	_ = s.Put(ctx, "jobs", "a-first", []byte("1"))
	_ = s.Put(ctx, "jobs", "z-other", []byte("9"))

	it, err := s.Scan(ctx, "jobs", "")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	var keys []string
	for it.Next() {
		keys = append(keys, it.Key())
	}
	if len(keys) != 3 || keys[0] != "a-first" || keys[2] != "z-other" {
		t.Fatalf("expected sorted keys, got %v", keys)
	}
}

func TestPutCopiesValueSoCallerMutationDoesNotLeak(t *testing.T) {
	ctx := context.Background()
	s := New()
	buf := []byte("original")
	_ = s.Put(ctx, "jobs", "k", buf)
	buf[0] = 'X'

	got, _ := s.Get(ctx, "jobs", "k")
	if string(got) != "original" {
		t.Fatalf("expected stored value to be insulated from caller mutation, got %q", got)
	}
}
