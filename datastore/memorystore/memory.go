// Package memorystore is the volatile, process-lifetime datastore
// backend required by spec.md §4.5.
//
// Grounded on imagvfx-coco's in-process maps guarded by a single mutex
// (worker.go's WorkerManager.worker map, job.go's JobManager.job map) -
// generalized from "one map per domain type" to "one map of tables of
// maps", which is the natural Go shape for a generic key-value store.
package memorystore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/directord/directord/datastore"
)

// Store is an in-memory datastore.Store.
type Store struct {
	mu     sync.RWMutex
	tables map[string]map[string][]byte
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{tables: make(map[string]map[string][]byte)}
}

func (s *Store) Get(ctx context.Context, table, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[table]
	if !ok {
		return nil, datastore.ErrNotFound
	}
	v, ok := t[key]
	if !ok {
		return nil, datastore.ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *Store) Put(ctx context.Context, table, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[table]
	if !ok {
		t = make(map[string][]byte)
		s.tables[table] = t
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	t[key] = cp
	return nil
}

func (s *Store) Delete(ctx context.Context, table, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[table]
	if !ok {
		return nil
	}
	delete(t, key)
	return nil
}

func (s *Store) Scan(ctx context.Context, table, prefix string) (datastore.Iterator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := s.tables[table]
	keys := make([]string, 0, len(t))
	for k := range t {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	values := make([][]byte, len(keys))
	for i, k := range keys {
		values[i] = t[k]
	}
	return datastore.NewSliceIterator(keys, values), nil
}

func (s *Store) Close() error { return nil }
