// Package datastore defines the pluggable persistence contract used by
// both the server coordinator (WorkerTable, JobTable) and the client
// worker's caches: atomic get/put/delete/scan-by-prefix, with
// last-writer-wins semantics on concurrent put and no cross-key
// transactional guarantee.
//
// Grounded on imagvfx-coco's service.Services/FarmService/JobService/
// WorkerService split (service/service.go) generalized from "three
// narrow, domain-shaped service interfaces backed by one sqlite
// connection" to "one key-value contract backed by interchangeable
// backends", and on the original source's directord/datastores/__init__.py
// BaseDocument (a dict-like store with set/prune/empty).
package datastore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when key does not exist in table.
var ErrNotFound = errors.New("datastore: key not found")

// Store is the datastore abstraction. Every backend (memorystore,
// filestore, redisstore) implements it identically so the coordinator and
// the client caches are written once against the interface.
type Store interface {
	Get(ctx context.Context, table, key string) ([]byte, error)
	Put(ctx context.Context, table, key string, value []byte) error
	Delete(ctx context.Context, table, key string) error
	Scan(ctx context.Context, table, prefix string) (Iterator, error)
	Close() error
}

// Iterator walks keys in a table matching a prefix. Ordering across
// backends is not guaranteed beyond what each backend documents; the
// coordinator assumes none.
type Iterator interface {
	Next() bool
	Key() string
	Value() []byte
	Err() error
}

// Tables used by the server coordinator and, on the client, the caches.
const (
	TableWorkers     = "workers"
	TableJobs        = "jobs"
	TableResultBlobs = "result_blobs"
	TableCacheArgs   = "cache_args"
	TableCacheEnvs   = "cache_envs"
	TableCacheQuery  = "cache_query"
	TableCacheJobs   = "cache_jobs"
	TableCacheParents = "cache_parents"
)

// SliceIterator is a minimal Iterator backed by an in-memory slice,
// reusable by any backend that materializes its scan result up front
// (memorystore and filestore both do; a backend speaking to a genuinely
// streaming remote store, like redisstore, may implement its own).
type SliceIterator struct {
	keys   []string
	values [][]byte
	idx    int
}

// NewSliceIterator builds a SliceIterator from parallel keys/values.
func NewSliceIterator(keys []string, values [][]byte) *SliceIterator {
	return &SliceIterator{keys: keys, values: values, idx: -1}
}

func (it *SliceIterator) Next() bool {
	it.idx++
	return it.idx < len(it.keys)
}

func (it *SliceIterator) Key() string {
	if it.idx < 0 || it.idx >= len(it.keys) {
		return ""
	}
	return it.keys[it.idx]
}

func (it *SliceIterator) Value() []byte {
	if it.idx < 0 || it.idx >= len(it.values) {
		return nil
	}
	return it.values[it.idx]
}

func (it *SliceIterator) Err() error { return nil }
