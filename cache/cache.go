// Package cache implements the client-local argument/environment/query/
// jobs caches described in spec.md §3 and §4.3: keyed maps with a default
// TTL evaluated lazily on read, backed by the datastore abstraction, with
// tag-based eviction (CACHEEVICT jobs|parents|args|envs|query|all).
//
// Grounded on the original source's directord/iodict.py and
// directord/datastores/__init__.py (BaseDocument.prune: "for key, value in
// items: if now >= value['time']: pop(key)") generalized from a
// dict-subclass with an embedded "time" field per value to a thin codec
// over datastore.Store, so the same TTL semantics work across the memory,
// file, and redis backends.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/directord/directord/datastore"
)

// DefaultTTL is cache_ttl's default (43200s = 12h), per spec.md §3/§6.
const DefaultTTL = 12 * time.Hour

// Tag names CACHEEVICT addresses.
const (
	TagArgs    = "args"
	TagEnvs    = "envs"
	TagQuery   = "query"
	TagJobs    = "jobs"
	TagParents = "parents"
	TagAll     = "all"
)

var tagTables = map[string]string{
	TagArgs:    datastore.TableCacheArgs,
	TagEnvs:    datastore.TableCacheEnvs,
	TagQuery:   datastore.TableCacheQuery,
	TagJobs:    datastore.TableCacheJobs,
	TagParents: datastore.TableCacheParents,
}

type entry struct {
	Value   json.RawMessage `json:"value"`
	Expires time.Time       `json:"expires"`
}

// Store is the client-local cache set: args, envs, query, jobs, parents.
type Store struct {
	backend    datastore.Store
	defaultTTL time.Duration
}

// New wraps backend with the cache semantics, using defaultTTL (0 means
// DefaultTTL) for entries that don't specify their own.
func New(backend datastore.Store, defaultTTL time.Duration) *Store {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &Store{backend: backend, defaultTTL: defaultTTL}
}

// Set stores value under key in the named tag's cache, using ttl (or the
// store's default when ttl is zero).
func (s *Store) Set(ctx context.Context, tag, key string, value any, ttl time.Duration) error {
	table, ok := tagTables[tag]
	if !ok {
		return errUnknownTag(tag)
	}
	if ttl == 0 {
		ttl = s.defaultTTL
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	e := entry{Value: raw, Expires: time.Now().Add(ttl)}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.backend.Put(ctx, table, key, b)
}

// Get returns the value stored under key in tag, and whether it was
// present and unexpired. TTL is evaluated lazily here, at read time: a
// read at t > put_time+ttl returns absent, per spec.md §8 property 6.
func (s *Store) Get(ctx context.Context, tag, key string, out any) (bool, error) {
	table, ok := tagTables[tag]
	if !ok {
		return false, errUnknownTag(tag)
	}
	b, err := s.backend.Get(ctx, table, key)
	if err == datastore.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var e entry
	if err := json.Unmarshal(b, &e); err != nil {
		return false, err
	}
	if time.Now().After(e.Expires) {
		_ = s.backend.Delete(ctx, table, key)
		return false, nil
	}
	if out != nil {
		if err := json.Unmarshal(e.Value, out); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Delete removes key from tag's cache.
func (s *Store) Delete(ctx context.Context, tag, key string) error {
	table, ok := tagTables[tag]
	if !ok {
		return errUnknownTag(tag)
	}
	return s.backend.Delete(ctx, table, key)
}

// Evict implements CACHEEVICT: removing every entry for tag, or every
// entry across every tag when tag is "all" (spec.md §8 property 7).
func (s *Store) Evict(ctx context.Context, tag string) error {
	if tag == TagAll {
		for _, table := range tagTables {
			if err := s.evictTable(ctx, table); err != nil {
				return err
			}
		}
		return nil
	}
	table, ok := tagTables[tag]
	if !ok {
		return errUnknownTag(tag)
	}
	return s.evictTable(ctx, table)
}

func (s *Store) evictTable(ctx context.Context, table string) error {
	it, err := s.backend.Scan(ctx, table, "")
	if err != nil {
		return err
	}
	var keys []string
	for it.Next() {
		keys = append(keys, it.Key())
	}
	if err := it.Err(); err != nil {
		return err
	}
	for _, k := range keys {
		if err := s.backend.Delete(ctx, table, k); err != nil {
			return err
		}
	}
	return nil
}

// SetQueryResult implements the query cache's accumulative semantics:
// query[key][identity] = value, rather than replacing the whole key.
func (s *Store) SetQueryResult(ctx context.Context, key, identity string, value any) error {
	existing := map[string]any{}
	_, err := s.Get(ctx, TagQuery, key, &existing)
	if err != nil {
		return err
	}
	existing[identity] = value
	return s.Set(ctx, TagQuery, key, existing, 0)
}

type errUnknownTag string

func (e errUnknownTag) Error() string { return "cache: unknown tag: " + string(e) }
