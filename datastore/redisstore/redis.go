// Package redisstore is the optional third datastore backend spec.md
// §4.5 allows: a remote key-value store addressed by an RFC-1738-style
// URL (redis://...).
//
// Grounded on the original source's directord/datastores/redis.py
// (redis.Redis.from_url, get/set/keys) and on Quatton-qwex's dependency on
// and use of github.com/redis/go-redis/v9 throughout its services layer.
package redisstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/directord/directord/datastore"
)

// Store is a redis-backed datastore.Store. Each (table, key) pair maps to
// a single redis key "table:key", matching redis.py's flat keyspace
// design but namespaced per table to avoid collisions across tables.
type Store struct {
	client *redis.Client
}

// Open parses url (redis://host:port/db) and returns a connected Store.
func Open(url string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redisstore: parse url: %w", err)
	}
	return &Store{client: redis.NewClient(opts)}, nil
}

func redisKey(table, key string) string {
	return table + ":" + key
}

func (s *Store) Get(ctx context.Context, table, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, redisKey(table, key)).Bytes()
	if err == redis.Nil {
		return nil, datastore.ErrNotFound
	}
	return b, err
}

func (s *Store) Put(ctx context.Context, table, key string, value []byte) error {
	return s.client.Set(ctx, redisKey(table, key), value, 0).Err()
}

func (s *Store) Delete(ctx context.Context, table, key string) error {
	return s.client.Del(ctx, redisKey(table, key)).Err()
}

// Scan uses a SCAN cursor over "table:prefix*", matching redis.py's use
// of client.keys() generalized to the non-blocking cursor API.
func (s *Store) Scan(ctx context.Context, table, prefix string) (datastore.Iterator, error) {
	pattern := redisKey(table, prefix) + "*"
	var keys []string
	var values [][]byte
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	prefixLen := len(table) + 1
	for iter.Next(ctx) {
		full := iter.Val()
		v, err := s.client.Get(ctx, full).Bytes()
		if err != nil {
			continue
		}
		keys = append(keys, full[prefixLen:])
		values = append(values, v)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return datastore.NewSliceIterator(keys, values), nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
