// Package kvstore is a storage.Backend over a NATS JetStream KV bucket.
package kvstore

import (
	"context"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/schemaregistry/errors"
	"github.com/c360/schemaregistry/natsclient"
	"github.com/c360/schemaregistry/storage"
)

// DefaultBucket holds schema records.
const DefaultBucket = "schemaregistry_schemas"

// Store adapts natsclient.KVStore to storage.Backend.
type Store struct {
	kv *natsclient.KVStore
}

var _ storage.Backend = (*Store)(nil)

// Open creates or opens bucket on client and wraps it.
func Open(ctx context.Context, client *natsclient.Client, bucket string, opts ...func(*natsclient.KVOptions)) (*Store, error) {
	if client == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "kvstore", "Open", "nats client cannot be nil")
	}
	if bucket == "" {
		bucket = DefaultBucket
	}

	kv, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "Versioned schema records and latest pointers",
		History:     5,
	})
	if err != nil {
		return nil, errors.WrapStore(err, "kvstore", "Open", "create KV bucket")
	}

	return New(client.NewKVStore(kv, opts...)), nil
}

// New wraps an opened KVStore.
func New(kv *natsclient.KVStore) *Store {
	return &Store{kv: kv}
}

// Name implements storage.Backend.
func (s *Store) Name() string { return storage.BackendNATS }

// Get implements storage.Backend.
func (s *Store) Get(ctx context.Context, key string) (*storage.Entry, error) {
	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, mapError(err)
	}
	return &storage.Entry{Key: entry.Key, Value: entry.Value, Revision: entry.Revision}, nil
}

// Create implements storage.Backend.
func (s *Store) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	rev, err := s.kv.Create(ctx, key, value)
	if err != nil {
		if natsclient.IsKVConflictError(err) {
			return 0, storage.ErrKeyExists
		}
		return 0, mapError(err)
	}
	return rev, nil
}

// Update implements storage.Backend.
func (s *Store) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	rev, err := s.kv.Update(ctx, key, value, revision)
	if err != nil {
		if natsclient.IsKVConflictError(err) || natsclient.IsKVNotFoundError(err) {
			return 0, storage.ErrRevisionMismatch
		}
		return 0, mapError(err)
	}
	return rev, nil
}

// Put implements storage.Backend.
func (s *Store) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	rev, err := s.kv.Put(ctx, key, value)
	if err != nil {
		return 0, mapError(err)
	}
	return rev, nil
}

// Delete implements storage.Backend. JetStream deletes are tombstones that
// succeed on missing keys, so existence is read first.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	if _, err := s.kv.Get(ctx, key); err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return false, nil
		}
		return false, mapError(err)
	}
	if err := s.kv.Delete(ctx, key); err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return false, nil
		}
		return false, mapError(err)
	}
	return true, nil
}

// Keys implements storage.Backend.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := s.kv.Keys(ctx, prefix)
	if err != nil {
		return nil, mapError(err)
	}
	return keys, nil
}

// Ping implements storage.Backend.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.kv.Status(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

// Close implements storage.Backend. The connection belongs to the caller.
func (s *Store) Close() error { return nil }

func mapError(err error) error {
	if natsclient.IsKVNotFoundError(err) {
		return storage.ErrKeyNotFound
	}
	return err
}
