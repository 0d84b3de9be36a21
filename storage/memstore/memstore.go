// Package memstore is an in-process storage.Backend.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/c360/schemaregistry/storage"
)

type record struct {
	value    []byte
	revision uint64
}

// Store keeps entries in a map guarded by a mutex. Revisions come from a
// single counter so they are never reused.
type Store struct {
	mu      sync.RWMutex
	entries map[string]record
	seq     uint64
	closed  bool
}

var _ storage.Backend = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{entries: make(map[string]record)}
}

// Name implements storage.Backend.
func (s *Store) Name() string { return storage.BackendMemory }

// Get implements storage.Backend.
func (s *Store) Get(ctx context.Context, key string) (*storage.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, storage.ErrClosed
	}
	rec, ok := s.entries[key]
	if !ok {
		return nil, storage.ErrKeyNotFound
	}
	return &storage.Entry{Key: key, Value: clone(rec.value), Revision: rec.revision}, nil
}

// Create implements storage.Backend.
func (s *Store) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	return s.write(ctx, key, value, func(_ record, exists bool) error {
		if exists {
			return storage.ErrKeyExists
		}
		return nil
	})
}

// Update implements storage.Backend.
func (s *Store) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	return s.write(ctx, key, value, func(current record, exists bool) error {
		if !exists || current.revision != revision {
			return storage.ErrRevisionMismatch
		}
		return nil
	})
}

// Put implements storage.Backend.
func (s *Store) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	return s.write(ctx, key, value, func(record, bool) error { return nil })
}

func (s *Store) write(ctx context.Context, key string, value []byte, check func(record, bool) error) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, storage.ErrClosed
	}
	current, exists := s.entries[key]
	if err := check(current, exists); err != nil {
		return 0, err
	}

	s.seq++
	s.entries[key] = record{value: clone(value), revision: s.seq}
	return s.seq, nil
}

// Delete implements storage.Backend.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, storage.ErrClosed
	}
	_, ok := s.entries[key]
	delete(s.entries, key)
	return ok, nil
}

// Keys implements storage.Backend.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, storage.ErrClosed
	}
	keys := make([]string, 0)
	for k := range s.entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Ping implements storage.Backend.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return storage.ErrClosed
	}
	return nil
}

// Close implements storage.Backend. Later calls fail with storage.ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
