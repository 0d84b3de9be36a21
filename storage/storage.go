// Package storage defines the key-value capability the schema store runs on.
package storage

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/c360/schemaregistry/errors"
)

// Backend names.
const (
	BackendMemory = "memory"
	BackendNATS   = "nats"
	BackendSQLite = "sqlite"
)

// Backend errors. They wrap the registry sentinels so callers can test with
// either errors.Is(err, storage.ErrKeyExists) or errors.IsConflict(err).
var (
	ErrKeyNotFound      = fmt.Errorf("storage: key not found: %w", errors.ErrNotFound)
	ErrKeyExists        = fmt.Errorf("storage: key exists: %w", errors.ErrConflict)
	ErrRevisionMismatch = fmt.Errorf("storage: revision mismatch: %w", errors.ErrConflict)
	ErrClosed           = stderrors.New("storage: backend closed")
)

// Entry is a stored value and the revision it was written at.
type Entry struct {
	Key      string
	Value    []byte
	Revision uint64
}

// Backend is a linearizable key-value store with revision-checked writes.
//
// Keys are "/"-separated paths. Revisions are positive, strictly increasing
// per backend, and never reused, so a revision read before a delete cannot
// match a key recreated after it.
//
// Implementations must be safe for concurrent use.
type Backend interface {
	// Name identifies the backend in logs and health output.
	Name() string

	// Get returns ErrKeyNotFound when key does not exist.
	Get(ctx context.Context, key string) (*Entry, error)

	// Create writes key only if it does not exist, else ErrKeyExists.
	Create(ctx context.Context, key string, value []byte) (uint64, error)

	// Update writes key only if its current revision equals revision, else
	// ErrRevisionMismatch. A missing key is a mismatch.
	Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error)

	// Put writes key unconditionally.
	Put(ctx context.Context, key string, value []byte) (uint64, error)

	// Delete removes key and reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)

	// Keys returns every key starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// IsKeyNotFound reports whether err is a missing key.
func IsKeyNotFound(err error) bool {
	return stderrors.Is(err, ErrKeyNotFound)
}

// IsKeyExists reports whether err is a create on an existing key.
func IsKeyExists(err error) bool {
	return stderrors.Is(err, ErrKeyExists)
}

// IsRevisionMismatch reports whether err is a failed revision check.
func IsRevisionMismatch(err error) bool {
	return stderrors.Is(err, ErrRevisionMismatch)
}
