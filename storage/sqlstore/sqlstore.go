// Package sqlstore is a storage.Backend over an embedded SQLite database.
package sqlstore

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/c360/schemaregistry/errors"
	"github.com/c360/schemaregistry/storage"
)

//go:embed schema.sql
var schemaSQL string

// Store keeps entries in a single table. Every write takes the next value of
// a global sequence as its revision.
type Store struct {
	db *sql.DB
}

var _ storage.Backend = (*Store)(nil)

// Open creates or opens the database at path, applies pragmas and creates
// the tables. It is idempotent.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.WrapFatal(err, "sqlstore", "Open", "open database")
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.WrapStore(err, "sqlstore", "Open", "connect")
	}

	// SQLite allows one writer; a single connection serializes writes and
	// keeps the revision sequence consistent.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, errors.WrapFatal(err, "sqlstore", "Open", "apply pragmas")
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, errors.WrapFatal(err, "sqlstore", "Open", "apply schema")
	}

	return &Store{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Name implements storage.Backend.
func (s *Store) Name() string { return storage.BackendSQLite }

// Get implements storage.Backend.
func (s *Store) Get(ctx context.Context, key string) (*storage.Entry, error) {
	entry := &storage.Entry{Key: key}
	err := s.db.QueryRowContext(ctx,
		`SELECT value, revision FROM entries WHERE key = ?`, key).
		Scan(&entry.Value, &entry.Revision)
	if err == sql.ErrNoRows {
		return nil, storage.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return entry, nil
}

// Create implements storage.Backend.
func (s *Store) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	return s.write(ctx, func(tx *sql.Tx, rev uint64) (int64, error) {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO entries (key, value, revision) VALUES (?, ?, ?) ON CONFLICT(key) DO NOTHING`,
			key, value, rev)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		if err == nil && n == 0 {
			return 0, storage.ErrKeyExists
		}
		return n, err
	})
}

// Update implements storage.Backend.
func (s *Store) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	return s.write(ctx, func(tx *sql.Tx, rev uint64) (int64, error) {
		res, err := tx.ExecContext(ctx,
			`UPDATE entries SET value = ?, revision = ? WHERE key = ? AND revision = ?`,
			value, rev, key, revision)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		if err == nil && n == 0 {
			return 0, storage.ErrRevisionMismatch
		}
		return n, err
	})
}

// Put implements storage.Backend.
func (s *Store) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	return s.write(ctx, func(tx *sql.Tx, rev uint64) (int64, error) {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO entries (key, value, revision) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, revision = excluded.revision`,
			key, value, rev)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	})
}

// write allocates the next revision and runs apply in one transaction. A
// rejected write rolls back, so the sequence only advances on success.
func (s *Store) write(ctx context.Context, apply func(tx *sql.Tx, rev uint64) (int64, error)) (uint64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var rev uint64
	if err := tx.QueryRowContext(ctx,
		`UPDATE revision_seq SET last = last + 1 WHERE id = 1 RETURNING last`).Scan(&rev); err != nil {
		return 0, fmt.Errorf("next revision: %w", err)
	}

	if _, err := apply(tx, rev); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return rev, nil
}

// Delete implements storage.Backend.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE key = ?`, key)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", key, err)
	}
	return n > 0, nil
}

// Keys implements storage.Backend.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM entries WHERE key >= ? ORDER BY key`, prefix)
	if err != nil {
		return nil, fmt.Errorf("keys: %w", err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		// Ordered scan: the first key past the prefix ends the range.
		if !strings.HasPrefix(k, prefix) {
			break
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("keys: %w", err)
	}
	return keys, nil
}

// Ping implements storage.Backend.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements storage.Backend.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
