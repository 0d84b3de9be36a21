// Package schemastore persists versioned schema records on a storage.Backend
// with a compare-and-swap guarded latest pointer and a read-through cache.
package schemastore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/c360/schemaregistry/errors"
	"github.com/c360/schemaregistry/health"
	"github.com/c360/schemaregistry/pkg/cache"
	"github.com/c360/schemaregistry/pkg/retry"
	"github.com/c360/schemaregistry/schema"
	"github.com/c360/schemaregistry/storage"
	"github.com/c360/schemaregistry/version"
)

// Key layout.
const (
	keyPrefix = "schemas/"
	latestKey = "latest"
)

// Cache namespaces and keys.
const (
	NamespaceMeta     = "meta"
	NamespaceVersions = "versions"
	KeySchemaList     = "schema_list"
)

// Defaults.
const (
	DefaultOperationTimeout = 5 * time.Second
	DefaultListTTL          = 5 * time.Minute
)

// ErrLatestChanged is returned by PutIfLatest when the latest pointer moved
// after it was read. The version record has been rolled back.
var ErrLatestChanged = fmt.Errorf("latest pointer changed: %w", errors.ErrConflict)

// SchemaNamespace is the cache namespace holding records of one schema id.
func SchemaNamespace(id string) string {
	return "schema:" + id
}

func versionKey(id, v string) string { return keyPrefix + id + "/" + v }
func idPrefix(id string) string      { return keyPrefix + id + "/" }

// Latest is a snapshot of the latest pointer. Revision 0 means no version
// exists for the id.
type Latest struct {
	Record   *schema.Record
	Revision uint64
}

// Exists reports whether the snapshot points at a record.
func (l Latest) Exists() bool {
	return l.Revision != 0 && l.Record != nil
}

// Version returns the version the snapshot points at, or "".
func (l Latest) Version() string {
	if !l.Exists() {
		return ""
	}
	return l.Record.Schema.Version
}

// Option configures a Store.
type Option func(*Store)

// WithCache enables read-through caching.
func WithCache(c *cache.Cache) Option {
	return func(s *Store) { s.cache = c }
}

// WithCacheTTL sets the lifetime of cached records. Zero uses the cache default.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Store) { s.recordTTL = ttl }
}

// WithListTTL sets the lifetime of cached id and version lists.
func WithListTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.listTTL = ttl
		}
	}
}

// WithOperationTimeout bounds every backend call.
func WithOperationTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.opTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store is the schema store.
type Store struct {
	backend   storage.Backend
	cache     *cache.Cache
	records   *cache.JSONCache[schema.Record]
	lists     *cache.JSONCache[[]string]
	recordTTL time.Duration
	listTTL   time.Duration
	opTimeout time.Duration
	logger    *slog.Logger
	now       func() time.Time

	// epochs counts invalidations per id. The empty id covers the id list.
	epochMu sync.Mutex
	epochs  map[string]uint64
}

// New creates a Store over backend.
func New(backend storage.Backend, opts ...Option) *Store {
	s := &Store{
		backend:   backend,
		listTTL:   DefaultListTTL,
		opTimeout: DefaultOperationTimeout,
		logger:    slog.Default(),
		now:       time.Now,
		epochs:    make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "schemastore", "backend", backend.Name())

	if s.cache != nil {
		s.records = cache.NewJSONCache[schema.Record](s.cache, s.recordTTL)
		s.lists = cache.NewJSONCache[[]string](s.cache, s.listTTL)
	}
	return s
}

// Backend returns the backend name.
func (s *Store) Backend() string {
	return s.backend.Name()
}

func (s *Store) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

// Put stores doc as a new immutable version and advances latest when doc is
// the highest version. It does not check compatibility.
func (s *Store) Put(ctx context.Context, doc *schema.Document) (*schema.Record, error) {
	rec, err := s.createVersion(ctx, "Put", doc)
	if err != nil {
		return nil, err
	}

	cfg := retry.Quick()
	cfg.Retryable = func(err error) bool {
		return storage.IsRevisionMismatch(err) || storage.IsKeyExists(err)
	}
	err = retry.Do(ctx, cfg, func() error {
		latest, err := s.Latest(ctx, doc.ID)
		if err != nil {
			return err
		}
		if latest.Exists() {
			cmp, err := version.CompareStrings(doc.Version, latest.Version())
			if err != nil || cmp <= 0 {
				return nil
			}
		}
		return s.swapLatest(ctx, rec, latest)
	})
	if err != nil {
		s.logger.Warn("latest pointer not advanced", "schema", doc.Ref(), "error", err)
		s.rollback(doc)
		return nil, errors.WrapStore(err, "schemastore", "Put", "advance latest")
	}

	s.invalidate(ctx, doc.ID)
	s.logger.Debug("schema stored", "schema", doc.Ref())
	return rec, nil
}

// PutIfLatest stores doc only if the latest pointer is still at expected.
// When doc is above expected it makes one CAS attempt to move latest to doc.
// When it is not, latest must still be at expected's revision. On any
// mismatch the new version record is removed and ErrLatestChanged returned.
func (s *Store) PutIfLatest(ctx context.Context, doc *schema.Document, expected Latest) (*schema.Record, error) {
	rec, err := s.createVersion(ctx, "PutIfLatest", doc)
	if err != nil {
		return nil, err
	}

	advance := true
	if expected.Exists() {
		cmp, err := version.CompareStrings(doc.Version, expected.Version())
		if err != nil {
			s.rollback(doc)
			return nil, errors.WrapInvalid(err, "schemastore", "PutIfLatest", "compare versions")
		}
		advance = cmp > 0
	}

	if advance {
		err = s.swapLatest(ctx, rec, expected)
	} else {
		err = s.verifyLatest(ctx, doc.ID, expected.Revision)
	}

	if err != nil {
		s.rollback(doc)
		if storage.IsRevisionMismatch(err) || storage.IsKeyExists(err) {
			return nil, ErrLatestChanged
		}
		return nil, errors.WrapStore(err, "schemastore", "PutIfLatest", "commit latest")
	}

	s.invalidate(ctx, doc.ID)
	s.logger.Debug("schema committed", "schema", doc.Ref(), "advanced_latest", advance)
	return rec, nil
}

func (s *Store) createVersion(ctx context.Context, method string, doc *schema.Document) (*schema.Record, error) {
	if doc == nil || !schema.ValidID(doc.ID) {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "schemastore", method, "schema id")
	}
	if _, err := version.Parse(doc.Version); err != nil {
		return nil, errors.WrapInvalid(err, "schemastore", method, "schema version")
	}

	rec := schema.NewRecord(*doc, s.now())
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, errors.WrapFatal(err, "schemastore", method, "marshal record")
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	if _, err := s.backend.Create(opCtx, versionKey(doc.ID, doc.Version), data); err != nil {
		if storage.IsKeyExists(err) {
			return nil, errors.Conflict("schemastore", method, fmt.Sprintf("schema %s", doc.Ref()))
		}
		return nil, errors.WrapStore(err, "schemastore", method, "create version")
	}
	return rec, nil
}

// swapLatest points latest at rec, conditional on latest still being at
// expected. Backend conflict errors are returned unwrapped.
func (s *Store) swapLatest(ctx context.Context, rec *schema.Record, expected Latest) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.WrapFatal(err, "schemastore", "swapLatest", "marshal record")
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	key := versionKey(rec.Schema.ID, latestKey)
	if expected.Revision == 0 {
		_, err = s.backend.Create(opCtx, key, data)
	} else {
		_, err = s.backend.Update(opCtx, key, data, expected.Revision)
	}
	return err
}

func (s *Store) verifyLatest(ctx context.Context, id string, revision uint64) error {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	entry, err := s.backend.Get(opCtx, versionKey(id, latestKey))
	switch {
	case storage.IsKeyNotFound(err):
		if revision == 0 {
			return nil
		}
		return storage.ErrRevisionMismatch
	case err != nil:
		return err
	case entry.Revision != revision:
		return storage.ErrRevisionMismatch
	}
	return nil
}

// rollback removes a version record whose commit lost the race. It runs on
// a fresh context so a canceled request still cleans up.
func (s *Store) rollback(doc *schema.Document) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
	defer cancel()

	if _, err := s.backend.Delete(ctx, versionKey(doc.ID, doc.Version)); err != nil {
		s.logger.Error("rollback of uncommitted version failed", "schema", doc.Ref(), "error", err)
	}
	s.invalidate(ctx, doc.ID)
}

// Latest reads the latest pointer and its revision. It bypasses the cache.
func (s *Store) Latest(ctx context.Context, id string) (Latest, error) {
	if !schema.ValidID(id) {
		return Latest{}, nil
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	entry, err := s.backend.Get(opCtx, versionKey(id, latestKey))
	if err != nil {
		if storage.IsKeyNotFound(err) {
			return Latest{}, nil
		}
		return Latest{}, errors.WrapStore(err, "schemastore", "Latest", "get latest")
	}

	rec, err := decodeRecord(entry.Value)
	if err != nil {
		return Latest{}, errors.WrapFatal(err, "schemastore", "Latest", "decode record")
	}
	return Latest{Record: rec, Revision: entry.Revision}, nil
}

// Get returns the record for id at v. An empty v means latest.
func (s *Store) Get(ctx context.Context, id, v string) (*schema.Record, error) {
	if v == "" {
		v = latestKey
	}
	if !schema.ValidID(id) {
		return nil, errors.NotFound("schemastore", "Get", fmt.Sprintf("schema %s version %s", id, v))
	}
	if v != latestKey {
		if err := checkVersion("Get", v); err != nil {
			return nil, err
		}
	}

	if s.records != nil {
		if rec, ok := s.records.Get(ctx, SchemaNamespace(id), v); ok {
			return &rec, nil
		}
	}

	epoch := s.epoch(id)
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	entry, err := s.backend.Get(opCtx, versionKey(id, v))
	if err != nil {
		if storage.IsKeyNotFound(err) {
			return nil, errors.NotFound("schemastore", "Get", fmt.Sprintf("schema %s version %s", id, v))
		}
		return nil, errors.WrapStore(err, "schemastore", "Get", "get record")
	}

	rec, err := decodeRecord(entry.Value)
	if err != nil {
		return nil, errors.WrapFatal(err, "schemastore", "Get", "decode record")
	}

	if s.records != nil {
		s.records.Set(ctx, SchemaNamespace(id), v, *rec)
		if s.epoch(id) != epoch {
			s.records.Delete(ctx, SchemaNamespace(id), v)
		}
	}
	return rec, nil
}

// ListIDs returns every stored schema id, sorted.
func (s *Store) ListIDs(ctx context.Context) ([]string, error) {
	if s.lists != nil {
		if ids, ok := s.lists.Get(ctx, NamespaceMeta, KeySchemaList); ok {
			return ids, nil
		}
	}

	epoch := s.epoch("")
	keys, err := s.keys(ctx, keyPrefix)
	if err != nil {
		return nil, errors.WrapStore(err, "schemastore", "ListIDs", "list keys")
	}

	ids := make([]string, 0)
	for _, k := range keys {
		id, _, ok := strings.Cut(strings.TrimPrefix(k, keyPrefix), "/")
		if !ok {
			continue
		}
		// Keys are sorted, so duplicates are adjacent.
		if len(ids) == 0 || ids[len(ids)-1] != id {
			ids = append(ids, id)
		}
	}

	if s.lists != nil {
		s.lists.Set(ctx, NamespaceMeta, KeySchemaList, ids)
		if s.epoch("") != epoch {
			s.lists.Delete(ctx, NamespaceMeta, KeySchemaList)
		}
	}
	return ids, nil
}

// ListVersions returns the stored versions of id in ascending order. An
// unknown id yields an empty list.
func (s *Store) ListVersions(ctx context.Context, id string) ([]string, error) {
	if !schema.ValidID(id) {
		return []string{}, nil
	}

	if s.lists != nil {
		if versions, ok := s.lists.Get(ctx, NamespaceVersions, id); ok {
			return versions, nil
		}
	}

	epoch := s.epoch(id)
	versions, err := s.loadVersions(ctx, id)
	if err != nil {
		return nil, errors.WrapStore(err, "schemastore", "ListVersions", "list keys")
	}

	if s.lists != nil {
		s.lists.Set(ctx, NamespaceVersions, id, versions)
		if s.epoch(id) != epoch {
			s.lists.Delete(ctx, NamespaceVersions, id)
		}
	}
	return versions, nil
}

func (s *Store) loadVersions(ctx context.Context, id string) ([]string, error) {
	keys, err := s.keys(ctx, idPrefix(id))
	if err != nil {
		return nil, err
	}

	versions := make([]string, 0, len(keys))
	for _, k := range keys {
		v := strings.TrimPrefix(k, idPrefix(id))
		if v == latestKey {
			continue
		}
		if _, err := version.Parse(v); err != nil {
			s.logger.Warn("skipping malformed version key", "key", k)
			continue
		}
		versions = append(versions, v)
	}
	return version.SortAscending(versions)
}

func (s *Store) keys(ctx context.Context, prefix string) ([]string, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	return s.backend.Keys(opCtx, prefix)
}

// Delete removes one version, or every version when v is empty. Removing the
// version latest points at moves latest to the highest remaining version,
// or removes it when none remain. It reports whether anything was removed.
func (s *Store) Delete(ctx context.Context, id, v string) (bool, error) {
	if !schema.ValidID(id) || v == latestKey {
		return false, nil
	}
	if v != "" {
		if err := checkVersion("Delete", v); err != nil {
			return false, err
		}
	}

	var deleted bool
	var err error
	if v == "" {
		deleted, err = s.deleteAll(ctx, id)
	} else {
		deleted, err = s.deleteVersion(ctx, id, v)
	}

	if deleted {
		s.invalidate(ctx, id)
	}
	if err != nil {
		return deleted, errors.WrapStore(err, "schemastore", "Delete", "delete")
	}
	return deleted, nil
}

func (s *Store) deleteAll(ctx context.Context, id string) (bool, error) {
	keys, err := s.keys(ctx, idPrefix(id))
	if err != nil {
		return false, err
	}

	deleted := false
	for _, k := range keys {
		opCtx, cancel := s.opContext(ctx)
		ok, err := s.backend.Delete(opCtx, k)
		cancel()
		if err != nil {
			return deleted, err
		}
		deleted = deleted || ok
	}
	return deleted, nil
}

func (s *Store) deleteVersion(ctx context.Context, id, v string) (bool, error) {
	opCtx, cancel := s.opContext(ctx)
	deleted, err := s.backend.Delete(opCtx, versionKey(id, v))
	cancel()
	if err != nil || !deleted {
		return deleted, err
	}

	cfg := retry.Quick()
	cfg.Retryable = storage.IsRevisionMismatch
	err = retry.Do(ctx, cfg, func() error {
		return s.repointLatest(ctx, id, v)
	})
	return true, err
}

// repointLatest moves latest off a deleted version.
func (s *Store) repointLatest(ctx context.Context, id, removed string) error {
	latest, err := s.Latest(ctx, id)
	if err != nil {
		return err
	}
	if !latest.Exists() || latest.Version() != removed {
		return nil
	}

	remaining, err := s.loadVersions(ctx, id)
	if err != nil {
		return err
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	highest, ok := version.Max(remaining)
	if !ok {
		_, err := s.backend.Delete(opCtx, versionKey(id, latestKey))
		return err
	}

	entry, err := s.backend.Get(opCtx, versionKey(id, highest))
	if err != nil {
		return err
	}
	_, err = s.backend.Update(opCtx, versionKey(id, latestKey), entry.Value, latest.Revision)
	if err == nil {
		s.logger.Info("latest repointed after delete", "schema", id, "from", removed, "to", highest)
	}
	return err
}

// HealthCheck pings the backend.
func (s *Store) HealthCheck(ctx context.Context) health.Status {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	err := s.backend.Ping(opCtx)
	return health.FromError("store", err, "backend reachable").WithDetail("backend", s.backend.Name())
}

// epoch returns the invalidation count of id.
func (s *Store) epoch(id string) uint64 {
	s.epochMu.Lock()
	defer s.epochMu.Unlock()
	return s.epochs[id]
}

// invalidate drops every cache entry derived from id. It runs after commit.
// The epoch moves before the entries are cleared, so a read that started
// earlier and caches after the clear sees the change and drops its entry.
func (s *Store) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	s.epochMu.Lock()
	s.epochs[id]++
	s.epochs[""]++
	s.epochMu.Unlock()

	s.cache.ClearNamespace(ctx, SchemaNamespace(id))
	s.cache.Delete(ctx, NamespaceVersions, id)
	s.cache.Delete(ctx, NamespaceMeta, KeySchemaList)
}

// checkVersion rejects a requested version that is not MAJOR.MINOR.PATCH
// before it reaches the backend as part of a key.
func checkVersion(method, v string) error {
	if _, err := version.Parse(v); err != nil {
		return errors.WrapInvalid(errors.NewValidationError("invalid version", err.Error()),
			"schemastore", method, "parse version")
	}
	return nil
}

func decodeRecord(data []byte) (*schema.Record, error) {
	var rec schema.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
