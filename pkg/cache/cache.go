package cache

import (
	"context"
	"encoding/base64"
	"log/slog"
	"time"

	"github.com/c360/schemaregistry/errors"
	"github.com/c360/schemaregistry/metric"
)

// Default lifetimes.
const (
	DefaultTTL        = 10 * time.Minute
	DefaultCounterTTL = time.Hour
)

// Item is a stored value and its absolute expiry.
type Item struct {
	Value     []byte
	ExpiresAt time.Time
}

// Expired reports whether the item is past its expiry at now.
func (i Item) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

// Backend is the storage tier behind a Cache. Keys reaching a Backend are
// already namespaced. Backends do not enforce expiry on Load; the Cache does.
type Backend interface {
	Name() string
	Load(ctx context.Context, key string) (Item, bool, error)
	Store(ctx context.Context, key string, item Item) error
	Remove(ctx context.Context, key string) (bool, error)
	RemovePrefix(ctx context.Context, prefix string) (int, error)
	// Add adds delta to the decimal counter at key, treating a missing or
	// expired entry as zero, and stores the result with expiresAt.
	Add(ctx context.Context, key string, delta int64, expiresAt time.Time) (int64, error)
	Len(ctx context.Context) (int, error)
	Close() error
}

// evictionReporter is implemented by backends that expire entries on their own.
type evictionReporter interface {
	onEvict(func(n int))
}

// clockSetter is implemented by backends that compare against the current time.
type clockSetter interface {
	setClock(now func() time.Time)
}

// Option configures a Cache.
type Option func(*Cache)

// WithDefaultTTL sets the lifetime used when Set is given ttl <= 0.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.defaultTTL = ttl
		}
	}
}

// WithCounterTTL sets the lifetime applied on every Increment.
func WithCounterTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.counterTTL = ttl
		}
	}
}

// WithLogger sets the logger for swallowed backend errors.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics exports cache statistics as Prometheus metrics.
func WithMetrics(registry metric.MetricsRegistrar) Option {
	return func(c *Cache) {
		c.registry = registry
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// Cache is a namespaced TTL cache over a Backend. It is best-effort: backend
// failures are logged and reported as misses, never returned to readers.
type Cache struct {
	backend    Backend
	defaultTTL time.Duration
	counterTTL time.Duration
	logger     *slog.Logger
	now        func() time.Time

	stats    *Statistics
	registry metric.MetricsRegistrar
	metrics  *cacheMetrics
}

// New wraps backend in a Cache.
func New(backend Backend, opts ...Option) *Cache {
	c := &Cache{
		backend:    backend,
		defaultTTL: DefaultTTL,
		counterTTL: DefaultCounterTTL,
		logger:     slog.Default(),
		now:        time.Now,
		stats:      NewStatistics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "cache", "backend", backend.Name())

	if c.registry != nil {
		m, err := newCacheMetrics(c.registry, backend.Name())
		if err != nil {
			c.logger.Warn("cache metrics registration failed", "error", err)
		} else {
			c.metrics = m
		}
	}

	if cs, ok := backend.(clockSetter); ok {
		cs.setClock(c.now)
	}

	if r, ok := backend.(evictionReporter); ok {
		r.onEvict(func(n int) {
			for i := 0; i < n; i++ {
				c.recordEviction()
			}
		})
	}

	return c
}

// Backend returns the backend name, "memory" or "external".
func (c *Cache) Backend() string {
	return c.backend.Name()
}

// Get returns the value under ns/key. Expired entries are evicted and missed.
func (c *Cache) Get(ctx context.Context, ns, key string) ([]byte, bool) {
	k, err := namespacedKey(ns, key)
	if err != nil {
		c.recordMiss()
		return nil, false
	}

	item, ok, err := c.backend.Load(ctx, k)
	if err != nil {
		c.logger.Warn("cache get failed", "namespace", ns, "key", key, "error", err)
		c.recordMiss()
		return nil, false
	}
	if !ok {
		c.recordMiss()
		return nil, false
	}

	if item.Expired(c.now()) {
		if removed, err := c.backend.Remove(ctx, k); err != nil {
			c.logger.Warn("cache evict failed", "namespace", ns, "key", key, "error", err)
		} else if removed {
			c.recordEviction()
		}
		c.recordMiss()
		return nil, false
	}

	c.recordHit()
	return item.Value, true
}

// Set stores value under ns/key for ttl, or the default TTL when ttl <= 0.
// It reports whether the value was stored.
func (c *Cache) Set(ctx context.Context, ns, key string, value []byte, ttl time.Duration) bool {
	k, err := namespacedKey(ns, key)
	if err != nil {
		c.logger.Warn("cache set rejected", "error", err)
		return false
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	if err := c.backend.Store(ctx, k, Item{Value: value, ExpiresAt: c.now().Add(ttl)}); err != nil {
		c.logger.Warn("cache set failed", "namespace", ns, "key", key, "error", err)
		return false
	}

	c.stats.Set()
	return true
}

// Delete removes ns/key and reports whether it existed.
func (c *Cache) Delete(ctx context.Context, ns, key string) bool {
	k, err := namespacedKey(ns, key)
	if err != nil {
		return false
	}

	removed, err := c.backend.Remove(ctx, k)
	if err != nil {
		c.logger.Warn("cache delete failed", "namespace", ns, "key", key, "error", err)
		return false
	}
	if removed {
		c.stats.Delete()
	}
	return removed
}

// ClearNamespace removes every key in ns and returns how many were removed.
func (c *Cache) ClearNamespace(ctx context.Context, ns string) int {
	if ns == "" {
		return 0
	}

	n, err := c.backend.RemovePrefix(ctx, namespacePrefix(ns))
	if err != nil {
		c.logger.Warn("cache clear failed", "namespace", ns, "error", err)
	}
	for i := 0; i < n; i++ {
		c.stats.Delete()
	}
	return n
}

// Increment adds amount to the counter at ns/key and refreshes its lifetime
// to the counter TTL. A missing or expired counter starts from zero.
func (c *Cache) Increment(ctx context.Context, ns, key string, amount int64) (int64, error) {
	k, err := namespacedKey(ns, key)
	if err != nil {
		return 0, err
	}

	n, err := c.backend.Add(ctx, k, amount, c.now().Add(c.counterTTL))
	if err != nil {
		c.logger.Warn("cache increment failed", "namespace", ns, "key", key, "error", err)
		return 0, errors.Wrap(err, "Cache", "Increment", "add to counter")
	}
	return n, nil
}

// Stats returns a snapshot of cache statistics.
func (c *Cache) Stats(ctx context.Context) Stats {
	size, err := c.backend.Len(ctx)
	if err != nil {
		c.logger.Warn("cache size unavailable", "error", err)
		size = -1
	} else {
		c.stats.UpdateSize(int64(size))
		if c.metrics != nil {
			c.metrics.updateSize(size)
		}
	}

	return Stats{
		Backend:   c.backend.Name(),
		Size:      size,
		Hits:      c.stats.Hits(),
		Misses:    c.stats.Misses(),
		Sets:      c.stats.Sets(),
		Deletes:   c.stats.Deletes(),
		Evictions: c.stats.Evictions(),
		HitRatio:  c.stats.HitRatio(),
	}
}

// Ping reports whether the backend answers.
func (c *Cache) Ping(ctx context.Context) error {
	_, err := c.backend.Len(ctx)
	return err
}

// Close releases backend resources.
func (c *Cache) Close() error {
	return c.backend.Close()
}

func (c *Cache) recordHit() {
	c.stats.Hit()
	if c.metrics != nil {
		c.metrics.recordHit()
	}
}

func (c *Cache) recordMiss() {
	c.stats.Miss()
	if c.metrics != nil {
		c.metrics.recordMiss()
	}
}

func (c *Cache) recordEviction() {
	c.stats.Eviction()
	if c.metrics != nil {
		c.metrics.recordEviction()
	}
}

// Keys are base64url(ns) "." base64url(key). The alphabet excludes ".", so a
// namespace prefix never matches a longer namespace, and the result is a
// valid NATS KV key.
var keyEncoding = base64.RawURLEncoding

func namespacePrefix(ns string) string {
	return keyEncoding.EncodeToString([]byte(ns)) + "."
}

func namespacedKey(ns, key string) (string, error) {
	if ns == "" || key == "" {
		return "", errors.WrapInvalid(errors.ErrInvalidData, "cache", "namespacedKey",
			"namespace and key cannot be empty")
	}
	return namespacePrefix(ns) + keyEncoding.EncodeToString([]byte(key)), nil
}
