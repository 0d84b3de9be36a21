package cache

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newMemoryCache(t *testing.T, opts ...Option) *Cache {
	t.Helper()
	c := New(NewMemoryBackend(0), opts...)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCacheGetSet(t *testing.T) {
	ctx := context.Background()
	c := newMemoryCache(t)

	_, ok := c.Get(ctx, "schema:orders", "1.0.0")
	assert.False(t, ok)

	assert.True(t, c.Set(ctx, "schema:orders", "1.0.0", []byte(`{"id":"orders"}`), 0))

	got, ok := c.Get(ctx, "schema:orders", "1.0.0")
	require.True(t, ok)
	assert.Equal(t, `{"id":"orders"}`, string(got))

	_, ok = c.Get(ctx, "schema:orders", "latest")
	assert.False(t, ok)

	assert.Equal(t, "memory", c.Backend())
}

func TestCacheRejectsEmptyNames(t *testing.T) {
	ctx := context.Background()
	c := newMemoryCache(t)

	assert.False(t, c.Set(ctx, "", "k", []byte("v"), 0))
	assert.False(t, c.Set(ctx, "ns", "", []byte("v"), 0))
	_, ok := c.Get(ctx, "", "k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.ClearNamespace(ctx, ""))
}

func TestCacheExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := newMemoryCache(t, WithClock(clock.Now), WithDefaultTTL(time.Minute))

	c.Set(ctx, "meta", "schema_list", []byte(`["orders"]`), 0)
	c.Set(ctx, "versions", "orders", []byte(`["1.0.0"]`), 5*time.Minute)

	clock.Advance(59 * time.Second)
	_, ok := c.Get(ctx, "meta", "schema_list")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.Get(ctx, "meta", "schema_list")
	assert.False(t, ok, "entry expires at exactly its ttl")

	_, ok = c.Get(ctx, "versions", "orders")
	assert.True(t, ok)

	stats := c.Stats(ctx)
	assert.Equal(t, int64(1), stats.Evictions)
	assert.Equal(t, 1, stats.Size)
}

func TestCacheDelete(t *testing.T) {
	ctx := context.Background()
	c := newMemoryCache(t)

	c.Set(ctx, "schema:orders", "latest", []byte("x"), 0)
	assert.True(t, c.Delete(ctx, "schema:orders", "latest"))
	assert.False(t, c.Delete(ctx, "schema:orders", "latest"))

	_, ok := c.Get(ctx, "schema:orders", "latest")
	assert.False(t, ok)
}

func TestCacheClearNamespaceIsolation(t *testing.T) {
	ctx := context.Background()
	c := newMemoryCache(t)

	c.Set(ctx, "schema:orders", "1.0.0", []byte("a"), 0)
	c.Set(ctx, "schema:orders", "latest", []byte("a"), 0)
	c.Set(ctx, "schema:orders_v2", "1.0.0", []byte("b"), 0)
	c.Set(ctx, "schema:order", "1.0.0", []byte("c"), 0)

	assert.Equal(t, 2, c.ClearNamespace(ctx, "schema:orders"))

	_, ok := c.Get(ctx, "schema:orders", "1.0.0")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "schema:orders_v2", "1.0.0")
	assert.True(t, ok)
	_, ok = c.Get(ctx, "schema:order", "1.0.0")
	assert.True(t, ok)

	assert.Equal(t, 0, c.ClearNamespace(ctx, "schema:missing"))
}

func TestCacheIncrement(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := newMemoryCache(t, WithClock(clock.Now), WithCounterTTL(time.Hour))

	n, err := c.Increment(ctx, "metrics", "creates", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = c.Increment(ctx, "metrics", "creates", 4)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	raw, ok := c.Get(ctx, "metrics", "creates")
	require.True(t, ok)
	assert.Equal(t, "5", string(raw))

	// Each increment pushes the expiry forward.
	clock.Advance(50 * time.Minute)
	n, err = c.Increment(ctx, "metrics", "creates", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)

	clock.Advance(50 * time.Minute)
	_, ok = c.Get(ctx, "metrics", "creates")
	assert.True(t, ok)

	clock.Advance(11 * time.Minute)
	n, err = c.Increment(ctx, "metrics", "creates", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "expired counter restarts from zero")
}

func TestCacheIncrementNonNumeric(t *testing.T) {
	ctx := context.Background()
	c := newMemoryCache(t)

	c.Set(ctx, "metrics", "label", []byte("abc"), 0)
	_, err := c.Increment(ctx, "metrics", "label", 1)
	assert.Error(t, err)
}

func TestCacheConcurrentIncrement(t *testing.T) {
	ctx := context.Background()
	c := newMemoryCache(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Increment(ctx, "metrics", "hits", 2)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	raw, ok := c.Get(ctx, "metrics", "hits")
	require.True(t, ok)
	assert.Equal(t, "100", string(raw))
}

func TestCacheStats(t *testing.T) {
	ctx := context.Background()
	c := newMemoryCache(t)

	c.Set(ctx, "ns", "a", []byte("1"), 0)
	c.Set(ctx, "ns", "b", []byte("2"), 0)
	c.Get(ctx, "ns", "a")
	c.Get(ctx, "ns", "a")
	c.Get(ctx, "ns", "c")
	c.Delete(ctx, "ns", "b")

	stats := c.Stats(ctx)
	assert.Equal(t, "memory", stats.Backend)
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(2), stats.Sets)
	assert.Equal(t, int64(1), stats.Deletes)
	assert.InDelta(t, 2.0/3.0, stats.HitRatio, 0.0001)
}

func TestMemoryBackendCleanup(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	backend := NewMemoryBackend(10 * time.Millisecond)
	c := New(backend, WithClock(clock.Now))
	defer c.Close()

	c.Set(ctx, "ns", "short", []byte("x"), time.Second)
	c.Set(ctx, "ns", "long", []byte("y"), time.Hour)
	clock.Advance(2 * time.Second)

	assert.Eventually(t, func() bool {
		n, _ := backend.Len(ctx)
		return n == 1
	}, time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		return c.Stats(ctx).Evictions == 1
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryBackendCloseIdempotent(t *testing.T) {
	b := NewMemoryBackend(time.Millisecond)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
}

// failingBackend fails every call.
type failingBackend struct{}

var errBackendDown = stderrors.New("backend down")

func (failingBackend) Name() string { return BackendExternal }
func (failingBackend) Load(context.Context, string) (Item, bool, error) {
	return Item{}, false, errBackendDown
}
func (failingBackend) Store(context.Context, string, Item) error { return errBackendDown }
func (failingBackend) Remove(context.Context, string) (bool, error) {
	return false, errBackendDown
}
func (failingBackend) RemovePrefix(context.Context, string) (int, error) {
	return 0, errBackendDown
}
func (failingBackend) Add(context.Context, string, int64, time.Time) (int64, error) {
	return 0, errBackendDown
}
func (failingBackend) Len(context.Context) (int, error) { return 0, errBackendDown }
func (failingBackend) Close() error                     { return nil }

func TestCacheSwallowsBackendFailures(t *testing.T) {
	ctx := context.Background()
	c := New(failingBackend{})

	assert.False(t, c.Set(ctx, "ns", "k", []byte("v"), 0))
	_, ok := c.Get(ctx, "ns", "k")
	assert.False(t, ok)
	assert.False(t, c.Delete(ctx, "ns", "k"))
	assert.Equal(t, 0, c.ClearNamespace(ctx, "ns"))

	_, err := c.Increment(ctx, "ns", "k", 1)
	assert.ErrorIs(t, err, errBackendDown)

	stats := c.Stats(ctx)
	assert.Equal(t, -1, stats.Size)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Error(t, c.Ping(ctx))
}

func TestNamespacedKey(t *testing.T) {
	k, err := namespacedKey("schema:orders", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, namespacePrefix("schema:orders")+"MS4wLjA", k)
	assert.NotContains(t, k, ":")

	_, err = namespacedKey("", "x")
	assert.Error(t, err)
}

type point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func TestJSONCache(t *testing.T) {
	ctx := context.Background()
	c := newMemoryCache(t)
	pts := NewJSONCache[[]point](c, time.Minute)

	_, ok := pts.Get(ctx, "points", "a")
	assert.False(t, ok)

	assert.True(t, pts.Set(ctx, "points", "a", []point{{1, 2}, {3, 4}}))
	got, ok := pts.Get(ctx, "points", "a")
	require.True(t, ok)
	assert.Equal(t, []point{{1, 2}, {3, 4}}, got)

	c.Set(ctx, "points", "bad", []byte("{"), 0)
	_, ok = pts.Get(ctx, "points", "bad")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "points", "bad")
	assert.False(t, ok, "undecodable entry is dropped")

	assert.True(t, pts.Delete(ctx, "points", "a"))
}

func BenchmarkCacheGet(b *testing.B) {
	ctx := context.Background()
	c := New(NewMemoryBackend(0))
	defer c.Close()

	for i := 0; i < 1000; i++ {
		c.Set(ctx, "bench", fmt.Sprintf("key-%d", i), []byte("value"), 0)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			c.Get(ctx, "bench", fmt.Sprintf("key-%d", i%1000))
			i++
		}
	})
}
