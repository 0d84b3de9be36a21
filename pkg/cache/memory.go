package cache

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/c360/schemaregistry/errors"
)

// BackendMemory names the in-process backend.
const BackendMemory = "memory"

// MemoryBackend is a process-local map. Expired entries are removed lazily by
// the Cache on read and periodically by a cleanup goroutine.
type MemoryBackend struct {
	mu      sync.RWMutex
	items   map[string]Item
	now     func() time.Time
	evictFn func(n int)

	shutdown  chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryBackend starts a memory backend that sweeps expired entries every
// cleanupInterval. A non-positive interval disables the sweep.
func NewMemoryBackend(cleanupInterval time.Duration) *MemoryBackend {
	b := &MemoryBackend{
		items:    make(map[string]Item),
		now:      time.Now,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}

	if cleanupInterval > 0 {
		go b.cleanup(cleanupInterval)
	} else {
		close(b.done)
	}
	return b
}

// Name implements Backend.
func (b *MemoryBackend) Name() string { return BackendMemory }

func (b *MemoryBackend) setClock(now func() time.Time) {
	b.mu.Lock()
	b.now = now
	b.mu.Unlock()
}

func (b *MemoryBackend) onEvict(fn func(n int)) {
	b.mu.Lock()
	b.evictFn = fn
	b.mu.Unlock()
}

// Load implements Backend.
func (b *MemoryBackend) Load(_ context.Context, key string) (Item, bool, error) {
	b.mu.RLock()
	item, ok := b.items[key]
	b.mu.RUnlock()
	return item, ok, nil
}

// Store implements Backend.
func (b *MemoryBackend) Store(_ context.Context, key string, item Item) error {
	b.mu.Lock()
	b.items[key] = item
	b.mu.Unlock()
	return nil
}

// Remove implements Backend.
func (b *MemoryBackend) Remove(_ context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.items[key]
	delete(b.items, key)
	return ok, nil
}

// RemovePrefix implements Backend.
func (b *MemoryBackend) RemovePrefix(_ context.Context, prefix string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for key := range b.items {
		if strings.HasPrefix(key, prefix) {
			delete(b.items, key)
			n++
		}
	}
	return n, nil
}

// Add implements Backend.
func (b *MemoryBackend) Add(_ context.Context, key string, delta int64, expiresAt time.Time) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var current int64
	if item, ok := b.items[key]; ok && !item.Expired(b.now()) {
		n, err := strconv.ParseInt(string(item.Value), 10, 64)
		if err != nil {
			return 0, errors.WrapInvalid(err, "MemoryBackend", "Add", "parse counter")
		}
		current = n
	}

	next := current + delta
	b.items[key] = Item{Value: []byte(strconv.FormatInt(next, 10)), ExpiresAt: expiresAt}
	return next, nil
}

// Len implements Backend. It counts entries not yet swept, expired or not.
func (b *MemoryBackend) Len(_ context.Context) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items), nil
}

// Close stops the cleanup goroutine.
func (b *MemoryBackend) Close() error {
	b.closeOnce.Do(func() { close(b.shutdown) })

	select {
	case <-b.done:
		return nil
	case <-time.After(5 * time.Second):
		return errors.WrapTransient(errors.ErrShuttingDown, "MemoryBackend", "Close", "wait for cleanup goroutine")
	}
}

func (b *MemoryBackend) cleanup(interval time.Duration) {
	defer close(b.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.shutdown:
			return
		case <-ticker.C:
			b.removeExpired()
		}
	}
}

func (b *MemoryBackend) removeExpired() int {
	b.mu.Lock()
	now := b.now()
	n := 0
	for key, item := range b.items {
		if item.Expired(now) {
			delete(b.items, key)
			n++
		}
	}
	evictFn := b.evictFn
	b.mu.Unlock()

	if n > 0 && evictFn != nil {
		evictFn(n)
	}
	return n
}
