package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/c360/schemaregistry/storage"
)

// Backend operations that FaultyBackend can fail.
const (
	OpGet    = "get"
	OpCreate = "create"
	OpUpdate = "update"
	OpPut    = "put"
	OpDelete = "delete"
	OpKeys   = "keys"
	OpPing   = "ping"
)

// FaultyBackend wraps a storage.Backend and injects errors or latency.
type FaultyBackend struct {
	storage.Backend

	mu     sync.Mutex
	errs   map[string]error
	delay  time.Duration
	calls  map[string]int
	before func(op, key string)
}

// NewFaultyBackend wraps inner.
func NewFaultyBackend(inner storage.Backend) *FaultyBackend {
	return &FaultyBackend{
		Backend: inner,
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

// FailOn makes op return err. A nil err clears the fault.
func (f *FaultyBackend) FailOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, op)
		return
	}
	f.errs[op] = err
}

// FailAll makes every operation return err. A nil err clears all faults.
func (f *FaultyBackend) FailAll(err error) {
	for _, op := range []string{OpGet, OpCreate, OpUpdate, OpPut, OpDelete, OpKeys, OpPing} {
		f.FailOn(op, err)
	}
}

// SetDelay delays every operation by d or until its context ends.
func (f *FaultyBackend) SetDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

// BeforeEach runs hook before every operation reaches the wrapped backend.
func (f *FaultyBackend) BeforeEach(hook func(op, key string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.before = hook
}

// Calls returns how many times op was invoked.
func (f *FaultyBackend) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *FaultyBackend) enter(ctx context.Context, op, key string) error {
	f.mu.Lock()
	f.calls[op]++
	err := f.errs[op]
	delay := f.delay
	hook := f.before
	f.mu.Unlock()

	if hook != nil {
		hook(op, key)
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *FaultyBackend) Get(ctx context.Context, key string) (*storage.Entry, error) {
	if err := f.enter(ctx, OpGet, key); err != nil {
		return nil, err
	}
	return f.Backend.Get(ctx, key)
}

func (f *FaultyBackend) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	if err := f.enter(ctx, OpCreate, key); err != nil {
		return 0, err
	}
	return f.Backend.Create(ctx, key, value)
}

func (f *FaultyBackend) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	if err := f.enter(ctx, OpUpdate, key); err != nil {
		return 0, err
	}
	return f.Backend.Update(ctx, key, value, revision)
}

func (f *FaultyBackend) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	if err := f.enter(ctx, OpPut, key); err != nil {
		return 0, err
	}
	return f.Backend.Put(ctx, key, value)
}

func (f *FaultyBackend) Delete(ctx context.Context, key string) (bool, error) {
	if err := f.enter(ctx, OpDelete, key); err != nil {
		return false, err
	}
	return f.Backend.Delete(ctx, key)
}

func (f *FaultyBackend) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := f.enter(ctx, OpKeys, prefix); err != nil {
		return nil, err
	}
	return f.Backend.Keys(ctx, prefix)
}

func (f *FaultyBackend) Ping(ctx context.Context) error {
	if err := f.enter(ctx, OpPing, ""); err != nil {
		return err
	}
	return f.Backend.Ping(ctx)
}
