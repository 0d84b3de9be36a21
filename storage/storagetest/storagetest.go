// Package storagetest checks a storage.Backend against the shared contract.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/schemaregistry/errors"
	"github.com/c360/schemaregistry/storage"
)

// Factory returns a fresh, empty backend. The suite closes it.
type Factory func(t *testing.T) storage.Backend

// Run executes the contract tests, each against a new backend from factory.
func Run(t *testing.T, factory Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, ctx context.Context, b storage.Backend)
	}{
		{"GetMissing", testGetMissing},
		{"CreateOnce", testCreateOnce},
		{"UpdateCAS", testUpdateCAS},
		{"Put", testPut},
		{"RevisionsNotReused", testRevisionsNotReused},
		{"Delete", testDelete},
		{"KeysPrefix", testKeysPrefix},
		{"ConcurrentCAS", testConcurrentCAS},
		{"Ping", testPing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			b := factory(t)
			defer b.Close()
			tt.fn(t, ctx, b)
		})
	}
}

func testGetMissing(t *testing.T, ctx context.Context, b storage.Backend) {
	_, err := b.Get(ctx, "schemas/missing/1.0.0")
	require.Error(t, err)
	assert.True(t, storage.IsKeyNotFound(err))
	assert.True(t, errors.IsNotFound(err))
}

func testCreateOnce(t *testing.T, ctx context.Context, b storage.Backend) {
	rev, err := b.Create(ctx, "schemas/orders/1.0.0", []byte(`{"v":1}`))
	require.NoError(t, err)
	assert.Positive(t, rev)

	_, err = b.Create(ctx, "schemas/orders/1.0.0", []byte(`{"v":2}`))
	require.Error(t, err)
	assert.True(t, storage.IsKeyExists(err))
	assert.True(t, errors.IsConflict(err))

	entry, err := b.Get(ctx, "schemas/orders/1.0.0")
	require.NoError(t, err)
	assert.Equal(t, `{"v":1}`, string(entry.Value))
	assert.Equal(t, rev, entry.Revision)
	assert.Equal(t, "schemas/orders/1.0.0", entry.Key)
}

func testUpdateCAS(t *testing.T, ctx context.Context, b storage.Backend) {
	_, err := b.Update(ctx, "schemas/orders/latest", []byte("x"), 1)
	assert.True(t, storage.IsRevisionMismatch(err), "update of a missing key is a mismatch")

	rev1, err := b.Create(ctx, "schemas/orders/latest", []byte("a"))
	require.NoError(t, err)

	rev2, err := b.Update(ctx, "schemas/orders/latest", []byte("b"), rev1)
	require.NoError(t, err)
	assert.Greater(t, rev2, rev1)

	_, err = b.Update(ctx, "schemas/orders/latest", []byte("c"), rev1)
	require.Error(t, err)
	assert.True(t, storage.IsRevisionMismatch(err))
	assert.True(t, errors.IsConflict(err))

	entry, err := b.Get(ctx, "schemas/orders/latest")
	require.NoError(t, err)
	assert.Equal(t, "b", string(entry.Value))
	assert.Equal(t, rev2, entry.Revision)
}

func testPut(t *testing.T, ctx context.Context, b storage.Backend) {
	rev1, err := b.Put(ctx, "k", []byte("1"))
	require.NoError(t, err)
	rev2, err := b.Put(ctx, "k", []byte("2"))
	require.NoError(t, err)
	assert.Greater(t, rev2, rev1)

	entry, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "2", string(entry.Value))
}

func testRevisionsNotReused(t *testing.T, ctx context.Context, b storage.Backend) {
	rev, err := b.Create(ctx, "k", []byte("1"))
	require.NoError(t, err)

	deleted, err := b.Delete(ctx, "k")
	require.NoError(t, err)
	require.True(t, deleted)

	rev2, err := b.Create(ctx, "k", []byte("2"))
	require.NoError(t, err)
	assert.NotEqual(t, rev, rev2)

	_, err = b.Update(ctx, "k", []byte("3"), rev)
	assert.True(t, storage.IsRevisionMismatch(err))
}

func testDelete(t *testing.T, ctx context.Context, b storage.Backend) {
	deleted, err := b.Delete(ctx, "nothing")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = b.Put(ctx, "k", []byte("v"))
	require.NoError(t, err)

	deleted, err = b.Delete(ctx, "k")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = b.Get(ctx, "k")
	assert.True(t, storage.IsKeyNotFound(err))
}

func testKeysPrefix(t *testing.T, ctx context.Context, b storage.Backend) {
	keys, err := b.Keys(ctx, "schemas/")
	require.NoError(t, err)
	assert.Empty(t, keys)

	for _, k := range []string{
		"schemas/orders/1.1.0",
		"schemas/orders/1.0.0",
		"schemas/orders/latest",
		"schemas/orders_v2/1.0.0",
		"other/x",
	} {
		_, err := b.Put(ctx, k, []byte("v"))
		require.NoError(t, err)
	}

	keys, err = b.Keys(ctx, "schemas/orders/")
	require.NoError(t, err)
	assert.Equal(t, []string{"schemas/orders/1.0.0", "schemas/orders/1.1.0", "schemas/orders/latest"}, keys)

	keys, err = b.Keys(ctx, "schemas/")
	require.NoError(t, err)
	assert.Len(t, keys, 4)

	keys, err = b.Keys(ctx, "")
	require.NoError(t, err)
	assert.Len(t, keys, 5)
}

func testConcurrentCAS(t *testing.T, ctx context.Context, b storage.Backend) {
	rev, err := b.Create(ctx, "schemas/orders/latest", []byte("base"))
	require.NoError(t, err)

	const writers = 8
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := b.Update(ctx, "schemas/orders/latest", []byte(fmt.Sprintf("w%d", i)), rev)
			if err == nil {
				wins.Add(1)
				return
			}
			assert.True(t, storage.IsRevisionMismatch(err), "unexpected error: %v", err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func testPing(t *testing.T, ctx context.Context, b storage.Backend) {
	assert.NoError(t, b.Ping(ctx))
	assert.NotEmpty(t, b.Name())
}
