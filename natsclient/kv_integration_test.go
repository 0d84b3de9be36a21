//go:build integration

package natsclient

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_ConnectAndPublish(t *testing.T) {
	tc := NewTestClient(t)
	ctx := context.Background()

	received := make(chan []byte, 1)
	require.NoError(t, tc.Client.Subscribe(ctx, "schemaregistry.events.system_events", func(_ context.Context, data []byte) {
		received <- data
	}))
	require.NoError(t, tc.Client.Publish(ctx, "schemaregistry.events.system_events", []byte(`{"ok":true}`)))

	select {
	case data := <-received:
		assert.JSONEq(t, `{"ok":true}`, string(data))
	case <-time.After(5 * time.Second):
		t.Fatal("message not received")
	}

	rtt, err := tc.Client.RTT()
	require.NoError(t, err)
	assert.Greater(t, rtt, time.Duration(0))
}

func TestIntegration_KVStoreBasicOperations(t *testing.T) {
	tc := NewTestClient(t, WithJetStream())
	kv := tc.KVStore(t, "schemas-basic")
	ctx := context.Background()

	_, err := kv.Get(ctx, "schemas/orders/1.0.0")
	assert.ErrorIs(t, err, ErrKVKeyNotFound)

	keys, err := kv.Keys(ctx, "schemas/")
	require.NoError(t, err)
	assert.Empty(t, keys)

	rev, err := kv.Create(ctx, "schemas/orders/1.0.0", []byte("v1"))
	require.NoError(t, err)

	_, err = kv.Create(ctx, "schemas/orders/1.0.0", []byte("again"))
	assert.ErrorIs(t, err, ErrKVKeyExists)

	entry, err := kv.Get(ctx, "schemas/orders/1.0.0")
	require.NoError(t, err)
	assert.Equal(t, rev, entry.Revision)
	assert.Equal(t, "v1", string(entry.Value))

	_, err = kv.Update(ctx, "schemas/orders/1.0.0", []byte("stale"), rev+100)
	assert.ErrorIs(t, err, ErrKVRevisionMismatch)

	_, err = kv.Update(ctx, "schemas/orders/1.0.0", []byte("v1b"), rev)
	require.NoError(t, err)

	_, err = kv.Put(ctx, "schemas/orders/latest", []byte("1.0.0"))
	require.NoError(t, err)
	_, err = kv.Put(ctx, "schemas/payments/latest", []byte("1.0.0"))
	require.NoError(t, err)

	keys, err = kv.Keys(ctx, "schemas/orders/")
	require.NoError(t, err)
	assert.Equal(t, []string{"schemas/orders/1.0.0", "schemas/orders/latest"}, keys)

	require.NoError(t, kv.Delete(ctx, "schemas/orders/1.0.0"))
	_, err = kv.Get(ctx, "schemas/orders/1.0.0")
	assert.ErrorIs(t, err, ErrKVKeyNotFound)

	keys, err = kv.Keys(ctx, "schemas/orders/")
	require.NoError(t, err)
	assert.Equal(t, []string{"schemas/orders/latest"}, keys)

	status, err := kv.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "schemas-basic", status.Bucket())
}

func TestIntegration_KVStoreUpdateWithRetry(t *testing.T) {
	tc := NewTestClient(t, WithKVBuckets("counters"))
	kv := tc.KVStore(t, "counters")
	ctx := context.Background()

	increment := func(current []byte) ([]byte, error) {
		n := 0
		if current != nil {
			var err error
			if n, err = strconv.Atoi(string(current)); err != nil {
				return nil, err
			}
		}
		return []byte(strconv.Itoa(n + 1)), nil
	}

	t.Run("creates missing key", func(t *testing.T) {
		_, err := kv.UpdateWithRetry(ctx, "fresh", increment)
		require.NoError(t, err)

		entry, err := kv.Get(ctx, "fresh")
		require.NoError(t, err)
		assert.Equal(t, "1", string(entry.Value))
	})

	t.Run("concurrent increments", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := kv.UpdateWithRetry(ctx, "shared", increment)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		entry, err := kv.Get(ctx, "shared")
		require.NoError(t, err)
		assert.Equal(t, "10", string(entry.Value))
	})

	t.Run("update function error is returned", func(t *testing.T) {
		_, err := kv.Put(ctx, "garbage", []byte("nan"))
		require.NoError(t, err)

		_, err = kv.UpdateWithRetry(ctx, "garbage", increment)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "update function error")
	})

	t.Run("max retries exceeded", func(t *testing.T) {
		_, err := kv.Put(ctx, "contended", []byte("0"))
		require.NoError(t, err)

		limited := tc.Client.NewKVStore(mustBucket(t, tc, "counters"), func(o *KVOptions) {
			o.MaxRetries = 1
			o.RetryDelay = time.Millisecond
		})

		attempts := 0
		_, err = limited.UpdateWithRetry(ctx, "contended", func(_ []byte) ([]byte, error) {
			attempts++
			_, _ = kv.Put(ctx, "contended", []byte(fmt.Sprint(attempts)))
			return []byte("never"), nil
		})

		assert.ErrorIs(t, err, ErrKVMaxRetriesExceeded)
		assert.Equal(t, 2, attempts)
	})
}

func mustBucket(t *testing.T, tc *TestClient, name string) jetstream.KeyValue {
	t.Helper()
	bucket, err := tc.CreateKVBucket(context.Background(), name)
	require.NoError(t, err)
	return bucket
}
