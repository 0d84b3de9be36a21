package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/c360/schemaregistry/errors"
	"github.com/c360/schemaregistry/natsclient"
)

// BackendExternal names the NATS KV backend.
const BackendExternal = "external"

// envelope is the stored form of an Item in the KV bucket.
type envelope struct {
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// KVBackend stores cache entries in a JetStream KV bucket shared between
// registry instances.
type KVBackend struct {
	kv  *natsclient.KVStore
	now func() time.Time
}

// NewKVBackend wraps an opened KVStore.
func NewKVBackend(kv *natsclient.KVStore) *KVBackend {
	return &KVBackend{kv: kv, now: time.Now}
}

func (b *KVBackend) setClock(now func() time.Time) { b.now = now }

// Name implements Backend.
func (b *KVBackend) Name() string { return BackendExternal }

// Load implements Backend.
func (b *KVBackend) Load(ctx context.Context, key string) (Item, bool, error) {
	entry, err := b.kv.Get(ctx, key)
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return Item{}, false, nil
		}
		return Item{}, false, errors.WrapStore(err, "KVBackend", "Load", "get entry")
	}

	var env envelope
	if err := json.Unmarshal(entry.Value, &env); err != nil {
		return Item{}, false, errors.WrapInvalid(err, "KVBackend", "Load", "decode envelope")
	}
	return Item{Value: env.Value, ExpiresAt: env.ExpiresAt}, true, nil
}

// Store implements Backend.
func (b *KVBackend) Store(ctx context.Context, key string, item Item) error {
	data, err := json.Marshal(envelope{Value: item.Value, ExpiresAt: item.ExpiresAt.UTC()})
	if err != nil {
		return errors.WrapInvalid(err, "KVBackend", "Store", "encode envelope")
	}
	if _, err := b.kv.Put(ctx, key, data); err != nil {
		return errors.WrapStore(err, "KVBackend", "Store", "put entry")
	}
	return nil
}

// Remove implements Backend.
func (b *KVBackend) Remove(ctx context.Context, key string) (bool, error) {
	if _, err := b.kv.Get(ctx, key); err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return false, nil
		}
		return false, errors.WrapStore(err, "KVBackend", "Remove", "get entry")
	}
	if err := b.kv.Delete(ctx, key); err != nil && !natsclient.IsKVNotFoundError(err) {
		return false, errors.WrapStore(err, "KVBackend", "Remove", "delete entry")
	}
	return true, nil
}

// RemovePrefix implements Backend.
func (b *KVBackend) RemovePrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := b.kv.Keys(ctx, prefix)
	if err != nil {
		return 0, errors.WrapStore(err, "KVBackend", "RemovePrefix", "list keys")
	}

	n := 0
	for _, key := range keys {
		if err := b.kv.Delete(ctx, key); err != nil && !natsclient.IsKVNotFoundError(err) {
			return n, errors.WrapStore(err, "KVBackend", "RemovePrefix", "delete entry")
		}
		n++
	}
	return n, nil
}

// Add implements Backend with a revision-checked read-modify-write.
func (b *KVBackend) Add(ctx context.Context, key string, delta int64, expiresAt time.Time) (int64, error) {
	var result int64
	_, err := b.kv.UpdateWithRetry(ctx, key, func(current []byte) ([]byte, error) {
		var n int64
		if current != nil {
			var env envelope
			if err := json.Unmarshal(current, &env); err != nil {
				return nil, err
			}
			if !(Item{ExpiresAt: env.ExpiresAt}).Expired(b.now()) {
				parsed, err := strconv.ParseInt(string(env.Value), 10, 64)
				if err != nil {
					return nil, err
				}
				n = parsed
			}
		}
		result = n + delta
		return json.Marshal(envelope{
			Value:     []byte(strconv.FormatInt(result, 10)),
			ExpiresAt: expiresAt.UTC(),
		})
	})
	if err != nil {
		return 0, errors.WrapStore(err, "KVBackend", "Add", "update counter")
	}
	return result, nil
}

// Len implements Backend.
func (b *KVBackend) Len(ctx context.Context) (int, error) {
	keys, err := b.kv.Keys(ctx, "")
	if err != nil {
		return 0, errors.WrapStore(err, "KVBackend", "Len", "list keys")
	}
	return len(keys), nil
}

// Close implements Backend. The connection is owned by the caller.
func (b *KVBackend) Close() error { return nil }
