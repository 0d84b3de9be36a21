package cache

import (
	"context"
	"encoding/json"
	"time"
)

// JSONCache stores values of type V as JSON in a Cache.
type JSONCache[V any] struct {
	cache *Cache
	ttl   time.Duration
}

// NewJSONCache returns a typed view of c. A ttl <= 0 uses the cache default.
func NewJSONCache[V any](c *Cache, ttl time.Duration) *JSONCache[V] {
	return &JSONCache[V]{cache: c, ttl: ttl}
}

// Get decodes the value under ns/key. A value that fails to decode is
// dropped and reported as a miss.
func (j *JSONCache[V]) Get(ctx context.Context, ns, key string) (V, bool) {
	var v V
	data, ok := j.cache.Get(ctx, ns, key)
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(data, &v); err != nil {
		j.cache.logger.Warn("dropping undecodable cache entry", "namespace", ns, "key", key, "error", err)
		j.cache.Delete(ctx, ns, key)
		var zero V
		return zero, false
	}
	return v, true
}

// Set encodes v and stores it under ns/key.
func (j *JSONCache[V]) Set(ctx context.Context, ns, key string, v V) bool {
	data, err := json.Marshal(v)
	if err != nil {
		j.cache.logger.Warn("cache value not encodable", "namespace", ns, "key", key, "error", err)
		return false
	}
	return j.cache.Set(ctx, ns, key, data, j.ttl)
}

// Delete removes ns/key.
func (j *JSONCache[V]) Delete(ctx context.Context, ns, key string) bool {
	return j.cache.Delete(ctx, ns, key)
}
