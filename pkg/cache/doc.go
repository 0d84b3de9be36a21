// Package cache provides a namespaced, best-effort TTL cache with a
// process-local memory backend and a shared NATS KV backend.
//
// Every key lives in a namespace. Namespaces can be cleared as a unit, which
// is how schema writes invalidate everything cached for one schema id:
//
//	c := cache.New(cache.NewMemoryBackend(time.Minute),
//		cache.WithDefaultTTL(10*time.Minute),
//		cache.WithMetrics(metricsRegistry))
//
//	c.Set(ctx, "schema:orders", "latest", data, 0)
//	data, ok := c.Get(ctx, "schema:orders", "latest")
//	c.ClearNamespace(ctx, "schema:orders")
//
// The cache never fails its caller on the data path. A backend error on Get
// is a miss and on Set is a dropped write; both are logged. Increment is the
// exception and returns the error, since a counter value is the result.
//
// Backend keys are base64url(namespace) "." base64url(key). The encoding
// keeps "schema:orders" from matching "schema:orders_v2" on prefix and
// yields keys that are legal in a NATS KV bucket.
//
// The external backend stores each entry as a JSON envelope
//
//	{"value": "<base64>", "expires_at": "2024-01-01T00:10:00Z"}
//
// and expiry is enforced on read, so instances sharing a bucket agree on
// liveness without relying on bucket-level TTL.
//
// JSONCache layers typed access on top:
//
//	lists := cache.NewJSONCache[[]string](c, 5*time.Minute)
//	lists.Set(ctx, "meta", "schema_list", ids)
package cache
