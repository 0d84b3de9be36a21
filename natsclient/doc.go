// Package natsclient wraps the NATS Go client with a circuit breaker and
// revision-checked key-value helpers.
//
// The registry uses NATS for two things: JetStream KV buckets that hold schema
// records and the external cache tier, and core subjects that mirror
// notification events to other processes.
//
// # Connection lifecycle
//
// Status moves Disconnected → Connecting → Connected, then Reconnecting and
// back while the underlying connection heals. After a run of failed Connect
// calls (default 5) the circuit opens and Connect fails fast with
// ErrCircuitOpen until the backoff elapses. Backoff doubles per round up to
// the configured maximum.
//
//	client, err := natsclient.NewClient(url,
//	    natsclient.WithLogger(logger),
//	    natsclient.WithMetrics(registry),
//	    natsclient.WithName("schemaregistry"),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
// # KVStore
//
// KVStore wraps a bucket with per-operation timeouts and maps NATS errors to
// ErrKVKeyNotFound, ErrKVKeyExists and ErrKVRevisionMismatch:
//
//	bucket, _ := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{Bucket: "schemas"})
//	kv := client.NewKVStore(bucket)
//
//	rev, err := kv.Create(ctx, "schemas/orders/1.0.0", data) // ErrKVKeyExists if present
//	_, err = kv.Update(ctx, "schemas/orders/latest", next, rev) // ErrKVRevisionMismatch on a race
//
// UpdateWithRetry runs a read-modify-write loop that retries on revision
// conflicts and returns ErrKVMaxRetriesExceeded when contention does not
// settle.
//
// # Testing
//
// NewTestClient starts a nats server container through testcontainers and
// registers its teardown with the test. Tests that need it carry the
// integration build tag.
package natsclient
