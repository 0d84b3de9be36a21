// Package storage defines Backend, the durable key-value capability behind
// the schema store, and the errors every implementation reports.
//
// Three implementations exist:
//
//   - memstore: in-process map, for tests and single-node fallback
//   - kvstore: NATS JetStream KV bucket, shared between registry instances
//   - sqlstore: embedded SQLite file with a revision column
//
// All of them provide the same contract: Create fails on an existing key,
// Update is a compare-and-swap on the revision returned by Get, and Keys is a
// sorted prefix scan. The storagetest package checks that contract and is run
// against each implementation.
//
//	entry, err := backend.Get(ctx, "schemas/orders/latest")
//	if storage.IsKeyNotFound(err) {
//		_, err = backend.Create(ctx, "schemas/orders/latest", data)
//	} else if err == nil {
//		_, err = backend.Update(ctx, "schemas/orders/latest", data, entry.Revision)
//	}
//	if storage.IsRevisionMismatch(err) {
//		// someone else moved it, re-read and decide again
//	}
package storage
