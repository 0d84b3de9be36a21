// Package schemaregistry is a versioned JSON-Schema registry.
//
// Clients submit schema documents identified by (id, version). Each new
// version of an id is compared with the current latest version, and the
// version bump must match what the comparison found: breaking changes need
// a major bump, compatible changes must not take one. Accepted versions are
// immutable.
//
// # Packages
//
//   - version: MAJOR.MINOR.PATCH parsing and ordering
//   - schema: the document model and structural validation
//   - compat: breaking-change detection and the audit diff
//   - policy: the version bump rule
//   - storage: the revisioned key/value contract, with memory, NATS KV and SQLite backends
//   - schemastore: records, the latest pointer and the read cache over a storage backend
//   - pkg/cache: namespaced TTL cache with memory and NATS KV backends
//   - notify: the event hub behind schema_updates, compatibility_alerts and system_events
//   - registry: the write workflow and read operations
//   - gateway/http: HTTP and websocket surface
//   - config: layered JSON/YAML configuration with environment overrides
//
// # Binaries
//
// cmd/schemaregistry runs the server. cmd/schemactl validates, diffs and
// checks schema files offline.
//
// # Write path
//
//	registry.Create
//	  -> per-id lock
//	  -> schemastore.Latest (record + revision)
//	  -> compat.Check + policy.CheckBump
//	  -> schemastore.PutIfLatest (compare-and-swap on latest)
//	  -> cache invalidation
//	  -> notify.Hub.Publish (schema_updates, compatibility_alerts)
//
// A lost compare-and-swap restarts the whole workflow so the check always
// runs against the version that ends up preceding the new one.
package schemaregistry
