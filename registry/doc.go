// Package registry is the schema registry's application layer.
//
// Create runs the write workflow for a new schema version:
//
//  1. validate the document structure
//  2. take the per-id lock
//  3. read the latest pointer and its revision
//  4. check compatibility against latest, if any
//  5. apply the version bump policy
//  6. commit with schemastore.PutIfLatest, restarting from 3 when latest moved
//  7. publish schema_updates and compatibility_alerts events
//
// The per-id lock serializes writers inside one process. PutIfLatest's
// compare-and-swap on the latest pointer serializes writers across processes
// sharing a backend. Event publishing never blocks or fails the write.
//
// The read side (Get, ListIDs, ListVersions, CheckVersions, DiffVersions,
// ValidateData) runs without locks.
package registry
