// Package retry provides exponential backoff retry logic for transient failures.
//
// Do runs a function until it succeeds, the attempts run out, or the context
// is cancelled. Errors wrapped with NonRetryable stop the loop immediately.
// A Retryable predicate narrows retries to a specific error kind, which is how
// the registry restarts a schema commit only when the latest pointer moved
// underneath it:
//
//	err := retry.Do(ctx, retry.Config{
//	    MaxAttempts:  5,
//	    InitialDelay: 5 * time.Millisecond,
//	    MaxDelay:     100 * time.Millisecond,
//	    Retryable:    func(err error) bool { return errors.Is(err, schemastore.ErrLatestChanged) },
//	    OnRetry:      func(int, error) { metrics.RecordCommitRetry() },
//	}, commit)
//
// When every attempt fails the returned error wraps both ErrExhausted and the
// last error, so callers can still match on the underlying cause.
//
// Presets:
//
//   - DefaultConfig(): 3 attempts, 100ms-5s delay
//   - Quick(): 10 attempts, 50ms-1s delay, for dependencies that are starting up
package retry
