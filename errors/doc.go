// Package errors provides standardized error handling for the schema registry.
//
// # Error Classification
//
// Errors fall into three classes:
//
//   - Transient: store unavailable, timeouts, connection loss (retry may succeed)
//   - Invalid: unknown ids, version conflicts, rejected documents (do not retry)
//   - Fatal: bad configuration or corrupted data (stop processing)
//
// # Registry Error Kinds
//
// On top of the classes, every error surfaced by the registry wraps one of the
// domain kinds so a transport can render it:
//
//	ErrNotFound          unknown id or version        -> 404
//	ErrConflict          (id, version) already stored -> 409
//	ErrValidationFailed  malformed document or bump   -> 400
//	ErrStoreUnavailable  backing store unreachable    -> 503
//	ErrTimeout           deadline exceeded            -> 504
//
// ValidationError carries itemized reasons and matches ErrValidationFailed:
//
//	err := errors.NewValidationError("version bump rejected", report.BreakingChanges...)
//	if errors.IsValidationFailed(err) {
//	    reasons := errors.Reasons(err)
//	}
//
// # Error Wrapping Pattern
//
// All wrapping follows the format "component.method: action failed: cause":
//
//	return errors.WrapTransient(err, "SchemaStore", "Get", "backend read")
//
// WrapStore picks the right kind for backend failures, turning
// context.DeadlineExceeded into ErrTimeout and anything unclassified into
// ErrStoreUnavailable.
package errors
