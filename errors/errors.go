// Package errors provides standardized error handling for schema registry components.
// It includes error classification, the registry's domain error kinds, and helper
// functions for consistent error wrapping across the system.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or a rejected request
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Registry error kinds. Every error returned across a package boundary wraps
// one of these so callers can map it to a response.
var (
	// ErrNotFound is returned for an unknown schema id or version.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a (id, version) pair already exists.
	ErrConflict = errors.New("already exists")
	// ErrValidationFailed covers malformed documents, bad versions and rejected bumps.
	ErrValidationFailed = errors.New("validation failed")
	// ErrStoreUnavailable is returned when the backing store cannot be reached.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrTimeout is returned when a store or cache operation exceeds its deadline.
	ErrTimeout = errors.New("operation timed out")
)

// Standard error variables for common conditions
var (
	// Lifecycle errors
	ErrAlreadyStarted = errors.New("component already started")
	ErrNotStarted     = errors.New("component not started")
	ErrShuttingDown   = errors.New("component is shutting down")

	// Connection errors
	ErrNoConnection   = errors.New("no connection available")
	ErrConnectionLost = errors.New("connection lost")

	// Data errors
	ErrInvalidData   = errors.New("invalid data format")
	ErrDataCorrupted = errors.New("data corrupted")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// ValidationError carries the itemized reasons a document or request was rejected.
// It matches ErrValidationFailed under errors.Is.
type ValidationError struct {
	Message string
	Reasons []string
}

// NewValidationError builds a ValidationError. An empty message defaults to "validation failed".
func NewValidationError(message string, reasons ...string) *ValidationError {
	if message == "" {
		message = ErrValidationFailed.Error()
	}
	return &ValidationError{Message: message, Reasons: reasons}
}

// Error implements the error interface
func (ve *ValidationError) Error() string {
	if len(ve.Reasons) == 0 {
		return ve.Message
	}
	return ve.Message + ": " + strings.Join(ve.Reasons, "; ")
}

// Is reports whether target is ErrValidationFailed
func (ve *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// Reasons extracts the itemized reasons from a ValidationError anywhere in the chain.
func Reasons(err error) []string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Reasons
	}
	return nil
}

// IsTransient checks if an error is transient and may be retried
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	if errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrNoConnection) ||
		errors.Is(err, ErrConnectionLost) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "connection", "unavailable", "temporary"} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// IsFatal checks if an error is fatal and should stop processing
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingConfig) ||
		errors.Is(err, ErrDataCorrupted)
}

// IsInvalid checks if an error is due to invalid input
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	return errors.Is(err, ErrInvalidData) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrValidationFailed)
}

// IsNotFound reports whether err is a NotFound error
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err is a Conflict error
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsValidationFailed reports whether err is a ValidationFailed error
func IsValidationFailed(err error) bool { return errors.Is(err, ErrValidationFailed) }

// IsStoreUnavailable reports whether err is a StoreUnavailable error
func IsStoreUnavailable(err error) bool { return errors.Is(err, ErrStoreUnavailable) }

// IsTimeout reports whether err is a Timeout error
func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }

// Classify returns the error class for an error
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorTransient
	}

	if IsTransient(err) {
		return ErrorTransient
	}
	if IsFatal(err) {
		return ErrorFatal
	}
	if IsInvalid(err) {
		return ErrorInvalid
	}

	// Unknown errors default to transient so callers may retry
	return ErrorTransient
}

// newClassified creates a new classified error
func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}

// WrapStore wraps a backend failure. Deadline expiry becomes ErrTimeout, anything
// else that is not already a registry kind becomes ErrStoreUnavailable. Both are transient.
func WrapStore(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		err = fmt.Errorf("%w: %w", ErrTimeout, err)
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict), errors.Is(err, ErrValidationFailed):
		return WrapInvalid(err, component, method, action)
	case !errors.Is(err, ErrTimeout) && !errors.Is(err, ErrStoreUnavailable):
		err = fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return WrapTransient(err, component, method, action)
}

// NotFound builds an invalid-class NotFound error describing what was missing.
func NotFound(component, method, what string) error {
	return WrapInvalid(fmt.Errorf("%s: %w", what, ErrNotFound), component, method, "lookup")
}

// Conflict builds an invalid-class Conflict error describing what already exists.
func Conflict(component, method, what string) error {
	return WrapInvalid(fmt.Errorf("%s: %w", what, ErrConflict), component, method, "create")
}
