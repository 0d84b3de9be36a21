package http

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/c360/schemaregistry/errors"
)

// Error kinds reported in the "error" field.
const (
	kindInvalidRequest   = "invalid_request"
	kindValidationFailed = "validation_failed"
	kindNotFound         = "not_found"
	kindConflict         = "conflict"
	kindStoreUnavailable = "store_unavailable"
	kindTimeout          = "timeout"
	kindTooLarge         = "request_too_large"
	kindInternal         = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// statusFor maps registry errors to HTTP status codes
func statusFor(err error) (int, string) {
	var tooLarge *http.MaxBytesError
	switch {
	case err == nil:
		return http.StatusInternalServerError, kindInternal
	case stderrors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, kindTooLarge
	case errors.IsValidationFailed(err):
		return http.StatusBadRequest, kindValidationFailed
	case errors.IsNotFound(err):
		return http.StatusNotFound, kindNotFound
	case errors.IsConflict(err):
		return http.StatusConflict, kindConflict
	case errors.IsTimeout(err):
		return http.StatusGatewayTimeout, kindTimeout
	case errors.IsStoreUnavailable(err), errors.IsTransient(err):
		return http.StatusServiceUnavailable, kindStoreUnavailable
	case errors.IsInvalid(err):
		return http.StatusBadRequest, kindInvalidRequest
	default:
		return http.StatusInternalServerError, kindInternal
	}
}

// writeRegistryError renders err without exposing internal detail. subject
// names the resource for not-found and conflict messages.
func (s *Server) writeRegistryError(w http.ResponseWriter, r *http.Request, err error, subject string) {
	status, kind := statusFor(err)

	var message string
	var details map[string]any
	switch kind {
	case kindValidationFailed:
		message = errors.ErrValidationFailed.Error()
		var ve *errors.ValidationError
		if stderrors.As(err, &ve) {
			message = ve.Message
			details = map[string]any{"reasons": ve.Reasons}
		}
	case kindNotFound:
		message = fmt.Sprintf("%s not found", subject)
	case kindConflict:
		message = fmt.Sprintf("%s already exists", subject)
	case kindTooLarge:
		message = fmt.Sprintf("request body exceeds maximum size of %d bytes", s.config.MaxRequestSize)
	case kindTimeout:
		message = "request timeout"
	case kindStoreUnavailable:
		message = "service temporarily unavailable"
	case kindInvalidRequest:
		message = "invalid request"
	default:
		message = "internal server error"
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "status", status,
			"request_id", RequestID(r.Context()), "error", err)
	} else {
		s.logger.Debug("request rejected", "path", r.URL.Path, "status", status,
			"request_id", RequestID(r.Context()), "error", err)
	}

	s.writeError(w, status, kind, message, details)
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, status int, kind, message string, details map[string]any) {
	s.writeJSON(w, status, ErrorResponse{Error: kind, Message: message, Details: details})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}
