// Package apperr provides a structured application error type used by the
// HTTP adapter and by configuration validation.
package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Type categorizes an error for retry decisions and HTTP status mapping.
type Type string

const (
	TypeValidation Type = "validation"
	TypeNotFound   Type = "not_found"
	TypeConflict   Type = "conflict"
	TypeInternal   Type = "internal"
	TypeDatabase   Type = "database"
	TypeQueue      Type = "queue"
	TypeProvider   Type = "provider"
	TypeTimeout    Type = "timeout"
)

// AppError is a structured error carrying enough context to log and to
// render as an HTTP response without the caller re-deriving either.
type AppError struct {
	Type          Type                   `json:"type"`
	Code          string                 `json:"code"`
	Message       string                 `json:"message"`
	Details       string                 `json:"details,omitempty"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Cause         error                  `json:"-"`
	HTTPStatus    int                    `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// ToJSON renders the error for an API response body.
func (e *AppError) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// New creates an AppError with the default HTTP status for its type.
func New(t Type, code, message string) *AppError {
	return &AppError{
		Type:       t,
		Code:       code,
		Message:    message,
		Timestamp:  time.Now().UTC(),
		HTTPStatus: defaultHTTPStatus(t),
	}
}

// Wrap creates an AppError carrying an underlying cause.
func Wrap(t Type, code, message string, cause error) *AppError {
	err := New(t, code, message)
	err.Cause = cause
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

func (e *AppError) WithCorrelationID(id string) *AppError {
	e.CorrelationID = id
	return e
}

func (e *AppError) WithMetadata(key string, value interface{}) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func defaultHTTPStatus(t Type) int {
	switch t {
	case TypeValidation:
		return http.StatusUnprocessableEntity
	case TypeNotFound:
		return http.StatusNotFound
	case TypeConflict:
		return http.StatusConflict
	case TypeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Constructors for each error kind the HTTP layer needs to render.

func Validation(field, message string) *AppError {
	return New(TypeValidation, "VALIDATION_ERROR", message).WithMetadata("field", field)
}

func NotFound(resource string) *AppError {
	return New(TypeNotFound, "NOT_FOUND", fmt.Sprintf("%s not found", resource)).
		WithMetadata("resource", resource)
}

func Conflict(message string) *AppError {
	return New(TypeConflict, "CONFLICT", message)
}

func Internal(message string, cause error) *AppError {
	return Wrap(TypeInternal, "INTERNAL_ERROR", message, cause)
}

func Database(operation string, cause error) *AppError {
	return Wrap(TypeDatabase, "DATABASE_ERROR", fmt.Sprintf("store operation failed: %s", operation), cause).
		WithMetadata("operation", operation)
}

func Queue(operation string, cause error) *AppError {
	return Wrap(TypeQueue, "QUEUE_ERROR", fmt.Sprintf("retry queue operation failed: %s", operation), cause).
		WithMetadata("operation", operation)
}

// Provider builds an error for a channel send failure. The cause is the
// opaque, provider-specific failure; the engine only ever reads its string.
func Provider(channel, operation string, cause error) *AppError {
	return Wrap(TypeProvider, "PROVIDER_ERROR", fmt.Sprintf("%s provider %s failed", channel, operation), cause).
		WithMetadata("channel", channel).
		WithMetadata("operation", operation)
}

// Is reports whether err is an *AppError of the given type.
func Is(err error, t Type) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == t
	}
	return false
}

// TypeOf extracts the Type of an *AppError, if err is one.
func TypeOf(err error) (Type, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type, true
	}
	return "", false
}
