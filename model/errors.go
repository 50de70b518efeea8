package model

import (
	"errors"
	"fmt"
	"strings"
)

// Standard error codes.
const (
	ErrBadRequest         = "BAD_REQUEST"
	ErrNotFound           = "NOT_FOUND"
	ErrValidationError    = "VALIDATION_ERROR"
	ErrNotImplemented     = "NOT_IMPLEMENTED"
	ErrInternalError      = "INTERNAL_ERROR"
	ErrBackendUnavailable = "BACKEND_UNAVAILABLE"
	ErrBackendError       = "BACKEND_ERROR"
)

// ErrorEnvelope is the standard error response envelope returned by the
// browser-facing JSON endpoints. It implements the error interface.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
	TraceID string       `json:"trace_id,omitempty"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewNotImplementedError returns a NOT_IMPLEMENTED error for affordances
// that exist in the UI but do not perform a mutation yet.
func NewNotImplementedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotImplemented, Message: msg}
}

// NewValidationError returns a VALIDATION_ERROR with field-level details.
func NewValidationError(details []FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrValidationError,
		Message: "One or more fields are invalid",
		Details: details,
	}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}

// NetworkError is returned when the CRM API answers outside the 2xx range.
type NetworkError struct {
	Method     string
	Endpoint   string
	Status     int
	StatusText string
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("api error: %s %s: %d %s", e.Method, e.Endpoint, e.Status, e.StatusText)
}

// TransportError is returned when the request never produced an HTTP
// response: DNS failures, refused connections, timeouts, or a rejection by
// the circuit breaker.
type TransportError struct {
	Method   string
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("api transport: %s %s: %v", e.Method, e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AssetMissingError reports that a page markup fragment could not be
// fetched. The markup loader recovers from it with a built-in stub.
type AssetMissingError struct {
	Page string
	Err  error
}

func (e *AssetMissingError) Error() string {
	return fmt.Sprintf("page asset %q missing: %v", e.Page, e.Err)
}

func (e *AssetMissingError) Unwrap() error { return e.Err }

// ValidationGapError lists required fields missing from a write form.
type ValidationGapError struct {
	Resource string
	Fields   []FieldError
}

func (e *ValidationGapError) Error() string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Field
	}
	return fmt.Sprintf("%s: invalid fields: %s", e.Resource, strings.Join(names, ", "))
}

// IsUpstreamError reports whether err came from talking to the CRM API.
func IsUpstreamError(err error) bool {
	var netErr *NetworkError
	var trErr *TransportError
	return errors.As(err, &netErr) || errors.As(err, &trErr)
}
