package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies a failure so the transport layer can map it to a
// response without inspecting the underlying cause.
type ErrorType string

const (
	// ErrorTypeInvalidInput marks a caller error (empty text, malformed
	// filters). Never retried.
	ErrorTypeInvalidInput ErrorType = "invalid_input"

	// Upstream provider faults. The core does not retry these.
	ErrorTypeEmbeddingUnavailable  ErrorType = "embedding_unavailable"
	ErrorTypeIndexUnavailable      ErrorType = "index_unavailable"
	ErrorTypeGenerationUnavailable ErrorType = "generation_unavailable"

	// ErrorTypeStore marks a relational store fault.
	ErrorTypeStore ErrorType = "store"

	// ErrorTypeInternal is the catch-all for everything else.
	ErrorTypeInternal ErrorType = "internal"
)

// ServiceError carries a classification and a safe, user-presentable message
// alongside the wrapped internal cause. The cause may contain credentials or
// provider stack detail and must only ever reach logs, never callers.
type ServiceError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// SafeMessage returns the user-presentable message only.
func (e *ServiceError) SafeMessage() string {
	return e.Message
}

// New creates a ServiceError without an underlying cause.
func New(errType ErrorType, message string) *ServiceError {
	return &ServiceError{Type: errType, Message: message}
}

// Wrap creates a ServiceError wrapping an internal cause.
func Wrap(errType ErrorType, message string, err error) *ServiceError {
	return &ServiceError{Type: errType, Message: message, Err: err}
}

// Invalidf creates an invalid-input error with a formatted message. Input
// validation messages are caller-facing, so formatting into Message is safe.
func Invalidf(format string, args ...interface{}) *ServiceError {
	return &ServiceError{Type: ErrorTypeInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// TypeOf returns the classification of err, or ErrorTypeInternal when err is
// not a ServiceError.
func TypeOf(err error) ErrorType {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Type
	}
	return ErrorTypeInternal
}

// IsType reports whether err carries the given classification.
func IsType(err error, t ErrorType) bool {
	return TypeOf(err) == t
}
