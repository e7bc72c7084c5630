package core

import (
	"fmt"
)

// Error is a session-level error with a stable classification.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    string    `json:"code,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrPermissionDenied  ErrorType = "permission_denied"
	ErrConnectionFailure ErrorType = "connection_failure"
	ErrProtocolViolation ErrorType = "protocol_violation"
	ErrChannelFailure    ErrorType = "channel_failure"
	ErrInvalidState      ErrorType = "invalid_state"
	ErrStorage           ErrorType = "storage_error"
)

// NewPermissionDeniedError creates a permission denied error. Raised when
// the capture device refuses to open or access is not granted.
func NewPermissionDeniedError(message string) *Error {
	return &Error{
		Type:    ErrPermissionDenied,
		Message: message,
	}
}

// NewConnectionFailureError creates a connection failure error.
func NewConnectionFailureError(message string, cause error) *Error {
	return &Error{
		Type:    ErrConnectionFailure,
		Message: message,
		Cause:   cause,
	}
}

// NewProtocolViolationError creates a protocol violation error. Raised when
// the upstream sends a frame that does not match the expected handshake or
// message shape.
func NewProtocolViolationError(message string) *Error {
	return &Error{
		Type:    ErrProtocolViolation,
		Message: message,
	}
}

// NewChannelFailureError creates a channel failure error for a session that
// dropped mid-stream.
func NewChannelFailureError(message string, cause error) *Error {
	return &Error{
		Type:    ErrChannelFailure,
		Message: message,
		Cause:   cause,
	}
}

// NewInvalidStateError creates an invalid state error.
func NewInvalidStateError(message string) *Error {
	return &Error{
		Type:    ErrInvalidState,
		Message: message,
	}
}

// NewStorageError creates a storage error.
func NewStorageError(message string, cause error) *Error {
	return &Error{
		Type:    ErrStorage,
		Message: message,
		Cause:   cause,
	}
}

// IsTerminal returns true if the error ends the session rather than a
// single operation.
func (e *Error) IsTerminal() bool {
	switch e.Type {
	case ErrConnectionFailure, ErrChannelFailure, ErrPermissionDenied:
		return true
	default:
		return false
	}
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.Cause
}
