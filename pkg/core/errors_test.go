package core

import (
	"errors"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := &Error{
		Type:    ErrProtocolViolation,
		Message: "unexpected frame before setup ack",
	}

	expected := "protocol_violation: unexpected frame before setup ack"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestError_WithCode(t *testing.T) {
	err := &Error{
		Type:    ErrConnectionFailure,
		Message: "dial failed",
		Code:    "dial_timeout",
	}

	expected := "connection_failure: dial failed (code: dial_timeout)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewPermissionDeniedError(t *testing.T) {
	err := NewPermissionDeniedError("microphone access denied")
	if err.Type != ErrPermissionDenied {
		t.Errorf("Type = %v, want %v", err.Type, ErrPermissionDenied)
	}
	if err.Message != "microphone access denied" {
		t.Errorf("Message = %q, want %q", err.Message, "microphone access denied")
	}
}

func TestNewChannelFailureError_Unwrap(t *testing.T) {
	underlying := errors.New("connection reset by peer")
	err := NewChannelFailureError("stream dropped", underlying)

	if err.Type != ErrChannelFailure {
		t.Errorf("Type = %v, want %v", err.Type, ErrChannelFailure)
	}
	if !errors.Is(err, underlying) {
		t.Error("errors.Is should find the underlying cause")
	}
}

func TestError_IsTerminal(t *testing.T) {
	tests := []struct {
		errType ErrorType
		want    bool
	}{
		{ErrConnectionFailure, true},
		{ErrChannelFailure, true},
		{ErrPermissionDenied, true},
		{ErrProtocolViolation, false},
		{ErrInvalidState, false},
		{ErrStorage, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.errType), func(t *testing.T) {
			err := &Error{Type: tt.errType, Message: "test"}
			if got := err.IsTerminal(); got != tt.want {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.want)
			}
		})
	}
}
