package core

import (
	"fmt"
)

// Error is the typed error used across the voice-session engine.
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

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes errors.
type ErrorType string

const (
	// ErrConfiguration is a missing or invalid credential/setting at startup.
	// Fatal to the whole application, not just one session.
	ErrConfiguration ErrorType = "configuration_error"
	// ErrPermission is a denied or unsupported microphone acquisition.
	ErrPermission ErrorType = "permission_error"
	// ErrTransport is a connection-level failure on the speech transport.
	ErrTransport ErrorType = "transport_error"
	// ErrDecode is a malformed reply audio payload. Isolated per chunk.
	ErrDecode ErrorType = "decode_error"
	// ErrToolCall is a failed or malformed tool invocation. Isolated per call.
	ErrToolCall ErrorType = "tool_call_error"
)

// NewConfigurationError creates a configuration error.
func NewConfigurationError(message string) *Error {
	return &Error{Type: ErrConfiguration, Message: message}
}

// NewPermissionError creates a permission error.
func NewPermissionError(message string) *Error {
	return &Error{Type: ErrPermission, Message: message}
}

// NewTransportError creates a transport error wrapping the underlying cause.
func NewTransportError(message string, cause error) *Error {
	return &Error{Type: ErrTransport, Message: message, Cause: cause}
}

// NewDecodeError creates a decode error.
func NewDecodeError(message string) *Error {
	return &Error{Type: ErrDecode, Message: message}
}

// NewToolCallError creates a tool call error.
func NewToolCallError(message string) *Error {
	return &Error{Type: ErrToolCall, Message: message}
}

// IsSessionFatal reports whether the error must terminate the session.
// Decode and tool-call failures are isolated per message and never abort
// the session; everything else does.
func (e *Error) IsSessionFatal() bool {
	switch e.Type {
	case ErrDecode, ErrToolCall:
		return false
	default:
		return true
	}
}

// UserMessage returns the plain text surfaced to the UI for err. Typed
// errors surface their message without the taxonomy prefix.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := err.(*Error); ok {
		return e.Message
	}
	return err.Error()
}
