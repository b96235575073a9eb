package model

import (
	"errors"
	"fmt"
)

// AuthError reports a missing or rejected API credential. It is raised before
// any network call is made.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "auth: " + e.Reason
}

// TransportError reports an HTTP failure: a network fault or a non-success status.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("transport: %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("transport: %s: status %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
	default:
		return "transport: " + e.Op
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a response or record that does not have the expected
// shape: malformed JSON, missing fields, or an unsupported geometry kind.
type ProtocolError struct {
	Op     string
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	msg := "protocol: " + e.Op
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// NewProtocolError is a shorthand for a ProtocolError without a cause.
func NewProtocolError(op, format string, args ...any) *ProtocolError {
	return &ProtocolError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// IsAuth reports whether err is, or wraps, an AuthError.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsTransport reports whether err is, or wraps, a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsProtocol reports whether err is, or wraps, a ProtocolError.
func IsProtocol(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
