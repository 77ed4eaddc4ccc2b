// Package fault defines the stable error taxonomy shared by the connection
// lifecycle, the session manager, and the HTTP/WebSocket surface. Every
// terminal failure carries a machine-stable code and a human-readable
// message so consumers never have to string-match.
package fault

import (
	"context"
	"errors"
	"fmt"
)

// Code is a stable, machine-readable failure classification.
type Code string

const (
	CodeCancelled          Code = "cancelled"
	CodeTimeout            Code = "timeout"
	CodeUnreachable        Code = "unreachable"
	CodeCredentialRejected Code = "credentialRejected"
	CodeNotConnected       Code = "notConnected"
	CodeProtocolViolation  Code = "protocolViolation"
)

// Error is a classified failure. Message is safe to show to a user.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a classified error with an optional wrapped cause.
func New(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// Cancelled reports a user-initiated abort of an in-flight operation.
func Cancelled(message string) *Error {
	return New(CodeCancelled, message, nil)
}

// Timeout reports a bounded wait that elapsed without a response.
func Timeout(message string, cause error) *Error {
	return New(CodeTimeout, message, cause)
}

// Unreachable reports that the target host did not respond at all.
func Unreachable(message string, cause error) *Error {
	return New(CodeUnreachable, message, cause)
}

// CredentialRejected reports an authentication failure at the target.
func CredentialRejected(message string) *Error {
	return New(CodeCredentialRejected, message, nil)
}

// NotConnected reports a data operation issued with no active session.
func NotConnected() *Error {
	return New(CodeNotConnected, "no active connection for this session", nil)
}

// ProtocolViolation reports an invalid message name at a transport boundary.
func ProtocolViolation(message string) *Error {
	return New(CodeProtocolViolation, message, nil)
}

// CodeOf classifies an arbitrary error. Context errors map onto the
// taxonomy so that cancellation and timeout follow identical code paths
// regardless of where they surfaced.
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	switch {
	case errors.Is(err, context.Canceled):
		return CodeCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	default:
		return CodeUnreachable
	}
}

// MessageOf returns the user-facing message for err, falling back to a
// generic phrase for unclassified errors.
func MessageOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Message
	}
	return "connection failed"
}

// Retryable reports whether the UI should offer a plain retry for this
// code. Credential and target failures want "edit connection details"
// instead; cancellation needs no affordance at all.
func Retryable(code Code) bool {
	switch code {
	case CodeTimeout, CodeUnreachable:
		return true
	default:
		return false
	}
}
