// Package errors provides unified error handling for errica
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"
)

// Code represents an error code for categorization
type Code string

// Error represents a coded error with optional channel and context
type Error struct {
	Code    Code           `json:"code"`
	Message string         `json:"message"`
	Channel string         `json:"channel,omitempty"`
	Context map[string]any `json:"context,omitempty"`
	Cause   error          `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	prefix := fmt.Sprintf("[%s]", e.Code)
	if e.Channel != "" {
		prefix = fmt.Sprintf("[%s] %s:", e.Code, e.Channel)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s %s", prefix, e.Message)
}

// Unwrap returns the underlying cause error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error with the same code
func (e *Error) Is(target error) bool {
	var t *Error
	if stderrors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context information to the error
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithChannel records the channel the error belongs to
func (e *Error) WithChannel(name string) *Error {
	e.Channel = name
	return e
}

// New creates a coded error
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to cause. A nil cause yields nil.
func Wrap(cause error, code Code, message string) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Classify maps a transport or delivery error to a channel error code.
// Coded errors keep their code.
func Classify(err error) Code {
	if err == nil {
		return ""
	}
	if code := CodeOf(err); code != "" {
		return code
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return ErrChannelTimeout
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return ErrChannelTimeout
	}
	var dnsErr *net.DNSError
	if stderrors.As(err, &dnsErr) {
		return ErrChannelUnreachable
	}
	var opErr *net.OpError
	if stderrors.As(err, &opErr) {
		return ErrChannelUnreachable
	}
	if stderrors.Is(err, syscall.ECONNREFUSED) || stderrors.Is(err, syscall.ECONNRESET) ||
		stderrors.Is(err, syscall.EHOSTUNREACH) || stderrors.Is(err, syscall.ENETUNREACH) {
		return ErrChannelUnreachable
	}
	var urlErr *url.Error
	if stderrors.As(err, &urlErr) {
		return ErrChannelUnreachable
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return ErrChannelTimeout
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"),
		strings.Contains(msg, "i/o timeout"), strings.Contains(msg, "dial tcp"):
		return ErrChannelUnreachable
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "forbidden"),
		strings.Contains(msg, "invalid token"), strings.Contains(msg, "401"), strings.Contains(msg, "403"):
		return ErrChannelAuth
	}
	return ErrChannelInternal
}
