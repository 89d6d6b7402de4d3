// Package channel defines the delivery channel contract shared by every
// errica destination, the per-attempt Result type and the creator registry.
package channel

import (
	"context"
	"fmt"
	"time"

	"github.com/kart-io/errica/pkg/errica/errors"
	"github.com/kart-io/errica/pkg/errica/event"
)

// Channel delivers events to one destination.
//
// Send and HealthCheck must not panic and must not return transport failures
// any other way than as a failed Result. Implementations are constructed once
// and must be safe for concurrent use until Close is called.
type Channel interface {
	// Name returns the configured channel name.
	Name() string

	// Send attempts one delivery of ev.
	Send(ctx context.Context, ev *event.Event) Result

	// HealthCheck performs a lightweight reachability or credential check
	// without producing a user-visible alert.
	HealthCheck(ctx context.Context) Result

	// Close releases connections and other resources.
	Close() error
}

// Result is the outcome of one delivery attempt or health check.
type Result struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Latency time.Duration `json:"latency,omitempty"`
	Error   string        `json:"error,omitempty"`
	Code    errors.Code   `json:"code,omitempty"`
}

// OK returns a successful result.
func OK(message string) Result {
	return Result{Success: true, Message: message}
}

// Fail returns a failed result for err. The error is classified and the
// diagnostic word ("unreachable", "timeout", ...) is appended to message.
func Fail(err error, message string) Result {
	code := errors.Classify(err)
	if code == "" {
		code = errors.ErrChannelInternal
	}
	r := Result{
		Message: fmt.Sprintf("%s: %s", message, code.Diagnostic()),
		Code:    code,
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// FailCode returns a failed result with an explicit code.
func FailCode(code errors.Code, message, detail string) Result {
	return Result{
		Message: fmt.Sprintf("%s: %s", message, code.Diagnostic()),
		Error:   detail,
		Code:    code,
	}
}

// WithLatency returns a copy of r carrying d.
func (r Result) WithLatency(d time.Duration) Result {
	r.Latency = d
	return r
}

// String renders the result for logs and CLI output.
func (r Result) String() string {
	status := "ok"
	if !r.Success {
		status = "failed"
	}
	s := fmt.Sprintf("%s: %s", status, r.Message)
	if r.Error != "" && r.Error != r.Message {
		s += " (" + r.Error + ")"
	}
	if r.Latency > 0 {
		s += fmt.Sprintf(" [%s]", r.Latency.Round(time.Millisecond))
	}
	return s
}
