package event

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ExceptionInfo describes an error captured together with an event.
type ExceptionInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Trace   string `json:"trace,omitempty"`
}

// TaskInfo identifies the unit of work an event originated from.
type TaskInfo struct {
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}

// AppInfo identifies the application that produced the event.
type AppInfo struct {
	Name        string `json:"name,omitempty"`
	Version     string `json:"version,omitempty"`
	Environment string `json:"environment,omitempty"`
}

// Event is a normalized record of one loggable occurrence. Events are built
// once by New and must be treated as read-only by every consumer.
type Event struct {
	ID        string         `json:"id"`
	Message   string         `json:"message"`
	Level     Severity       `json:"level"`
	Timestamp time.Time      `json:"timestamp"`
	Exception *ExceptionInfo `json:"exception,omitempty"`
	Context   Fields         `json:"context"`
	Task      *TaskInfo      `json:"task,omitempty"`
	App       AppInfo        `json:"app"`
}

// Option configures an Event under construction.
type Option func(*Event)

// New creates an event stamped with a fresh ID and the current UTC time.
func New(message string, level Severity, opts ...Option) *Event {
	ev := &Event{
		ID:        uuid.NewString(),
		Message:   message,
		Level:     level,
		Timestamp: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(ev)
	}
	return ev
}

// WithFields attaches context fields.
func WithFields(f Fields) Option {
	return func(e *Event) { e.Context = f.clone(0) }
}

// WithError records err as the event's exception. A nil err is ignored.
// The trace is left empty; combine with WithTrace to attach one.
func WithError(err error) Option {
	return func(e *Event) {
		if err == nil {
			return
		}
		trace := ""
		if e.Exception != nil {
			trace = e.Exception.Trace
		}
		e.Exception = &ExceptionInfo{
			Kind:    ErrorKind(err),
			Message: err.Error(),
			Trace:   trace,
		}
	}
}

// WithTrace sets the exception trace text. It has no effect without an exception
// unless applied before WithError.
func WithTrace(trace string) Option {
	return func(e *Event) {
		if e.Exception == nil {
			e.Exception = &ExceptionInfo{}
		}
		e.Exception.Trace = trace
	}
}

// WithTask records the originating task.
func WithTask(name, category string) Option {
	return func(e *Event) {
		if name == "" {
			return
		}
		e.Task = &TaskInfo{Name: name, Category: category}
	}
}

// WithApp records the producing application.
func WithApp(app AppInfo) Option {
	return func(e *Event) { e.App = app }
}

// WithTimestamp overrides the creation time.
func WithTimestamp(t time.Time) Option {
	return func(e *Event) { e.Timestamp = t.UTC() }
}

// WithID overrides the generated event ID.
func WithID(id string) Option {
	return func(e *Event) {
		if id != "" {
			e.ID = id
		}
	}
}

// HasException reports whether an exception with a message or kind is attached.
func (e *Event) HasException() bool {
	return e.Exception != nil && (e.Exception.Kind != "" || e.Exception.Message != "")
}

// Title returns a one-line summary: "[LEVEL] message".
func (e *Event) Title() string {
	return fmt.Sprintf("[%s] %s", e.Level, e.Message)
}

// ErrorKind returns the dynamic type name of err, looking through plain
// fmt.Errorf wrappers so that the wrapped error's type is reported.
func ErrorKind(err error) string {
	for {
		kind := fmt.Sprintf("%T", err)
		if kind != "*fmt.wrapError" {
			return kind
		}
		next := errors.Unwrap(err)
		if next == nil {
			return kind
		}
		err = next
	}
}

// Stack returns a formatted stack trace of the calling goroutine, skipping
// skip frames above the caller of Stack.
func Stack(skip int) string {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(skip+2, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var b strings.Builder
	for {
		frame, more := frames.Next()
		if frame.Function != "" {
			fmt.Fprintf(&b, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		}
		if !more {
			break
		}
	}
	return b.String()
}
