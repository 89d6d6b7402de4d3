// Package monitor wraps a unit of work so that a failure escaping it is
// reported as an event carrying the task identity and elapsed time, and then
// handed back to the caller unchanged.
package monitor

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/kart-io/errica/pkg/errica/event"
	"github.com/kart-io/errica/pkg/errica/handler"
)

// PanicError carries a value recovered from a panic inside a monitored task.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// Option configures a Scope.
type Option func(*Scope)

// WithSuccessLog sends an event at level when the task completes without error.
func WithSuccessLog(level event.Severity) Option {
	return func(s *Scope) { s.successLevel = level }
}

// WithChannels reports to names instead of the routed channels.
func WithChannels(names ...string) Option {
	return func(s *Scope) { s.channels = names }
}

// Scope monitors one task. Run may be called any number of times, also
// concurrently; Start and Finish track a single execution and must not be
// shared between goroutines.
type Scope struct {
	h            *handler.Handler
	name         string
	category     string
	batchSize    int
	batch        bool
	successLevel event.Severity
	channels     []string

	ctx   context.Context
	start time.Time
}

// Task returns a scope for a named unit of work.
func Task(h *handler.Handler, name, category string, opts ...Option) *Scope {
	s := &Scope{h: h, name: name, category: category}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Batch returns a scope for a batch job. size is reported, never enforced.
func Batch(h *handler.Handler, name, category string, size int, opts ...Option) *Scope {
	s := Task(h, name, category, opts...)
	s.batch = true
	s.batchSize = size
	return s
}

// Run calls fn with a context carrying the task. An error returned by fn is
// reported at ERROR and returned as is. A panic is reported and then
// re-raised with the original value.
func (s *Scope) Run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	run := *s
	ctx = run.Start(ctx)
	defer run.Finish(&err)
	return fn(ctx)
}

// Start records the start time and returns ctx carrying the task. Pair it
// with a deferred Finish:
//
//	ctx = scope.Start(ctx)
//	defer scope.Finish(&err)
func (s *Scope) Start(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	s.start = time.Now()
	s.ctx = event.ContextWithTask(ctx, event.TaskInfo{Name: s.name, Category: s.category})
	return s.ctx
}

// Finish reports the outcome of the execution begun by Start. It must be
// deferred directly so that it can observe a panic.
func (s *Scope) Finish(errp *error) {
	if r := recover(); r != nil {
		perr := &PanicError{Value: r, Stack: string(debug.Stack())}
		s.report(perr, perr.Stack)
		panic(r)
	}

	var err error
	if errp != nil {
		err = *errp
	}
	if err != nil {
		s.report(err, "")
		return
	}
	if s.successLevel.Valid() && s.h != nil {
		s.h.Capture(s.reportCtx(), fmt.Sprintf("Task '%s' completed", s.name), s.successLevel, nil,
			s.fields(), s.captureOptions("")...)
	}
}

// Elapsed returns the time since Start.
func (s *Scope) Elapsed() time.Duration {
	if s.start.IsZero() {
		return 0
	}
	return time.Since(s.start)
}

func (s *Scope) report(err error, trace string) {
	if s.h == nil {
		return
	}
	msg := fmt.Sprintf("Task '%s' failed: %v", s.name, err)
	s.h.Capture(s.reportCtx(), msg, event.Error, err, s.fields(), s.captureOptions(trace)...)
}

func (s *Scope) captureOptions(trace string) []handler.CaptureOption {
	opts := []handler.CaptureOption{handler.WithTask(s.name, s.category), handler.WithCallerSkip(2)}
	if trace != "" {
		opts = append(opts, handler.WithStack(trace))
	}
	if s.channels != nil {
		opts = append(opts, handler.WithChannels(s.channels...))
	}
	return opts
}

// reportCtx survives cancellation of the task context.
func (s *Scope) reportCtx() context.Context {
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithoutCancel(ctx)
}

func (s *Scope) fields() event.Fields {
	f := event.F(
		"task_name", s.name,
		"category", s.category,
		"elapsed_time", s.Elapsed().Seconds(),
	)
	if s.batch {
		f = f.With("batch_size", s.batchSize)
	}
	return f
}

// FromContext returns the task a monitored function runs under.
func FromContext(ctx context.Context) (event.TaskInfo, bool) {
	return event.TaskFromContext(ctx)
}
