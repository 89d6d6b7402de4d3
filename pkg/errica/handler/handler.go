// Package handler turns log calls, errors and panics into events and hands
// them to the channel manager.
package handler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/kart-io/errica/observability"
	"github.com/kart-io/errica/pkg/errica/channel"
	"github.com/kart-io/errica/pkg/errica/config"
	"github.com/kart-io/errica/pkg/errica/core"
	"github.com/kart-io/errica/pkg/errica/errors"
	"github.com/kart-io/errica/pkg/errica/event"
	"github.com/kart-io/errica/pkg/logger"
)

// PathEnabled holds the initial enabled flag of the handler.
const PathEnabled = "monitoring.enabled"

// Handler captures events. It is safe for concurrent use.
type Handler struct {
	cfg       *config.Config
	router    *core.Router
	manager   *core.Manager
	log       logger.Logger
	clock     func() time.Time
	telemetry *observability.TelemetryProvider
	metrics   *observability.Metrics

	enabled    atomic.Bool
	errorCount atomic.Uint64
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger. Nil means discard.
func WithLogger(l logger.Logger) Option {
	return func(h *Handler) { h.log = logger.OrDiscard(l) }
}

// WithClock overrides the event timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(h *Handler) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithTelemetry records captured events as OpenTelemetry metrics.
func WithTelemetry(tp *observability.TelemetryProvider) Option {
	return func(h *Handler) { h.telemetry = tp }
}

// WithMetrics records captured events in Prometheus.
func WithMetrics(m *observability.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// New returns a handler routing through router and delivering through
// manager. A nil router routes by cfg.
func New(cfg *config.Config, router *core.Router, manager *core.Manager, opts ...Option) *Handler {
	if router == nil {
		router = core.NewRouter(cfg)
	}
	h := &Handler{
		cfg:     cfg,
		router:  router,
		manager: manager,
		log:     logger.Discard,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.enabled.Store(cfg.Bool(PathEnabled, true))
	return h
}

// captureOptions are per-call settings.
type captureOptions struct {
	channels []string
	task     *event.TaskInfo
	trace    string
	skip     int
}

// CaptureOption configures one Capture call.
type CaptureOption func(*captureOptions)

// WithChannels sends to names instead of the routed channels.
func WithChannels(names ...string) CaptureOption {
	return func(o *captureOptions) {
		if names == nil {
			names = []string{}
		}
		o.channels = names
	}
}

// WithTask attributes the event to a task.
func WithTask(name, category string) CaptureOption {
	return func(o *captureOptions) { o.task = &event.TaskInfo{Name: name, Category: category} }
}

// WithStack attaches trace instead of the stack of the capture site.
func WithStack(trace string) CaptureOption {
	return func(o *captureOptions) { o.trace = trace }
}

// WithCallerSkip skips extra frames when recording the capture site stack.
func WithCallerSkip(skip int) CaptureOption {
	return func(o *captureOptions) { o.skip += skip }
}

// Capture builds an event and dispatches it to the routed (or explicit)
// channels. It returns the per-channel results, or an empty map when the
// handler is disabled or no enabled channel is targeted. Capture never
// panics on delivery problems.
func (h *Handler) Capture(ctx context.Context, msg string, level event.Severity, err error, fields event.Fields, opts ...CaptureOption) map[string]channel.Result {
	if !h.enabled.Load() {
		h.log.Debug("Capture absorbed", "code", errors.ErrMonitoringDisabled, "message", msg, "level", level)
		return map[string]channel.Result{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var o captureOptions
	for _, opt := range opts {
		opt(&o)
	}

	evOpts := []event.Option{
		event.WithFields(fields),
		event.WithApp(h.app()),
		event.WithTimestamp(h.clock()),
	}
	if o.task != nil {
		evOpts = append(evOpts, event.WithTask(o.task.Name, o.task.Category))
	} else if task, ok := event.TaskFromContext(ctx); ok {
		evOpts = append(evOpts, event.WithTask(task.Name, task.Category))
	}
	if err != nil {
		trace := o.trace
		if trace == "" {
			trace = event.Stack(1 + o.skip)
		}
		evOpts = append(evOpts, event.WithError(err), event.WithTrace(trace))
	} else if o.trace != "" {
		evOpts = append(evOpts, event.WithTrace(o.trace))
	}
	ev := event.New(msg, level, evOpts...)

	if level.AtLeast(event.Error) || err != nil {
		h.errorCount.Add(1)
	}
	h.metrics.ObserveCapture(level)
	h.telemetry.RecordCapture(ctx, level)

	targets := h.router.Resolve(level, o.channels)
	if len(targets) == 0 {
		h.log.Debug("No channels routed", "level", level, "event", ev.ID)
		return map[string]channel.Result{}
	}
	return h.manager.Dispatch(ctx, ev, targets)
}

func (h *Handler) app() event.AppInfo {
	name, version, env := h.cfg.App()
	return event.AppInfo{Name: name, Version: version, Environment: env}
}

// Debug captures a DEBUG event.
func (h *Handler) Debug(ctx context.Context, msg string, err error, kv ...any) map[string]channel.Result {
	return h.Capture(ctx, msg, event.Debug, err, event.F(kv...), WithCallerSkip(1))
}

// Info captures an INFO event.
func (h *Handler) Info(ctx context.Context, msg string, err error, kv ...any) map[string]channel.Result {
	return h.Capture(ctx, msg, event.Info, err, event.F(kv...), WithCallerSkip(1))
}

// Warning captures a WARNING event.
func (h *Handler) Warning(ctx context.Context, msg string, err error, kv ...any) map[string]channel.Result {
	return h.Capture(ctx, msg, event.Warning, err, event.F(kv...), WithCallerSkip(1))
}

// Error captures an ERROR event.
func (h *Handler) Error(ctx context.Context, msg string, err error, kv ...any) map[string]channel.Result {
	return h.Capture(ctx, msg, event.Error, err, event.F(kv...), WithCallerSkip(1))
}

// Critical captures a CRITICAL event.
func (h *Handler) Critical(ctx context.Context, msg string, err error, kv ...any) map[string]channel.Result {
	return h.Capture(ctx, msg, event.Critical, err, event.F(kv...), WithCallerSkip(1))
}

// Enable turns capturing on.
func (h *Handler) Enable() {
	if !h.enabled.Swap(true) {
		h.log.Info("Monitoring enabled")
	}
}

// Disable turns capturing off. Captures become no-ops.
func (h *Handler) Disable() {
	if h.enabled.Swap(false) {
		h.log.Info("Monitoring disabled")
	}
}

// Enabled reports whether capturing is on.
func (h *Handler) Enabled() bool {
	return h.enabled.Load()
}

// ErrorCount returns the number of captures at ERROR or above or carrying an error.
func (h *Handler) ErrorCount() uint64 {
	return h.errorCount.Load()
}

// Manager returns the channel manager.
func (h *Handler) Manager() *core.Manager {
	return h.manager
}

// Stats describes the handler state.
type Stats struct {
	Enabled    bool   `json:"enabled"`
	ErrorCount uint64 `json:"error_count"`
}

// Map returns the stats keyed like the monitoring report.
func (s Stats) Map() map[string]any {
	return map[string]any{"enabled": s.Enabled, "error_count": s.ErrorCount}
}

// Stats returns the current state.
func (h *Handler) Stats() Stats {
	return Stats{Enabled: h.Enabled(), ErrorCount: h.ErrorCount()}
}
