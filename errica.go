// Package errica routes application errors and alerts to delivery channels
// such as the console, Telegram, Slack, Discord, generic webhooks and Redis.
//
// Basic usage:
//
//	manager, h, err := errica.QuickSetup() // configuration from the environment
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer errica.Shutdown()
//
//	errica.LogError(ctx, "Payment failed", err, "order_id", 42)
//
// Monitoring a unit of work:
//
//	err := errica.TaskMonitor("sync_users", "sync").Run(ctx, func(ctx context.Context) error {
//		return syncUsers(ctx)
//	})
package errica

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/kart-io/errica/observability"
	"github.com/kart-io/errica/pkg/errica/channel"
	"github.com/kart-io/errica/pkg/errica/config"
	"github.com/kart-io/errica/pkg/errica/core"
	"github.com/kart-io/errica/pkg/errica/errors"
	"github.com/kart-io/errica/pkg/errica/event"
	"github.com/kart-io/errica/pkg/errica/handler"
	"github.com/kart-io/errica/pkg/errica/monitor"
	"github.com/kart-io/errica/pkg/logger"
)

type (
	// Config is the hierarchical configuration.
	Config = config.Config

	// Severity is the importance of an event.
	Severity = event.Severity

	// Fields are ordered event context fields.
	Fields = event.Fields

	// Result is the outcome of one delivery or health check.
	Result = channel.Result

	// Manager owns the enabled channels.
	Manager = core.Manager

	// Handler captures events.
	Handler = handler.Handler

	// Scope is a task or batch monitor.
	Scope = monitor.Scope
)

const (
	DEBUG    = event.Debug
	INFO     = event.Info
	WARNING  = event.Warning
	ERROR    = event.Error
	CRITICAL = event.Critical
)

// F builds context fields from key/value pairs.
func F(kv ...any) Fields { return event.F(kv...) }

// CaptureOption configures one capture.
type CaptureOption = handler.CaptureOption

// WithChannels sends a capture to names instead of the routed channels.
func WithChannels(names ...string) CaptureOption { return handler.WithChannels(names...) }

// ================================
// Construction
// ================================

type options struct {
	log       logger.Logger
	registry  *channel.Registry
	creators  map[string]channel.Creator
	metrics   *observability.Metrics
	telemetry *observability.TelemetryProvider
}

// Option configures CreateMonitor and QuickSetup.
type Option func(*options)

// WithLogger sets the logger of the manager and handler.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithRegistry replaces the built-in channel registry.
func WithRegistry(r *channel.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithCreator adds a channel type.
func WithCreator(typ string, c channel.Creator) Option {
	return func(o *options) {
		if o.creators == nil {
			o.creators = make(map[string]channel.Creator)
		}
		o.creators[typ] = c
	}
}

// WithMetrics records Prometheus metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTelemetry uses tp instead of one built from the telemetry.* settings.
func WithTelemetry(tp *observability.TelemetryProvider) Option {
	return func(o *options) { o.telemetry = tp }
}

// CreateConfigFromEnv returns defaults overlaid with the recognized
// environment variables.
func CreateConfigFromEnv() *Config {
	return config.FromEnv()
}

// CreateMonitor builds a manager and handler from cfg. Channels that cannot
// be constructed are reported in the manager stats and do not fail the call.
func CreateMonitor(cfg *Config, opts ...Option) (*Manager, *Handler, error) {
	if cfg == nil {
		cfg = config.New()
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = defaultLogger(cfg)
	}

	if o.telemetry == nil && cfg.Bool(config.PathTelemetry+".enabled", false) {
		tp, err := observability.NewTelemetryProvider(observability.TelemetryConfigFrom(cfg))
		if err != nil {
			return nil, nil, fmt.Errorf("create telemetry: %w", err)
		}
		o.telemetry = tp
	}

	managerOpts := []core.Option{
		core.WithLogger(o.log),
		core.WithMetrics(o.metrics),
		core.WithTelemetry(o.telemetry),
	}
	if o.registry != nil {
		managerOpts = append(managerOpts, core.WithRegistry(o.registry))
	}
	for typ, c := range o.creators {
		managerOpts = append(managerOpts, core.WithCreator(typ, c))
	}

	m := core.NewManager(cfg, managerOpts...)
	h := handler.New(cfg, core.NewRouter(cfg), m,
		handler.WithLogger(o.log),
		handler.WithMetrics(o.metrics),
		handler.WithTelemetry(o.telemetry),
	)
	return m, h, nil
}

// QuickSetup builds a monitor from the environment and installs it globally.
func QuickSetup(opts ...Option) (*Manager, *Handler, error) {
	cfg := config.FromEnv()
	if msg := cfg.String("config_file.error", ""); msg != "" {
		return nil, nil, errors.New(errors.ErrConfigLoadFailed, msg)
	}
	m, h, err := CreateMonitor(cfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	SetGlobalManager(m, h)
	return m, h, nil
}

func defaultLogger(cfg *Config) logger.Logger {
	l := logger.New()
	if level, ok := logger.ParseLevel(cfg.String(config.PathLogLevel, "")); ok {
		l = l.LogMode(level)
	}
	return l
}

// ================================
// Global instance
// ================================

type instance struct {
	manager *Manager
	handler *Handler
}

var global atomic.Pointer[instance]

// SetGlobalManager installs m and h for the package-level functions. A nil h
// gets a handler over the manager's configuration. A nil m uninstalls.
// The previously installed manager is not shut down.
func SetGlobalManager(m *Manager, h *Handler) {
	if m == nil {
		global.Store(nil)
		return
	}
	if h == nil {
		h = handler.New(m.Config(), nil, m)
	}
	global.Store(&instance{manager: m, handler: h})
}

// Global returns the installed manager and handler, or nils.
func Global() (*Manager, *Handler) {
	if g := global.Load(); g != nil {
		return g.manager, g.handler
	}
	return nil, nil
}

// Shutdown uninstalls the global monitor and shuts its manager down.
func Shutdown() error {
	g := global.Swap(nil)
	if g == nil {
		return nil
	}
	return g.manager.Shutdown()
}

func capture(ctx context.Context, msg string, level Severity, err error, fields Fields, opts ...handler.CaptureOption) map[string]Result {
	g := global.Load()
	if g == nil {
		return map[string]Result{}
	}
	return g.handler.Capture(ctx, msg, level, err, fields, append(opts, handler.WithCallerSkip(2))...)
}

// LogDebug captures a DEBUG event through the global monitor.
func LogDebug(ctx context.Context, msg string, err error, kv ...any) map[string]Result {
	return capture(ctx, msg, DEBUG, err, event.F(kv...))
}

// LogInfo captures an INFO event through the global monitor.
func LogInfo(ctx context.Context, msg string, err error, kv ...any) map[string]Result {
	return capture(ctx, msg, INFO, err, event.F(kv...))
}

// LogWarning captures a WARNING event through the global monitor.
func LogWarning(ctx context.Context, msg string, err error, kv ...any) map[string]Result {
	return capture(ctx, msg, WARNING, err, event.F(kv...))
}

// LogError captures an ERROR event through the global monitor.
func LogError(ctx context.Context, msg string, err error, kv ...any) map[string]Result {
	return capture(ctx, msg, ERROR, err, event.F(kv...))
}

// LogCritical captures a CRITICAL event through the global monitor.
func LogCritical(ctx context.Context, msg string, err error, kv ...any) map[string]Result {
	return capture(ctx, msg, CRITICAL, err, event.F(kv...))
}

// SendAlert sends msg at level. Without channels the routing table decides.
func SendAlert(ctx context.Context, msg string, level Severity, fields Fields, channels ...string) map[string]Result {
	var opts []handler.CaptureOption
	if len(channels) > 0 {
		opts = append(opts, handler.WithChannels(channels...))
	}
	return capture(ctx, msg, level, nil, fields, opts...)
}

// HealthCheck checks every enabled channel of the global monitor.
func HealthCheck(ctx context.Context) map[string]Result {
	g := global.Load()
	if g == nil {
		return map[string]Result{}
	}
	return g.manager.HealthCheck(ctx)
}

// MonitoringStats combines manager and handler stats.
type MonitoringStats struct {
	Installed      bool          `json:"installed"`
	ChannelManager core.Stats    `json:"channel_manager"`
	ErrorHandler   handler.Stats `json:"error_handler"`
}

// Map returns the report with keys channel_manager and error_handler.
func (s MonitoringStats) Map() map[string]any {
	return map[string]any{
		"channel_manager": s.ChannelManager.Map(),
		"error_handler":   s.ErrorHandler.Map(),
	}
}

// GetMonitoringStats reports the global monitor state.
func GetMonitoringStats() MonitoringStats {
	g := global.Load()
	if g == nil {
		return MonitoringStats{ChannelManager: core.Stats{EnabledChannels: []string{}}}
	}
	return MonitoringStats{
		Installed:      true,
		ChannelManager: g.manager.Stats(),
		ErrorHandler:   g.handler.Stats(),
	}
}

// TestMessage is the message sent by TestMonitoring.
const TestMessage = "errica monitoring test"

// TestMonitoring sends one INFO event to every enabled channel and reports
// whether all of them accepted it. It is false when nothing is installed or
// no channel is enabled.
func TestMonitoring(ctx context.Context) bool {
	g := global.Load()
	if g == nil {
		return false
	}
	names := g.manager.EnabledChannels()
	if len(names) == 0 {
		return false
	}
	results := g.handler.Capture(ctx, TestMessage, INFO, nil, event.F("test", true), handler.WithChannels(names...))
	if len(results) != len(names) {
		return false
	}
	for _, r := range results {
		if !r.Success {
			return false
		}
	}
	return true
}

// TaskMonitor returns a task scope reporting through the global monitor.
func TaskMonitor(name, category string, opts ...monitor.Option) *Scope {
	_, h := Global()
	return monitor.Task(h, name, category, opts...)
}

// BatchMonitor returns a batch scope reporting through the global monitor.
func BatchMonitor(name, category string, size int, opts ...monitor.Option) *Scope {
	_, h := Global()
	return monitor.Batch(h, name, category, size, opts...)
}
