// Package core holds the channel manager, which owns the enabled channels and
// fans events out to them, and the router that picks targets per severity.
package core

import (
	"context"
	stderrors "errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kart-io/errica/internal/ratelimit"
	"github.com/kart-io/errica/observability"
	"github.com/kart-io/errica/pkg/channels"
	"github.com/kart-io/errica/pkg/errica/channel"
	"github.com/kart-io/errica/pkg/errica/config"
	"github.com/kart-io/errica/pkg/errica/errors"
	"github.com/kart-io/errica/pkg/errica/event"
	"github.com/kart-io/errica/pkg/logger"
)

// entry is an enabled channel with its call limits.
type entry struct {
	ch         channel.Channel
	timeout    time.Duration
	retries    int
	retryDelay time.Duration
	limiter    ratelimit.Limiter
}

// Manager constructs every enabled channel once and dispatches events to them.
// It is safe for concurrent use.
type Manager struct {
	cfg       *config.Config
	registry  *channel.Registry
	extra     []creatorOption
	log       logger.Logger
	telemetry *observability.TelemetryProvider
	metrics   *observability.Metrics

	channels     map[string]*entry
	names        []string
	initFailures map[string]string

	messagesSent atomic.Uint64
	errorsSent   atomic.Uint64
	failedSends  atomic.Uint64

	statsMu    sync.Mutex
	perChannel map[string]*ChannelStats

	// inflight is held for reading by Dispatch and HealthCheck and for
	// writing by Shutdown, so no channel is closed under a running call.
	inflight  sync.RWMutex
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewManager builds the enabled channels of cfg. A channel that cannot be
// constructed is logged, reported in Stats().InitFailures and left disabled;
// it never fails the whole manager.
func NewManager(cfg *config.Config, opts ...Option) *Manager {
	if cfg == nil {
		cfg = config.New()
	}
	m := &Manager{
		cfg:          cfg,
		log:          logger.Discard,
		channels:     make(map[string]*entry),
		initFailures: make(map[string]string),
		perChannel:   make(map[string]*ChannelStats),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = channels.DefaultRegistry()
	}
	for _, c := range m.extra {
		m.registry.Register(c.typ, c.creator)
	}

	defaultTimeout := cfg.Duration(config.PathManagerTimeout, config.DefaultTimeout)
	if defaultTimeout <= 0 {
		defaultTimeout = config.DefaultTimeout
	}

	for _, name := range cfg.EnabledChannels() {
		settings := cfg.Channel(name)
		ch, err := m.create(name, settings)
		if err != nil {
			m.log.Error("Failed to create channel", "channel", name, "type", settings.Type(), "error", err)
			m.initFailures[name] = err.Error()
			continue
		}

		timeout := settings.Duration("timeout", defaultTimeout)
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		m.channels[name] = &entry{
			ch:         ch,
			timeout:    timeout,
			retries:    max(settings.Int("max_retries", 0), 0),
			retryDelay: settings.Duration("retry_delay", 500*time.Millisecond),
			limiter:    ratelimit.FromSettings(settings),
		}
		m.perChannel[name] = &ChannelStats{}
		m.names = append(m.names, name)
		m.log.Info("Channel enabled", "channel", name, "type", settings.Type(), "timeout", timeout)
	}
	sort.Strings(m.names)
	return m
}

func (m *Manager) create(name string, settings config.ChannelSettings) (ch channel.Channel, err error) {
	creator, ok := m.registry.Lookup(settings.Type())
	if !ok {
		return nil, errors.Newf(errors.ErrUnknownChannelType, "unknown channel type %q", settings.Type()).WithChannel(name)
	}
	defer func() {
		if r := recover(); r != nil {
			ch, err = nil, errors.Newf(errors.ErrChannelInit, "creator panicked: %v", r).WithChannel(name)
		}
	}()
	ch, err = creator(name, settings, m.log)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrChannelInit, "create channel").WithChannel(name)
	}
	if ch == nil {
		return nil, errors.New(errors.ErrChannelInit, "creator returned no channel").WithChannel(name)
	}
	return ch, nil
}

// EnabledChannels returns the names of the channels that were constructed, sorted.
func (m *Manager) EnabledChannels() []string {
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

// Channel returns the enabled channel called name.
func (m *Manager) Channel(name string) (channel.Channel, bool) {
	e, ok := m.channels[name]
	if !ok {
		return nil, false
	}
	return e.ch, true
}

// Dispatch sends ev to every name in targets that is an enabled channel.
// Unknown or disabled names are skipped. Each channel is called in its own
// goroutine, bounded by its timeout; a failure, timeout or panic in one
// channel only affects that channel's Result. The returned map has one entry
// per attempted channel.
func (m *Manager) Dispatch(ctx context.Context, ev *event.Event, targets []string) map[string]channel.Result {
	results := make(map[string]channel.Result)
	if ev == nil {
		return results
	}
	m.inflight.RLock()
	defer m.inflight.RUnlock()
	if m.closed.Load() {
		return results
	}

	var attempt []string
	for _, name := range dedupe(targets) {
		if _, ok := m.channels[name]; ok {
			attempt = append(attempt, name)
		} else {
			m.log.Debug("Skipping channel that is not enabled", "channel", name, "event", ev.ID)
		}
	}
	if len(attempt) == 0 {
		return results
	}

	ctx, span := m.telemetry.TraceDispatch(ctx, ev, len(attempt))
	defer span.End()

	m.messagesSent.Add(1)
	if ev.Level.AtLeast(event.Error) {
		m.errorsSent.Add(1)
	}
	m.metrics.ObserveDispatch(ev.Level)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, name := range attempt {
		wg.Add(1)
		go func(name string, e *entry) {
			defer wg.Done()
			res := m.send(ctx, name, e, ev)

			mu.Lock()
			results[name] = res
			mu.Unlock()
		}(name, m.channels[name])
	}
	wg.Wait()

	failed := 0
	for _, res := range results {
		if !res.Success {
			failed++
		}
	}
	m.log.Debug("Dispatch completed", "event", ev.ID, "level", ev.Level, "channels", len(results), "failed", failed)
	return results
}

// send delivers ev to one channel with retries and records the outcome.
func (m *Manager) send(ctx context.Context, name string, e *entry, ev *event.Event) channel.Result {
	ctx, span := m.telemetry.TraceChannel(ctx, "send", name)
	start := time.Now()

	if e.limiter != nil && !e.limiter.Allow() {
		res := channel.FailCode(errors.ErrChannelRateLimited, "send suppressed", "rate limit reached")
		m.telemetry.EndChannelSpan(span, res)
		return m.record(ctx, name, res, time.Since(start))
	}

	var res channel.Result
	for attempt := 0; ; attempt++ {
		res = m.call(ctx, name, e.timeout, func(ctx context.Context) channel.Result {
			return e.ch.Send(ctx, ev)
		})
		if res.Success || attempt >= e.retries || !retryable(res.Code) {
			break
		}
		m.log.Debug("Retrying delivery", "channel", name, "attempt", attempt+1, "error", res.Error)
		select {
		case <-ctx.Done():
			m.telemetry.EndChannelSpan(span, res)
			return m.record(ctx, name, res, time.Since(start))
		case <-time.After(e.retryDelay):
		}
	}

	m.telemetry.EndChannelSpan(span, res)
	return m.record(ctx, name, res, time.Since(start))
}

func (m *Manager) record(ctx context.Context, name string, res channel.Result, elapsed time.Duration) channel.Result {
	if res.Latency == 0 {
		res.Latency = elapsed
	}

	m.statsMu.Lock()
	st := m.perChannel[name]
	if res.Success {
		st.Sent++
	} else {
		st.Failed++
		st.LastError = res.Message
	}
	st.LastLatency = res.Latency
	m.statsMu.Unlock()

	if !res.Success {
		m.failedSends.Add(1)
		m.log.Warn("Channel delivery failed", "channel", name, "message", res.Message, "error", res.Error)
	}
	m.metrics.ObserveDelivery(name, res)
	m.telemetry.RecordDelivery(ctx, name, res, elapsed)
	return res
}

// call runs fn with a timeout and converts a panic into a failed Result.
// If fn ignores its context the timeout still bounds the wait.
func (m *Manager) call(ctx context.Context, name string, timeout time.Duration, fn func(context.Context) channel.Result) channel.Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan channel.Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				m.log.Error("Channel panicked", "channel", name, "panic", r, "stack", string(debug.Stack()))
				done <- channel.FailCode(errors.ErrChannelPanic, "channel panicked", fmt.Sprint(r))
			}
		}()
		done <- fn(ctx)
	}()

	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return channel.FailCode(errors.ErrChannelTimeout, "no answer within "+timeout.String(), ctx.Err().Error())
		}
		return channel.Fail(ctx.Err(), "call cancelled")
	}
}

func retryable(code errors.Code) bool {
	return code == errors.ErrChannelTimeout || code == errors.ErrChannelUnreachable
}

// HealthCheck checks every enabled channel concurrently.
func (m *Manager) HealthCheck(ctx context.Context) map[string]channel.Result {
	results := make(map[string]channel.Result, len(m.names))
	m.inflight.RLock()
	defer m.inflight.RUnlock()
	if m.closed.Load() {
		return results
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, name := range m.names {
		wg.Add(1)
		go func(name string, e *entry) {
			defer wg.Done()

			ctx, span := m.telemetry.TraceChannel(ctx, "health", name)
			start := time.Now()
			res := m.call(ctx, name, e.timeout, e.ch.HealthCheck)
			if res.Latency == 0 {
				res.Latency = time.Since(start)
			}
			m.telemetry.EndChannelSpan(span, res)
			m.metrics.ObserveHealth(name, res)
			if !res.Success {
				m.log.Warn("Channel unhealthy", "channel", name, "message", res.Message)
			}

			mu.Lock()
			results[name] = res
			mu.Unlock()
		}(name, m.channels[name])
	}
	wg.Wait()
	return results
}

// Stats returns a copy of the counters.
func (m *Manager) Stats() Stats {
	s := Stats{
		MessagesSent:    m.messagesSent.Load(),
		ErrorsSent:      m.errorsSent.Load(),
		FailedSends:     m.failedSends.Load(),
		EnabledChannels: m.EnabledChannels(),
		Channels:        make(map[string]ChannelStats, len(m.perChannel)),
		InitFailures:    make(map[string]string, len(m.initFailures)),
	}
	m.statsMu.Lock()
	for name, st := range m.perChannel {
		s.Channels[name] = *st
	}
	m.statsMu.Unlock()
	for name, msg := range m.initFailures {
		s.InitFailures[name] = msg
	}
	return s
}

// Shutdown waits for running dispatches and health checks, then closes every
// channel once. Later calls return the same error and later dispatches deliver
// nothing. A channel call that outlived its timeout may still be running.
func (m *Manager) Shutdown() error {
	m.closeOnce.Do(func() {
		m.inflight.Lock()
		m.closed.Store(true)
		m.inflight.Unlock()

		var errs []error
		for _, name := range m.names {
			if err := m.channels[name].ch.Close(); err != nil {
				m.log.Warn("Failed to close channel", "channel", name, "error", err)
				errs = append(errs, fmt.Errorf("close %s: %w", name, err))
			}
		}
		m.closeErr = stderrors.Join(errs...)
		if err := m.telemetry.Shutdown(context.Background()); err != nil {
			m.log.Warn("Failed to shut down telemetry", "error", err)
		}
		m.log.Info("Channel manager shut down", "channels", len(m.names))
	})
	return m.closeErr
}

// Closed reports whether Shutdown was called.
func (m *Manager) Closed() bool {
	return m.closed.Load()
}

// Config returns the configuration the manager was built from.
func (m *Manager) Config() *config.Config {
	return m.cfg
}
