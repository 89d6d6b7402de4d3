package core

import (
	"github.com/kart-io/errica/observability"
	"github.com/kart-io/errica/pkg/errica/channel"
	"github.com/kart-io/errica/pkg/logger"
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Nil means discard.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) { m.log = logger.OrDiscard(l) }
}

// WithRegistry replaces the built-in channel registry.
func WithRegistry(r *channel.Registry) Option {
	return func(m *Manager) {
		if r != nil {
			m.registry = r.Clone()
		}
	}
}

// WithCreator registers creator for channel type typ, on top of the registry.
func WithCreator(typ string, creator channel.Creator) Option {
	return func(m *Manager) { m.extra = append(m.extra, creatorOption{typ, creator}) }
}

// WithTelemetry traces dispatches and channel calls.
func WithTelemetry(tp *observability.TelemetryProvider) Option {
	return func(m *Manager) { m.telemetry = tp }
}

// WithMetrics records Prometheus metrics.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

type creatorOption struct {
	typ     string
	creator channel.Creator
}
