package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kart-io/errica/pkg/errica/channel"
	"github.com/kart-io/errica/pkg/errica/event"
)

// Metrics holds the Prometheus collectors for errica.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Deliveries counts channel delivery attempts.
	// Labels: channel, status (success|error)
	Deliveries *prometheus.CounterVec

	// DeliveryDuration measures channel delivery latency in seconds.
	// Labels: channel
	DeliveryDuration *prometheus.HistogramVec

	// Dispatches counts dispatched events.
	// Labels: level
	Dispatches *prometheus.CounterVec

	// EventsCaptured counts events captured by the handler.
	// Labels: level
	EventsCaptured *prometheus.CounterVec

	// ChannelUp reports the last health check outcome (1 healthy, 0 not).
	// Labels: channel
	ChannelUp *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Deliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "errica_deliveries_total",
				Help: "Total number of channel delivery attempts by channel and status",
			},
			[]string{"channel", "status"},
		),
		DeliveryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "errica_delivery_duration_seconds",
				Help:    "Duration of channel delivery attempts in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"channel"},
		),
		Dispatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "errica_dispatches_total",
				Help: "Total number of events dispatched to at least one channel by level",
			},
			[]string{"level"},
		),
		EventsCaptured: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "errica_events_captured_total",
				Help: "Total number of events captured by level",
			},
			[]string{"level"},
		),
		ChannelUp: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "errica_channel_up",
				Help: "Whether the last health check of a channel succeeded",
			},
			[]string{"channel"},
		),
	}
}

// ObserveDelivery records one delivery attempt.
func (m *Metrics) ObserveDelivery(name string, res channel.Result) {
	if m == nil {
		return
	}
	status := "success"
	if !res.Success {
		status = "error"
	}
	m.Deliveries.WithLabelValues(name, status).Inc()
	m.DeliveryDuration.WithLabelValues(name).Observe(res.Latency.Seconds())
}

// ObserveDispatch records an event that reached at least one channel.
func (m *Metrics) ObserveDispatch(level event.Severity) {
	if m == nil {
		return
	}
	m.Dispatches.WithLabelValues(level.String()).Inc()
}

// ObserveCapture records a captured event.
func (m *Metrics) ObserveCapture(level event.Severity) {
	if m == nil {
		return
	}
	m.EventsCaptured.WithLabelValues(level.String()).Inc()
}

// ObserveHealth records a health check outcome.
func (m *Metrics) ObserveHealth(name string, res channel.Result) {
	if m == nil {
		return
	}
	up := 0.0
	if res.Success {
		up = 1
	}
	m.ChannelUp.WithLabelValues(name).Set(up)
}
