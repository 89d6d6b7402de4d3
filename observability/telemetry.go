// Package observability provides OpenTelemetry tracing and Prometheus
// metrics for event dispatch and channel delivery.
package observability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/kart-io/errica/pkg/errica/channel"
	"github.com/kart-io/errica/pkg/errica/config"
	"github.com/kart-io/errica/pkg/errica/event"
)

const instrumentationName = "github.com/kart-io/errica"

// TelemetryConfig configures the telemetry provider.
type TelemetryConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
	OTLPHeaders    map[string]string
	Insecure       bool
	SampleRate     float64
	Enabled        bool
}

// TelemetryConfigFrom reads telemetry.* and app.* from cfg.
func TelemetryConfigFrom(cfg *config.Config) TelemetryConfig {
	name, version, env := cfg.App()
	return TelemetryConfig{
		ServiceName:    name,
		ServiceVersion: version,
		Environment:    env,
		OTLPEndpoint:   cfg.String(config.PathTelemetry+".endpoint", ""),
		OTLPHeaders:    cfg.StringMap(config.PathTelemetry + ".headers"),
		Insecure:       cfg.Bool(config.PathTelemetry+".insecure", false),
		SampleRate:     cfg.Float(config.PathTelemetry+".sample_rate", 1.0),
		Enabled:        cfg.Bool(config.PathTelemetry+".enabled", false),
	}
}

// TelemetryProvider provides tracing spans and OpenTelemetry instruments.
// A nil *TelemetryProvider is valid and does nothing.
type TelemetryProvider struct {
	config        TelemetryConfig
	tracer        trace.Tracer
	meter         metric.Meter
	traceProvider *sdktrace.TracerProvider

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	deliveries       metric.Int64Counter
	deliveryFailures metric.Int64Counter
	deliveryDuration metric.Float64Histogram
	eventsCaptured   metric.Int64Counter
}

// TelemetryOption configures a TelemetryProvider.
type TelemetryOption func(*TelemetryProvider)

// WithTracerProvider uses tp instead of building an OTLP exporter.
func WithTracerProvider(tp trace.TracerProvider) TelemetryOption {
	return func(p *TelemetryProvider) { p.tracerProvider = tp }
}

// WithMeterProvider uses mp instead of the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) TelemetryOption {
	return func(p *TelemetryProvider) { p.meterProvider = mp }
}

// NewTelemetryProvider creates a telemetry provider. When cfg.Enabled is set
// and no tracer provider is supplied, spans are exported over OTLP/HTTP.
// Otherwise the global (by default no-op) providers are used.
func NewTelemetryProvider(cfg TelemetryConfig, opts ...TelemetryOption) (*TelemetryProvider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "errica"
	}
	if cfg.SampleRate <= 0 || cfg.SampleRate > 1 {
		cfg.SampleRate = 1.0
	}

	tp := &TelemetryProvider{config: cfg}
	for _, opt := range opts {
		opt(tp)
	}

	if tp.tracerProvider == nil {
		if cfg.Enabled {
			if err := tp.initTracing(); err != nil {
				return nil, fmt.Errorf("init tracing: %w", err)
			}
		} else {
			tp.tracerProvider = otel.GetTracerProvider()
		}
	}
	if tp.meterProvider == nil {
		tp.meterProvider = otel.GetMeterProvider()
	}

	tp.tracer = tp.tracerProvider.Tracer(instrumentationName, trace.WithInstrumentationVersion(cfg.ServiceVersion))
	tp.meter = tp.meterProvider.Meter(instrumentationName)
	if err := tp.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return tp, nil
}

func (tp *TelemetryProvider) initTracing() error {
	res := resource.NewSchemaless(
		attribute.String("service.name", tp.config.ServiceName),
		attribute.String("service.version", tp.config.ServiceVersion),
		attribute.String("deployment.environment", tp.config.Environment),
	)

	clientOpts := []otlptracehttp.Option{}
	if endpoint := tp.config.OTLPEndpoint; strings.Contains(endpoint, "://") {
		clientOpts = append(clientOpts, otlptracehttp.WithEndpointURL(endpoint))
	} else if endpoint != "" {
		clientOpts = append(clientOpts, otlptracehttp.WithEndpoint(endpoint))
	}
	if tp.config.Insecure {
		clientOpts = append(clientOpts, otlptracehttp.WithInsecure())
	}
	if len(tp.config.OTLPHeaders) > 0 {
		clientOpts = append(clientOpts, otlptracehttp.WithHeaders(tp.config.OTLPHeaders))
	}

	exporter, err := otlptrace.New(context.Background(), otlptracehttp.NewClient(clientOpts...))
	if err != nil {
		return fmt.Errorf("create exporter: %w", err)
	}

	tp.traceProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(tp.config.SampleRate))),
	)
	tp.tracerProvider = tp.traceProvider
	return nil
}

func (tp *TelemetryProvider) initMetrics() error {
	var err error

	tp.deliveries, err = tp.meter.Int64Counter(
		"errica_deliveries_total",
		metric.WithDescription("Channel delivery attempts"),
	)
	if err != nil {
		return fmt.Errorf("create deliveries counter: %w", err)
	}

	tp.deliveryFailures, err = tp.meter.Int64Counter(
		"errica_delivery_failures_total",
		metric.WithDescription("Failed channel delivery attempts"),
	)
	if err != nil {
		return fmt.Errorf("create delivery_failures counter: %w", err)
	}

	tp.deliveryDuration, err = tp.meter.Float64Histogram(
		"errica_delivery_duration_seconds",
		metric.WithDescription("Duration of channel delivery attempts"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("create delivery_duration histogram: %w", err)
	}

	tp.eventsCaptured, err = tp.meter.Int64Counter(
		"errica_events_captured_total",
		metric.WithDescription("Events captured by the handler"),
	)
	if err != nil {
		return fmt.Errorf("create events_captured counter: %w", err)
	}
	return nil
}

// TraceDispatch starts the span covering the fan-out of one event.
func (tp *TelemetryProvider) TraceDispatch(ctx context.Context, ev *event.Event, targets int) (context.Context, trace.Span) {
	if tp == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tp.tracer.Start(ctx, "errica.dispatch",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("errica.event.id", ev.ID),
			attribute.String("errica.level", ev.Level.String()),
			attribute.Int("errica.targets.count", targets),
		),
	)
}

// TraceChannel starts a span for one channel operation ("send" or "health").
func (tp *TelemetryProvider) TraceChannel(ctx context.Context, operation, name string) (context.Context, trace.Span) {
	if tp == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tp.tracer.Start(ctx, "errica.channel."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("errica.channel", name)),
	)
}

// EndChannelSpan records the result on span and ends it.
func (tp *TelemetryProvider) EndChannelSpan(span trace.Span, res channel.Result) {
	if tp == nil || span == nil {
		return
	}
	span.SetAttributes(attribute.Bool("errica.success", res.Success))
	if res.Success {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetAttributes(attribute.String("errica.error.code", string(res.Code)))
		span.SetStatus(codes.Error, res.Message)
	}
	span.End()
}

// RecordDelivery records one delivery attempt.
func (tp *TelemetryProvider) RecordDelivery(ctx context.Context, name string, res channel.Result, duration time.Duration) {
	if tp == nil {
		return
	}
	status := "success"
	if !res.Success {
		status = "error"
		tp.deliveryFailures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("channel", name),
			attribute.String("error_code", string(res.Code)),
		))
	}
	attrs := metric.WithAttributes(attribute.String("channel", name), attribute.String("status", status))
	tp.deliveries.Add(ctx, 1, attrs)
	tp.deliveryDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordCapture records one captured event.
func (tp *TelemetryProvider) RecordCapture(ctx context.Context, level event.Severity) {
	if tp == nil {
		return
	}
	tp.eventsCaptured.Add(ctx, 1, metric.WithAttributes(attribute.String("level", level.String())))
}

// Shutdown flushes and stops the exporter if this provider created one.
func (tp *TelemetryProvider) Shutdown(ctx context.Context) error {
	if tp != nil && tp.traceProvider != nil {
		return tp.traceProvider.Shutdown(ctx)
	}
	return nil
}

// Tracer returns the tracer instance.
func (tp *TelemetryProvider) Tracer() trace.Tracer {
	return tp.tracer
}

// Meter returns the meter instance.
func (tp *TelemetryProvider) Meter() metric.Meter {
	return tp.meter
}
