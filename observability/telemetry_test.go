package observability

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/kart-io/errica/pkg/errica/channel"
	"github.com/kart-io/errica/pkg/errica/config"
	"github.com/kart-io/errica/pkg/errica/event"
)

func TestTelemetryConfigFrom(t *testing.T) {
	cfg := config.New()
	cfg.Set("app.name", "billing")
	cfg.Set("telemetry.enabled", true)
	cfg.Set("telemetry.endpoint", "http://collector:4318")
	cfg.Set("telemetry.sample_rate", "0.5")
	cfg.Set("telemetry.headers", map[string]any{"x-api-key": "secret"})

	tc := TelemetryConfigFrom(cfg)
	assert.Equal(t, "billing", tc.ServiceName)
	assert.True(t, tc.Enabled)
	assert.Equal(t, "http://collector:4318", tc.OTLPEndpoint)
	assert.Equal(t, 0.5, tc.SampleRate)
	assert.Equal(t, map[string]string{"x-api-key": "secret"}, tc.OTLPHeaders)
}

func TestTelemetryProvider_Spans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))

	p, err := NewTelemetryProvider(TelemetryConfig{ServiceName: "test"}, WithTracerProvider(tp))
	require.NoError(t, err)

	ev := event.New("boom", event.Error)
	ctx, span := p.TraceDispatch(context.Background(), ev, 2)
	_, okSpan := p.TraceChannel(ctx, "send", "console")
	p.EndChannelSpan(okSpan, channel.OK("written"))
	_, badSpan := p.TraceChannel(ctx, "send", "slack")
	p.EndChannelSpan(badSpan, channel.Fail(context.DeadlineExceeded, "send failed"))
	span.End()

	spans := rec.Ended()
	require.Len(t, spans, 3)

	byName := map[string]sdktrace.ReadOnlySpan{}
	for _, s := range spans {
		key := s.Name()
		for _, a := range s.Attributes() {
			if a.Key == "errica.channel" {
				key += "/" + a.Value.AsString()
			}
		}
		byName[key] = s
	}
	require.Contains(t, byName, "errica.dispatch")
	assert.Equal(t, codes.Ok, byName["errica.channel.send/console"].Status().Code)
	assert.Equal(t, codes.Error, byName["errica.channel.send/slack"].Status().Code)
	assert.True(t, strings.Contains(byName["errica.channel.send/slack"].Status().Description, "timeout"))
	assert.Equal(t, byName["errica.dispatch"].SpanContext().SpanID(), byName["errica.channel.send/slack"].Parent().SpanID())
}

func TestTelemetryProvider_NilSafe(t *testing.T) {
	var p *TelemetryProvider
	ctx, span := p.TraceDispatch(context.Background(), event.New("x", event.Info), 1)
	assert.NotNil(t, ctx)
	span.End()
	p.EndChannelSpan(span, channel.OK("ok"))
	p.RecordDelivery(ctx, "console", channel.OK("ok"), time.Millisecond)
	p.RecordCapture(ctx, event.Info)
	assert.NoError(t, p.Shutdown(ctx))
}

func TestTelemetryProvider_Disabled(t *testing.T) {
	p, err := NewTelemetryProvider(TelemetryConfig{SampleRate: 7})
	require.NoError(t, err)
	assert.Equal(t, "errica", p.config.ServiceName)
	assert.Equal(t, 1.0, p.config.SampleRate)
	assert.NotNil(t, p.Tracer())
	assert.NotNil(t, p.Meter())

	p.RecordDelivery(context.Background(), "slack", channel.Fail(errors.New("x"), "send failed"), time.Millisecond)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveDelivery("slack", channel.OK("sent").WithLatency(20*time.Millisecond))
	m.ObserveDelivery("slack", channel.Fail(errors.New("x"), "send failed"))
	m.ObserveDispatch(event.Error)
	m.ObserveCapture(event.Warning)
	m.ObserveHealth("slack", channel.OK("reachable"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries.WithLabelValues("slack", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries.WithLabelValues("slack", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dispatches.WithLabelValues("ERROR")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsCaptured.WithLabelValues("WARNING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChannelUp.WithLabelValues("slack")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.DeliveryDuration))

	expected := `
# HELP errica_dispatches_total Total number of events dispatched to at least one channel by level
# TYPE errica_dispatches_total counter
errica_dispatches_total{level="ERROR"} 1
`
	assert.NoError(t, testutil.CollectAndCompare(m.Dispatches, strings.NewReader(expected)))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveDelivery("x", channel.OK("ok"))
	m.ObserveDispatch(event.Info)
	m.ObserveCapture(event.Info)
	m.ObserveHealth("x", channel.OK("ok"))
}
