// Package telemetry provides tracing and metrics for the application.
// The Tracer and Span types simplify work with the OpenTelemetry API,
// the span status is set from an error pointer on the span end.
package telemetry

import (
	"go.opentelemetry.io/otel/metric"
	metricNoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	traceNoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/taskgrid/taskgrid"

type ctxKey string

type Telemetry interface {
	// Tracer for application spans.
	Tracer() Tracer
	// Meter for application metrics.
	Meter() metric.Meter
	// TracerProvider returns the underlying provider for low-level operations.
	TracerProvider() trace.TracerProvider
	// MeterProvider returns the underlying provider for low-level operations.
	MeterProvider() metric.MeterProvider
}

type telemetry struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	tracer         Tracer
	meter          metric.Meter
}

// New telemetry from the providers, nil values are replaced by no-op implementations.
func New(tracerProvider trace.TracerProvider, meterProvider metric.MeterProvider) Telemetry {
	if tracerProvider == nil {
		tracerProvider = traceNoop.NewTracerProvider()
	}
	if meterProvider == nil {
		meterProvider = metricNoop.NewMeterProvider()
	}
	return &telemetry{
		tracerProvider: tracerProvider,
		meterProvider:  meterProvider,
		tracer:         &tracer{tracer: tracerProvider.Tracer(instrumentationName)},
		meter:          meterProvider.Meter(instrumentationName),
	}
}

// NewNop telemetry that does nothing.
func NewNop() Telemetry {
	return New(nil, nil)
}

func (t *telemetry) Tracer() Tracer {
	return t.tracer
}

func (t *telemetry) Meter() metric.Meter {
	return t.meter
}

func (t *telemetry) TracerProvider() trace.TracerProvider {
	return t.tracerProvider
}

func (t *telemetry) MeterProvider() metric.MeterProvider {
	return t.meterProvider
}
