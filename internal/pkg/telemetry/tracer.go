package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	traceNoop "go.opentelemetry.io/otel/trace/noop"
)

// Tracer is a simplified trace.Tracer.
// The returned Span sets its status from an error pointer, see Span.End.
type Tracer interface {
	Start(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, Span)
}

type tracer struct {
	tracer trace.Tracer
}

var nopTracer = traceNoop.NewTracerProvider().Tracer("")

func (t *tracer) Start(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, Span) {
	if IsTracingDisabled(ctx) {
		ctx, s := nopTracer.Start(ctx, spanName, opts...)
		return ctx, &span{span: s}
	}
	ctx, s := t.tracer.Start(ctx, spanName, opts...)
	return ctx, &span{span: s}
}
