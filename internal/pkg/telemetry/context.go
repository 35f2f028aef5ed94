package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// ContextWithSpan returns a copy of the parent context with the span attached.
func ContextWithSpan(ctx context.Context, s Span) context.Context {
	if v, ok := s.(*span); ok {
		ctx = trace.ContextWithSpan(ctx, v.span)
	}
	return ctx
}

// SpanFromContext returns the span attached to the context, or a no-op span.
func SpanFromContext(ctx context.Context) Span {
	return &span{span: trace.SpanFromContext(ctx)}
}
