package telemetry

import (
	"bytes"
	"context"
	"encoding/binary"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	metricNoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/instrumentation"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// ForTest telemetry records spans in memory and generates deterministic trace and span IDs.
type ForTest interface {
	Telemetry
	// TraceID generated for the n-th trace, n starts from 1.
	TraceID(n int) trace.TraceID
	// SpanID generated for the n-th span, n starts from 1.
	SpanID(n int) trace.SpanID
	// Reset clears recorded spans and resets the ID generators.
	Reset()
	// AssertSpans compares recorded spans, ordered by the span ID.
	// Timestamps and other non-deterministic fields are cleared before the comparison.
	AssertSpans(tb testing.TB, expected tracetest.SpanStubs) bool
}

type forTest struct {
	Telemetry
	idGenerator *testIDGenerator
	exporter    *tracetest.InMemoryExporter
}

type testIDGenerator struct {
	lock    sync.Mutex
	traceID uint64
	spanID  uint64
}

func NewForTest(tb testing.TB) ForTest {
	tb.Helper()

	idGenerator := &testIDGenerator{}
	exporter := tracetest.NewInMemoryExporter()
	tracerProvider := tracesdk.NewTracerProvider(
		tracesdk.WithSyncer(exporter),
		tracesdk.WithIDGenerator(idGenerator),
	)
	tb.Cleanup(func() {
		_ = tracerProvider.Shutdown(context.Background())
	})

	return &forTest{
		Telemetry:   New(tracerProvider, metricNoop.NewMeterProvider()),
		idGenerator: idGenerator,
		exporter:    exporter,
	}
}

func (v *forTest) TraceID(n int) trace.TraceID {
	return toTraceID(uint64(n))
}

func (v *forTest) SpanID(n int) trace.SpanID {
	return toSpanID(uint64(n))
}

func (v *forTest) Reset() {
	v.exporter.Reset()
	v.idGenerator.lock.Lock()
	defer v.idGenerator.lock.Unlock()
	v.idGenerator.traceID = 0
	v.idGenerator.spanID = 0
}

func (v *forTest) AssertSpans(tb testing.TB, expected tracetest.SpanStubs) bool {
	tb.Helper()

	actual := v.exporter.GetSpans()

	// Spans are exported in the order they ended, sort them by the span ID
	sort.SliceStable(actual, func(i, j int) bool {
		iID := actual[i].SpanContext.SpanID()
		jID := actual[j].SpanContext.SpanID()
		return bytes.Compare(iID[:], jID[:]) < 0
	})

	// Clear non-deterministic fields
	for i := range actual {
		s := &actual[i]
		s.StartTime = time.Time{}
		s.EndTime = time.Time{}
		s.Resource = nil
		s.InstrumentationScope = instrumentation.Scope{}
		s.InstrumentationLibrary = instrumentation.Scope{}
		if len(s.Attributes) == 0 {
			s.Attributes = nil
		}
		if len(s.Links) == 0 {
			s.Links = nil
		}
		if len(s.Events) == 0 {
			s.Events = nil
		}
		for j := range s.Events {
			s.Events[j].Time = time.Time{}
		}
	}

	return assert.Equal(tb, expected, actual)
}

func (g *testIDGenerator) NewIDs(_ context.Context) (trace.TraceID, trace.SpanID) {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.traceID++
	g.spanID++
	return toTraceID(g.traceID), toSpanID(g.spanID)
}

func (g *testIDGenerator) NewSpanID(_ context.Context, _ trace.TraceID) trace.SpanID {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.spanID++
	return toSpanID(g.spanID)
}

func toTraceID(n uint64) trace.TraceID {
	var id trace.TraceID
	binary.BigEndian.PutUint64(id[8:], n)
	return id
}

func toSpanID(n uint64) trace.SpanID {
	var id trace.SpanID
	binary.BigEndian.PutUint64(id[:], n)
	return id
}
