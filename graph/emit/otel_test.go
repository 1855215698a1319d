package emit

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestTracer(t *testing.T) (*OTelEmitter, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return NewOTelEmitter(tp.Tracer("test")), exporter
}

func TestOTelEmitterEmit(t *testing.T) {
	emitter, exporter := newTestTracer(t)

	emitter.Emit(Event{
		RunID:  "run-001",
		Step:   3,
		NodeID: "critic",
		Msg:    MsgRoute,
		Meta: map[string]any{
			"next":        "refiner",
			"matched":     "refine",
			"duration_ms": int64(40),
			"score":       5.0,
			"fallback":    false,
			"elapsed":     1500 * time.Millisecond,
			"targets":     []string{"refiner", "__end__"},
		},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != MsgRoute {
		t.Errorf("span name = %q", span.Name)
	}

	attrs := attributeMap(span.Attributes)
	want := map[string]any{
		"loopgraph.run_id":          "run-001",
		"loopgraph.step":            int64(3),
		"loopgraph.node_id":         "critic",
		"loopgraph.route.next":      "refiner",
		"loopgraph.route.matched":   "refine",
		"loopgraph.node.latency_ms": int64(40),
		"score":                     5.0,
		"fallback":                  false,
		"elapsed":                   int64(1500),
		"targets":                   "[refiner __end__]",
	}
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("%s = %v (%T), want %v (%T)", k, attrs[k], attrs[k], v, v)
		}
	}
	if span.Status.Code == codes.Error {
		t.Error("span without error marked as failed")
	}
}

func TestOTelEmitterError(t *testing.T) {
	emitter, exporter := newTestTracer(t)

	emitter.Emit(Event{RunID: "r", NodeID: "searcher", Msg: MsgNodeError, Meta: map[string]any{"error": "search backend unavailable"}})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Error || spans[0].Status.Description != "search backend unavailable" {
		t.Errorf("status = %+v", spans[0].Status)
	}
	if len(spans[0].Events) == 0 {
		t.Error("error was not recorded on the span")
	}
}

func TestOTelEmitterEmitBatch(t *testing.T) {
	emitter, exporter := newTestTracer(t)

	events := []Event{
		{RunID: "r", Step: 1, NodeID: "a", Msg: MsgNodeStart},
		{RunID: "r", Step: 1, NodeID: "a", Msg: MsgNodeEnd},
		{RunID: "r", Msg: MsgRunEnd},
	}
	if err := emitter.EmitBatch(context.Background(), events); err != nil {
		t.Fatalf("EmitBatch() error = %v", err)
	}
	if got := len(exporter.GetSpans()); got != 3 {
		t.Errorf("spans = %d, want 3", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := emitter.EmitBatch(ctx, events); err == nil {
		t.Error("EmitBatch on cancelled context should fail")
	}
}

func attributeMap(attrs []attribute.KeyValue) map[string]any {
	m := make(map[string]any, len(attrs))
	for _, a := range attrs {
		m[string(a.Key)] = a.Value.AsInterface()
	}
	return m
}
