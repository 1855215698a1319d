package emit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter turns events into OpenTelemetry spans.
//
// Each event becomes a span named after Event.Msg and ended immediately.
// Run, step and node identifiers are recorded under the "loopgraph."
// attribute namespace; Meta entries are copied as attributes, and an
// "error" entry marks the span as failed.
//
// Usage:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	emitter := emit.NewOTelEmitter(tp.Tracer("loopgraph"))
//	engine := graph.New(graph.WithEmitter(emitter))
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter returns an emitter that records spans on tracer.
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

// Emit implements Emitter.
func (o *OTelEmitter) Emit(event Event) {
	o.record(context.Background(), event)
}

// EmitBatch records several events as spans under ctx.
func (o *OTelEmitter) EmitBatch(ctx context.Context, events []Event) error {
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		o.record(ctx, ev)
	}
	return nil
}

func (o *OTelEmitter) record(ctx context.Context, event Event) {
	var opts []trace.SpanStartOption
	if !event.Time.IsZero() {
		opts = append(opts, trace.WithTimestamp(event.Time))
	}
	_, span := o.tracer.Start(ctx, event.Msg, opts...)
	defer span.End()

	span.SetAttributes(
		attribute.String("loopgraph.run_id", event.RunID),
		attribute.Int("loopgraph.step", event.Step),
		attribute.String("loopgraph.node_id", event.NodeID),
	)
	for key, value := range event.Meta {
		span.SetAttributes(toAttribute(metaKey(key), value))
	}
	if msg, ok := event.Error(); ok {
		span.SetStatus(codes.Error, msg)
		span.RecordError(errors.New(msg))
	}
}

// metaKey maps well-known meta keys onto namespaced attribute names.
func metaKey(key string) string {
	switch key {
	case "duration_ms":
		return "loopgraph.node.latency_ms"
	case "next":
		return "loopgraph.route.next"
	case "matched":
		return "loopgraph.route.matched"
	case "outcome":
		return "loopgraph.run.outcome"
	case "model":
		return "loopgraph.llm.model"
	}
	return key
}

func toAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	case time.Duration:
		return attribute.Int64(key, v.Milliseconds())
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}
