// Package observability provides Prometheus metrics and OpenTelemetry
// tracing for the delivery engine and the task scheduler.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/xraph/paysim"

// Tracer starts spans for delivery attempts and task runs. Methods are safe
// on a nil *Tracer, which returns no-op spans.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer uses the global tracer provider.
func NewTracer() *Tracer {
	return &Tracer{tracer: otel.Tracer(tracerName)}
}

// NewTracerFrom uses the given provider.
func NewTracerFrom(tp trace.TracerProvider) *Tracer {
	return &Tracer{tracer: tp.Tracer(tracerName)}
}

// StartAttemptSpan starts a span for one delivery attempt.
func (t *Tracer) StartAttemptSpan(ctx context.Context, eventID, webhookID string, attempt int) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(context.Background())
	}
	return t.tracer.Start(ctx, "paysim.delivery.attempt",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("paysim.event_id", eventID),
			attribute.String("paysim.webhook_id", webhookID),
			attribute.Int("paysim.attempt", attempt),
		),
	)
}

// EndAttemptSpan ends an attempt span with its result.
func EndAttemptSpan(span trace.Span, statusCode int, latencyMs int64, errMsg string) {
	span.SetAttributes(
		attribute.Int("http.status_code", statusCode),
		attribute.Int64("paysim.latency_ms", latencyMs),
	)
	if errMsg != "" {
		span.SetStatus(codes.Error, errMsg)
	}
	span.End()
}

// StartTaskSpan starts a span for one scheduled task run.
func (t *Tracer) StartTaskSpan(ctx context.Context, task string) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(context.Background())
	}
	return t.tracer.Start(ctx, "paysim.task."+task,
		trace.WithAttributes(attribute.String("paysim.task", task)),
	)
}

// EndSpan ends span, recording err when non-nil.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
