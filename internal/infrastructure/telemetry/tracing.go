package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope for billing spans.
const TracerName = "github.com/saas/backend"

// Common span attribute keys.
const (
	AttrTenantID    = attribute.Key("billing.tenant_id")
	AttrEventID     = attribute.Key("billing.event_id")
	AttrEventType   = attribute.Key("billing.event_type")
	AttrAggregateID = attribute.Key("billing.aggregate_id")
	AttrProvider    = attribute.Key("billing.provider")
	AttrQueue       = attribute.Key("messaging.destination.name")
)

// StartSpan starts an internal span named name.
//
//	ctx, span := telemetry.StartSpan(ctx, "billing.process_webhook", telemetry.AttrProvider.String("stripe"))
//	defer span.End()
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// StartConsumerSpan starts a span for processing one message from a queue.
func StartConsumerSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attrs...),
	)
}

// RecordError marks span as failed. A nil err is ignored.
func RecordError(span trace.Span, err error) {
	if err == nil || span == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// InjectCarrier serialises the span context of ctx into a string map that
// can travel inside a queued job.
func InjectCarrier(ctx context.Context) map[string]string {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	if len(carrier) == 0 {
		return nil
	}
	return carrier
}

// ExtractCarrier restores a span context captured by InjectCarrier.
func ExtractCarrier(ctx context.Context, carrier map[string]string) context.Context {
	if len(carrier) == 0 {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(carrier))
}
