// Package tracing wraps OpenTelemetry span creation for services and adapters.
//
// Spans go to whatever TracerProvider is installed globally; with none
// installed the otel no-op provider makes every helper free.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "carebook"

// StartSpan starts an internal span and returns a function that ends it,
// recording err when non-nil.
//
//	ctx, end := tracing.StartSpan(ctx, "integrity.verify", attribute.String("record.id", id))
//	defer func() { end(err) }()
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	return start(ctx, name, trace.SpanKindInternal, attrs)
}

// StartClientSpan starts a span for a call leaving the process (ledger, database, broker).
func StartClientSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	return start(ctx, name, trace.SpanKindClient, attrs)
}

// SetAttributes adds attributes to the span carried by ctx, if any.
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}

func start(ctx context.Context, name string, kind trace.SpanKind, attrs []attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, name,
		trace.WithSpanKind(kind),
		trace.WithAttributes(attrs...),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
