package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return recorder
}

func TestStartSpan(t *testing.T) {
	t.Run("records name kind and attributes", func(t *testing.T) {
		recorder := withRecorder(t)

		_, end := StartClientSpan(context.Background(), "ledger.fetch", attribute.String("record.id", "lic-1"))
		end(nil)

		spans := recorder.Ended()
		require.Len(t, spans, 1)
		assert.Equal(t, "ledger.fetch", spans[0].Name())
		assert.Equal(t, trace.SpanKindClient, spans[0].SpanKind())
		assert.Contains(t, spans[0].Attributes(), attribute.String("record.id", "lic-1"))
		assert.Equal(t, codes.Unset, spans[0].Status().Code)
	})

	t.Run("records error status", func(t *testing.T) {
		recorder := withRecorder(t)

		ctx, end := StartSpan(context.Background(), "integrity.verify")
		SetAttributes(ctx, attribute.String("verification.status", "unavailable"))
		end(errors.New("ledger unreachable"))

		spans := recorder.Ended()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Error, spans[0].Status().Code)
		assert.Equal(t, "ledger unreachable", spans[0].Status().Description)
		assert.Contains(t, spans[0].Attributes(), attribute.String("verification.status", "unavailable"))
	})
}
