package kafkax

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestTraceHeadersRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	headers := EventMeta{EventID: "evt-1", EventType: "payments.payment.succeeded.v1"}.Headers()
	headers = InjectTraceHeaders(ctx, headers)
	headers = InjectTraceHeaders(ctx, headers)

	count := 0
	for _, h := range headers {
		if h.Key == "traceparent" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected one traceparent header, got %d", count)
	}

	got := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), kafka.Message{Headers: headers}))
	if got.TraceID() != traceID || got.SpanID() != spanID || !got.IsRemote() {
		t.Fatalf("unexpected span context %+v", got)
	}
	if meta := ExtractEventMeta(kafka.Message{Headers: headers}); meta.EventID != "evt-1" {
		t.Fatalf("event meta lost: %+v", meta)
	}
}
