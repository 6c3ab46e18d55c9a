package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func newTestLogger(buf *bytes.Buffer) Logger {
	return New(slog.New(slog.NewJSONHandler(buf, nil)))
}

func TestLogger_WithoutSpanOmitsTraceFields(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf)
	l.Info(context.Background(), "hello", "key", "value")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON log line: %v", err)
	}
	if _, ok := entry["trace_id"]; ok {
		t.Fatal("expected no trace_id field without an active span")
	}
	if entry["key"] != "value" {
		t.Fatalf("expected the caller's attrs to survive, got %+v", entry)
	}
}

func TestLogger_WithSpanAddsTraceFields(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf)

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	l.Error(ctx, "boom")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON log line: %v", err)
	}
	if entry["trace_id"] != traceID.String() {
		t.Fatalf("expected trace_id %s, got %v", traceID.String(), entry["trace_id"])
	}
	if entry["span_id"] != spanID.String() {
		t.Fatalf("expected span_id %s, got %v", spanID.String(), entry["span_id"])
	}
}

func TestDiscard_NeverPanics(t *testing.T) {
	l := Discard()
	l.Info(context.Background(), "ignored")
	l.Warn(context.Background(), "ignored")
	l.Error(context.Background(), "ignored")
}
