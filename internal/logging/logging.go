// Package logging wraps log/slog with trace/span correlation, the way the
// pipeline's reference repos correlate structured logs with active spans.
package logging

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// Logger is the minimal structured-logging surface used throughout the
// ingest pipeline. Every subsystem takes one at construction rather than
// reaching for a package-level global.
type Logger interface {
	Info(ctx context.Context, msg string, attrs ...any)
	Warn(ctx context.Context, msg string, attrs ...any)
	Error(ctx context.Context, msg string, attrs ...any)
}

type correlated struct{ base *slog.Logger }

// New wraps base (slog.Default() if nil) with trace/span correlation.
func New(base *slog.Logger) Logger {
	if base == nil {
		base = slog.Default()
	}
	return &correlated{base: base}
}

func (l *correlated) Info(ctx context.Context, msg string, attrs ...any) {
	l.base.InfoContext(ctx, msg, withTrace(ctx, attrs)...)
}

func (l *correlated) Warn(ctx context.Context, msg string, attrs ...any) {
	l.base.WarnContext(ctx, msg, withTrace(ctx, attrs)...)
}

func (l *correlated) Error(ctx context.Context, msg string, attrs ...any) {
	l.base.ErrorContext(ctx, msg, withTrace(ctx, attrs)...)
}

func withTrace(ctx context.Context, attrs []any) []any {
	span := trace.SpanContextFromContext(ctx)
	if !span.IsValid() {
		return attrs
	}
	return append(attrs,
		slog.String("trace_id", span.TraceID().String()),
		slog.String("span_id", span.SpanID().String()),
	)
}

// Discard returns a Logger that drops everything. Useful for tests.
func Discard() Logger {
	return New(slog.New(slog.DiscardHandler))
}
