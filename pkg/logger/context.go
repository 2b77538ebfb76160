package logger

import (
	"context"
	"log/slog"
)

type fieldsKey struct{}

// With returns a context carrying fields for every logger derived from it.
// Fields accumulate across calls.
func With(ctx context.Context, fields ...any) context.Context {
	if len(fields) == 0 {
		return ctx
	}
	prev := fieldsFrom(ctx)
	merged := make([]any, 0, len(prev)+len(fields))
	merged = append(merged, prev...)
	merged = append(merged, fields...)
	return context.WithValue(ctx, fieldsKey{}, merged)
}

// From returns the process logger annotated with the context fields.
func From(ctx context.Context) *slog.Logger {
	return Enrich(ctx, LoggerWrapper())
}

// Enrich annotates a component logger with the context fields, so a
// service logging through it still reports the request's trace id.
func Enrich(ctx context.Context, base *slog.Logger) *slog.Logger {
	fields := fieldsFrom(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

func fieldsFrom(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}
	fields, _ := ctx.Value(fieldsKey{}).([]any)
	return fields
}
