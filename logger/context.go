package logger

import (
	"context"
	"maps"
)

// contextKey is an unexported type for context keys to avoid collisions.
type contextKey string

const (
	scopeKey  contextKey = "logger_scope"
	loggerKey contextKey = "logger_handle"
)

// WithScope returns a child context whose scoped fields are merged with
// fields. Records logged through FromContext(child) carry them for as long as
// the child context is in use; the parent is left untouched.
func WithScope(ctx context.Context, fields map[string]interface{}) context.Context {
	if len(fields) == 0 {
		return ctx
	}
	merged := maps.Clone(ScopeFields(ctx))
	if merged == nil {
		merged = make(map[string]interface{}, len(fields))
	}
	maps.Copy(merged, fields)
	return context.WithValue(ctx, scopeKey, merged)
}

// ScopeFields returns the fields scoped into ctx. The map must not be modified.
func ScopeFields(ctx context.Context) map[string]interface{} {
	if ctx == nil {
		return nil
	}
	fields, _ := ctx.Value(scopeKey).(map[string]interface{})
	return fields
}

// ContextWith returns a child context carrying l as its logger handle.
func ContextWith(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the logger installed in ctx, or the global logger,
// enriched with the fields scoped into ctx.
func FromContext(ctx context.Context) *Logger {
	if ctx == nil {
		return GetGlobalLogger()
	}
	l, ok := ctx.Value(loggerKey).(*Logger)
	if !ok || l == nil {
		l = GetGlobalLogger()
	}
	return l.WithContext(ctx)
}

// WithTraceIDs returns a child context carrying trace and span IDs picked up
// by WithContext.
func WithTraceIDs(ctx context.Context, traceID, spanID string) context.Context {
	if traceID != "" {
		ctx = context.WithValue(ctx, contextKey(FieldTraceID), traceID)
	}
	if spanID != "" {
		ctx = context.WithValue(ctx, contextKey(FieldSpanID), spanID)
	}
	return ctx
}
