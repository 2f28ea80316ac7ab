// Package context carries correlation identifiers through request and batch
// contexts so logs and spans can be joined.
package context

import (
	"context"
	"strings"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	runIDKey
	tableKey
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// WithRunID tags a context with the backfill run it belongs to.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, strings.TrimSpace(runID))
}

func RunIDFromContext(ctx context.Context) string {
	return stringValue(ctx, runIDKey)
}

// WithTable tags a context with the rollup table being processed.
func WithTable(ctx context.Context, table string) context.Context {
	return context.WithValue(ctx, tableKey, strings.TrimSpace(table))
}

func TableFromContext(ctx context.Context) string {
	return stringValue(ctx, tableKey)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(key).(string)
	return value
}
