package logger

import (
	"context"

	"github.com/google/uuid"
)

// WithTraceID stores traceID in ctx, generating a UUID v4 when it is empty.
//
// Parameters:
//   - ctx: parent context
//   - traceID: incoming trace id (e.g. the X-Trace-ID header), may be empty
//
// Returns:
//   - context.Context: child context carrying the trace id
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		traceID = NewTraceID()
	}
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID returns the trace id stored in ctx, or "".
func GetTraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

func NewTraceID() string {
	return uuid.New().String()
}
