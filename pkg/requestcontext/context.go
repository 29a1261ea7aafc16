// Package requestcontext provides transport-independent context accessors for
// invocation-scoped values.
//
// Adapters and the batcher set values; the enricher and loggers read them.
//
//	ctx = requestcontext.WithInvocationID(ctx, uuid.NewString())
//	invocationID := requestcontext.InvocationID(ctx)
package requestcontext

import (
	"context"
)

// Context key types (unexported for encapsulation).
type (
	invocationIDKey struct{}
	requestIDKey    struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyInvocationID = invocationIDKey{}
	ContextKeyRequestID    = requestIDKey{}
)

// InvocationID retrieves the pipeline invocation ID from the context.
// Returns an empty string if not set.
func InvocationID(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeyInvocationID).(string); ok {
		return v
	}
	return ""
}

// WithInvocationID injects a pipeline invocation ID into the context.
func WithInvocationID(ctx context.Context, invocationID string) context.Context {
	return context.WithValue(ctx, ContextKeyInvocationID, invocationID)
}

// RequestID retrieves the transport request ID (HTTP request or Kafka poll)
// from the context. Returns an empty string if not set.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return v
	}
	return ""
}

// WithRequestID injects a transport request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}
