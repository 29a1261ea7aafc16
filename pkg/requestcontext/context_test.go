package requestcontext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInvocationID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, InvocationID(ctx))

	ctx = WithInvocationID(ctx, "inv-1")
	assert.Equal(t, "inv-1", InvocationID(ctx))
	assert.Empty(t, RequestID(ctx))
}

func TestRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", RequestID(ctx))

	// wrong type under the key reads as unset
	ctx = context.WithValue(ctx, ContextKeyRequestID, 42)
	assert.Empty(t, RequestID(ctx))
}
