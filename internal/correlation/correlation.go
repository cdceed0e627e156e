// Package correlation carries the per-request correlation ID through
// contexts, enqueued jobs, and worker execution.
package correlation

import (
	"context"

	"github.com/google/uuid"
)

// Header is the HTTP header used to receive and echo the correlation ID.
const Header = "X-Correlation-Id"

// NoContext is logged when no correlation ID is present on the context.
const NoContext = "no-context"

type correlationKey struct{}

// FromContext fetches the correlation ID from the context if present.
func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if val, ok := ctx.Value(correlationKey{}).(string); ok {
		return val
	}
	return ""
}

// WithID sets the correlation ID onto the context.
func WithID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// Ensure guarantees a correlation ID on the context, generating one when missing.
func Ensure(ctx context.Context) (context.Context, string) {
	cid := FromContext(ctx)
	if cid == "" {
		cid = uuid.NewString()
	}
	return WithID(ctx, cid), cid
}
