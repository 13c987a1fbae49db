package core

import (
	"context"

	"github.com/google/uuid"
)

type requestIDKey struct{}

// WithRequestID returns a copy of ctx carrying requestID
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// GetRequestID returns the request ID stored in ctx, or ""
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// GenerateRequestID returns a random (v4) UUID string
func GenerateRequestID() string {
	return uuid.New().String()
}

// EnsureRequestID returns ctx unchanged if it already carries a request ID,
// otherwise a child context with a fresh one. The ID in effect is returned too.
func EnsureRequestID(ctx context.Context) (context.Context, string) {
	if id := GetRequestID(ctx); id != "" {
		return ctx, id
	}
	id := GenerateRequestID()
	return WithRequestID(ctx, id), id
}
