package core

import "context"

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	correlationIDKey contextKey = "correlation-id"
	userIDKey        contextKey = "user-id"
)

// AnonymousUser is the identity recorded when the caller sent no X-User-ID.
const AnonymousUser = "anonymous"

// WithCorrelationID returns a new context with the correlation id attached.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// GetCorrelationID retrieves the correlation id from the context.
// Returns empty string if not found.
func GetCorrelationID(ctx context.Context) string {
	if v, ok := ctx.Value(correlationIDKey).(string); ok {
		return v
	}
	return ""
}

// WithUserID returns a new context with the caller identity attached.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// GetUserID retrieves the caller identity from the context.
func GetUserID(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return AnonymousUser
}
