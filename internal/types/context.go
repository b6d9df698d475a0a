package types

import (
	"context"
)

// Context Keys
type contextKey string

const (
	requestIDKey contextKey = "request_id"
)

// WithRequestID stores a correlation ID in the context. For HTTP requests
// this is the inbound request ID; for driver ticks it is the sweep ID, so
// every collaborator call made during a sweep carries the same identifier
// in its outbound trace header and log lines.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the correlation ID from the context.
// Returns the empty string when none has been set.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
