// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// SnapshotKey contains *rbac.Snapshot
	// Set by: middleware.Gate.Authenticate (pkg/middleware/gate.go)
	// Required by: permission middleware, all protected handlers
	SnapshotKey Key = "auth_snapshot"

	// RequestIDKey contains request ID string (UUID)
	// Set by: api request middleware
	// Used by: logger, audit trail
	RequestIDKey Key = "request_id"
)

// WithSnapshot adds the authenticated snapshot to the context
func WithSnapshot(ctx context.Context, snapshot interface{}) context.Context {
	return context.WithValue(ctx, SnapshotKey, snapshot)
}

// Snapshot retrieves the authenticated snapshot from context, or nil
func Snapshot(ctx context.Context) interface{} {
	return ctx.Value(SnapshotKey)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// RequestID retrieves the request ID from context
func RequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
