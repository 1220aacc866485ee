// Package observability provides structured logging and Prometheus metrics
// for the warden service.
//
// The Logger wraps stdlib slog with a JSON handler and chainable field
// helpers. Metrics covers login outcomes, lockouts, forced logins, token
// verification results, and permission denials.
package observability
