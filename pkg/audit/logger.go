// Package audit provides the activity log sink. Logging is fire-and-forget:
// a sink failure is logged and swallowed so it can never fail the primary
// operation it describes.
package audit

import (
	"context"

	"github.com/platinummonkey/warden/pkg/observability"
)

// Logger is the interface for recording activity log entries
type Logger interface {
	// Log records one entry
	Log(ctx context.Context, entry *Entry) error

	// Close flushes and releases the sink
	Close() error
}

// Record logs an entry and swallows any sink error. This is the only way
// the rest of the codebase writes audit entries.
func Record(ctx context.Context, logger Logger, entry *Entry) {
	if logger == nil {
		return
	}
	if err := logger.Log(ctx, entry); err != nil {
		observability.FromContext(ctx).
			WithError(err).
			WithField("action", entry.Action).
			Warn("failed to write activity log entry")
	}
}

// NopLogger discards all entries
type NopLogger struct{}

func (NopLogger) Log(ctx context.Context, entry *Entry) error { return nil }

func (NopLogger) Close() error { return nil }
