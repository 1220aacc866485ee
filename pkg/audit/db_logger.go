package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// DBLogger writes activity log entries to the database
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a database-backed activity logger
func NewDBLogger(db *sql.DB) *DBLogger {
	return &DBLogger{db: db}
}

// EnsureSchema creates the activity_logs table if it does not exist.
// There is deliberately no foreign key to principals: entries must
// survive principal deletion.
func (l *DBLogger) EnsureSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS activity_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			action TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id TEXT,
			description TEXT NOT NULL,
			previous_values TEXT,
			new_values TEXT,
			actor_kind TEXT,
			actor_id TEXT,
			ip_address TEXT,
			user_agent TEXT,
			module TEXT,
			created_at TIMESTAMP NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_activity_logs_actor ON activity_logs(actor_kind, actor_id);
		CREATE INDEX IF NOT EXISTS idx_activity_logs_entity ON activity_logs(entity_type, entity_id);
		CREATE INDEX IF NOT EXISTS idx_activity_logs_created_at ON activity_logs(created_at);
	`

	if _, err := l.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create activity_logs schema: %w", err)
	}
	return nil
}

// Log inserts one entry
func (l *DBLogger) Log(ctx context.Context, entry *Entry) error {
	previous, err := marshalValues(entry.PreviousValues)
	if err != nil {
		return fmt.Errorf("failed to marshal previous values: %w", err)
	}
	next, err := marshalValues(entry.NewValues)
	if err != nil {
		return fmt.Errorf("failed to marshal new values: %w", err)
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO activity_logs (action, entity_type, entity_id, description, previous_values, new_values, actor_kind, actor_id, ip_address, user_agent, module, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = l.db.ExecContext(ctx, query,
		entry.Action,
		entry.EntityType,
		nullable(entry.EntityID),
		entry.Description,
		previous,
		next,
		nullable(entry.ActorKind),
		nullable(entry.ActorID),
		nullable(entry.IP),
		nullable(entry.UserAgent),
		nullable(entry.Module),
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert activity log entry: %w", err)
	}

	return nil
}

// List returns entries in reverse chronological order, most recent first
func (l *DBLogger) List(ctx context.Context, limit, offset int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, action, entity_type, entity_id, description, previous_values, new_values, actor_kind, actor_id, ip_address, user_agent, module, created_at
		FROM activity_logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := l.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity log entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		var entityID, previous, next, actorKind, actorID, ip, userAgent, module sql.NullString

		err := rows.Scan(
			&e.ID, &e.Action, &e.EntityType, &entityID, &e.Description,
			&previous, &next, &actorKind, &actorID, &ip, &userAgent, &module, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity log entry: %w", err)
		}

		e.EntityID = entityID.String
		e.ActorKind = actorKind.String
		e.ActorID = actorID.String
		e.IP = ip.String
		e.UserAgent = userAgent.String
		e.Module = module.String

		if previous.Valid && previous.String != "" {
			_ = json.Unmarshal([]byte(previous.String), &e.PreviousValues)
		}
		if next.Valid && next.String != "" {
			_ = json.Unmarshal([]byte(next.String), &e.NewValues)
		}

		entries = append(entries, &e)
	}

	return entries, rows.Err()
}

// Close is a no-op; the logger does not own the database handle
func (l *DBLogger) Close() error {
	return nil
}

func marshalValues(values map[string]interface{}) (interface{}, error) {
	if len(values) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
