package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLogger(t *testing.T) *DBLogger {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := NewDBLogger(db)
	require.NoError(t, logger.EnsureSchema(context.Background()))
	return logger
}

func TestLogAndListRoundTrip(t *testing.T) {
	logger := setupLogger(t)
	ctx := context.Background()

	entry := &Entry{
		Action:      ActionUpdate,
		EntityType:  "Admin",
		EntityID:    "admin-1",
		Description: "Updated admin email",
		PreviousValues: map[string]interface{}{
			"email": "old@example.com",
		},
		NewValues: map[string]interface{}{
			"email": "new@example.com",
		},
		ActorKind: "admin",
		ActorID:   "actor-1",
		IP:        "203.0.113.7",
		UserAgent: "test-agent",
		Module:    "Admin",
	}
	require.NoError(t, logger.Log(ctx, entry))

	entries, err := logger.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	got := entries[0]
	assert.Equal(t, ActionUpdate, got.Action)
	assert.Equal(t, "admin-1", got.EntityID)
	assert.Equal(t, "old@example.com", got.PreviousValues["email"])
	assert.Equal(t, "new@example.com", got.NewValues["email"])
	assert.Equal(t, "actor-1", got.ActorID)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestListOrderAndPagination(t *testing.T) {
	logger := setupLogger(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		require.NoError(t, logger.Log(ctx, &Entry{
			Action:      ActionLogin,
			EntityType:  "Authentication",
			Description: fmt.Sprintf("login %d", i),
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}))
	}

	entries, err := logger.List(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "login 4", entries[0].Description)
	assert.Equal(t, "login 3", entries[1].Description)

	entries, err = logger.List(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "login 2", entries[0].Description)
}

func TestLogWithoutValues(t *testing.T) {
	logger := setupLogger(t)
	ctx := context.Background()

	require.NoError(t, logger.Log(ctx, &Entry{
		Action:      ActionLogout,
		EntityType:  "Authentication",
		Description: "admin logged out",
	}))

	entries, err := logger.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].PreviousValues)
	assert.Nil(t, entries[0].NewValues)
}

type failingLogger struct{}

func (failingLogger) Log(ctx context.Context, entry *Entry) error { return errors.New("sink down") }
func (failingLogger) Close() error                                { return nil }

func TestRecordSwallowsSinkErrors(t *testing.T) {
	// Record must never propagate a sink failure.
	Record(context.Background(), failingLogger{}, &Entry{Action: ActionLogin})
	Record(context.Background(), nil, &Entry{Action: ActionLogin})
}
