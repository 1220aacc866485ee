package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupRegistry creates a miniredis instance and a registry pointed at it
func setupRegistry(t *testing.T) (*RedisRegistry, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client, err := NewClient(Config{
		URL:        "redis://" + mr.Addr(),
		MaxRetries: 3,
		PoolSize:   10,
	})
	if err != nil {
		t.Fatalf("Failed to create redis client: %v", err)
	}

	registry := NewRedisRegistry(client)
	t.Cleanup(func() { registry.Close() })

	return registry, mr
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient(Config{URL: "invalid://url"})
	assert.Error(t, err)
}

func TestNewClient_ConnectionFailure(t *testing.T) {
	_, err := NewClient(Config{URL: "redis://localhost:1"})
	assert.Error(t, err)
}

func TestGet_NoSession(t *testing.T) {
	registry, _ := setupRegistry(t)
	ctx := context.Background()

	record, err := registry.Get(ctx, KindUser, "u-1")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestSetGetDelete_RoundTrip(t *testing.T) {
	registry, mr := setupRegistry(t)
	ctx := context.Background()

	in := &Record{
		SessionID: "sid-abc",
		UserAgent: "curl/8.0",
		IP:        "203.0.113.7",
		LoginTime: time.Now().UTC().Truncate(time.Second),
	}

	require.NoError(t, registry.Set(ctx, KindAdmin, "a-1", in, time.Hour))

	// Key format is part of the external contract
	assert.True(t, mr.Exists("session:admin:a-1"))

	out, err := registry.Get(ctx, KindAdmin, "a-1")
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, in.SessionID, out.SessionID)
	assert.Equal(t, in.UserAgent, out.UserAgent)
	assert.Equal(t, in.IP, out.IP)
	assert.True(t, in.LoginTime.Equal(out.LoginTime))

	require.NoError(t, registry.Delete(ctx, KindAdmin, "a-1"))

	out, err = registry.Get(ctx, KindAdmin, "a-1")
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestSet_ReplacesExistingRecord(t *testing.T) {
	registry, _ := setupRegistry(t)
	ctx := context.Background()

	require.NoError(t, registry.Set(ctx, KindUser, "u-1", &Record{SessionID: "first"}, time.Hour))
	require.NoError(t, registry.Set(ctx, KindUser, "u-1", &Record{SessionID: "second"}, time.Hour))

	out, err := registry.Get(ctx, KindUser, "u-1")
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, "second", out.SessionID)
}

func TestTTL_ExpiryRemovesRecord(t *testing.T) {
	registry, mr := setupRegistry(t)
	ctx := context.Background()

	require.NoError(t, registry.Set(ctx, KindUser, "u-1", &Record{SessionID: "sid"}, 30*time.Second))

	mr.FastForward(31 * time.Second)

	out, err := registry.Get(ctx, KindUser, "u-1")
	require.NoError(t, err)
	assert.Nil(t, out, "record must silently vanish after TTL")
}

func TestDelete_AbsentKeyIsNotAnError(t *testing.T) {
	registry, _ := setupRegistry(t)

	assert.NoError(t, registry.Delete(context.Background(), KindUser, "never-existed"))
}

func TestGet_CorruptRecordIsDropped(t *testing.T) {
	registry, mr := setupRegistry(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("session:user:u-1", "{not json"))

	_, err := registry.Get(ctx, KindUser, "u-1")
	assert.Error(t, err)
	assert.False(t, mr.Exists("session:user:u-1"), "corrupt record should be deleted")
}

func TestKeysAreIndependentPerKind(t *testing.T) {
	registry, _ := setupRegistry(t)
	ctx := context.Background()

	require.NoError(t, registry.Set(ctx, KindUser, "1", &Record{SessionID: "user-sid"}, time.Hour))
	require.NoError(t, registry.Set(ctx, KindAdmin, "1", &Record{SessionID: "admin-sid"}, time.Hour))

	userRec, err := registry.Get(ctx, KindUser, "1")
	require.NoError(t, err)
	adminRec, err := registry.Get(ctx, KindAdmin, "1")
	require.NoError(t, err)

	assert.Equal(t, "user-sid", userRec.SessionID)
	assert.Equal(t, "admin-sid", adminRec.SessionID)

	require.NoError(t, registry.Delete(ctx, KindUser, "1"))
	adminRec, err = registry.Get(ctx, KindAdmin, "1")
	require.NoError(t, err)
	assert.NotNil(t, adminRec, "deleting a user session must not touch the admin session")
}
