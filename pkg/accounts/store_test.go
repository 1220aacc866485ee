package accounts

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) *Store {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := NewStore(db)
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store
}

func newPrincipal(kind Kind, email string) *Principal {
	return &Principal{
		Kind:         kind,
		FirstName:    "First",
		LastName:     "Last",
		Email:        email,
		PasswordHash: "hash",
		IsActive:     true,
	}
}

func TestCreateNormalizesEmail(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	p := newPrincipal(KindUser, "  Mixed.Case@Example.COM ")
	require.NoError(t, store.Create(ctx, p))
	assert.Equal(t, "mixed.case@example.com", p.Email)

	got, err := store.GetByEmail(ctx, KindUser, "MIXED.CASE@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, p.ID, got.ID)
}

func TestCreateDuplicateEmailSameKind(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newPrincipal(KindUser, "dup@example.com")))
	err := store.Create(ctx, newPrincipal(KindUser, "DUP@example.com"))
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestSameEmailAcrossKinds(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newPrincipal(KindUser, "both@example.com")))
	require.NoError(t, store.Create(ctx, newPrincipal(KindAdmin, "both@example.com")))
}

func TestGetByIDMiss(t *testing.T) {
	store := setupStore(t)

	got, err := store.GetByID(context.Background(), KindUser, "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetByIDRespectsKind(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	p := newPrincipal(KindUser, "kind@example.com")
	require.NoError(t, store.Create(ctx, p))

	got, err := store.GetByID(ctx, KindAdmin, p.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdateEmailConflict(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newPrincipal(KindUser, "taken@example.com")))
	p := newPrincipal(KindUser, "free@example.com")
	require.NoError(t, store.Create(ctx, p))

	p.Email = "taken@example.com"
	assert.ErrorIs(t, store.Update(ctx, p), ErrEmailTaken)
}

func TestUpdateMissing(t *testing.T) {
	store := setupStore(t)

	p := newPrincipal(KindUser, "ghost@example.com")
	p.ID = "no-such-id"
	assert.ErrorIs(t, store.Update(context.Background(), p), ErrNotFound)
}

func TestRecordFailureLocksAtThreshold(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	p := newPrincipal(KindAdmin, "lock@example.com")
	require.NoError(t, store.Create(ctx, p))

	lockUntil := time.Now().UTC().Add(time.Hour)

	attempts, err := store.RecordFailure(ctx, KindAdmin, p.ID, 3, lockUntil)
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)

	got, err := store.GetByID(ctx, KindAdmin, p.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LockUntil)

	_, err = store.RecordFailure(ctx, KindAdmin, p.ID, 3, lockUntil)
	require.NoError(t, err)
	attempts, err = store.RecordFailure(ctx, KindAdmin, p.ID, 3, lockUntil)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)

	got, err = store.GetByID(ctx, KindAdmin, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LockUntil)
	assert.WithinDuration(t, lockUntil, *got.LockUntil, time.Second)
	assert.True(t, got.Locked(time.Now()))
}

func TestRecordSuccessResets(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	p := newPrincipal(KindUser, "reset@example.com")
	require.NoError(t, store.Create(ctx, p))

	lockUntil := time.Now().UTC().Add(time.Hour)
	for i := 0; i < 3; i++ {
		_, err := store.RecordFailure(ctx, KindUser, p.ID, 3, lockUntil)
		require.NoError(t, err)
	}

	require.NoError(t, store.RecordSuccess(ctx, KindUser, p.ID))

	got, err := store.GetByID(ctx, KindUser, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.LoginAttempts)
	assert.Nil(t, got.LockUntil)
}

func TestCountActiveByRole(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	a := newPrincipal(KindAdmin, "a@example.com")
	a.RoleID = "role-1"
	b := newPrincipal(KindAdmin, "b@example.com")
	b.RoleID = "role-1"
	c := newPrincipal(KindAdmin, "c@example.com")
	c.RoleID = "role-1"
	c.IsActive = false
	require.NoError(t, store.Create(ctx, a))
	require.NoError(t, store.Create(ctx, b))
	require.NoError(t, store.Create(ctx, c))

	count, err := store.CountActiveByRole(ctx, "role-1", "")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = store.CountActiveByRole(ctx, "role-1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	total, err := store.CountByRole(ctx, "role-1")
	require.NoError(t, err)
	assert.Equal(t, 3, total)
}

func TestListFiltersByRole(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	a := newPrincipal(KindAdmin, "a@example.com")
	a.RoleID = "role-1"
	b := newPrincipal(KindAdmin, "b@example.com")
	b.RoleID = "role-2"
	require.NoError(t, store.Create(ctx, a))
	require.NoError(t, store.Create(ctx, b))

	all, err := store.List(ctx, KindAdmin, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	filtered, err := store.List(ctx, KindAdmin, "role-2")
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, b.ID, filtered[0].ID)
}

func TestDeleteMissing(t *testing.T) {
	store := setupStore(t)
	assert.ErrorIs(t, store.Delete(context.Background(), KindUser, "nope"), ErrNotFound)
}

func TestLockedHelpers(t *testing.T) {
	now := time.Now()

	p := &Principal{}
	assert.False(t, p.Locked(now))

	future := now.Add(30 * time.Minute)
	p.LockUntil = &future
	assert.True(t, p.Locked(now))
	assert.InDelta(t, (30 * time.Minute).Seconds(), p.LockRemaining(now).Seconds(), 1)

	past := now.Add(-time.Minute)
	p.LockUntil = &past
	assert.False(t, p.Locked(now))
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("secret-password", 4)
	require.NoError(t, err)
	assert.NotEqual(t, "secret-password", hash)

	assert.True(t, CheckPassword(hash, "secret-password"))
	assert.False(t, CheckPassword(hash, "wrong"))
	assert.False(t, CheckPassword("not-a-hash", "secret-password"))
}
