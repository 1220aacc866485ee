package middleware

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/accounts"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/session"
	"github.com/platinummonkey/warden/pkg/token"
)

type gateFixture struct {
	gate     *Gate
	store    *accounts.Store
	roles    *rbac.Store
	registry *session.RedisRegistry
	issuer   *token.Issuer
	mr       *miniredis.Miniredis
}

func setupGate(t *testing.T) *gateFixture {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := accounts.NewStore(db)
	require.NoError(t, store.EnsureSchema(context.Background()))
	roles := rbac.NewStore(db)
	require.NoError(t, roles.EnsureSchema(context.Background()))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := session.NewClient(session.Config{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	registry := session.NewRedisRegistry(client)
	t.Cleanup(func() { registry.Close() })

	issuer := token.NewIssuer([]byte("test-secret"), time.Hour)

	return &gateFixture{
		gate:     NewGate(issuer, store, registry, roles, observability.NopMetrics()),
		store:    store,
		roles:    roles,
		registry: registry,
		issuer:   issuer,
		mr:       mr,
	}
}

// loginAdmin creates an active admin, issues a token, and registers the
// session the way a real login would
func (f *gateFixture) loginAdmin(t *testing.T, email, roleID string) (*accounts.Principal, string) {
	t.Helper()
	ctx := context.Background()

	p := &accounts.Principal{
		Kind:         accounts.KindAdmin,
		FirstName:    "Gate",
		LastName:     "Test",
		Email:        email,
		PasswordHash: "x",
		RoleID:       roleID,
		IsActive:     true,
	}
	require.NoError(t, f.store.Create(ctx, p))

	raw, sessionID, err := f.issuer.Issue(p.ID, string(accounts.KindAdmin))
	require.NoError(t, err)
	require.NoError(t, f.registry.Set(ctx, session.KindAdmin, p.ID, &session.Record{
		SessionID: sessionID,
		LoginTime: time.Now().UTC(),
	}, time.Hour))

	return p, raw
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Code
}

func TestAuthenticateMissingToken(t *testing.T) {
	f := setupGate(t)
	handler := f.gate.Authenticate(accounts.KindAdmin)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admins", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticateBearerToken(t *testing.T) {
	f := setupGate(t)
	_, raw := f.loginAdmin(t, "gate@example.com", "")

	handler := f.gate.Authenticate(accounts.KindAdmin)(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/admins", nil)
	req.Header.Set("Authorization", "Bearer "+raw)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthenticateCookieToken(t *testing.T) {
	f := setupGate(t)
	_, raw := f.loginAdmin(t, "cookie@example.com", "")

	handler := f.gate.Authenticate(accounts.KindAdmin)(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/admins", nil)
	req.AddCookie(&http.Cookie{Name: AdminTokenCookie, Value: raw})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthenticateGarbageToken(t *testing.T) {
	f := setupGate(t)
	handler := f.gate.Authenticate(accounts.KindAdmin)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/admins", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticateWrongKind(t *testing.T) {
	f := setupGate(t)
	_, raw := f.loginAdmin(t, "admin@example.com", "")

	// An admin token must not pass the user gate.
	handler := f.gate.Authenticate(accounts.KindUser)(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	req.Header.Set("Authorization", "Bearer "+raw)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticateDisplacedSession(t *testing.T) {
	f := setupGate(t)
	p, raw := f.loginAdmin(t, "displaced@example.com", "")

	// A second login overwrites the registry record.
	_, newSessionID, err := f.issuer.Issue(p.ID, string(accounts.KindAdmin))
	require.NoError(t, err)
	require.NoError(t, f.registry.Set(context.Background(), session.KindAdmin, p.ID,
		&session.Record{SessionID: newSessionID}, time.Hour))

	handler := f.gate.Authenticate(accounts.KindAdmin)(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/admins", nil)
	req.Header.Set("Authorization", "Bearer "+raw)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "SESSION_EXPIRED", errorCode(t, rec))
}

func TestAuthenticateExpiredRegistrySession(t *testing.T) {
	f := setupGate(t)
	_, raw := f.loginAdmin(t, "ttl@example.com", "")

	f.mr.FastForward(2 * time.Hour)

	handler := f.gate.Authenticate(accounts.KindAdmin)(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/admins", nil)
	req.Header.Set("Authorization", "Bearer "+raw)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "SESSION_EXPIRED", errorCode(t, rec))
}

func TestAuthenticateDeactivatedPrincipal(t *testing.T) {
	f := setupGate(t)
	p, raw := f.loginAdmin(t, "inactive@example.com", "")
	require.NoError(t, f.store.SetActive(context.Background(), accounts.KindAdmin, p.ID, false))

	handler := f.gate.Authenticate(accounts.KindAdmin)(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/admins", nil)
	req.Header.Set("Authorization", "Bearer "+raw)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticateAttachesSnapshot(t *testing.T) {
	f := setupGate(t)
	ctx := context.Background()

	role, err := rbac.Seed(ctx, f.roles)
	require.NoError(t, err)
	_, raw := f.loginAdmin(t, "root@example.com", role.ID)

	var snap *rbac.Snapshot
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap = SnapshotFrom(r)
		w.WriteHeader(http.StatusOK)
	})

	handler := f.gate.Authenticate(accounts.KindAdmin)(inner)
	req := httptest.NewRequest(http.MethodGet, "/admins", nil)
	req.Header.Set("Authorization", "Bearer "+raw)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, snap)
	assert.True(t, snap.IsSuperadmin())
}

func TestRequirePermission(t *testing.T) {
	f := setupGate(t)
	ctx := context.Background()

	p := &rbac.Permission{Name: "View Roles", Code: rbac.PermRoleView, Module: "Role"}
	require.NoError(t, f.roles.CreatePermission(ctx, p))
	viewer := &rbac.Role{Name: "viewer"}
	require.NoError(t, f.roles.CreateRole(ctx, viewer, []string{p.ID}))

	_, raw := f.loginAdmin(t, "viewer@example.com", viewer.ID)

	allowed := f.gate.Authenticate(accounts.KindAdmin)(f.gate.RequirePermission(rbac.PermRoleView)(okHandler()))
	denied := f.gate.Authenticate(accounts.KindAdmin)(f.gate.RequirePermission(rbac.PermRoleDelete)(okHandler()))

	req := httptest.NewRequest(http.MethodGet, "/roles", nil)
	req.Header.Set("Authorization", "Bearer "+raw)

	rec := httptest.NewRecorder()
	allowed.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/roles/x", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec = httptest.NewRecorder()
	denied.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireSuperadmin(t *testing.T) {
	f := setupGate(t)
	ctx := context.Background()

	superRole, err := rbac.Seed(ctx, f.roles)
	require.NoError(t, err)
	viewer := &rbac.Role{Name: "viewer"}
	require.NoError(t, f.roles.CreateRole(ctx, viewer, nil))

	_, rootToken := f.loginAdmin(t, "root@example.com", superRole.ID)
	_, viewerToken := f.loginAdmin(t, "viewer@example.com", viewer.ID)

	handler := f.gate.Authenticate(accounts.KindAdmin)(f.gate.RequireSuperadmin()(okHandler()))

	req := httptest.NewRequest(http.MethodGet, "/system", nil)
	req.Header.Set("Authorization", "Bearer "+rootToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/system", nil)
	req.Header.Set("Authorization", "Bearer "+viewerToken)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
