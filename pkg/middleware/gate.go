// Package middleware provides the authentication gate and permission
// checks placed in front of protected HTTP routes.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/platinummonkey/warden/pkg/accounts"
	"github.com/platinummonkey/warden/pkg/contextkeys"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/session"
	"github.com/platinummonkey/warden/pkg/token"
)

// Cookie names per principal kind
const (
	UserTokenCookie  = "token"
	AdminTokenCookie = "admin_token"
)

// Gate authenticates requests. It verifies the bearer token or cookie,
// loads the principal, cross-checks the external session registry, and
// attaches a permission snapshot to the request context.
type Gate struct {
	issuer   *token.Issuer
	store    *accounts.Store
	registry session.Registry
	roles    *rbac.Store
	metrics  *observability.Metrics
}

// NewGate creates an authentication gate
func NewGate(issuer *token.Issuer, store *accounts.Store, registry session.Registry, roles *rbac.Store, metrics *observability.Metrics) *Gate {
	return &Gate{
		issuer:   issuer,
		store:    store,
		registry: registry,
		roles:    roles,
		metrics:  metrics,
	}
}

// verifyResultLabel maps a verification error to its metric label
func verifyResultLabel(err error) string {
	switch {
	case errors.Is(err, token.ErrExpired):
		return observability.TokenResultExpired
	case errors.Is(err, token.ErrBadSignature):
		return observability.TokenResultBadSignature
	default:
		return observability.TokenResultMalformed
	}
}

// cookieName returns the token cookie read for the given kind
func cookieName(kind accounts.Kind) string {
	if kind == accounts.KindAdmin {
		return AdminTokenCookie
	}
	return UserTokenCookie
}

// extractToken pulls the token from the Authorization header or, when
// absent, from the kind's cookie
func extractToken(r *http.Request, kind accounts.Kind) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if cookie, err := r.Cookie(cookieName(kind)); err == nil {
		return cookie.Value
	}
	return ""
}

// Authenticate gates routes for principals of the given kind. Requests
// pass only with a valid unexpired token whose session id matches the
// live session in the registry.
func (g *Gate) Authenticate(kind accounts.Kind) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			raw := extractToken(r, kind)
			if raw == "" {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			claims, err := g.issuer.Verify(raw)
			if err != nil {
				g.metrics.TokenVerificationsTotal.WithLabelValues(verifyResultLabel(err)).Inc()
				httputil.WriteUnauthorized(w, "invalid or expired token")
				return
			}
			if claims.Kind != string(kind) {
				g.metrics.TokenVerificationsTotal.WithLabelValues(observability.TokenResultWrongKind).Inc()
				httputil.WriteUnauthorized(w, "invalid or expired token")
				return
			}

			principal, err := g.store.GetByID(ctx, kind, claims.PrincipalID())
			if err != nil {
				observability.FromContext(ctx).WithError(err).Error("failed to load principal")
				httputil.WriteInternalError(w)
				return
			}
			if principal == nil || !principal.IsActive {
				httputil.WriteUnauthorized(w, "account is not available")
				return
			}

			record, err := g.registry.Get(ctx, string(kind), principal.ID)
			if err != nil {
				observability.FromContext(ctx).WithError(err).Error("failed to read session registry")
				httputil.WriteInternalError(w)
				return
			}
			if record == nil || record.SessionID != claims.SessionID {
				// A newer login displaced this session, or it expired.
				httputil.WriteErrorCode(w, http.StatusUnauthorized, httputil.CodeSessionExpired,
					"your session has expired, please log in again")
				return
			}

			g.metrics.TokenVerificationsTotal.WithLabelValues(observability.TokenResultValid).Inc()

			snapshot, err := rbac.BuildSnapshot(ctx, g.roles, principal)
			if err != nil {
				observability.FromContext(ctx).WithError(err).Error("failed to build permission snapshot")
				httputil.WriteInternalError(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(contextkeys.WithSnapshot(ctx, snapshot)))
		})
	}
}

// SnapshotFrom returns the permission snapshot attached by Authenticate,
// or nil when the request never passed the gate
func SnapshotFrom(r *http.Request) *rbac.Snapshot {
	snap, _ := contextkeys.Snapshot(r.Context()).(*rbac.Snapshot)
	return snap
}

// requireSnapshot writes 401 and returns nil when no snapshot is attached
func (g *Gate) requireSnapshot(w http.ResponseWriter, r *http.Request) *rbac.Snapshot {
	snap := SnapshotFrom(r)
	if snap == nil {
		httputil.WriteUnauthorized(w, "authentication required")
	}
	return snap
}

func (g *Gate) deny(w http.ResponseWriter) {
	g.metrics.PermissionDenialsTotal.WithLabelValues(httputil.CodeForbidden).Inc()
	httputil.WriteForbidden(w, "you do not have permission to perform this action")
}

// RequirePermission allows only principals holding the permission code
func (g *Gate) RequirePermission(code string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap := g.requireSnapshot(w, r)
			if snap == nil {
				return
			}
			if !snap.HasPermission(code) {
				g.deny(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAnyPermission allows principals holding at least one of the codes
func (g *Gate) RequireAnyPermission(codes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap := g.requireSnapshot(w, r)
			if snap == nil {
				return
			}
			if !snap.HasAnyPermission(codes...) {
				g.deny(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAllPermissions allows principals holding every code
func (g *Gate) RequireAllPermissions(codes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap := g.requireSnapshot(w, r)
			if snap == nil {
				return
			}
			if !snap.HasAllPermissions(codes...) {
				g.deny(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSuperadmin allows only superadmin principals
func (g *Gate) RequireSuperadmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap := g.requireSnapshot(w, r)
			if snap == nil {
				return
			}
			if !snap.IsSuperadmin() {
				g.deny(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
