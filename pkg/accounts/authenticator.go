package accounts

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/session"
	"github.com/platinummonkey/warden/pkg/token"
)

// AuthenticatorConfig tunes the login flow
type AuthenticatorConfig struct {
	// MaxLoginAttempts is the failed-attempt threshold before lockout
	MaxLoginAttempts int

	// LockoutDuration is how long an account stays locked
	LockoutDuration time.Duration

	// SessionTTL bounds session records in the registry
	SessionTTL time.Duration

	// BCryptCost is the hashing work factor for new passwords
	BCryptCost int
}

// Authenticator owns the login, logout, and registration flows. All
// collaborators are injected; the authenticator holds no global state.
type Authenticator struct {
	store    *Store
	registry session.Registry
	issuer   *token.Issuer
	auditor  audit.Logger
	metrics  *observability.Metrics
	cfg      AuthenticatorConfig

	now func() time.Time
}

// NewAuthenticator wires a login service from its collaborators
func NewAuthenticator(store *Store, registry session.Registry, issuer *token.Issuer, auditor audit.Logger, metrics *observability.Metrics, cfg AuthenticatorConfig) *Authenticator {
	if metrics == nil {
		metrics = observability.NopMetrics()
	}
	return &Authenticator{
		store:    store,
		registry: registry,
		issuer:   issuer,
		auditor:  auditor,
		metrics:  metrics,
		cfg:      cfg,
		now:      time.Now,
	}
}

// LoginRequest carries one credential check
type LoginRequest struct {
	Kind       Kind
	Email      string
	Password   string
	ForceLogin bool
	UserAgent  string
	IP         string
}

// LoginResult is a successful login
type LoginResult struct {
	Token     string
	SessionID string
	Principal *Principal
}

// Login verifies credentials, applies the lockout state machine, enforces
// single-active-session semantics, and establishes a new session.
//
// Error contract: ErrInvalidCredentials (generic, never reveals which field
// was wrong), *LockedError while a lockout is in effect, *CredentialsError
// after a password mismatch, ErrSessionConflict when another session is
// active without force, *InfrastructureError when the store or registry is
// unreachable.
func (a *Authenticator) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	outcome := observability.OutcomeError
	defer func() {
		a.metrics.LoginAttemptsTotal.WithLabelValues(string(req.Kind), outcome).Inc()
	}()

	principal, err := a.store.GetByEmail(ctx, req.Kind, req.Email)
	if err != nil {
		return nil, &InfrastructureError{Op: "lookup principal", Err: err}
	}
	if principal == nil {
		outcome = observability.OutcomeInvalidCredentials
		return nil, ErrInvalidCredentials
	}

	// Lock check happens before the password compare: attempts made while
	// locked never increment the counter.
	now := a.now()
	if principal.Locked(now) {
		outcome = observability.OutcomeLocked
		minutes := int(math.Ceil(float64(principal.LockRemaining(now).Milliseconds()) / 60000))
		return nil, &LockedError{Minutes: minutes}
	}

	if !CheckPassword(principal.PasswordHash, req.Password) {
		attempts, err := a.store.RecordFailure(ctx, req.Kind, principal.ID, a.cfg.MaxLoginAttempts, now.Add(a.cfg.LockoutDuration))
		if err != nil {
			return nil, &InfrastructureError{Op: "record login failure", Err: err}
		}

		remaining := a.cfg.MaxLoginAttempts - attempts
		if remaining < 0 {
			remaining = 0
		}
		nowLocked := attempts >= a.cfg.MaxLoginAttempts
		if nowLocked {
			a.metrics.LockoutsTotal.WithLabelValues(string(req.Kind)).Inc()
		}

		outcome = observability.OutcomeInvalidCredentials
		return nil, &CredentialsError{Remaining: remaining, NowLocked: nowLocked}
	}

	// A deactivated admin gets the generic failure: never reveal the
	// account exists but is disabled.
	if req.Kind == KindAdmin && !principal.IsActive {
		outcome = observability.OutcomeInvalidCredentials
		return nil, ErrInvalidCredentials
	}

	existing, err := a.registry.Get(ctx, string(req.Kind), principal.ID)
	if err != nil {
		return nil, &InfrastructureError{Op: "check existing session", Err: err}
	}

	if existing != nil {
		if !req.ForceLogin {
			outcome = observability.OutcomeConflict
			return nil, ErrSessionConflict
		}

		audit.Record(ctx, a.auditor, &audit.Entry{
			Action:      audit.ActionForceLogin,
			EntityType:  "Authentication",
			Description: fmt.Sprintf("%s forced login and terminated other sessions", req.Kind),
			ActorKind:   string(req.Kind),
			ActorID:     principal.ID,
			IP:          req.IP,
			UserAgent:   req.UserAgent,
			Module:      "Auth",
		})
		a.metrics.ForcedLoginsTotal.WithLabelValues(string(req.Kind)).Inc()

		if err := a.registry.Delete(ctx, string(req.Kind), principal.ID); err != nil {
			return nil, &InfrastructureError{Op: "evict existing session", Err: err}
		}
	}

	if err := a.store.RecordSuccess(ctx, req.Kind, principal.ID); err != nil {
		return nil, &InfrastructureError{Op: "reset login attempts", Err: err}
	}
	principal.LoginAttempts = 0
	principal.LockUntil = nil

	signed, sessionID, err := a.issuer.Issue(principal.ID, string(req.Kind))
	if err != nil {
		return nil, &InfrastructureError{Op: "issue token", Err: err}
	}

	record := &session.Record{
		SessionID: sessionID,
		UserAgent: req.UserAgent,
		IP:        req.IP,
		LoginTime: now.UTC(),
	}
	if err := a.registry.Set(ctx, string(req.Kind), principal.ID, record, a.cfg.SessionTTL); err != nil {
		return nil, &InfrastructureError{Op: "store session", Err: err}
	}

	audit.Record(ctx, a.auditor, &audit.Entry{
		Action:      audit.ActionLogin,
		EntityType:  "Authentication",
		Description: fmt.Sprintf("%s logged in successfully", req.Kind),
		ActorKind:   string(req.Kind),
		ActorID:     principal.ID,
		IP:          req.IP,
		UserAgent:   req.UserAgent,
		Module:      "Auth",
	})

	outcome = observability.OutcomeSuccess
	return &LoginResult{
		Token:     signed,
		SessionID: sessionID,
		Principal: principal,
	}, nil
}

// Logout deletes the principal's session. Logging out without an active
// session is not an error.
func (a *Authenticator) Logout(ctx context.Context, kind Kind, id, ip, userAgent string) error {
	if err := a.registry.Delete(ctx, string(kind), id); err != nil {
		return &InfrastructureError{Op: "delete session", Err: err}
	}

	audit.Record(ctx, a.auditor, &audit.Entry{
		Action:      audit.ActionLogout,
		EntityType:  "Authentication",
		Description: fmt.Sprintf("%s logged out", kind),
		ActorKind:   string(kind),
		ActorID:     id,
		IP:          ip,
		UserAgent:   userAgent,
		Module:      "Auth",
	})

	return nil
}

// RegisterRequest carries a user self-registration
type RegisterRequest struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	UserAgent string
	IP        string
}

// Register creates a user principal and immediately establishes a session,
// mirroring the login flow's token issuance.
func (a *Authenticator) Register(ctx context.Context, req RegisterRequest) (*LoginResult, error) {
	hash, err := HashPassword(req.Password, a.cfg.BCryptCost)
	if err != nil {
		return nil, &InfrastructureError{Op: "hash password", Err: err}
	}

	principal := &Principal{
		Kind:         KindUser,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		PasswordHash: hash,
		IsActive:     true,
	}

	if err := a.store.Create(ctx, principal); err != nil {
		if err == ErrEmailTaken {
			return nil, ErrEmailTaken
		}
		return nil, &InfrastructureError{Op: "create principal", Err: err}
	}

	signed, sessionID, err := a.issuer.Issue(principal.ID, string(KindUser))
	if err != nil {
		return nil, &InfrastructureError{Op: "issue token", Err: err}
	}

	record := &session.Record{
		SessionID: sessionID,
		UserAgent: req.UserAgent,
		IP:        req.IP,
		LoginTime: a.now().UTC(),
	}
	if err := a.registry.Set(ctx, string(KindUser), principal.ID, record, a.cfg.SessionTTL); err != nil {
		return nil, &InfrastructureError{Op: "store session", Err: err}
	}

	audit.Record(ctx, a.auditor, &audit.Entry{
		Action:      audit.ActionRegister,
		EntityType:  "User",
		EntityID:    principal.ID,
		Description: fmt.Sprintf("User registered: %s %s", req.FirstName, req.LastName),
		ActorKind:   string(KindUser),
		ActorID:     principal.ID,
		IP:          req.IP,
		UserAgent:   req.UserAgent,
		Module:      "User/Auth",
	})

	return &LoginResult{
		Token:     signed,
		SessionID: sessionID,
		Principal: principal,
	}, nil
}

// ChangePassword replaces a principal's password. When requireCurrent is
// set the current password must verify first.
func (a *Authenticator) ChangePassword(ctx context.Context, kind Kind, id, current, next string, requireCurrent bool) error {
	principal, err := a.store.GetByID(ctx, kind, id)
	if err != nil {
		return &InfrastructureError{Op: "lookup principal", Err: err}
	}
	if principal == nil {
		return ErrNotFound
	}

	if requireCurrent && !CheckPassword(principal.PasswordHash, current) {
		return ErrInvalidCredentials
	}

	hash, err := HashPassword(next, a.cfg.BCryptCost)
	if err != nil {
		return &InfrastructureError{Op: "hash password", Err: err}
	}

	if err := a.store.UpdatePassword(ctx, kind, id, hash); err != nil {
		return &InfrastructureError{Op: "update password", Err: err}
	}

	return nil
}
