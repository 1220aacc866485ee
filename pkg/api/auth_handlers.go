package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/platinummonkey/warden/pkg/accounts"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/middleware"
)

// LoginRequest is the login payload for both kinds
type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	ForceLogin bool   `json:"forceLogin"`
}

// LoginResponse carries the issued token and the authenticated principal
type LoginResponse struct {
	Token     string              `json:"token"`
	Principal *accounts.Principal `json:"principal"`
}

// RegisterPayload is the user self-registration payload
type RegisterPayload struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// ChangePasswordPayload carries a password change
type ChangePasswordPayload struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// setAuthCookie issues the HttpOnly transport cookie for the token
func (s *Server) setAuthCookie(w http.ResponseWriter, r *http.Request, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(s.cfg.Auth.CookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   httputil.Secure(r) && !s.cfg.Auth.DevMode,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearAuthCookie expires the transport cookie
func (s *Server) clearAuthCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// writeLoginError maps authenticator failures onto the error taxonomy
func (s *Server) writeLoginError(w http.ResponseWriter, err error) {
	var credErr *accounts.CredentialsError
	var lockedErr *accounts.LockedError
	var infraErr *accounts.InfrastructureError

	switch {
	case errors.As(err, &lockedErr):
		httputil.WriteErrorCode(w, http.StatusUnauthorized, httputil.CodeAccountLocked,
			fmt.Sprintf("Account locked due to too many failed attempts. Try again in %d minute(s)", lockedErr.Minutes))
	case errors.As(err, &credErr):
		httputil.WriteErrorDetails(w, http.StatusUnauthorized, httputil.CodeInvalidCredentials,
			"Incorrect email or password", map[string]interface{}{
				"attemptsRemaining": credErr.Remaining,
				"locked":            credErr.NowLocked,
			})
	case errors.Is(err, accounts.ErrSessionConflict):
		httputil.WriteErrorDetails(w, http.StatusForbidden, httputil.CodeSessionConflict,
			"You are already logged in on another device", map[string]interface{}{
				"canForceLogin": true,
			})
	case errors.Is(err, accounts.ErrInvalidCredentials):
		httputil.WriteErrorCode(w, http.StatusUnauthorized, httputil.CodeInvalidCredentials,
			"Incorrect email or password")
	case errors.As(err, &infraErr):
		s.logger.WithError(err).Error("login failed")
		httputil.WriteInternalError(w)
	default:
		s.logger.WithError(err).Error("login failed")
		httputil.WriteInternalError(w)
	}
}

// login runs the shared login flow for one kind and sets its cookie
func (s *Server) login(w http.ResponseWriter, r *http.Request, kind accounts.Kind, cookie string) {
	var payload LoginRequest
	if !httputil.ParseJSONOrError(w, r, &payload) {
		return
	}
	if !httputil.RequireNonEmpty(w, payload.Email, "email") ||
		!httputil.RequireNonEmpty(w, payload.Password, "password") {
		return
	}
	// Passwords are never shorter than 8 characters, so a short one can be
	// rejected before it reaches the store and burns a lockout attempt.
	if len(payload.Password) < 8 {
		httputil.WriteValidationError(w, "password must be at least 8 characters")
		return
	}

	force := payload.ForceLogin
	if q, err := httputil.ParseQueryBool(r, "force", false); err == nil && q {
		force = true
	}

	result, err := s.auth.Login(r.Context(), accounts.LoginRequest{
		Kind:       kind,
		Email:      payload.Email,
		Password:   payload.Password,
		ForceLogin: force,
		UserAgent:  r.UserAgent(),
		IP:         httputil.ClientIP(r),
	})
	if err != nil {
		s.writeLoginError(w, err)
		return
	}

	s.setAuthCookie(w, r, cookie, result.Token)
	httputil.WriteSuccess(w, LoginResponse{Token: result.Token, Principal: result.Principal})
}

// userLogin handles POST /api/v1/auth/login
func (s *Server) userLogin(w http.ResponseWriter, r *http.Request) {
	s.login(w, r, accounts.KindUser, middleware.UserTokenCookie)
}

// adminLogin handles POST /api/v1/admin/auth/login
func (s *Server) adminLogin(w http.ResponseWriter, r *http.Request) {
	s.login(w, r, accounts.KindAdmin, middleware.AdminTokenCookie)
}

// register handles POST /api/v1/auth/register
func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var payload RegisterPayload
	if !httputil.ParseJSONOrError(w, r, &payload) {
		return
	}
	if !httputil.RequireNonEmpty(w, payload.FirstName, "first_name") ||
		!httputil.RequireNonEmpty(w, payload.LastName, "last_name") ||
		!httputil.RequireNonEmpty(w, payload.Email, "email") ||
		!httputil.RequireNonEmpty(w, payload.Password, "password") {
		return
	}
	if len(payload.Password) < 8 {
		httputil.WriteValidationError(w, "password must be at least 8 characters")
		return
	}

	result, err := s.auth.Register(r.Context(), accounts.RegisterRequest{
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Email:     payload.Email,
		Password:  payload.Password,
		UserAgent: r.UserAgent(),
		IP:        httputil.ClientIP(r),
	})
	if err != nil {
		if errors.Is(err, accounts.ErrEmailTaken) {
			httputil.WriteConflict(w, "an account with this email already exists")
			return
		}
		s.logger.WithError(err).Error("registration failed")
		httputil.WriteInternalError(w)
		return
	}

	s.setAuthCookie(w, r, middleware.UserTokenCookie, result.Token)
	httputil.WriteCreated(w, LoginResponse{Token: result.Token, Principal: result.Principal})
}

// logoutHandler ends the caller's session and tombstones the cookie
func (s *Server) logoutHandler(kind accounts.Kind, cookie string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := middleware.SnapshotFrom(r)
		if snap == nil {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}

		if err := s.auth.Logout(r.Context(), kind, snap.Principal.ID, httputil.ClientIP(r), r.UserAgent()); err != nil {
			s.logger.WithError(err).Error("logout failed")
			httputil.WriteInternalError(w)
			return
		}

		s.clearAuthCookie(w, cookie)
		httputil.WriteSuccessMessage(w, "logged out", nil)
	}
}

// me returns the authenticated principal and its resolved role
func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	snap := middleware.SnapshotFrom(r)
	if snap == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"principal": snap.Principal,
		"role":      snap.Role,
	})
}

// changePasswordHandler replaces the caller's password
func (s *Server) changePasswordHandler(kind accounts.Kind, requireCurrent bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := middleware.SnapshotFrom(r)
		if snap == nil {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}

		var payload ChangePasswordPayload
		if !httputil.ParseJSONOrError(w, r, &payload) {
			return
		}
		if !httputil.RequireNonEmpty(w, payload.NewPassword, "new_password") {
			return
		}
		if len(payload.NewPassword) < 8 {
			httputil.WriteValidationError(w, "password must be at least 8 characters")
			return
		}

		err := s.auth.ChangePassword(r.Context(), kind, snap.Principal.ID,
			payload.CurrentPassword, payload.NewPassword, requireCurrent)
		if err != nil {
			if errors.Is(err, accounts.ErrInvalidCredentials) {
				httputil.WriteErrorCode(w, http.StatusUnauthorized, httputil.CodeInvalidCredentials,
					"current password is incorrect")
				return
			}
			s.logger.WithError(err).Error("password change failed")
			httputil.WriteInternalError(w)
			return
		}

		httputil.WriteSuccessMessage(w, "password updated", nil)
	}
}
