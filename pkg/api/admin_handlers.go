package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/platinummonkey/warden/pkg/accounts"
	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/middleware"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/session"
)

// AdminPayload carries admin account creation and updates
type AdminPayload struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password,omitempty"`
	RoleID    string `json:"role_id"`
	IsActive  *bool  `json:"is_active,omitempty"`
}

// StatusPayload toggles an account's active flag
type StatusPayload struct {
	IsActive bool `json:"is_active"`
}

// writeGuardError maps invariant violations to 403 with a stable code
func (s *Server) writeGuardError(w http.ResponseWriter, err error) bool {
	var violation *rbac.InvariantViolationError
	if errors.As(err, &violation) {
		httputil.WriteErrorCode(w, http.StatusForbidden, violation.Code, violation.Message)
		return true
	}
	return false
}

// actorEntry pre-fills an audit entry with the request's actor context
func actorEntry(r *http.Request, snap *rbac.Snapshot) *audit.Entry {
	return &audit.Entry{
		ActorKind: string(snap.Principal.Kind),
		ActorID:   snap.Principal.ID,
		IP:        httputil.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
}

// loadAdminOr404 fetches the target admin account or writes 404
func (s *Server) loadAdminOr404(w http.ResponseWriter, r *http.Request) *accounts.Principal {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return nil
	}
	target, err := s.store.GetByID(r.Context(), accounts.KindAdmin, id)
	if err != nil {
		s.logger.WithError(err).Error("failed to load admin")
		httputil.WriteInternalError(w)
		return nil
	}
	if target == nil {
		httputil.WriteNotFound(w, "admin not found")
		return nil
	}
	return target
}

// listAdmins handles GET /api/v1/admin/admins
func (s *Server) listAdmins(w http.ResponseWriter, r *http.Request) {
	roleID := httputil.ParseQueryString(r, "role_id", "")

	admins, err := s.store.List(r.Context(), accounts.KindAdmin, roleID)
	if err != nil {
		s.logger.WithError(err).Error("failed to list admins")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, admins)
}

// getAdmin handles GET /api/v1/admin/admins/{id}
func (s *Server) getAdmin(w http.ResponseWriter, r *http.Request) {
	target := s.loadAdminOr404(w, r)
	if target == nil {
		return
	}
	httputil.WriteSuccess(w, target)
}

// createAdmin handles POST /api/v1/admin/admins
func (s *Server) createAdmin(w http.ResponseWriter, r *http.Request) {
	snap := middleware.SnapshotFrom(r)

	var payload AdminPayload
	if !httputil.ParseJSONOrError(w, r, &payload) {
		return
	}
	if !httputil.RequireNonEmpty(w, payload.FirstName, "first_name") ||
		!httputil.RequireNonEmpty(w, payload.LastName, "last_name") ||
		!httputil.RequireNonEmpty(w, payload.Email, "email") ||
		!httputil.RequireNonEmpty(w, payload.Password, "password") ||
		!httputil.RequireNonEmpty(w, payload.RoleID, "role_id") {
		return
	}

	role, err := s.roles.GetRole(r.Context(), payload.RoleID)
	if err != nil {
		s.logger.WithError(err).Error("failed to resolve role")
		httputil.WriteInternalError(w)
		return
	}
	if role == nil {
		httputil.WriteValidationError(w, "role_id does not reference an existing role")
		return
	}
	// Granting the superadmin role is itself a superadmin-only action.
	if role.IsSuperadmin() && !snap.IsSuperadmin() {
		httputil.WriteErrorCode(w, http.StatusForbidden, rbac.CodeSuperadminOnly,
			"only a superadmin can grant the superadmin role")
		return
	}

	hash, err := accounts.HashPassword(payload.Password, s.cfg.Auth.BCryptCost)
	if err != nil {
		s.logger.WithError(err).Error("failed to hash password")
		httputil.WriteInternalError(w)
		return
	}

	active := true
	if payload.IsActive != nil {
		active = *payload.IsActive
	}

	admin := &accounts.Principal{
		Kind:         accounts.KindAdmin,
		FirstName:    payload.FirstName,
		LastName:     payload.LastName,
		Email:        payload.Email,
		PasswordHash: hash,
		RoleID:       payload.RoleID,
		IsActive:     active,
	}
	if err := s.store.Create(r.Context(), admin); err != nil {
		if errors.Is(err, accounts.ErrEmailTaken) {
			httputil.WriteConflict(w, "an account with this email already exists")
			return
		}
		s.logger.WithError(err).Error("failed to create admin")
		httputil.WriteInternalError(w)
		return
	}

	entry := actorEntry(r, snap)
	entry.Action = audit.ActionCreate
	entry.EntityType = "Admin"
	entry.EntityID = admin.ID
	entry.Description = fmt.Sprintf("Created admin %s", admin.Email)
	entry.NewValues = map[string]interface{}{"email": admin.Email, "role_id": admin.RoleID, "is_active": admin.IsActive}
	entry.Module = "Admin"
	audit.Record(r.Context(), s.auditor, entry)

	httputil.WriteCreated(w, admin)
}

// updateAdmin handles PUT /api/v1/admin/admins/{id}
func (s *Server) updateAdmin(w http.ResponseWriter, r *http.Request) {
	snap := middleware.SnapshotFrom(r)
	target := s.loadAdminOr404(w, r)
	if target == nil {
		return
	}

	var payload AdminPayload
	if !httputil.ParseJSONOrError(w, r, &payload) {
		return
	}

	if err := s.guard.CanModifyPrincipal(r.Context(), snap, target); err != nil {
		if s.writeGuardError(w, err) {
			return
		}
		s.logger.WithError(err).Error("guard check failed")
		httputil.WriteInternalError(w)
		return
	}

	previous := map[string]interface{}{
		"first_name": target.FirstName,
		"last_name":  target.LastName,
		"email":      target.Email,
		"role_id":    target.RoleID,
	}

	if payload.RoleID != "" && payload.RoleID != target.RoleID {
		role, err := s.roles.GetRole(r.Context(), payload.RoleID)
		if err != nil {
			s.logger.WithError(err).Error("failed to resolve role")
			httputil.WriteInternalError(w)
			return
		}
		if role == nil {
			httputil.WriteValidationError(w, "role_id does not reference an existing role")
			return
		}
		if role.IsSuperadmin() && !snap.IsSuperadmin() {
			httputil.WriteErrorCode(w, http.StatusForbidden, rbac.CodeSuperadminOnly,
				"only a superadmin can grant the superadmin role")
			return
		}
		if err := s.guard.CanChangeRole(r.Context(), snap, target, payload.RoleID); err != nil {
			if s.writeGuardError(w, err) {
				return
			}
			s.logger.WithError(err).Error("guard check failed")
			httputil.WriteInternalError(w)
			return
		}
		target.RoleID = payload.RoleID
	}

	if payload.FirstName != "" {
		target.FirstName = payload.FirstName
	}
	if payload.LastName != "" {
		target.LastName = payload.LastName
	}
	if payload.Email != "" {
		target.Email = payload.Email
	}

	// Resetting another admin's password bypasses the current-password check
	// and so needs more than plain update rights.
	passwordHash := ""
	if payload.Password != "" {
		if !snap.IsSuperadmin() && !snap.HasPermission(rbac.PermAdminManage) {
			httputil.WriteForbidden(w, "resetting an admin's password requires manage rights")
			return
		}
		if len(payload.Password) < 8 {
			httputil.WriteValidationError(w, "password must be at least 8 characters")
			return
		}
		hash, err := accounts.HashPassword(payload.Password, s.cfg.Auth.BCryptCost)
		if err != nil {
			s.logger.WithError(err).Error("failed to hash password")
			httputil.WriteInternalError(w)
			return
		}
		passwordHash = hash
	}

	if err := s.store.Update(r.Context(), target); err != nil {
		if errors.Is(err, accounts.ErrEmailTaken) {
			httputil.WriteConflict(w, "an account with this email already exists")
			return
		}
		if errors.Is(err, accounts.ErrNotFound) {
			httputil.WriteNotFound(w, "admin not found")
			return
		}
		s.logger.WithError(err).Error("failed to update admin")
		httputil.WriteInternalError(w)
		return
	}

	if passwordHash != "" {
		if err := s.store.UpdatePassword(r.Context(), accounts.KindAdmin, target.ID, passwordHash); err != nil {
			s.logger.WithError(err).Error("failed to update admin password")
			httputil.WriteInternalError(w)
			return
		}
		// A reset password invalidates whatever session the holder had.
		if err := s.registry.Delete(r.Context(), session.KindAdmin, target.ID); err != nil {
			s.logger.WithError(err).Warn("failed to evict session after password reset")
		}
	}

	entry := actorEntry(r, snap)
	entry.Action = audit.ActionUpdate
	entry.EntityType = "Admin"
	entry.EntityID = target.ID
	entry.Description = fmt.Sprintf("Updated admin %s", target.Email)
	entry.PreviousValues = previous
	entry.NewValues = map[string]interface{}{
		"first_name": target.FirstName,
		"last_name":  target.LastName,
		"email":      target.Email,
		"role_id":    target.RoleID,
	}
	entry.Module = "Admin"
	audit.Record(r.Context(), s.auditor, entry)

	httputil.WriteSuccess(w, target)
}

// setAdminStatus handles PATCH /api/v1/admin/admins/{id}/status
func (s *Server) setAdminStatus(w http.ResponseWriter, r *http.Request) {
	snap := middleware.SnapshotFrom(r)
	target := s.loadAdminOr404(w, r)
	if target == nil {
		return
	}

	var payload StatusPayload
	if !httputil.ParseJSONOrError(w, r, &payload) {
		return
	}

	if !payload.IsActive {
		if err := s.guard.CanDeactivatePrincipal(r.Context(), snap, target); err != nil {
			if s.writeGuardError(w, err) {
				return
			}
			s.logger.WithError(err).Error("guard check failed")
			httputil.WriteInternalError(w)
			return
		}
	} else {
		if err := s.guard.CanModifyPrincipal(r.Context(), snap, target); err != nil {
			if s.writeGuardError(w, err) {
				return
			}
			s.logger.WithError(err).Error("guard check failed")
			httputil.WriteInternalError(w)
			return
		}
	}

	if err := s.store.SetActive(r.Context(), accounts.KindAdmin, target.ID, payload.IsActive); err != nil {
		s.logger.WithError(err).Error("failed to update admin status")
		httputil.WriteInternalError(w)
		return
	}

	// Deactivation ends any live session immediately.
	if !payload.IsActive {
		if err := s.registry.Delete(r.Context(), session.KindAdmin, target.ID); err != nil {
			s.logger.WithError(err).Warn("failed to evict session for deactivated admin")
		}
	}

	entry := actorEntry(r, snap)
	entry.Action = audit.ActionUpdate
	entry.EntityType = "Admin"
	entry.EntityID = target.ID
	entry.Description = fmt.Sprintf("Set admin %s active=%t", target.Email, payload.IsActive)
	entry.PreviousValues = map[string]interface{}{"is_active": target.IsActive}
	entry.NewValues = map[string]interface{}{"is_active": payload.IsActive}
	entry.Module = "Admin"
	audit.Record(r.Context(), s.auditor, entry)

	target.IsActive = payload.IsActive
	httputil.WriteSuccess(w, target)
}

// deleteAdmin handles DELETE /api/v1/admin/admins/{id}
func (s *Server) deleteAdmin(w http.ResponseWriter, r *http.Request) {
	snap := middleware.SnapshotFrom(r)
	target := s.loadAdminOr404(w, r)
	if target == nil {
		return
	}

	if err := s.guard.CanDeletePrincipal(r.Context(), snap, target); err != nil {
		if s.writeGuardError(w, err) {
			return
		}
		s.logger.WithError(err).Error("guard check failed")
		httputil.WriteInternalError(w)
		return
	}

	if err := s.store.Delete(r.Context(), accounts.KindAdmin, target.ID); err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			httputil.WriteNotFound(w, "admin not found")
			return
		}
		s.logger.WithError(err).Error("failed to delete admin")
		httputil.WriteInternalError(w)
		return
	}

	if err := s.registry.Delete(r.Context(), session.KindAdmin, target.ID); err != nil {
		s.logger.WithError(err).Warn("failed to evict session for deleted admin")
	}

	entry := actorEntry(r, snap)
	entry.Action = audit.ActionDelete
	entry.EntityType = "Admin"
	entry.EntityID = target.ID
	entry.Description = fmt.Sprintf("Deleted admin %s", target.Email)
	entry.PreviousValues = map[string]interface{}{"email": target.Email, "role_id": target.RoleID}
	entry.Module = "Admin"
	audit.Record(r.Context(), s.auditor, entry)

	httputil.WriteNoContent(w)
}
