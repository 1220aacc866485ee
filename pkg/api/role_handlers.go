package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/middleware"
	"github.com/platinummonkey/warden/pkg/rbac"
)

// RolePayload carries role creation and updates
type RolePayload struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	PermissionIDs []string `json:"permission_ids"`
}

// loadRoleOr404 fetches the target role or writes 404
func (s *Server) loadRoleOr404(w http.ResponseWriter, r *http.Request) *rbac.Role {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return nil
	}
	role, err := s.roles.GetRole(r.Context(), id)
	if err != nil {
		s.logger.WithError(err).Error("failed to load role")
		httputil.WriteInternalError(w)
		return nil
	}
	if role == nil {
		httputil.WriteNotFound(w, "role not found")
		return nil
	}
	return role
}

// listRoles handles GET /api/v1/admin/roles
func (s *Server) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := s.roles.ListRoles(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("failed to list roles")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, roles)
}

// getRole handles GET /api/v1/admin/roles/{id}
func (s *Server) getRole(w http.ResponseWriter, r *http.Request) {
	role := s.loadRoleOr404(w, r)
	if role == nil {
		return
	}
	httputil.WriteSuccess(w, role)
}

// createRole handles POST /api/v1/admin/roles
func (s *Server) createRole(w http.ResponseWriter, r *http.Request) {
	snap := middleware.SnapshotFrom(r)

	var payload RolePayload
	if !httputil.ParseJSONOrError(w, r, &payload) {
		return
	}
	if !httputil.RequireNonEmpty(w, payload.Name, "name") {
		return
	}

	if err := s.guard.CanCreateRole(r.Context(), snap, payload.Name); err != nil {
		if s.writeGuardError(w, err) {
			return
		}
		s.logger.WithError(err).Error("guard check failed")
		httputil.WriteInternalError(w)
		return
	}

	role := &rbac.Role{
		Name:        payload.Name,
		Description: payload.Description,
		CreatedBy:   snap.Principal.ID,
	}
	if err := s.roles.CreateRole(r.Context(), role, payload.PermissionIDs); err != nil {
		if errors.Is(err, rbac.ErrRoleNameTaken) {
			httputil.WriteConflict(w, "a role with this name already exists")
			return
		}
		if errors.Is(err, rbac.ErrPermissionNotFound) {
			httputil.WriteValidationError(w, "permission_ids references a permission that does not exist")
			return
		}
		s.logger.WithError(err).Error("failed to create role")
		httputil.WriteInternalError(w)
		return
	}

	entry := actorEntry(r, snap)
	entry.Action = audit.ActionCreate
	entry.EntityType = "Role"
	entry.EntityID = role.ID
	entry.Description = fmt.Sprintf("Created role %s", role.Name)
	entry.NewValues = map[string]interface{}{"name": role.Name, "permission_ids": payload.PermissionIDs}
	entry.Module = "Role"
	audit.Record(r.Context(), s.auditor, entry)

	httputil.WriteCreated(w, role)
}

// updateRole handles PUT /api/v1/admin/roles/{id}
func (s *Server) updateRole(w http.ResponseWriter, r *http.Request) {
	snap := middleware.SnapshotFrom(r)
	role := s.loadRoleOr404(w, r)
	if role == nil {
		return
	}

	var payload RolePayload
	if !httputil.ParseJSONOrError(w, r, &payload) {
		return
	}

	newName := role.Name
	if payload.Name != "" {
		newName = payload.Name
	}

	if err := s.guard.CanUpdateRole(r.Context(), snap, role, newName); err != nil {
		if s.writeGuardError(w, err) {
			return
		}
		s.logger.WithError(err).Error("guard check failed")
		httputil.WriteInternalError(w)
		return
	}

	previous := map[string]interface{}{"name": role.Name, "description": role.Description}

	role.Name = newName
	if payload.Description != "" {
		role.Description = payload.Description
	}
	if err := s.roles.UpdateRole(r.Context(), role); err != nil {
		if errors.Is(err, rbac.ErrRoleNameTaken) {
			httputil.WriteConflict(w, "a role with this name already exists")
			return
		}
		s.logger.WithError(err).Error("failed to update role")
		httputil.WriteInternalError(w)
		return
	}

	if payload.PermissionIDs != nil {
		if err := s.guard.CanSetRolePermissions(r.Context(), snap, role, payload.PermissionIDs); err != nil {
			if s.writeGuardError(w, err) {
				return
			}
			s.logger.WithError(err).Error("guard check failed")
			httputil.WriteInternalError(w)
			return
		}
		if err := s.roles.SetRolePermissions(r.Context(), role.ID, payload.PermissionIDs); err != nil {
			if errors.Is(err, rbac.ErrPermissionNotFound) {
				httputil.WriteValidationError(w, "permission_ids references a permission that does not exist")
				return
			}
			s.logger.WithError(err).Error("failed to set role permissions")
			httputil.WriteInternalError(w)
			return
		}
	}

	updated, err := s.roles.GetRole(r.Context(), role.ID)
	if err != nil || updated == nil {
		s.logger.WithError(err).Error("failed to reload role")
		httputil.WriteInternalError(w)
		return
	}

	entry := actorEntry(r, snap)
	entry.Action = audit.ActionUpdate
	entry.EntityType = "Role"
	entry.EntityID = role.ID
	entry.Description = fmt.Sprintf("Updated role %s", updated.Name)
	entry.PreviousValues = previous
	entry.NewValues = map[string]interface{}{"name": updated.Name, "description": updated.Description}
	entry.Module = "Role"
	audit.Record(r.Context(), s.auditor, entry)

	httputil.WriteSuccess(w, updated)
}

// deleteRole handles DELETE /api/v1/admin/roles/{id}
func (s *Server) deleteRole(w http.ResponseWriter, r *http.Request) {
	snap := middleware.SnapshotFrom(r)
	role := s.loadRoleOr404(w, r)
	if role == nil {
		return
	}

	if err := s.guard.CanDeleteRole(r.Context(), snap, role); err != nil {
		if s.writeGuardError(w, err) {
			return
		}
		s.logger.WithError(err).Error("guard check failed")
		httputil.WriteInternalError(w)
		return
	}

	if err := s.roles.DeleteRole(r.Context(), role.ID); err != nil {
		s.logger.WithError(err).Error("failed to delete role")
		httputil.WriteInternalError(w)
		return
	}

	entry := actorEntry(r, snap)
	entry.Action = audit.ActionDelete
	entry.EntityType = "Role"
	entry.EntityID = role.ID
	entry.Description = fmt.Sprintf("Deleted role %s", role.Name)
	entry.PreviousValues = map[string]interface{}{"name": role.Name}
	entry.Module = "Role"
	audit.Record(r.Context(), s.auditor, entry)

	httputil.WriteNoContent(w)
}
