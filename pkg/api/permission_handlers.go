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

// PermissionPayload carries permission creation and updates. Code is
// honored on create only.
type PermissionPayload struct {
	Name        string `json:"name"`
	Code        string `json:"code"`
	Description string `json:"description"`
	Module      string `json:"module"`
}

// listPermissions handles GET /api/v1/admin/permissions
func (s *Server) listPermissions(w http.ResponseWriter, r *http.Request) {
	permissions, err := s.roles.ListPermissions(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("failed to list permissions")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, permissions)
}

// createPermission handles POST /api/v1/admin/permissions
func (s *Server) createPermission(w http.ResponseWriter, r *http.Request) {
	snap := middleware.SnapshotFrom(r)

	var payload PermissionPayload
	if !httputil.ParseJSONOrError(w, r, &payload) {
		return
	}
	if !httputil.RequireNonEmpty(w, payload.Name, "name") ||
		!httputil.RequireNonEmpty(w, payload.Code, "code") ||
		!httputil.RequireNonEmpty(w, payload.Module, "module") {
		return
	}

	permission := &rbac.Permission{
		Name:        payload.Name,
		Code:        payload.Code,
		Description: payload.Description,
		Module:      payload.Module,
	}
	if err := s.roles.CreatePermission(r.Context(), permission); err != nil {
		if errors.Is(err, rbac.ErrPermissionCodeTaken) {
			httputil.WriteConflict(w, "a permission with this code already exists")
			return
		}
		s.logger.WithError(err).Error("failed to create permission")
		httputil.WriteInternalError(w)
		return
	}

	entry := actorEntry(r, snap)
	entry.Action = audit.ActionCreate
	entry.EntityType = "Permission"
	entry.EntityID = permission.ID
	entry.Description = fmt.Sprintf("Created permission %s", permission.Code)
	entry.NewValues = map[string]interface{}{"name": permission.Name, "code": permission.Code, "module": permission.Module}
	entry.Module = "Permission"
	audit.Record(r.Context(), s.auditor, entry)

	httputil.WriteCreated(w, permission)
}

// updatePermission handles PUT /api/v1/admin/permissions/{id}
func (s *Server) updatePermission(w http.ResponseWriter, r *http.Request) {
	snap := middleware.SnapshotFrom(r)

	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	permission, err := s.roles.GetPermission(r.Context(), id)
	if err != nil {
		s.logger.WithError(err).Error("failed to load permission")
		httputil.WriteInternalError(w)
		return
	}
	if permission == nil {
		httputil.WriteNotFound(w, "permission not found")
		return
	}

	var payload PermissionPayload
	if !httputil.ParseJSONOrError(w, r, &payload) {
		return
	}
	if payload.Code != "" && payload.Code != permission.Code {
		httputil.WriteValidationError(w, "permission code cannot be changed")
		return
	}

	previous := map[string]interface{}{"name": permission.Name, "description": permission.Description, "module": permission.Module}

	if payload.Name != "" {
		permission.Name = payload.Name
	}
	if payload.Description != "" {
		permission.Description = payload.Description
	}
	if payload.Module != "" {
		permission.Module = payload.Module
	}

	if err := s.roles.UpdatePermission(r.Context(), permission); err != nil {
		s.logger.WithError(err).Error("failed to update permission")
		httputil.WriteInternalError(w)
		return
	}

	entry := actorEntry(r, snap)
	entry.Action = audit.ActionUpdate
	entry.EntityType = "Permission"
	entry.EntityID = permission.ID
	entry.Description = fmt.Sprintf("Updated permission %s", permission.Code)
	entry.PreviousValues = previous
	entry.NewValues = map[string]interface{}{"name": permission.Name, "description": permission.Description, "module": permission.Module}
	entry.Module = "Permission"
	audit.Record(r.Context(), s.auditor, entry)

	httputil.WriteSuccess(w, permission)
}

// deletePermission handles DELETE /api/v1/admin/permissions/{id}
func (s *Server) deletePermission(w http.ResponseWriter, r *http.Request) {
	snap := middleware.SnapshotFrom(r)

	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	permission, err := s.roles.GetPermission(r.Context(), id)
	if err != nil {
		s.logger.WithError(err).Error("failed to load permission")
		httputil.WriteInternalError(w)
		return
	}
	if permission == nil {
		httputil.WriteNotFound(w, "permission not found")
		return
	}

	if err := s.guard.CanDeletePermission(r.Context(), permission.ID); err != nil {
		if s.writeGuardError(w, err) {
			return
		}
		s.logger.WithError(err).Error("guard check failed")
		httputil.WriteInternalError(w)
		return
	}

	if err := s.roles.DeletePermission(r.Context(), permission.ID); err != nil {
		s.logger.WithError(err).Error("failed to delete permission")
		httputil.WriteInternalError(w)
		return
	}

	entry := actorEntry(r, snap)
	entry.Action = audit.ActionDelete
	entry.EntityType = "Permission"
	entry.EntityID = permission.ID
	entry.Description = fmt.Sprintf("Deleted permission %s", permission.Code)
	entry.PreviousValues = map[string]interface{}{"name": permission.Name, "code": permission.Code}
	entry.Module = "Permission"
	audit.Record(r.Context(), s.auditor, entry)

	httputil.WriteNoContent(w)
}

// listActivityLogs handles GET /api/v1/admin/activity-logs
func (s *Server) listActivityLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.ParseQueryInt(r, "limit", 50)
	if err != nil || limit < 1 || limit > 500 {
		httputil.WriteValidationError(w, "limit must be between 1 and 500")
		return
	}
	offset, err := httputil.ParseQueryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		httputil.WriteValidationError(w, "offset must be non-negative")
		return
	}

	entries, err := s.auditor.List(r.Context(), limit, offset)
	if err != nil {
		s.logger.WithError(err).Error("failed to list activity logs")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, entries)
}
