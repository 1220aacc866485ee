package rbac

import (
	"time"
)

// SuperadminRoleName is the distinguished system role that bypasses all
// permission checks. Exactly one role carries this name with the system
// flag set, and that role is protected by the invariant guard.
const SuperadminRoleName = "superadmin"

// Role is a named set of permissions assignable to admin principals
type Role struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Description  string       `json:"description,omitempty"`
	IsSystemRole bool         `json:"is_system_role"`
	Permissions  []Permission `json:"permissions"`
	CreatedBy    string       `json:"created_by,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// IsSuperadmin reports whether this is the distinguished superadmin role
func (r *Role) IsSuperadmin() bool {
	return r.Name == SuperadminRoleName && r.IsSystemRole
}

// HasPermission reports whether the role's assigned set contains the code
func (r *Role) HasPermission(code string) bool {
	for _, p := range r.Permissions {
		if p.Code == code {
			return true
		}
	}
	return false
}

// Permission is a grantable capability. Code is the stable programmatic
// key of form "<module>:<verb>" (e.g. "admin:manage", "role:view") and is
// immutable after creation.
type Permission struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Code        string    `json:"code"`
	Description string    `json:"description,omitempty"`
	Module      string    `json:"module"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Well-known permission codes seeded at first start
const (
	PermAdminView    = "admin:view"
	PermAdminCreate  = "admin:create"
	PermAdminUpdate  = "admin:update"
	PermAdminDelete  = "admin:delete"
	PermAdminManage  = "admin:manage"
	PermRoleView     = "role:view"
	PermRoleCreate   = "role:create"
	PermRoleUpdate   = "role:update"
	PermRoleDelete   = "role:delete"
	PermPermView     = "permission:view"
	PermPermCreate   = "permission:create"
	PermPermUpdate   = "permission:update"
	PermPermDelete   = "permission:delete"
	PermAuditView    = "audit:view"
)

// SeedPermissions returns the baseline permission set created when the
// database is empty
func SeedPermissions() []Permission {
	return []Permission{
		{Name: "View Admins", Code: PermAdminView, Module: "Admin"},
		{Name: "Create Admins", Code: PermAdminCreate, Module: "Admin"},
		{Name: "Update Admins", Code: PermAdminUpdate, Module: "Admin"},
		{Name: "Delete Admins", Code: PermAdminDelete, Module: "Admin"},
		{Name: "Manage Admins", Code: PermAdminManage, Module: "Admin"},
		{Name: "View Roles", Code: PermRoleView, Module: "Role"},
		{Name: "Create Roles", Code: PermRoleCreate, Module: "Role"},
		{Name: "Update Roles", Code: PermRoleUpdate, Module: "Role"},
		{Name: "Delete Roles", Code: PermRoleDelete, Module: "Role"},
		{Name: "View Permissions", Code: PermPermView, Module: "Permission"},
		{Name: "Create Permissions", Code: PermPermCreate, Module: "Permission"},
		{Name: "Update Permissions", Code: PermPermUpdate, Module: "Permission"},
		{Name: "Delete Permissions", Code: PermPermDelete, Module: "Permission"},
		{Name: "View Activity Logs", Code: PermAuditView, Module: "Audit"},
	}
}
