// Package rbac implements role-based access control: a role and
// permission store backed by SQL, a per-request permission snapshot,
// and an invariant guard protecting the superadmin role and the last
// active superadmin account.
package rbac
