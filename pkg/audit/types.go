package audit

import "time"

// Actions recorded by the system
const (
	ActionLogin      = "login"
	ActionLogout     = "logout"
	ActionForceLogin = "force_login"
	ActionRegister   = "register"
	ActionCreate     = "create"
	ActionRead       = "read"
	ActionUpdate     = "update"
	ActionDelete     = "delete"
)

// Entry is one activity log record. Entries are append-only and outlive
// the principals they reference.
type Entry struct {
	ID          int64  `json:"id"`
	Action      string `json:"action"`
	EntityType  string `json:"entity_type"`
	EntityID    string `json:"entity_id,omitempty"`
	Description string `json:"description"`

	// PreviousValues and NewValues capture the state around a mutation
	PreviousValues map[string]interface{} `json:"previous_values,omitempty"`
	NewValues      map[string]interface{} `json:"new_values,omitempty"`

	// ActorKind and ActorID identify who performed the action
	ActorKind string `json:"actor_kind,omitempty"`
	ActorID   string `json:"actor_id,omitempty"`

	IP        string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	Module    string    `json:"module,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
