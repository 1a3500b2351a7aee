package models

import (
	"encoding/json"
	"time"
)

// Activity log actions recorded by the audit trail.
const (
	ActivityLogin        = "login_success"
	ActivityLoginFailed  = "login_failed"
	ActivityLogout       = "logout"
	ActivityCreate       = "create"
	ActivityUpdate       = "update"
	ActivityDelete       = "delete"
	ActivityScopeDenied  = "scope_denied"
	ActivityPasswordSet  = "password_reset"
	ActivityStatusChange = "status_change"
)

// ActivityLog is an append-only audit record. Writes are fire-and-forget
// and never fail the operation that produced them.
type ActivityLog struct {
	ID         string          `db:"id" json:"id"`
	UserID     *string         `db:"user_id" json:"user_id,omitempty"`
	Action     string          `db:"action" json:"action"`
	Resource   string          `db:"resource" json:"resource"`
	ResourceID *string         `db:"resource_id" json:"resource_id,omitempty"`
	Details    json.RawMessage `db:"details" json:"details,omitempty"`
	IPAddress  string          `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent  string          `db:"user_agent" json:"-"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// ActivityLogFilter scopes audit trail listings.
type ActivityLogFilter struct {
	UserID   string
	Action   string
	Resource string
	Skip     int
	Limit    int
}
