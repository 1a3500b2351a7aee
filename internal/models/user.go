package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleSuperAdmin UserRole = "super_admin"
	RoleCoachAdmin UserRole = "coach_admin"
	RoleCoach      UserRole = "coach"
	RoleStudent    UserRole = "student"
)

// Valid returns true when the role is a supported value.
func (r UserRole) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleCoachAdmin, RoleCoach, RoleStudent:
		return true
	default:
		return false
	}
}

// User represents an application user stored in the users table.
// Every non super_admin user belongs to exactly one branch.
type User struct {
	ID                 string    `db:"id" json:"id"`
	Email              string    `db:"email" json:"email"`
	Phone              string    `db:"phone" json:"phone"`
	FullName           string    `db:"full_name" json:"full_name"`
	Role               UserRole  `db:"role" json:"role"`
	BranchID           *string   `db:"branch_id" json:"branch_id,omitempty"`
	Active             bool      `db:"is_active" json:"is_active"`
	PasswordHash       string    `db:"password_hash" json:"-"`
	MustChangePassword bool      `db:"must_change_password" json:"must_change_password"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role     *UserRole
	BranchID string
	Active   *bool
	Search   string
	Skip     int
	Limit    int
}
