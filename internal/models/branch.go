package models

import "time"

// Branch is a physical training-center location; the tenancy boundary for
// every other resource.
type Branch struct {
	ID            string        `db:"id" json:"id"`
	Name          string        `db:"name" json:"name"`
	Address       string        `db:"address" json:"address"`
	City          string        `db:"city" json:"city"`
	State         string        `db:"state" json:"state"`
	Pincode       string        `db:"pincode" json:"pincode"`
	Phone         string        `db:"phone" json:"phone"`
	Email         string        `db:"email" json:"email"`
	ManagerID     *string       `db:"manager_id" json:"manager_id,omitempty"`
	BusinessHours BusinessHours `db:"business_hours" json:"business_hours"`
	Holidays      DateList      `db:"holidays" json:"holidays"`
	Active        bool          `db:"is_active" json:"is_active"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// BranchFilter scopes branch listings.
type BranchFilter struct {
	Active *bool
	Skip   int
	Limit  int
}
