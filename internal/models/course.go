package models

import "time"

// Course is a training program offered across branches, priced per branch.
type Course struct {
	ID             string         `db:"id" json:"id"`
	Name           string         `db:"name" json:"name"`
	Description    string         `db:"description" json:"description"`
	DurationMonths int            `db:"duration_months" json:"duration_months"`
	BaseFee        float64        `db:"base_fee" json:"base_fee"`
	BranchPricing  PriceMap       `db:"branch_pricing" json:"branch_pricing"`
	CoachID        *string        `db:"coach_id" json:"coach_id,omitempty"`
	Schedule       CourseSchedule `db:"schedule" json:"schedule"`
	Active         bool           `db:"is_active" json:"is_active"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// FeeFor returns the fee applicable at a branch, falling back to the base fee.
func (c *Course) FeeFor(branchID string) float64 {
	if fee, ok := c.BranchPricing[branchID]; ok {
		return fee
	}
	return c.BaseFee
}

// CourseFilter scopes course listings.
type CourseFilter struct {
	BranchID string // courses priced for this branch
	CoachID  string
	Active   *bool
	Skip     int
	Limit    int
}
