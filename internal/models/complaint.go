package models

import "time"

// ComplaintStatus is the lifecycle state of a complaint.
type ComplaintStatus string

const (
	ComplaintOpen       ComplaintStatus = "open"
	ComplaintInProgress ComplaintStatus = "in_progress"
	ComplaintResolved   ComplaintStatus = "resolved"
	ComplaintClosed     ComplaintStatus = "closed"
)

// Valid returns true for supported statuses.
func (s ComplaintStatus) Valid() bool {
	switch s {
	case ComplaintOpen, ComplaintInProgress, ComplaintResolved, ComplaintClosed:
		return true
	default:
		return false
	}
}

// Complaint is a student grievance raised against a branch or coach.
type Complaint struct {
	ID          string          `db:"id" json:"id"`
	StudentID   string          `db:"student_id" json:"student_id"`
	BranchID    string          `db:"branch_id" json:"branch_id"`
	Subject     string          `db:"subject" json:"subject"`
	Description string          `db:"description" json:"description"`
	Category    string          `db:"category" json:"category"`
	CoachID     *string         `db:"coach_id" json:"coach_id,omitempty"`
	Status      ComplaintStatus `db:"status" json:"status"`
	Priority    string          `db:"priority" json:"priority"`
	AssignedTo  *string         `db:"assigned_to" json:"assigned_to,omitempty"`
	Resolution  *string         `db:"resolution" json:"resolution,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// ComplaintFilter scopes complaint listings.
type ComplaintFilter struct {
	StudentID string
	BranchID  string
	Status    *ComplaintStatus
	Skip      int
	Limit     int
}

// CoachRating is a 1-5 star review a student leaves for a coach.
type CoachRating struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	CoachID   string    `db:"coach_id" json:"coach_id"`
	BranchID  string    `db:"branch_id" json:"branch_id"`
	Rating    int       `db:"rating" json:"rating"`
	Review    *string   `db:"review" json:"review,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// CoachRatingSummary aggregates a coach's received ratings.
type CoachRatingSummary struct {
	CoachID string  `db:"coach_id" json:"coach_id"`
	Average float64 `db:"average" json:"average"`
	Count   int     `db:"count" json:"count"`
}
