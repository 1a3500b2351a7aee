package models

import "time"

// RequestStatus is the shared state machine for workflow requests:
// pending -> approved | rejected.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// Valid returns true for supported statuses.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestApproved, RequestRejected:
		return true
	default:
		return false
	}
}

// CourseChangeRequest asks to move an active enrollment to another course.
// Approval deactivates the old enrollment and creates a fresh one.
type CourseChangeRequest struct {
	ID                  string        `db:"id" json:"id"`
	StudentID           string        `db:"student_id" json:"student_id"`
	CurrentEnrollmentID string        `db:"current_enrollment_id" json:"current_enrollment_id"`
	NewCourseID         string        `db:"new_course_id" json:"new_course_id"`
	BranchID            string        `db:"branch_id" json:"branch_id"`
	Reason              string        `db:"reason" json:"reason"`
	Status              RequestStatus `db:"status" json:"status"`
	DecidedBy           *string       `db:"decided_by" json:"decided_by,omitempty"`
	DecidedAt           *time.Time    `db:"decided_at" json:"decided_at,omitempty"`
	CreatedAt           time.Time     `db:"created_at" json:"created_at"`
}

// TransferRequest asks to move a student to another branch.
type TransferRequest struct {
	ID           string        `db:"id" json:"id"`
	StudentID    string        `db:"student_id" json:"student_id"`
	FromBranchID string        `db:"from_branch_id" json:"from_branch_id"`
	ToBranchID   string        `db:"to_branch_id" json:"to_branch_id"`
	Reason       string        `db:"reason" json:"reason"`
	Status       RequestStatus `db:"status" json:"status"`
	DecidedBy    *string       `db:"decided_by" json:"decided_by,omitempty"`
	DecidedAt    *time.Time    `db:"decided_at" json:"decided_at,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
}

// ResourceRequest asks for equipment or materials at a branch.
type ResourceRequest struct {
	ID           string        `db:"id" json:"id"`
	RequestedBy  string        `db:"requested_by" json:"requested_by"`
	BranchID     string        `db:"branch_id" json:"branch_id"`
	ResourceType string        `db:"resource_type" json:"resource_type"`
	Description  string        `db:"description" json:"description"`
	Status       RequestStatus `db:"status" json:"status"`
	DecidedBy    *string       `db:"decided_by" json:"decided_by,omitempty"`
	DecidedAt    *time.Time    `db:"decided_at" json:"decided_at,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
}

// RequestFilter scopes workflow request listings.
type RequestFilter struct {
	StudentID string
	BranchID  string
	Status    *RequestStatus
	Skip      int
	Limit     int
}
