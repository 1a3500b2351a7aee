package models

import "time"

// Event is a branch-level happening (tournament, grading, holiday camp).
// Creating one broadcasts a best-effort notification to branch students.
type Event struct {
	ID          string    `db:"id" json:"id"`
	BranchID    string    `db:"branch_id" json:"branch_id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	EventDate   time.Time `db:"event_date" json:"event_date"`
	CreatedBy   string    `db:"created_by" json:"created_by"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// EventFilter scopes event listings.
type EventFilter struct {
	BranchID string
	From     *time.Time
	To       *time.Time
	Skip     int
	Limit    int
}
