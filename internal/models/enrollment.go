package models

import "time"

// EnrollmentPaymentStatus summarises how much of an enrollment's required
// payments have been settled. Derived from the payment ledger.
type EnrollmentPaymentStatus string

const (
	EnrollmentPaymentPending EnrollmentPaymentStatus = "pending"
	EnrollmentPaymentPartial EnrollmentPaymentStatus = "partial"
	EnrollmentPaymentPaid    EnrollmentPaymentStatus = "paid"
)

// Enrollment links a student to a course at a branch. Creating one also
// creates the two required pending payments (admission + course fee).
type Enrollment struct {
	ID             string                  `db:"id" json:"id"`
	StudentID      string                  `db:"student_id" json:"student_id"`
	CourseID       string                  `db:"course_id" json:"course_id"`
	BranchID       string                  `db:"branch_id" json:"branch_id"`
	EnrollmentDate time.Time               `db:"enrollment_date" json:"enrollment_date"`
	StartDate      time.Time               `db:"start_date" json:"start_date"`
	EndDate        time.Time               `db:"end_date" json:"end_date"`
	FeeAmount      float64                 `db:"fee_amount" json:"fee_amount"`
	AdmissionFee   float64                 `db:"admission_fee" json:"admission_fee"`
	PaymentStatus  EnrollmentPaymentStatus `db:"payment_status" json:"payment_status"`
	NextDueDate    *time.Time              `db:"next_due_date" json:"next_due_date,omitempty"`
	Active         bool                    `db:"is_active" json:"is_active"`
	CreatedAt      time.Time               `db:"created_at" json:"created_at"`
}

// EnrollmentFilter scopes enrollment listings.
type EnrollmentFilter struct {
	StudentID string
	CourseID  string
	BranchID  string
	Active    *bool
	Skip      int
	Limit     int
}
