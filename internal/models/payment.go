package models

import "time"

// PaymentStatus is the stored status of a payment. "overdue" is never
// written: a stored pending payment past its due date is reported as
// overdue on read.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentOverdue   PaymentStatus = "overdue"
	PaymentCancelled PaymentStatus = "cancelled"
)

// PaymentType classifies what a payment is for.
type PaymentType string

const (
	PaymentTypeAdmissionFee PaymentType = "admission_fee"
	PaymentTypeCourseFee    PaymentType = "course_fee"
	PaymentTypeSessionFee   PaymentType = "session_fee"
	PaymentTypeAccessory    PaymentType = "accessory"
)

// PaymentMethod is how a payment was (or will be) made.
type PaymentMethod string

const (
	PaymentMethodOnline PaymentMethod = "online"
	PaymentMethodCash   PaymentMethod = "cash"
	PaymentMethodUPI    PaymentMethod = "upi"
	PaymentMethodCard   PaymentMethod = "card"
)

// Valid returns true for supported methods.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodOnline, PaymentMethodCash, PaymentMethodUPI, PaymentMethodCard:
		return true
	default:
		return false
	}
}

// Payment is a single ledger entry owed by or settled for a student.
type Payment struct {
	ID            string        `db:"id" json:"id"`
	StudentID     string        `db:"student_id" json:"student_id"`
	EnrollmentID  *string       `db:"enrollment_id" json:"enrollment_id,omitempty"`
	Amount        float64       `db:"amount" json:"amount"`
	PaymentType   PaymentType   `db:"payment_type" json:"payment_type"`
	PaymentMethod PaymentMethod `db:"payment_method" json:"payment_method"`
	PaymentStatus PaymentStatus `db:"payment_status" json:"payment_status"`
	TransactionID *string       `db:"transaction_id" json:"transaction_id,omitempty"`
	PaymentDate   *time.Time    `db:"payment_date" json:"payment_date,omitempty"`
	DueDate       time.Time     `db:"due_date" json:"due_date"`
	ProofPath     *string       `db:"proof_path" json:"proof_path,omitempty"`
	Notes         *string       `db:"notes" json:"notes,omitempty"`
	BranchID      string        `db:"branch_id" json:"branch_id"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
}

// EffectiveStatus derives the reported status at the given instant.
func (p *Payment) EffectiveStatus(now time.Time) PaymentStatus {
	if p.PaymentStatus == PaymentPending && p.DueDate.Before(now) {
		return PaymentOverdue
	}
	return p.PaymentStatus
}

// PaymentFilter scopes ledger listings.
type PaymentFilter struct {
	StudentID    string
	EnrollmentID string
	BranchID     string
	Status       *PaymentStatus
	Type         *PaymentType
	DateFrom     *time.Time
	DateTo       *time.Time
	Skip         int
	Limit        int
}

// StudentDues aggregates a student's outstanding payments.
type StudentDues struct {
	StudentID   string    `json:"student_id"`
	StudentName string    `json:"student_name"`
	Phone       string    `json:"phone"`
	TotalDue    float64   `json:"total_due"`
	Payments    []Payment `json:"payments"`
}
