package models

import "time"

// AttendanceMethod records how an attendance entry was captured.
type AttendanceMethod string

const (
	AttendanceMethodQR        AttendanceMethod = "qr"
	AttendanceMethodManual    AttendanceMethod = "manual"
	AttendanceMethodBiometric AttendanceMethod = "biometric"
)

// Valid returns true when the method is supported.
func (m AttendanceMethod) Valid() bool {
	switch m {
	case AttendanceMethodQR, AttendanceMethodManual, AttendanceMethodBiometric:
		return true
	default:
		return false
	}
}

// AttendanceRecord is one student's presence for a course on a date.
// Unique per (student_id, course_id, attendance_date); repeated marking is
// an idempotent no-op.
type AttendanceRecord struct {
	ID             string           `db:"id" json:"id"`
	StudentID      string           `db:"student_id" json:"student_id"`
	CourseID       string           `db:"course_id" json:"course_id"`
	BranchID       string           `db:"branch_id" json:"branch_id"`
	AttendanceDate time.Time        `db:"attendance_date" json:"attendance_date"`
	CheckInTime    *time.Time       `db:"check_in_time" json:"check_in_time,omitempty"`
	Method         AttendanceMethod `db:"method" json:"method"`
	MarkedBy       *string          `db:"marked_by" json:"marked_by,omitempty"`
	Present        bool             `db:"is_present" json:"is_present"`
	Notes          *string          `db:"notes" json:"notes,omitempty"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
}

// AttendanceFilter scopes attendance listings.
type AttendanceFilter struct {
	StudentID string
	CourseID  string
	BranchID  string
	DateFrom  *time.Time
	DateTo    *time.Time
	Skip      int
	Limit     int
}

// QRSession is a time-boxed attendance token for a course at a branch.
// Scans are accepted only while now <= valid_until.
type QRSession struct {
	ID          string    `db:"id" json:"id"`
	CourseID    string    `db:"course_id" json:"course_id"`
	BranchID    string    `db:"branch_id" json:"branch_id"`
	Token       string    `db:"token" json:"token"`
	Image       string    `db:"image" json:"image"` // base64 PNG
	GeneratedBy string    `db:"generated_by" json:"generated_by"`
	ValidUntil  time.Time `db:"valid_until" json:"valid_until"`
	Active      bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// AttendanceAnomaly flags a run of consecutive missed scheduled classes.
type AttendanceAnomaly struct {
	StudentID   string    `json:"student_id"`
	StudentName string    `json:"student_name,omitempty"`
	CourseID    string    `json:"course_id"`
	BranchID    string    `json:"branch_id"`
	RunStart    time.Time `json:"run_start"`
	RunEnd      time.Time `json:"run_end"`
	MissedCount int       `json:"missed_count"`
}
