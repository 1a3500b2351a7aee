package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edumanage/academy-api/internal/models"
)

// AttendanceRepository handles persistence of attendance records and QR
// sessions.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

const attendanceColumns = `id, student_id, course_id, branch_id, attendance_date, check_in_time, method, marked_by, is_present, notes, created_at`

// Insert records attendance for a student. The unique index on
// (student_id, course_id, attendance_date) plus ON CONFLICT DO NOTHING
// makes repeated marking idempotent; the bool reports whether a new row
// was written.
func (r *AttendanceRepository) Insert(ctx context.Context, record *models.AttendanceRecord) (bool, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO attendance (id, student_id, course_id, branch_id, attendance_date, check_in_time, method, marked_by, is_present, notes, created_at)
        VALUES (:id, :student_id, :course_id, :branch_id, :attendance_date, :check_in_time, :method, :marked_by, :is_present, :notes, :created_at)
        ON CONFLICT (student_id, course_id, attendance_date) DO NOTHING`
	res, err := r.db.NamedExecContext(ctx, query, record)
	if err != nil {
		return false, fmt.Errorf("insert attendance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert attendance: %w", err)
	}
	return n > 0, nil
}

// FindByStudentCourseDate returns the attendance row for a student on a
// course date, or sql.ErrNoRows.
func (r *AttendanceRepository) FindByStudentCourseDate(ctx context.Context, studentID, courseID string, date time.Time) (*models.AttendanceRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendance WHERE student_id = $1 AND course_id = $2 AND attendance_date = $3`, attendanceColumns)
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, studentID, courseID, date); err != nil {
		return nil, err
	}
	return &record, nil
}

// List returns attendance records matching the filter.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error) {
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.BranchID != "" {
		conditions = append(conditions, fmt.Sprintf("branch_id = $%d", len(args)+1))
		args = append(args, filter.BranchID)
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("attendance_date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("attendance_date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	skip := filter.Skip
	if skip < 0 {
		skip = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM attendance%s ORDER BY attendance_date DESC LIMIT %d OFFSET %d`,
		attendanceColumns, clause, limit, skip)

	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM attendance"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance: %w", err)
	}
	return records, total, nil
}

// PresentDates returns the distinct dates a student attended a course
// inside a window. Input to the anomaly sweep.
func (r *AttendanceRepository) PresentDates(ctx context.Context, studentID, courseID string, from, to time.Time) ([]time.Time, error) {
	const query = `SELECT DISTINCT attendance_date FROM attendance
        WHERE student_id = $1 AND course_id = $2 AND is_present = TRUE
        AND attendance_date >= $3 AND attendance_date <= $4
        ORDER BY attendance_date`
	var dates []time.Time
	if err := r.db.SelectContext(ctx, &dates, query, studentID, courseID, from, to); err != nil {
		return nil, fmt.Errorf("list present dates: %w", err)
	}
	return dates, nil
}

// CountPresent returns how many classes a student attended in a window.
func (r *AttendanceRepository) CountPresent(ctx context.Context, studentID, courseID string, from, to time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM attendance
        WHERE student_id = $1 AND course_id = $2 AND is_present = TRUE
        AND attendance_date >= $3 AND attendance_date <= $4`
	var count int
	if err := r.db.GetContext(ctx, &count, query, studentID, courseID, from, to); err != nil {
		return 0, fmt.Errorf("count present: %w", err)
	}
	return count, nil
}

// CountPresentByBranchAndDate returns attendance headcount for a branch on
// a date, for the dashboard.
func (r *AttendanceRepository) CountPresentByBranchAndDate(ctx context.Context, branchID string, date time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM attendance WHERE attendance_date = $1 AND is_present = TRUE`
	args := []interface{}{date}
	if branchID != "" {
		query += " AND branch_id = $2"
		args = append(args, branchID)
	}
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count branch attendance: %w", err)
	}
	return count, nil
}

// CreateQRSession persists a freshly generated QR token, deactivating any
// previous live session for the same course and branch first.
func (r *AttendanceRepository) CreateQRSession(ctx context.Context, session *models.QRSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin qr session tx: %w", err)
	}
	defer tx.Rollback()

	const deactivate = `UPDATE qr_sessions SET is_active = FALSE WHERE course_id = $1 AND branch_id = $2 AND is_active = TRUE`
	if _, err := tx.ExecContext(ctx, deactivate, session.CourseID, session.BranchID); err != nil {
		return fmt.Errorf("deactivate qr sessions: %w", err)
	}

	const insert = `INSERT INTO qr_sessions (id, course_id, branch_id, token, image, generated_by, valid_until, is_active, created_at)
        VALUES (:id, :course_id, :branch_id, :token, :image, :generated_by, :valid_until, :is_active, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insert, session); err != nil {
		return fmt.Errorf("create qr session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit qr session tx: %w", err)
	}
	return nil
}

// FindQRSessionByToken returns the session for a token regardless of
// validity; callers decide between expired and unknown.
func (r *AttendanceRepository) FindQRSessionByToken(ctx context.Context, token string) (*models.QRSession, error) {
	const query = `SELECT id, course_id, branch_id, token, image, generated_by, valid_until, is_active, created_at
        FROM qr_sessions WHERE token = $1 ORDER BY created_at DESC LIMIT 1`
	var session models.QRSession
	if err := r.db.GetContext(ctx, &session, query, token); err != nil {
		return nil, err
	}
	return &session, nil
}

// FindActiveQRSession returns the live session for a course at a branch.
func (r *AttendanceRepository) FindActiveQRSession(ctx context.Context, courseID, branchID string, now time.Time) (*models.QRSession, error) {
	const query = `SELECT id, course_id, branch_id, token, image, generated_by, valid_until, is_active, created_at
        FROM qr_sessions WHERE course_id = $1 AND branch_id = $2 AND is_active = TRUE AND valid_until >= $3
        ORDER BY created_at DESC LIMIT 1`
	var session models.QRSession
	if err := r.db.GetContext(ctx, &session, query, courseID, branchID, now); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find active qr session: %w", err)
	}
	return &session, nil
}
