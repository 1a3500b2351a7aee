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

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = `id, student_id, course_id, branch_id, enrollment_date, start_date, end_date, fee_amount, admission_fee, payment_status, next_due_date, is_active, created_at`

// FindByID returns an enrollment by id.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE id = $1`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// List returns enrollments matching the filter.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
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
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	skip := filter.Skip
	if skip < 0 {
		skip = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM enrollments%s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		enrollmentColumns, clause, limit, skip)

	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM enrollments"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// CreateWithPayments inserts the enrollment and its required pending
// payments in one transaction so a failed payment insert never leaves a
// half-created enrollment behind.
func (r *EnrollmentRepository) CreateWithPayments(ctx context.Context, enrollment *models.Enrollment, payments []models.Payment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enrollment tx: %w", err)
	}
	defer tx.Rollback()

	const enrollQuery = `INSERT INTO enrollments (id, student_id, course_id, branch_id, enrollment_date, start_date, end_date, fee_amount, admission_fee, payment_status, next_due_date, is_active, created_at)
        VALUES (:id, :student_id, :course_id, :branch_id, :enrollment_date, :start_date, :end_date, :fee_amount, :admission_fee, :payment_status, :next_due_date, :is_active, :created_at)`
	if _, err := tx.NamedExecContext(ctx, enrollQuery, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}

	const paymentQuery = `INSERT INTO payments (id, student_id, enrollment_id, amount, payment_type, payment_method, payment_status, transaction_id, payment_date, due_date, proof_path, notes, branch_id, created_at)
        VALUES (:id, :student_id, :enrollment_id, :amount, :payment_type, :payment_method, :payment_status, :transaction_id, :payment_date, :due_date, :proof_path, :notes, :branch_id, :created_at)`
	for i := range payments {
		p := &payments[i]
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		p.EnrollmentID = &enrollment.ID
		if p.CreatedAt.IsZero() {
			p.CreatedAt = enrollment.CreatedAt
		}
		if _, err := tx.NamedExecContext(ctx, paymentQuery, p); err != nil {
			return fmt.Errorf("create enrollment payment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit enrollment tx: %w", err)
	}
	return nil
}

// UpdatePaymentStatus stores the derived ledger summary on the enrollment.
func (r *EnrollmentRepository) UpdatePaymentStatus(ctx context.Context, id string, status models.EnrollmentPaymentStatus, nextDue *time.Time) error {
	const query = `UPDATE enrollments SET payment_status = $2, next_due_date = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, nextDue)
	if err != nil {
		return fmt.Errorf("update enrollment payment status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Deactivate retires an enrollment (course change, completion, dropout).
func (r *EnrollmentRepository) Deactivate(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE enrollments SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate enrollment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountActiveByCourse returns how many active enrollments a course has.
func (r *EnrollmentRepository) CountActiveByCourse(ctx context.Context, courseID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND is_active = TRUE`
	var count int
	if err := r.db.GetContext(ctx, &count, query, courseID); err != nil {
		return 0, fmt.Errorf("count course enrollments: %w", err)
	}
	return count, nil
}

// FindActiveByStudentAndCourse returns a student's live enrollment on a
// course, used to validate QR scans.
func (r *EnrollmentRepository) FindActiveByStudentAndCourse(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE student_id = $1 AND course_id = $2 AND is_active = TRUE LIMIT 1`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, studentID, courseID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ListActive returns every active enrollment, optionally limited to one
// branch. Used by the anomaly sweep and reminder jobs.
func (r *EnrollmentRepository) ListActive(ctx context.Context, branchID string) ([]models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE is_active = TRUE`, enrollmentColumns)
	var args []interface{}
	if branchID != "" {
		query += " AND branch_id = $1"
		args = append(args, branchID)
	}
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, fmt.Errorf("list active enrollments: %w", err)
	}
	return enrollments, nil
}
