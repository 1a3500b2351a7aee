package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edumanage/academy-api/internal/models"
)

// RequestRepository handles persistence of the three workflow request
// tables: course changes, branch transfers and resource requests.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository constructs the repository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

func requestConditions(filter models.RequestFilter, studentColumn string) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("%s = $%d", studentColumn, len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.BranchID != "" {
		conditions = append(conditions, fmt.Sprintf("branch_id = $%d", len(args)+1))
		args = append(args, filter.BranchID)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}
	return clause, args
}

func pageOf(filter models.RequestFilter) (int, int) {
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	skip := filter.Skip
	if skip < 0 {
		skip = 0
	}
	return limit, skip
}

// CreateCourseChange persists a course change request.
func (r *RequestRepository) CreateCourseChange(ctx context.Context, req *models.CourseChangeRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO course_change_requests (id, student_id, current_enrollment_id, new_course_id, branch_id, reason, status, decided_by, decided_at, created_at)
        VALUES (:id, :student_id, :current_enrollment_id, :new_course_id, :branch_id, :reason, :status, :decided_by, :decided_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("create course change request: %w", err)
	}
	return nil
}

// FindCourseChange returns a course change request by id.
func (r *RequestRepository) FindCourseChange(ctx context.Context, id string) (*models.CourseChangeRequest, error) {
	const query = `SELECT id, student_id, current_enrollment_id, new_course_id, branch_id, reason, status, decided_by, decided_at, created_at
        FROM course_change_requests WHERE id = $1`
	var req models.CourseChangeRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// ListCourseChanges returns course change requests matching the filter.
func (r *RequestRepository) ListCourseChanges(ctx context.Context, filter models.RequestFilter) ([]models.CourseChangeRequest, error) {
	clause, args := requestConditions(filter, "student_id")
	limit, skip := pageOf(filter)
	query := fmt.Sprintf(`SELECT id, student_id, current_enrollment_id, new_course_id, branch_id, reason, status, decided_by, decided_at, created_at
        FROM course_change_requests%s ORDER BY created_at DESC LIMIT %d OFFSET %d`, clause, limit, skip)
	var reqs []models.CourseChangeRequest
	if err := r.db.SelectContext(ctx, &reqs, query, args...); err != nil {
		return nil, fmt.Errorf("list course change requests: %w", err)
	}
	return reqs, nil
}

// DecideCourseChange settles a pending course change request. The status
// guard stops a second decision from overwriting the first.
func (r *RequestRepository) DecideCourseChange(ctx context.Context, id string, status models.RequestStatus, decidedBy string, decidedAt time.Time) (bool, error) {
	const query = `UPDATE course_change_requests SET status = $2, decided_by = $3, decided_at = $4
        WHERE id = $1 AND status = 'pending'`
	res, err := r.db.ExecContext(ctx, query, id, status, decidedBy, decidedAt)
	if err != nil {
		return false, fmt.Errorf("decide course change request: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// CreateTransfer persists a branch transfer request.
func (r *RequestRepository) CreateTransfer(ctx context.Context, req *models.TransferRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO transfer_requests (id, student_id, from_branch_id, to_branch_id, reason, status, decided_by, decided_at, created_at)
        VALUES (:id, :student_id, :from_branch_id, :to_branch_id, :reason, :status, :decided_by, :decided_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("create transfer request: %w", err)
	}
	return nil
}

// FindTransfer returns a transfer request by id.
func (r *RequestRepository) FindTransfer(ctx context.Context, id string) (*models.TransferRequest, error) {
	const query = `SELECT id, student_id, from_branch_id, to_branch_id, reason, status, decided_by, decided_at, created_at
        FROM transfer_requests WHERE id = $1`
	var req models.TransferRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// ListTransfers returns transfer requests matching the filter. BranchID
// matches either side of the transfer so both branch admins see it.
func (r *RequestRepository) ListTransfers(ctx context.Context, filter models.RequestFilter) ([]models.TransferRequest, error) {
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.BranchID != "" {
		conditions = append(conditions, fmt.Sprintf("(from_branch_id = $%d OR to_branch_id = $%d)", len(args)+1, len(args)+1))
		args = append(args, filter.BranchID)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}
	limit, skip := pageOf(filter)

	query := fmt.Sprintf(`SELECT id, student_id, from_branch_id, to_branch_id, reason, status, decided_by, decided_at, created_at
        FROM transfer_requests%s ORDER BY created_at DESC LIMIT %d OFFSET %d`, clause, limit, skip)
	var reqs []models.TransferRequest
	if err := r.db.SelectContext(ctx, &reqs, query, args...); err != nil {
		return nil, fmt.Errorf("list transfer requests: %w", err)
	}
	return reqs, nil
}

// DecideTransfer settles a pending transfer request.
func (r *RequestRepository) DecideTransfer(ctx context.Context, id string, status models.RequestStatus, decidedBy string, decidedAt time.Time) (bool, error) {
	const query = `UPDATE transfer_requests SET status = $2, decided_by = $3, decided_at = $4
        WHERE id = $1 AND status = 'pending'`
	res, err := r.db.ExecContext(ctx, query, id, status, decidedBy, decidedAt)
	if err != nil {
		return false, fmt.Errorf("decide transfer request: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// CreateResourceRequest persists a resource request.
func (r *RequestRepository) CreateResourceRequest(ctx context.Context, req *models.ResourceRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO resource_requests (id, requested_by, branch_id, resource_type, description, status, decided_by, decided_at, created_at)
        VALUES (:id, :requested_by, :branch_id, :resource_type, :description, :status, :decided_by, :decided_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("create resource request: %w", err)
	}
	return nil
}

// FindResourceRequest returns a resource request by id.
func (r *RequestRepository) FindResourceRequest(ctx context.Context, id string) (*models.ResourceRequest, error) {
	const query = `SELECT id, requested_by, branch_id, resource_type, description, status, decided_by, decided_at, created_at
        FROM resource_requests WHERE id = $1`
	var req models.ResourceRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// ListResourceRequests returns resource requests matching the filter.
func (r *RequestRepository) ListResourceRequests(ctx context.Context, filter models.RequestFilter) ([]models.ResourceRequest, error) {
	clause, args := requestConditions(filter, "requested_by")
	limit, skip := pageOf(filter)
	query := fmt.Sprintf(`SELECT id, requested_by, branch_id, resource_type, description, status, decided_by, decided_at, created_at
        FROM resource_requests%s ORDER BY created_at DESC LIMIT %d OFFSET %d`, clause, limit, skip)
	var reqs []models.ResourceRequest
	if err := r.db.SelectContext(ctx, &reqs, query, args...); err != nil {
		return nil, fmt.Errorf("list resource requests: %w", err)
	}
	return reqs, nil
}

// DecideResourceRequest settles a pending resource request.
func (r *RequestRepository) DecideResourceRequest(ctx context.Context, id string, status models.RequestStatus, decidedBy string, decidedAt time.Time) (bool, error) {
	const query = `UPDATE resource_requests SET status = $2, decided_by = $3, decided_at = $4
        WHERE id = $1 AND status = 'pending'`
	res, err := r.db.ExecContext(ctx, query, id, status, decidedBy, decidedAt)
	if err != nil {
		return false, fmt.Errorf("decide resource request: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
