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

// ComplaintRepository handles persistence of complaints and coach ratings.
type ComplaintRepository struct {
	db *sqlx.DB
}

// NewComplaintRepository constructs the repository.
func NewComplaintRepository(db *sqlx.DB) *ComplaintRepository {
	return &ComplaintRepository{db: db}
}

const complaintColumns = `id, student_id, branch_id, subject, description, category, coach_id, status, priority, assigned_to, resolution, created_at, updated_at`

// FindByID returns a complaint by id.
func (r *ComplaintRepository) FindByID(ctx context.Context, id string) (*models.Complaint, error) {
	query := fmt.Sprintf(`SELECT %s FROM complaints WHERE id = $1`, complaintColumns)
	var complaint models.Complaint
	if err := r.db.GetContext(ctx, &complaint, query, id); err != nil {
		return nil, err
	}
	return &complaint, nil
}

// List returns complaints matching the filter.
func (r *ComplaintRepository) List(ctx context.Context, filter models.ComplaintFilter) ([]models.Complaint, int, error) {
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
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

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	skip := filter.Skip
	if skip < 0 {
		skip = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM complaints%s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		complaintColumns, clause, limit, skip)

	var complaints []models.Complaint
	if err := r.db.SelectContext(ctx, &complaints, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list complaints: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM complaints"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count complaints: %w", err)
	}
	return complaints, total, nil
}

// Create persists a new complaint.
func (r *ComplaintRepository) Create(ctx context.Context, complaint *models.Complaint) error {
	if complaint.ID == "" {
		complaint.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	complaint.CreatedAt = now
	complaint.UpdatedAt = now
	const query = `INSERT INTO complaints (id, student_id, branch_id, subject, description, category, coach_id, status, priority, assigned_to, resolution, created_at, updated_at)
        VALUES (:id, :student_id, :branch_id, :subject, :description, :category, :coach_id, :status, :priority, :assigned_to, :resolution, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, complaint); err != nil {
		return fmt.Errorf("create complaint: %w", err)
	}
	return nil
}

// UpdateStatus advances the complaint lifecycle.
func (r *ComplaintRepository) UpdateStatus(ctx context.Context, id string, status models.ComplaintStatus, assignedTo, resolution *string) error {
	const query = `UPDATE complaints SET status = $2, assigned_to = COALESCE($3, assigned_to),
        resolution = COALESCE($4, resolution), updated_at = $5 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, assignedTo, resolution, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update complaint status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CreateRating persists a coach rating.
func (r *ComplaintRepository) CreateRating(ctx context.Context, rating *models.CoachRating) error {
	if rating.ID == "" {
		rating.ID = uuid.NewString()
	}
	if rating.CreatedAt.IsZero() {
		rating.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO coach_ratings (id, student_id, coach_id, branch_id, rating, review, created_at)
        VALUES (:id, :student_id, :coach_id, :branch_id, :rating, :review, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, rating); err != nil {
		return fmt.Errorf("create rating: %w", err)
	}
	return nil
}

// ListRatings returns a coach's ratings, newest first.
func (r *ComplaintRepository) ListRatings(ctx context.Context, coachID string) ([]models.CoachRating, error) {
	const query = `SELECT id, student_id, coach_id, branch_id, rating, review, created_at
        FROM coach_ratings WHERE coach_id = $1 ORDER BY created_at DESC`
	var ratings []models.CoachRating
	if err := r.db.SelectContext(ctx, &ratings, query, coachID); err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	return ratings, nil
}

// RatingSummary aggregates a coach's received ratings.
func (r *ComplaintRepository) RatingSummary(ctx context.Context, coachID string) (*models.CoachRatingSummary, error) {
	const query = `SELECT $1::text AS coach_id, COALESCE(AVG(rating), 0) AS average, COUNT(*) AS count
        FROM coach_ratings WHERE coach_id = $1`
	var summary models.CoachRatingSummary
	if err := r.db.GetContext(ctx, &summary, query, coachID); err != nil {
		return nil, fmt.Errorf("rating summary: %w", err)
	}
	return &summary, nil
}
