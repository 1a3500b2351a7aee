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

// BranchRepository handles persistence of branches.
type BranchRepository struct {
	db *sqlx.DB
}

// NewBranchRepository constructs the repository.
func NewBranchRepository(db *sqlx.DB) *BranchRepository {
	return &BranchRepository{db: db}
}

const branchColumns = `id, name, address, city, state, pincode, phone, email, manager_id, business_hours, holidays, is_active, created_at, updated_at`

// FindByID returns a branch by id.
func (r *BranchRepository) FindByID(ctx context.Context, id string) (*models.Branch, error) {
	query := fmt.Sprintf(`SELECT %s FROM branches WHERE id = $1`, branchColumns)
	var branch models.Branch
	if err := r.db.GetContext(ctx, &branch, query, id); err != nil {
		return nil, err
	}
	return &branch, nil
}

// List returns branches matching the filter.
func (r *BranchRepository) List(ctx context.Context, filter models.BranchFilter) ([]models.Branch, int, error) {
	var conditions []string
	var args []interface{}

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

	query := fmt.Sprintf(`SELECT %s FROM branches%s ORDER BY name ASC LIMIT %d OFFSET %d`,
		branchColumns, clause, limit, skip)

	var branches []models.Branch
	if err := r.db.SelectContext(ctx, &branches, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list branches: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM branches"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count branches: %w", err)
	}
	return branches, total, nil
}

// Create persists a new branch.
func (r *BranchRepository) Create(ctx context.Context, branch *models.Branch) error {
	if branch.ID == "" {
		branch.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	branch.CreatedAt = now
	branch.UpdatedAt = now
	const query = `INSERT INTO branches (id, name, address, city, state, pincode, phone, email, manager_id, business_hours, holidays, is_active, created_at, updated_at)
        VALUES (:id, :name, :address, :city, :state, :pincode, :phone, :email, :manager_id, :business_hours, :holidays, :is_active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, branch); err != nil {
		return fmt.Errorf("create branch: %w", err)
	}
	return nil
}

// Update rewrites a branch record.
func (r *BranchRepository) Update(ctx context.Context, branch *models.Branch) error {
	branch.UpdatedAt = time.Now().UTC()
	const query = `UPDATE branches SET name = :name, address = :address, city = :city, state = :state,
        pincode = :pincode, phone = :phone, email = :email, manager_id = :manager_id,
        business_hours = :business_hours, holidays = :holidays, is_active = :is_active,
        updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, branch)
	if err != nil {
		return fmt.Errorf("update branch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a branch. Callers must verify no users remain attached.
func (r *BranchRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM branches WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete branch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
