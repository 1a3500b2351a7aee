package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/edumanage/academy-api/internal/models"
)

// ReportRepository exposes read-optimised aggregate queries for the
// dashboard and financial reports.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository instantiates the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// DashboardCounts collects the headline counters in one round trip per
// aggregate. An empty branchID means academy-wide.
func (r *ReportRepository) DashboardCounts(ctx context.Context, branchID string) (*models.DashboardSummary, error) {
	summary := &models.DashboardSummary{}

	branchCond := func(col string) (string, []interface{}) {
		if branchID == "" {
			return "", nil
		}
		return fmt.Sprintf(" AND %s = $1", col), []interface{}{branchID}
	}

	cond, args := branchCond("branch_id")
	if err := r.db.GetContext(ctx, &summary.Students,
		"SELECT COUNT(*) FROM users WHERE role = 'student' AND is_active = TRUE"+cond, args...); err != nil {
		return nil, fmt.Errorf("count students: %w", err)
	}
	if err := r.db.GetContext(ctx, &summary.Coaches,
		"SELECT COUNT(*) FROM users WHERE role = 'coach' AND is_active = TRUE"+cond, args...); err != nil {
		return nil, fmt.Errorf("count coaches: %w", err)
	}

	if err := r.db.GetContext(ctx, &summary.Branches, "SELECT COUNT(*) FROM branches"); err != nil {
		return nil, fmt.Errorf("count branches: %w", err)
	}
	if err := r.db.GetContext(ctx, &summary.ActiveCourses,
		"SELECT COUNT(*) FROM courses WHERE is_active = TRUE"); err != nil {
		return nil, fmt.Errorf("count courses: %w", err)
	}

	cond, args = branchCond("branch_id")
	if err := r.db.GetContext(ctx, &summary.ActiveEnrollments,
		"SELECT COUNT(*) FROM enrollments WHERE is_active = TRUE"+cond, args...); err != nil {
		return nil, fmt.Errorf("count enrollments: %w", err)
	}

	type pendingAgg struct {
		Count int     `db:"count"`
		Total float64 `db:"total"`
	}
	var pending pendingAgg
	if err := r.db.GetContext(ctx, &pending,
		"SELECT COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total FROM payments WHERE payment_status = 'pending'"+cond, args...); err != nil {
		return nil, fmt.Errorf("sum pending payments: %w", err)
	}
	summary.PendingPayments = pending.Count
	summary.OutstandingTotal = pending.Total

	if err := r.db.GetContext(ctx, &summary.OpenComplaints,
		"SELECT COUNT(*) FROM complaints WHERE status IN ('open', 'in_progress')"+cond, args...); err != nil {
		return nil, fmt.Errorf("count complaints: %w", err)
	}

	return summary, nil
}

// FinancialBreakdown aggregates the ledger per (branch, payment type)
// over [from, to]. Collected sums paid entries by payment date; pending
// sums unpaid entries by due date.
func (r *ReportRepository) FinancialBreakdown(ctx context.Context, branchID string, from, to time.Time) ([]models.FinancialReportRow, error) {
	var builder strings.Builder
	builder.WriteString(`SELECT branch_id, payment_type,
        COALESCE(SUM(CASE WHEN payment_status = 'paid' AND payment_date BETWEEN $1 AND $2 THEN amount ELSE 0 END), 0) AS collected,
        COALESCE(SUM(CASE WHEN payment_status = 'pending' AND due_date BETWEEN $1 AND $2 THEN amount ELSE 0 END), 0) AS pending
        FROM payments
        WHERE (payment_date BETWEEN $1 AND $2 OR due_date BETWEEN $1 AND $2)`)
	args := []interface{}{from, to}
	if branchID != "" {
		args = append(args, branchID)
		builder.WriteString(fmt.Sprintf(" AND branch_id = $%d", len(args)))
	}
	builder.WriteString(" GROUP BY branch_id, payment_type ORDER BY branch_id, payment_type")

	var rows []models.FinancialReportRow
	if err := r.db.SelectContext(ctx, &rows, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("query financial breakdown: %w", err)
	}
	return rows, nil
}

// SalesByBranch aggregates accessory purchases per branch over [from, to].
func (r *ReportRepository) SalesByBranch(ctx context.Context, branchID string, from, to time.Time) ([]models.BranchSales, error) {
	var builder strings.Builder
	builder.WriteString(`SELECT branch_id, COALESCE(SUM(total_amount), 0) AS total, COUNT(*) AS purchases
        FROM purchases WHERE purchase_date BETWEEN $1 AND $2`)
	args := []interface{}{from, to}
	if branchID != "" {
		args = append(args, branchID)
		builder.WriteString(fmt.Sprintf(" AND branch_id = $%d", len(args)))
	}
	builder.WriteString(" GROUP BY branch_id ORDER BY branch_id")

	var rows []models.BranchSales
	if err := r.db.SelectContext(ctx, &rows, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("query branch sales: %w", err)
	}
	return rows, nil
}
