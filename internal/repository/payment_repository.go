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

// PaymentRepository handles persistence of the payment ledger.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, student_id, enrollment_id, amount, payment_type, payment_method, payment_status, transaction_id, payment_date, due_date, proof_path, notes, branch_id, created_at`

// FindByID returns a payment by id.
func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE id = $1`, paymentColumns)
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, id); err != nil {
		return nil, err
	}
	return &payment, nil
}

func paymentConditions(filter models.PaymentFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.EnrollmentID != "" {
		conditions = append(conditions, fmt.Sprintf("enrollment_id = $%d", len(args)+1))
		args = append(args, filter.EnrollmentID)
	}
	if filter.BranchID != "" {
		conditions = append(conditions, fmt.Sprintf("branch_id = $%d", len(args)+1))
		args = append(args, filter.BranchID)
	}
	if filter.Status != nil {
		// "overdue" is a read-time derivation over stored pendings.
		if *filter.Status == models.PaymentOverdue {
			conditions = append(conditions, fmt.Sprintf("payment_status = 'pending' AND due_date < $%d", len(args)+1))
			args = append(args, time.Now().UTC())
		} else {
			conditions = append(conditions, fmt.Sprintf("payment_status = $%d", len(args)+1))
			args = append(args, *filter.Status)
		}
	}
	if filter.Type != nil {
		conditions = append(conditions, fmt.Sprintf("payment_type = $%d", len(args)+1))
		args = append(args, *filter.Type)
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}
	return clause, args
}

// List returns ledger entries matching the filter.
func (r *PaymentRepository) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error) {
	clause, args := paymentConditions(filter)

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	skip := filter.Skip
	if skip < 0 {
		skip = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM payments%s ORDER BY due_date ASC, created_at DESC LIMIT %d OFFSET %d`,
		paymentColumns, clause, limit, skip)

	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM payments"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}
	return payments, total, nil
}

// ListByEnrollment returns every ledger entry tied to an enrollment.
func (r *PaymentRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE enrollment_id = $1 ORDER BY due_date ASC`, paymentColumns)
	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list enrollment payments: %w", err)
	}
	return payments, nil
}

// Create opens a new ledger entry.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO payments (id, student_id, enrollment_id, amount, payment_type, payment_method, payment_status, transaction_id, payment_date, due_date, proof_path, notes, branch_id, created_at)
        VALUES (:id, :student_id, :enrollment_id, :amount, :payment_type, :payment_method, :payment_status, :transaction_id, :payment_date, :due_date, :proof_path, :notes, :branch_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, payment); err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

// MarkPaid settles a pending payment. The status guard in the WHERE clause
// makes concurrent double-settlement a no-op for the loser.
func (r *PaymentRepository) MarkPaid(ctx context.Context, id string, method models.PaymentMethod, transactionID *string, paidAt time.Time) (bool, error) {
	const query = `UPDATE payments SET payment_status = 'paid', payment_method = $2, transaction_id = $3, payment_date = $4
        WHERE id = $1 AND payment_status <> 'paid'`
	res, err := r.db.ExecContext(ctx, query, id, method, transactionID, paidAt)
	if err != nil {
		return false, fmt.Errorf("mark payment paid: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark payment paid: %w", err)
	}
	return n > 0, nil
}

// Cancel voids a pending payment.
func (r *PaymentRepository) Cancel(ctx context.Context, id string) error {
	const query = `UPDATE payments SET payment_status = 'cancelled' WHERE id = $1 AND payment_status = 'pending'`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("cancel payment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetProofPath attaches an uploaded payment-proof file to the entry.
func (r *PaymentRepository) SetProofPath(ctx context.Context, id, path string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE payments SET proof_path = $2 WHERE id = $1`, id, path)
	if err != nil {
		return fmt.Errorf("set payment proof: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListDue returns stored-pending payments with join data for dues reporting
// and reminders, optionally limited to one branch.
func (r *PaymentRepository) ListDue(ctx context.Context, branchID string, dueBefore time.Time) ([]models.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE payment_status = 'pending' AND due_date <= $1`, paymentColumns)
	args := []interface{}{dueBefore}
	if branchID != "" {
		query += " AND branch_id = $2"
		args = append(args, branchID)
	}
	query += " ORDER BY student_id, due_date ASC"

	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, args...); err != nil {
		return nil, fmt.Errorf("list due payments: %w", err)
	}
	return payments, nil
}

// SumCollected totals settled payments inside a window for financial
// reporting, optionally limited to one branch.
func (r *PaymentRepository) SumCollected(ctx context.Context, branchID string, from, to time.Time) (float64, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM payments WHERE payment_status = 'paid' AND payment_date >= $1 AND payment_date <= $2`
	args := []interface{}{from, to}
	if branchID != "" {
		query += " AND branch_id = $3"
		args = append(args, branchID)
	}
	var total float64
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		return 0, fmt.Errorf("sum collected payments: %w", err)
	}
	return total, nil
}

// SumOutstanding totals stored-pending amounts, optionally per branch.
func (r *PaymentRepository) SumOutstanding(ctx context.Context, branchID string) (float64, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM payments WHERE payment_status = 'pending'`
	var args []interface{}
	if branchID != "" {
		query += " AND branch_id = $1"
		args = append(args, branchID)
	}
	var total float64
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		return 0, fmt.Errorf("sum outstanding payments: %w", err)
	}
	return total, nil
}
