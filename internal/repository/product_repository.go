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

// ErrInsufficientStock is returned when a purchase would take a branch's
// stock below zero.
var ErrInsufficientStock = fmt.Errorf("insufficient stock")

// ProductRepository handles persistence of products, per-branch stock and
// purchases.
type ProductRepository struct {
	db *sqlx.DB
}

// NewProductRepository constructs the repository.
func NewProductRepository(db *sqlx.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

const productColumns = `id, name, description, category, price, image_url, is_active, created_at, updated_at`

// FindByID returns a product by id.
func (r *ProductRepository) FindByID(ctx context.Context, id string) (*models.Product, error) {
	query := fmt.Sprintf(`SELECT %s FROM products WHERE id = $1`, productColumns)
	var product models.Product
	if err := r.db.GetContext(ctx, &product, query, id); err != nil {
		return nil, err
	}
	return &product, nil
}

// List returns products matching the filter.
func (r *ProductRepository) List(ctx context.Context, filter models.ProductFilter) ([]models.Product, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)+1))
		args = append(args, filter.Category)
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

	query := fmt.Sprintf(`SELECT %s FROM products%s ORDER BY name ASC LIMIT %d OFFSET %d`,
		productColumns, clause, limit, skip)

	var products []models.Product
	if err := r.db.SelectContext(ctx, &products, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM products"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}
	return products, total, nil
}

// Create persists a new product.
func (r *ProductRepository) Create(ctx context.Context, product *models.Product) error {
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now
	const query = `INSERT INTO products (id, name, description, category, price, image_url, is_active, created_at, updated_at)
        VALUES (:id, :name, :description, :category, :price, :image_url, :is_active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, product); err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

// Update rewrites a product record.
func (r *ProductRepository) Update(ctx context.Context, product *models.Product) error {
	product.UpdatedAt = time.Now().UTC()
	const query = `UPDATE products SET name = :name, description = :description, category = :category,
        price = :price, image_url = :image_url, is_active = :is_active, updated_at = :updated_at
        WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, product)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetStock returns a branch's stock counter for a product (0 when no row).
func (r *ProductRepository) GetStock(ctx context.Context, productID, branchID string) (int, error) {
	const query = `SELECT stock FROM product_stock WHERE product_id = $1 AND branch_id = $2`
	var stock int
	if err := r.db.GetContext(ctx, &stock, query, productID, branchID); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("get stock: %w", err)
	}
	return stock, nil
}

// ListStock returns every per-branch counter for a product.
func (r *ProductRepository) ListStock(ctx context.Context, productID string) ([]models.BranchStock, error) {
	const query = `SELECT product_id, branch_id, stock FROM product_stock WHERE product_id = $1`
	var rows []models.BranchStock
	if err := r.db.SelectContext(ctx, &rows, query, productID); err != nil {
		return nil, fmt.Errorf("list stock: %w", err)
	}
	return rows, nil
}

// Restock adds quantity to a branch's counter, creating the row on first
// restock.
func (r *ProductRepository) Restock(ctx context.Context, productID, branchID string, quantity int) error {
	const query = `INSERT INTO product_stock (product_id, branch_id, stock) VALUES ($1, $2, $3)
        ON CONFLICT (product_id, branch_id) DO UPDATE SET stock = product_stock.stock + EXCLUDED.stock`
	if _, err := r.db.ExecContext(ctx, query, productID, branchID, quantity); err != nil {
		return fmt.Errorf("restock: %w", err)
	}
	return nil
}

// CreatePurchase decrements stock and records the sale in one transaction.
// The stock guard in the WHERE clause keeps concurrent purchases from
// driving the counter below zero; losing contenders get
// ErrInsufficientStock. An optional accessory payment is opened in the
// same transaction.
func (r *ProductRepository) CreatePurchase(ctx context.Context, purchase *models.Purchase, payment *models.Payment) error {
	if purchase.ID == "" {
		purchase.ID = uuid.NewString()
	}
	if purchase.CreatedAt.IsZero() {
		purchase.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin purchase tx: %w", err)
	}
	defer tx.Rollback()

	const decrement = `UPDATE product_stock SET stock = stock - $3
        WHERE product_id = $1 AND branch_id = $2 AND stock >= $3`
	res, err := tx.ExecContext(ctx, decrement, purchase.ProductID, purchase.BranchID, purchase.Quantity)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrInsufficientStock
	}

	const insert = `INSERT INTO purchases (id, student_id, product_id, branch_id, quantity, unit_price, total_amount, payment_method, purchase_date, created_at)
        VALUES (:id, :student_id, :product_id, :branch_id, :quantity, :unit_price, :total_amount, :payment_method, :purchase_date, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insert, purchase); err != nil {
		return fmt.Errorf("create purchase: %w", err)
	}

	if payment != nil {
		if payment.ID == "" {
			payment.ID = uuid.NewString()
		}
		if payment.CreatedAt.IsZero() {
			payment.CreatedAt = purchase.CreatedAt
		}
		const paymentInsert = `INSERT INTO payments (id, student_id, enrollment_id, amount, payment_type, payment_method, payment_status, transaction_id, payment_date, due_date, proof_path, notes, branch_id, created_at)
            VALUES (:id, :student_id, :enrollment_id, :amount, :payment_type, :payment_method, :payment_status, :transaction_id, :payment_date, :due_date, :proof_path, :notes, :branch_id, :created_at)`
		if _, err := tx.NamedExecContext(ctx, paymentInsert, payment); err != nil {
			return fmt.Errorf("create purchase payment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit purchase tx: %w", err)
	}
	return nil
}

// ListPurchases returns sales matching the filter.
func (r *ProductRepository) ListPurchases(ctx context.Context, filter models.PurchaseFilter) ([]models.Purchase, int, error) {
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.ProductID != "" {
		conditions = append(conditions, fmt.Sprintf("product_id = $%d", len(args)+1))
		args = append(args, filter.ProductID)
	}
	if filter.BranchID != "" {
		conditions = append(conditions, fmt.Sprintf("branch_id = $%d", len(args)+1))
		args = append(args, filter.BranchID)
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("purchase_date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("purchase_date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
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

	query := fmt.Sprintf(`SELECT id, student_id, product_id, branch_id, quantity, unit_price, total_amount, payment_method, purchase_date, created_at
        FROM purchases%s ORDER BY purchase_date DESC LIMIT %d OFFSET %d`, clause, limit, skip)

	var purchases []models.Purchase
	if err := r.db.SelectContext(ctx, &purchases, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list purchases: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM purchases"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count purchases: %w", err)
	}
	return purchases, total, nil
}

// LowStock returns counters at or below the threshold, optionally for one
// branch.
func (r *ProductRepository) LowStock(ctx context.Context, branchID string, threshold int) ([]models.BranchStock, error) {
	query := `SELECT product_id, branch_id, stock FROM product_stock WHERE stock <= $1`
	args := []interface{}{threshold}
	if branchID != "" {
		query += " AND branch_id = $2"
		args = append(args, branchID)
	}
	query += " ORDER BY stock ASC"

	var rows []models.BranchStock
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list low stock: %w", err)
	}
	return rows, nil
}

// SumSales totals purchase revenue inside a window, optionally per branch.
func (r *ProductRepository) SumSales(ctx context.Context, branchID string, from, to time.Time) (float64, error) {
	query := `SELECT COALESCE(SUM(total_amount), 0) FROM purchases WHERE purchase_date >= $1 AND purchase_date <= $2`
	args := []interface{}{from, to}
	if branchID != "" {
		query += " AND branch_id = $3"
		args = append(args, branchID)
	}
	var total float64
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		return 0, fmt.Errorf("sum sales: %w", err)
	}
	return total, nil
}
