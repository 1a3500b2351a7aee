package models

import "time"

// Product is a store item sold at branches (uniforms, gloves, belts, ...).
// Stock is tracked per branch in product_stock.
type Product struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Category    string    `db:"category" json:"category"`
	Price       float64   `db:"price" json:"price"`
	ImageURL    *string   `db:"image_url" json:"image_url,omitempty"`
	Active      bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// BranchStock is the per-branch stock counter for a product.
type BranchStock struct {
	ProductID string `db:"product_id" json:"product_id"`
	BranchID  string `db:"branch_id" json:"branch_id"`
	Stock     int    `db:"stock" json:"stock"`
}

// ProductWithStock joins a product with its stock rows for listings.
type ProductWithStock struct {
	Product
	Stock map[string]int `json:"branch_stock"`
}

// Purchase records a product sale; stock is decremented atomically at
// creation and an accessory payment is opened for online purchases.
type Purchase struct {
	ID            string        `db:"id" json:"id"`
	StudentID     string        `db:"student_id" json:"student_id"`
	ProductID     string        `db:"product_id" json:"product_id"`
	BranchID      string        `db:"branch_id" json:"branch_id"`
	Quantity      int           `db:"quantity" json:"quantity"`
	UnitPrice     float64       `db:"unit_price" json:"unit_price"`
	TotalAmount   float64       `db:"total_amount" json:"total_amount"`
	PaymentMethod PaymentMethod `db:"payment_method" json:"payment_method"`
	PurchaseDate  time.Time     `db:"purchase_date" json:"purchase_date"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
}

// ProductFilter scopes store listings.
type ProductFilter struct {
	Category string
	Active   *bool
	Skip     int
	Limit    int
}

// PurchaseFilter scopes sales listings.
type PurchaseFilter struct {
	StudentID string
	ProductID string
	BranchID  string
	DateFrom  *time.Time
	DateTo    *time.Time
	Skip      int
	Limit     int
}
