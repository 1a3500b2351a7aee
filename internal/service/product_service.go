package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edumanage/academy-api/internal/models"
	"github.com/edumanage/academy-api/internal/repository"
	"github.com/edumanage/academy-api/internal/scope"
	appErrors "github.com/edumanage/academy-api/pkg/errors"
)

type productRepository interface {
	FindByID(ctx context.Context, id string) (*models.Product, error)
	List(ctx context.Context, filter models.ProductFilter) ([]models.Product, int, error)
	Create(ctx context.Context, product *models.Product) error
	Update(ctx context.Context, product *models.Product) error
	GetStock(ctx context.Context, productID, branchID string) (int, error)
	ListStock(ctx context.Context, productID string) ([]models.BranchStock, error)
	Restock(ctx context.Context, productID, branchID string, quantity int) error
	CreatePurchase(ctx context.Context, purchase *models.Purchase, payment *models.Payment) error
	ListPurchases(ctx context.Context, filter models.PurchaseFilter) ([]models.Purchase, int, error)
	LowStock(ctx context.Context, branchID string, threshold int) ([]models.BranchStock, error)
}

// CreateProductRequest describes product creation payload.
type CreateProductRequest struct {
	Name        string  `json:"name" validate:"required"`
	Description string  `json:"description"`
	Category    string  `json:"category" validate:"required"`
	Price       float64 `json:"price" validate:"required,gt=0"`
	ImageURL    *string `json:"image_url"`
}

// UpdateProductRequest describes product update payload.
type UpdateProductRequest struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Category    *string  `json:"category"`
	Price       *float64 `json:"price" validate:"omitempty,gt=0"`
	ImageURL    *string  `json:"image_url"`
	Active      *bool    `json:"is_active"`
}

// RestockRequest adds stock at a branch.
type RestockRequest struct {
	BranchID string `json:"branch_id" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,gt=0"`
}

// PurchaseRequest buys a product for a student at a branch.
type PurchaseRequest struct {
	StudentID     string               `json:"student_id" validate:"required"`
	ProductID     string               `json:"product_id" validate:"required"`
	BranchID      string               `json:"branch_id" validate:"required"`
	Quantity      int                  `json:"quantity" validate:"required,gt=0"`
	PaymentMethod models.PaymentMethod `json:"payment_method" validate:"required"`
}

// ProductService orchestrates the accessory store: catalogue, per-branch
// stock and sales.
type ProductService struct {
	repo              productRepository
	resolver          *scope.Resolver
	audit             *ActivityService
	notifier          *NotificationService
	validator         *validator.Validate
	logger            *zap.Logger
	lowStockThreshold int
}

// NewProductService constructs ProductService.
func NewProductService(repo productRepository, resolver *scope.Resolver, audit *ActivityService, notifier *NotificationService, validate *validator.Validate, logger *zap.Logger, lowStockThreshold int) *ProductService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if lowStockThreshold <= 0 {
		lowStockThreshold = 5
	}
	return &ProductService{
		repo:              repo,
		resolver:          resolver,
		audit:             audit,
		notifier:          notifier,
		validator:         validate,
		logger:            logger,
		lowStockThreshold: lowStockThreshold,
	}
}

// List returns the product catalogue with per-branch stock.
func (s *ProductService) List(ctx context.Context, actor scope.Actor, filter models.ProductFilter) ([]models.ProductWithStock, *models.Pagination, error) {
	scoped, err := s.resolver.Resolve(actor, scope.ResourceProducts, scope.ActionRead, scope.Filters{})
	if err != nil {
		return nil, nil, err
	}

	products, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list products")
	}

	result := make([]models.ProductWithStock, 0, len(products))
	for _, p := range products {
		item := models.ProductWithStock{Product: p, Stock: map[string]int{}}
		stock, err := s.repo.ListStock(ctx, p.ID)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stock")
		}
		for _, row := range stock {
			// branch-bound actors only see their own branch's counter
			if scoped.BranchID != "" && row.BranchID != scoped.BranchID {
				continue
			}
			item.Stock[row.BranchID] = row.Stock
		}
		result = append(result, item)
	}
	return result, &models.Pagination{Skip: filter.Skip, Limit: filter.Limit, Total: total}, nil
}

// Get returns one product.
func (s *ProductService) Get(ctx context.Context, actor scope.Actor, id string) (*models.Product, error) {
	if _, err := s.resolver.Resolve(actor, scope.ResourceProducts, scope.ActionRead, scope.Filters{}); err != nil {
		return nil, err
	}
	return s.findProduct(ctx, id)
}

// Create registers a new product.
func (s *ProductService) Create(ctx context.Context, actor scope.Actor, req CreateProductRequest) (*models.Product, error) {
	if _, err := s.resolver.Resolve(actor, scope.ResourceProducts, scope.ActionCreate, scope.Filters{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid product payload")
	}

	product := &models.Product{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Price:       req.Price,
		ImageURL:    req.ImageURL,
		Active:      true,
	}
	if err := s.repo.Create(ctx, product); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create product")
	}

	if s.audit != nil {
		s.audit.Record(&actor.ID, models.ActivityCreate, "products", &product.ID, nil)
	}
	return product, nil
}

// Update modifies a product.
func (s *ProductService) Update(ctx context.Context, actor scope.Actor, id string, req UpdateProductRequest) (*models.Product, error) {
	if _, err := s.resolver.Resolve(actor, scope.ResourceProducts, scope.ActionUpdate, scope.Filters{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid product payload")
	}

	product, err := s.findProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		product.Name = *req.Name
	}
	if req.Description != nil {
		product.Description = *req.Description
	}
	if req.Category != nil {
		product.Category = *req.Category
	}
	if req.Price != nil {
		product.Price = *req.Price
	}
	if req.ImageURL != nil {
		product.ImageURL = req.ImageURL
	}
	if req.Active != nil {
		product.Active = *req.Active
	}

	if err := s.repo.Update(ctx, product); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "product not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update product")
	}

	if s.audit != nil {
		s.audit.Record(&actor.ID, models.ActivityUpdate, "products", &product.ID, nil)
	}
	return product, nil
}

// Restock adds stock at a branch.
func (s *ProductService) Restock(ctx context.Context, actor scope.Actor, productID string, req RestockRequest) error {
	scoped, err := s.resolver.Resolve(actor, scope.ResourceProducts, scope.ActionUpdate, scope.Filters{BranchID: req.BranchID})
	if err != nil {
		return err
	}
	if scoped.BranchID != "" {
		req.BranchID = scoped.BranchID
	}
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid restock payload")
	}

	if _, err := s.findProduct(ctx, productID); err != nil {
		return err
	}
	if err := s.repo.Restock(ctx, productID, req.BranchID, req.Quantity); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to restock")
	}

	if s.audit != nil {
		s.audit.Record(&actor.ID, models.ActivityUpdate, "products", &productID, map[string]string{
			"branch_id": req.BranchID,
			"restocked": fmt.Sprintf("%d", req.Quantity),
		})
	}
	return nil
}

// Purchase sells a product. Stock is decremented atomically and never
// drops below zero; an online purchase opens an accessory ledger entry,
// cash settles immediately with none.
func (s *ProductService) Purchase(ctx context.Context, actor scope.Actor, req PurchaseRequest) (*models.Purchase, error) {
	scoped, err := s.resolver.Resolve(actor, scope.ResourcePurchases, scope.ActionCreate, scope.Filters{
		BranchID:  req.BranchID,
		StudentID: req.StudentID,
	})
	if err != nil {
		return nil, err
	}
	if scoped.BranchID != "" {
		req.BranchID = scoped.BranchID
	}
	if scoped.StudentID != "" {
		req.StudentID = scoped.StudentID
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid purchase payload")
	}
	if !req.PaymentMethod.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown payment method")
	}

	product, err := s.findProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.Active {
		return nil, appErrors.Clone(appErrors.ErrConflict, "product is discontinued")
	}

	now := time.Now().UTC()
	purchase := &models.Purchase{
		StudentID:     req.StudentID,
		ProductID:     req.ProductID,
		BranchID:      req.BranchID,
		Quantity:      req.Quantity,
		UnitPrice:     product.Price,
		TotalAmount:   product.Price * float64(req.Quantity),
		PaymentMethod: req.PaymentMethod,
		PurchaseDate:  now,
	}

	var payment *models.Payment
	if req.PaymentMethod == models.PaymentMethodOnline {
		payment = &models.Payment{
			StudentID:     req.StudentID,
			Amount:        purchase.TotalAmount,
			PaymentType:   models.PaymentTypeAccessory,
			PaymentMethod: req.PaymentMethod,
			PaymentStatus: models.PaymentPending,
			DueDate:       now,
			BranchID:      req.BranchID,
		}
	}

	if err := s.repo.CreatePurchase(ctx, purchase, payment); err != nil {
		if errors.Is(err, repository.ErrInsufficientStock) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "insufficient stock at this branch")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record purchase")
	}

	s.alertIfLowStock(ctx, req.ProductID, req.BranchID, product.Name)

	if s.audit != nil {
		s.audit.Record(&actor.ID, models.ActivityCreate, "purchases", &purchase.ID, map[string]string{"product_id": req.ProductID})
	}
	return purchase, nil
}

// ListPurchases returns sales inside the actor's scope.
func (s *ProductService) ListPurchases(ctx context.Context, actor scope.Actor, filter models.PurchaseFilter) ([]models.Purchase, *models.Pagination, error) {
	scoped, err := s.resolver.Resolve(actor, scope.ResourcePurchases, scope.ActionRead, scope.Filters{
		BranchID:  filter.BranchID,
		StudentID: filter.StudentID,
	})
	if err != nil {
		return nil, nil, err
	}
	filter.BranchID = scoped.BranchID
	filter.StudentID = scoped.StudentID

	purchases, total, err := s.repo.ListPurchases(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list purchases")
	}
	return purchases, &models.Pagination{Skip: filter.Skip, Limit: filter.Limit, Total: total}, nil
}

// LowStock lists stock counters at or below the threshold.
func (s *ProductService) LowStock(ctx context.Context, actor scope.Actor) ([]models.BranchStock, error) {
	scoped, err := s.resolver.Resolve(actor, scope.ResourceProducts, scope.ActionRead, scope.Filters{})
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "insufficient permissions")
	}
	rows, err := s.repo.LowStock(ctx, scoped.BranchID, s.lowStockThreshold)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list low stock")
	}
	return rows, nil
}

func (s *ProductService) alertIfLowStock(ctx context.Context, productID, branchID, productName string) {
	stock, err := s.repo.GetStock(ctx, productID, branchID)
	if err != nil || stock > s.lowStockThreshold {
		return
	}
	s.logger.Warn("product stock low",
		zap.String("product_id", productID),
		zap.String("branch_id", branchID),
		zap.Int("stock", stock),
	)
	if s.notifier != nil {
		s.notifier.NotifyBranchAdmins(ctx, branchID,
			fmt.Sprintf("Low stock alert: %s has %d unit(s) left at your branch.", productName, stock))
	}
}

func (s *ProductService) findProduct(ctx context.Context, id string) (*models.Product, error) {
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "product not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load product")
	}
	return product, nil
}
