package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edumanage/academy-api/internal/models"
	"github.com/edumanage/academy-api/internal/repository"
	"github.com/edumanage/academy-api/internal/scope"
	appErrors "github.com/edumanage/academy-api/pkg/errors"
)

type mockProductRepo struct {
	products    map[string]*models.Product
	stock       map[string]int
	purchase    *models.Purchase
	payment     *models.Payment
	purchaseErr error
	restocked   int
}

func (m *mockProductRepo) FindByID(ctx context.Context, id string) (*models.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return p, nil
}

func (m *mockProductRepo) List(ctx context.Context, filter models.ProductFilter) ([]models.Product, int, error) {
	var out []models.Product
	for _, p := range m.products {
		out = append(out, *p)
	}
	return out, len(out), nil
}

func (m *mockProductRepo) Create(ctx context.Context, product *models.Product) error {
	product.ID = "p-new"
	return nil
}

func (m *mockProductRepo) Update(ctx context.Context, product *models.Product) error { return nil }

func (m *mockProductRepo) GetStock(ctx context.Context, productID, branchID string) (int, error) {
	return m.stock[productID+"/"+branchID], nil
}

func (m *mockProductRepo) ListStock(ctx context.Context, productID string) ([]models.BranchStock, error) {
	return nil, nil
}

func (m *mockProductRepo) Restock(ctx context.Context, productID, branchID string, quantity int) error {
	m.restocked += quantity
	return nil
}

func (m *mockProductRepo) CreatePurchase(ctx context.Context, purchase *models.Purchase, payment *models.Payment) error {
	if m.purchaseErr != nil {
		return m.purchaseErr
	}
	purchase.ID = "pur1"
	m.purchase = purchase
	m.payment = payment
	return nil
}

func (m *mockProductRepo) ListPurchases(ctx context.Context, filter models.PurchaseFilter) ([]models.Purchase, int, error) {
	return nil, 0, nil
}

func (m *mockProductRepo) LowStock(ctx context.Context, branchID string, threshold int) ([]models.BranchStock, error) {
	return []models.BranchStock{{BranchID: branchID, Stock: threshold}}, nil
}

func newTestProductService(repo *mockProductRepo) *ProductService {
	return NewProductService(repo, scope.NewResolver(nil), nil, nil, nil, nil, 5)
}

func TestPurchaseCashSettlesWithoutLedger(t *testing.T) {
	repo := &mockProductRepo{
		products: map[string]*models.Product{"p1": {ID: "p1", Name: "Gloves", Price: 250, Active: true}},
		stock:    map[string]int{"p1/b1": 20},
	}
	svc := newTestProductService(repo)

	purchase, err := svc.Purchase(context.Background(), coachAdminActor("b1"), PurchaseRequest{
		StudentID:     "s1",
		ProductID:     "p1",
		BranchID:      "b1",
		Quantity:      2,
		PaymentMethod: models.PaymentMethodCash,
	})
	require.NoError(t, err)
	assert.Equal(t, 500.0, purchase.TotalAmount)
	assert.Equal(t, 250.0, purchase.UnitPrice)
	assert.Nil(t, repo.payment)
}

func TestPurchaseOnlineOpensAccessoryLedger(t *testing.T) {
	repo := &mockProductRepo{
		products: map[string]*models.Product{"p1": {ID: "p1", Name: "Gloves", Price: 250, Active: true}},
		stock:    map[string]int{"p1/b1": 20},
	}
	svc := newTestProductService(repo)

	_, err := svc.Purchase(context.Background(), coachAdminActor("b1"), PurchaseRequest{
		StudentID:     "s1",
		ProductID:     "p1",
		BranchID:      "b1",
		Quantity:      1,
		PaymentMethod: models.PaymentMethodOnline,
	})
	require.NoError(t, err)
	require.NotNil(t, repo.payment)
	assert.Equal(t, models.PaymentTypeAccessory, repo.payment.PaymentType)
	assert.Equal(t, models.PaymentPending, repo.payment.PaymentStatus)
	assert.Equal(t, 250.0, repo.payment.Amount)
}

func TestPurchaseInsufficientStock(t *testing.T) {
	repo := &mockProductRepo{
		products:    map[string]*models.Product{"p1": {ID: "p1", Name: "Gloves", Price: 250, Active: true}},
		purchaseErr: repository.ErrInsufficientStock,
	}
	svc := newTestProductService(repo)

	_, err := svc.Purchase(context.Background(), coachAdminActor("b1"), PurchaseRequest{
		StudentID:     "s1",
		ProductID:     "p1",
		BranchID:      "b1",
		Quantity:      50,
		PaymentMethod: models.PaymentMethodCash,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestPurchaseDiscontinuedProduct(t *testing.T) {
	repo := &mockProductRepo{
		products: map[string]*models.Product{"p1": {ID: "p1", Name: "Gloves", Price: 250, Active: false}},
	}
	svc := newTestProductService(repo)

	_, err := svc.Purchase(context.Background(), coachAdminActor("b1"), PurchaseRequest{
		StudentID:     "s1",
		ProductID:     "p1",
		BranchID:      "b1",
		Quantity:      1,
		PaymentMethod: models.PaymentMethodCash,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestPurchaseStudentForcedToSelf(t *testing.T) {
	repo := &mockProductRepo{
		products: map[string]*models.Product{"p1": {ID: "p1", Name: "Gloves", Price: 100, Active: true}},
		stock:    map[string]int{"p1/b1": 10},
	}
	svc := newTestProductService(repo)

	purchase, err := svc.Purchase(context.Background(), studentActor("s1", "b1"), PurchaseRequest{
		StudentID:     "s2",
		ProductID:     "p1",
		BranchID:      "b1",
		Quantity:      1,
		PaymentMethod: models.PaymentMethodOnline,
	})
	require.NoError(t, err)
	assert.Equal(t, "s1", purchase.StudentID)
}

func TestRestockForcedToActorBranch(t *testing.T) {
	repo := &mockProductRepo{
		products: map[string]*models.Product{"p1": {ID: "p1", Name: "Gloves", Price: 100, Active: true}},
	}
	svc := newTestProductService(repo)

	err := svc.Restock(context.Background(), coachAdminActor("b1"), "p1", RestockRequest{BranchID: "b2", Quantity: 10})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	err = svc.Restock(context.Background(), coachAdminActor("b1"), "p1", RestockRequest{BranchID: "b1", Quantity: 10})
	require.NoError(t, err)
	assert.Equal(t, 10, repo.restocked)
}

func TestRestockRejectsNonPositiveQuantity(t *testing.T) {
	svc := newTestProductService(&mockProductRepo{
		products: map[string]*models.Product{"p1": {ID: "p1", Active: true}},
	})

	err := svc.Restock(context.Background(), coachAdminActor("b1"), "p1", RestockRequest{BranchID: "b1", Quantity: 0})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestLowStockDeniedForStudent(t *testing.T) {
	svc := newTestProductService(&mockProductRepo{})

	_, err := svc.LowStock(context.Background(), studentActor("s1", "b1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestCreateProductRequiresPrice(t *testing.T) {
	svc := newTestProductService(&mockProductRepo{})

	_, err := svc.Create(context.Background(), scope.Actor{ID: "a1", Role: models.RoleSuperAdmin}, CreateProductRequest{
		Name:     "Gloves",
		Category: "gear",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
