package service

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edumanage/academy-api/internal/models"
	"github.com/edumanage/academy-api/internal/scope"
	appErrors "github.com/edumanage/academy-api/pkg/errors"
)

type mockPaymentRepo struct {
	payments     map[string]*models.Payment
	byEnrollment []models.Payment
	due          []models.Payment
	markPaidOK   bool
	cancelErr    error
	cancelled    []string
}

func (m *mockPaymentRepo) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	p, ok := m.payments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *p
	return &copied, nil
}

func (m *mockPaymentRepo) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error) {
	var out []models.Payment
	for _, p := range m.payments {
		out = append(out, *p)
	}
	return out, len(out), nil
}

func (m *mockPaymentRepo) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.Payment, error) {
	return m.byEnrollment, nil
}

func (m *mockPaymentRepo) Create(ctx context.Context, payment *models.Payment) error {
	payment.ID = "p-new"
	if m.payments == nil {
		m.payments = make(map[string]*models.Payment)
	}
	m.payments[payment.ID] = payment
	return nil
}

func (m *mockPaymentRepo) MarkPaid(ctx context.Context, id string, method models.PaymentMethod, transactionID *string, paidAt time.Time) (bool, error) {
	return m.markPaidOK, nil
}

func (m *mockPaymentRepo) SetProofPath(ctx context.Context, id, path string) error {
	if p, ok := m.payments[id]; ok {
		p.ProofPath = &path
	}
	return nil
}

func (m *mockPaymentRepo) ListDue(ctx context.Context, branchID string, dueBefore time.Time) ([]models.Payment, error) {
	return m.due, nil
}

func (m *mockPaymentRepo) Cancel(ctx context.Context, id string) error {
	if m.cancelErr != nil {
		return m.cancelErr
	}
	m.cancelled = append(m.cancelled, id)
	return nil
}

type mockEnrollmentWriter struct {
	enrollment *models.Enrollment
	lastStatus models.EnrollmentPaymentStatus
	lastDue    *time.Time
	updates    int
}

func (m *mockEnrollmentWriter) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if m.enrollment == nil {
		return nil, sql.ErrNoRows
	}
	return m.enrollment, nil
}

func (m *mockEnrollmentWriter) UpdatePaymentStatus(ctx context.Context, id string, status models.EnrollmentPaymentStatus, nextDue *time.Time) error {
	m.lastStatus = status
	m.lastDue = nextDue
	m.updates++
	return nil
}

type mockProofStorage struct {
	saved map[string][]byte
}

func (m *mockProofStorage) Save(filename string, data []byte) (string, error) {
	if m.saved == nil {
		m.saved = make(map[string][]byte)
	}
	m.saved[filename] = data
	return filename, nil
}

func (m *mockProofStorage) Open(filename string) (*os.File, error) {
	return nil, os.ErrNotExist
}

type mockProofSigner struct{}

func (m *mockProofSigner) Generate(paymentID, relPath string) (string, time.Time, error) {
	return "signed-token", time.Now().Add(time.Hour), nil
}

func (m *mockProofSigner) Parse(token string) (string, string, time.Time, error) {
	return "p1", "path", time.Now().Add(time.Hour), nil
}

func newTestPaymentService(repo *mockPaymentRepo, enrollments *mockEnrollmentWriter) *PaymentService {
	students := &mockStudentReader{user: &models.User{ID: "s1", FullName: "Sam Student", Phone: "0812"}}
	return NewPaymentService(repo, enrollments, students, &mockProofStorage{}, &mockProofSigner{}, scope.NewResolver(nil), nil, nil, nil, nil)
}

func TestPaymentListDerivesOverdue(t *testing.T) {
	repo := &mockPaymentRepo{payments: map[string]*models.Payment{
		"p1": {ID: "p1", StudentID: "s1", BranchID: "b1", Amount: 100, PaymentStatus: models.PaymentPending, DueDate: time.Now().AddDate(0, 0, -3)},
	}}
	svc := newTestPaymentService(repo, &mockEnrollmentWriter{})

	payments, _, err := svc.List(context.Background(), scope.Actor{ID: "a1", Role: models.RoleSuperAdmin}, models.PaymentFilter{})
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, models.PaymentOverdue, payments[0].PaymentStatus)
}

func TestPaymentGetFutureDueStaysPending(t *testing.T) {
	repo := &mockPaymentRepo{payments: map[string]*models.Payment{
		"p1": {ID: "p1", StudentID: "s1", BranchID: "b1", Amount: 100, PaymentStatus: models.PaymentPending, DueDate: time.Now().AddDate(0, 0, 7)},
	}}
	svc := newTestPaymentService(repo, &mockEnrollmentWriter{})

	payment, err := svc.Get(context.Background(), scope.Actor{ID: "a1", Role: models.RoleSuperAdmin}, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, payment.PaymentStatus)
}

func TestProcessSettlesAndRederives(t *testing.T) {
	enrollmentID := "e1"
	repo := &mockPaymentRepo{
		markPaidOK: true,
		payments: map[string]*models.Payment{
			"p1": {ID: "p1", StudentID: "s1", BranchID: "b1", EnrollmentID: &enrollmentID, Amount: 100, PaymentStatus: models.PaymentPending, DueDate: time.Now()},
		},
		byEnrollment: []models.Payment{
			{ID: "p1", PaymentStatus: models.PaymentPaid},
			{ID: "p2", PaymentStatus: models.PaymentPending, DueDate: time.Now().AddDate(0, 1, 0)},
		},
	}
	enrollments := &mockEnrollmentWriter{}
	svc := newTestPaymentService(repo, enrollments)

	payment, err := svc.Process(context.Background(), scope.Actor{ID: "a1", Role: models.RoleSuperAdmin}, "p1", RecordPaymentRequest{Method: models.PaymentMethodUPI})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, payment.PaymentStatus)
	assert.Equal(t, 1, enrollments.updates)
	assert.Equal(t, models.EnrollmentPaymentPartial, enrollments.lastStatus)
	require.NotNil(t, enrollments.lastDue)
}

func TestProcessFullySettledEnrollment(t *testing.T) {
	enrollmentID := "e1"
	repo := &mockPaymentRepo{
		markPaidOK: true,
		payments: map[string]*models.Payment{
			"p1": {ID: "p1", StudentID: "s1", BranchID: "b1", EnrollmentID: &enrollmentID, Amount: 100, PaymentStatus: models.PaymentPending, DueDate: time.Now()},
		},
		byEnrollment: []models.Payment{
			{ID: "p1", PaymentStatus: models.PaymentPaid},
			{ID: "p2", PaymentStatus: models.PaymentPaid},
		},
	}
	enrollments := &mockEnrollmentWriter{}
	svc := newTestPaymentService(repo, enrollments)

	_, err := svc.Process(context.Background(), scope.Actor{ID: "a1", Role: models.RoleSuperAdmin}, "p1", RecordPaymentRequest{Method: models.PaymentMethodCash})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentPaymentPaid, enrollments.lastStatus)
	assert.Nil(t, enrollments.lastDue)
}

func TestProcessDoubleSettlementConflict(t *testing.T) {
	repo := &mockPaymentRepo{
		markPaidOK: false,
		payments: map[string]*models.Payment{
			"p1": {ID: "p1", StudentID: "s1", BranchID: "b1", Amount: 100, PaymentStatus: models.PaymentPaid, DueDate: time.Now()},
		},
	}
	svc := newTestPaymentService(repo, &mockEnrollmentWriter{})

	_, err := svc.Process(context.Background(), scope.Actor{ID: "a1", Role: models.RoleSuperAdmin}, "p1", RecordPaymentRequest{Method: models.PaymentMethodCash})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCancelSettledPaymentConflict(t *testing.T) {
	repo := &mockPaymentRepo{
		cancelErr: sql.ErrNoRows,
		payments: map[string]*models.Payment{
			"p1": {ID: "p1", StudentID: "s1", BranchID: "b1", Amount: 100, PaymentStatus: models.PaymentPaid, DueDate: time.Now()},
		},
	}
	svc := newTestPaymentService(repo, &mockEnrollmentWriter{})

	err := svc.Cancel(context.Background(), scope.Actor{ID: "a1", Role: models.RoleSuperAdmin}, "p1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestDuesGroupsByStudent(t *testing.T) {
	repo := &mockPaymentRepo{due: []models.Payment{
		{ID: "p1", StudentID: "s1", Amount: 100, PaymentStatus: models.PaymentPending, DueDate: time.Now().AddDate(0, 0, -2)},
		{ID: "p2", StudentID: "s1", Amount: 50, PaymentStatus: models.PaymentPending, DueDate: time.Now().AddDate(0, 0, -1)},
		{ID: "p3", StudentID: "s2", Amount: 75, PaymentStatus: models.PaymentPending, DueDate: time.Now().AddDate(0, 0, -1)},
	}}
	svc := newTestPaymentService(repo, &mockEnrollmentWriter{})

	dues, err := svc.Dues(context.Background(), scope.Actor{ID: "a1", Role: models.RoleSuperAdmin})
	require.NoError(t, err)
	require.Len(t, dues, 2)
	assert.Equal(t, "s1", dues[0].StudentID)
	assert.Equal(t, 150.0, dues[0].TotalDue)
	assert.Len(t, dues[0].Payments, 2)
	assert.Equal(t, 75.0, dues[1].TotalDue)
}

func TestAttachProofAndSignURL(t *testing.T) {
	repo := &mockPaymentRepo{payments: map[string]*models.Payment{
		"p1": {ID: "p1", StudentID: "s1", BranchID: "b1", Amount: 100, PaymentStatus: models.PaymentPending, DueDate: time.Now()},
	}}
	svc := newTestPaymentService(repo, &mockEnrollmentWriter{})
	actor := scope.Actor{ID: "a1", Role: models.RoleSuperAdmin}

	payment, err := svc.AttachProof(context.Background(), actor, "p1", "receipt.png", []byte("png-bytes"))
	require.NoError(t, err)
	require.NotNil(t, payment.ProofPath)

	url, err := svc.ProofURL(context.Background(), actor, "p1")
	require.NoError(t, err)
	assert.Equal(t, "signed-token", url.Token)
}

func TestProofURLWithoutProof(t *testing.T) {
	repo := &mockPaymentRepo{payments: map[string]*models.Payment{
		"p1": {ID: "p1", StudentID: "s1", BranchID: "b1", Amount: 100, PaymentStatus: models.PaymentPending, DueDate: time.Now()},
	}}
	svc := newTestPaymentService(repo, &mockEnrollmentWriter{})

	_, err := svc.ProofURL(context.Background(), scope.Actor{ID: "a1", Role: models.RoleSuperAdmin}, "p1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestStudentCannotReadOthersPayment(t *testing.T) {
	branchID := "b1"
	repo := &mockPaymentRepo{payments: map[string]*models.Payment{
		"p1": {ID: "p1", StudentID: "s2", BranchID: "b1", Amount: 100, PaymentStatus: models.PaymentPending, DueDate: time.Now()},
	}}
	svc := newTestPaymentService(repo, &mockEnrollmentWriter{})

	_, err := svc.Get(context.Background(), scope.Actor{ID: "s1", Role: models.RoleStudent, BranchID: &branchID}, "p1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
