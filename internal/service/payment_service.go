package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edumanage/academy-api/internal/models"
	"github.com/edumanage/academy-api/internal/scope"
	appErrors "github.com/edumanage/academy-api/pkg/errors"
)

type paymentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Payment, error)
	List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error)
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.Payment, error)
	Create(ctx context.Context, payment *models.Payment) error
	MarkPaid(ctx context.Context, id string, method models.PaymentMethod, transactionID *string, paidAt time.Time) (bool, error)
	SetProofPath(ctx context.Context, id, path string) error
	ListDue(ctx context.Context, branchID string, dueBefore time.Time) ([]models.Payment, error)
	Cancel(ctx context.Context, id string) error
}

type paymentEnrollmentWriter interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	UpdatePaymentStatus(ctx context.Context, id string, status models.EnrollmentPaymentStatus, nextDue *time.Time) error
}

type paymentStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type proofStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
}

type proofSigner interface {
	Generate(paymentID, relPath string) (string, time.Time, error)
	Parse(token string) (paymentID, relPath string, expiresAt time.Time, err error)
}

// RecordPaymentRequest settles a pending ledger entry.
type RecordPaymentRequest struct {
	Method        models.PaymentMethod `json:"payment_method" validate:"required"`
	TransactionID *string              `json:"transaction_id"`
}

// CreatePaymentRequest opens an ad-hoc ledger entry (session fees etc).
type CreatePaymentRequest struct {
	StudentID   string             `json:"student_id" validate:"required"`
	Amount      float64            `json:"amount" validate:"required,gt=0"`
	PaymentType models.PaymentType `json:"payment_type" validate:"required"`
	DueDate     time.Time          `json:"due_date" validate:"required"`
	Notes       *string            `json:"notes"`
	BranchID    string             `json:"branch_id" validate:"required"`
}

// ProofURLResponse carries a time-limited signed download token.
type ProofURLResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PaymentService orchestrates the payment ledger. Stored statuses never
// include overdue: a pending entry past its due date is reported overdue
// at read time.
type PaymentService struct {
	repo        paymentRepository
	enrollments paymentEnrollmentWriter
	students    paymentStudentReader
	storage     proofStorage
	signer      proofSigner
	resolver    *scope.Resolver
	audit       *ActivityService
	cache       *CacheService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewPaymentService constructs PaymentService.
func NewPaymentService(repo paymentRepository, enrollments paymentEnrollmentWriter, students paymentStudentReader, storage proofStorage, signer proofSigner, resolver *scope.Resolver, audit *ActivityService, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		repo:        repo,
		enrollments: enrollments,
		students:    students,
		storage:     storage,
		signer:      signer,
		resolver:    resolver,
		audit:       audit,
		cache:       cache,
		validator:   validate,
		logger:      logger,
	}
}

// List returns ledger entries inside the actor's scope with effective
// statuses derived at read time.
func (s *PaymentService) List(ctx context.Context, actor scope.Actor, filter models.PaymentFilter) ([]models.Payment, *models.Pagination, error) {
	scoped, err := s.resolver.Resolve(actor, scope.ResourcePayments, scope.ActionRead, scope.Filters{
		BranchID:  filter.BranchID,
		StudentID: filter.StudentID,
	})
	if err != nil {
		return nil, nil, err
	}
	filter.BranchID = scoped.BranchID
	filter.StudentID = scoped.StudentID

	payments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}
	deriveStatuses(payments)
	return payments, &models.Pagination{Skip: filter.Skip, Limit: filter.Limit, Total: total}, nil
}

// Get returns one ledger entry if visible to the actor.
func (s *PaymentService) Get(ctx context.Context, actor scope.Actor, id string) (*models.Payment, error) {
	payment, err := s.findPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.resolver.Resolve(actor, scope.ResourcePayments, scope.ActionRead, scope.Filters{
		BranchID:  payment.BranchID,
		StudentID: payment.StudentID,
	}); err != nil {
		return nil, err
	}
	payment.PaymentStatus = payment.EffectiveStatus(time.Now().UTC())
	return payment, nil
}

// Create opens an ad-hoc ledger entry.
func (s *PaymentService) Create(ctx context.Context, actor scope.Actor, req CreatePaymentRequest) (*models.Payment, error) {
	scoped, err := s.resolver.Resolve(actor, scope.ResourcePayments, scope.ActionCreate, scope.Filters{BranchID: req.BranchID})
	if err != nil {
		return nil, err
	}
	if scoped.BranchID != "" {
		req.BranchID = scoped.BranchID
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}

	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	payment := &models.Payment{
		StudentID:     req.StudentID,
		Amount:        req.Amount,
		PaymentType:   req.PaymentType,
		PaymentMethod: models.PaymentMethodCash,
		PaymentStatus: models.PaymentPending,
		DueDate:       req.DueDate,
		Notes:         req.Notes,
		BranchID:      req.BranchID,
	}
	if err := s.repo.Create(ctx, payment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create payment")
	}

	if s.audit != nil {
		s.audit.Record(&actor.ID, models.ActivityCreate, "payments", &payment.ID, nil)
	}
	return payment, nil
}

// Process settles a pending ledger entry and re-derives the owning
// enrollment's summary status. Double settlement is a conflict.
func (s *PaymentService) Process(ctx context.Context, actor scope.Actor, id string, req RecordPaymentRequest) (*models.Payment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}
	if !req.Method.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown payment method")
	}

	payment, err := s.findPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.resolver.Resolve(actor, scope.ResourcePayments, scope.ActionUpdate, scope.Filters{BranchID: payment.BranchID}); err != nil {
		return nil, err
	}

	paidAt := time.Now().UTC()
	updated, err := s.repo.MarkPaid(ctx, id, req.Method, req.TransactionID, paidAt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to settle payment")
	}
	if !updated {
		return nil, appErrors.Clone(appErrors.ErrConflict, "payment already settled")
	}

	payment.PaymentStatus = models.PaymentPaid
	payment.PaymentMethod = req.Method
	payment.TransactionID = req.TransactionID
	payment.PaymentDate = &paidAt

	if payment.EnrollmentID != nil {
		if err := s.rederiveEnrollment(ctx, *payment.EnrollmentID); err != nil {
			s.logger.Warn("failed to re-derive enrollment payment status",
				zap.String("enrollment_id", *payment.EnrollmentID), zap.Error(err))
		}
	}
	s.cache.InvalidateDashboards(ctx, payment.BranchID)

	if s.audit != nil {
		s.audit.Record(&actor.ID, models.ActivityStatusChange, "payments", &id, map[string]string{"payment_status": "paid"})
	}
	return payment, nil
}

// Cancel voids a pending ledger entry. Settled or already cancelled
// entries cannot be cancelled.
func (s *PaymentService) Cancel(ctx context.Context, actor scope.Actor, id string) error {
	payment, err := s.findPayment(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.resolver.Resolve(actor, scope.ResourcePayments, scope.ActionUpdate, scope.Filters{BranchID: payment.BranchID}); err != nil {
		return err
	}

	if err := s.repo.Cancel(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrConflict, "only pending payments can be cancelled")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel payment")
	}

	if payment.EnrollmentID != nil {
		if err := s.rederiveEnrollment(ctx, *payment.EnrollmentID); err != nil {
			s.logger.Warn("failed to re-derive enrollment payment status",
				zap.String("enrollment_id", *payment.EnrollmentID), zap.Error(err))
		}
	}

	if s.audit != nil {
		s.audit.Record(&actor.ID, models.ActivityStatusChange, "payments", &id, map[string]string{"payment_status": "cancelled"})
	}
	return nil
}

// Dues aggregates outstanding payments per student inside the actor's
// scope.
func (s *PaymentService) Dues(ctx context.Context, actor scope.Actor) ([]models.StudentDues, error) {
	scoped, err := s.resolver.Resolve(actor, scope.ResourcePayments, scope.ActionRead, scope.Filters{})
	if err != nil {
		return nil, err
	}

	due, err := s.repo.ListDue(ctx, scoped.BranchID, time.Now().UTC())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list due payments")
	}

	byStudent := make(map[string]*models.StudentDues)
	var order []string
	for _, p := range due {
		if scoped.StudentID != "" && p.StudentID != scoped.StudentID {
			continue
		}
		p.PaymentStatus = p.EffectiveStatus(time.Now().UTC())
		entry, ok := byStudent[p.StudentID]
		if !ok {
			entry = &models.StudentDues{StudentID: p.StudentID}
			if student, err := s.students.FindByID(ctx, p.StudentID); err == nil {
				entry.StudentName = student.FullName
				entry.Phone = student.Phone
			}
			byStudent[p.StudentID] = entry
			order = append(order, p.StudentID)
		}
		entry.TotalDue += p.Amount
		entry.Payments = append(entry.Payments, p)
	}

	result := make([]models.StudentDues, 0, len(order))
	for _, id := range order {
		result = append(result, *byStudent[id])
	}
	return result, nil
}

// AttachProof stores an uploaded payment-proof file and links it to the
// ledger entry.
func (s *PaymentService) AttachProof(ctx context.Context, actor scope.Actor, id, originalName string, data []byte) (*models.Payment, error) {
	payment, err := s.findPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.resolver.Resolve(actor, scope.ResourcePayments, scope.ActionUpdate, scope.Filters{BranchID: payment.BranchID}); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "empty proof file")
	}

	ext := filepath.Ext(originalName)
	relPath := fmt.Sprintf("%s/%s%s", payment.StudentID, uuid.NewString(), ext)
	stored, err := s.storage.Save(relPath, data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store proof")
	}
	if err := s.repo.SetProofPath(ctx, id, stored); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to link proof")
	}
	payment.ProofPath = &stored
	return payment, nil
}

// ProofURL returns a signed, expiring token for downloading the proof.
func (s *PaymentService) ProofURL(ctx context.Context, actor scope.Actor, id string) (*ProofURLResponse, error) {
	payment, err := s.findPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.resolver.Resolve(actor, scope.ResourcePayments, scope.ActionRead, scope.Filters{
		BranchID:  payment.BranchID,
		StudentID: payment.StudentID,
	}); err != nil {
		return nil, err
	}
	if payment.ProofPath == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "payment has no proof attached")
	}

	token, expiresAt, err := s.signer.Generate(payment.ID, *payment.ProofPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign proof url")
	}
	return &ProofURLResponse{Token: token, ExpiresAt: expiresAt}, nil
}

// OpenProof validates a signed token and opens the underlying file.
func (s *PaymentService) OpenProof(token string) (*os.File, error) {
	_, relPath, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired proof token")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "proof file not found")
	}
	return file, nil
}

func (s *PaymentService) rederiveEnrollment(ctx context.Context, enrollmentID string) error {
	payments, err := s.repo.ListByEnrollment(ctx, enrollmentID)
	if err != nil {
		return err
	}

	var paid, pending int
	var nextDue *time.Time
	for _, p := range payments {
		switch p.PaymentStatus {
		case models.PaymentPaid:
			paid++
		case models.PaymentPending:
			pending++
			if nextDue == nil || p.DueDate.Before(*nextDue) {
				due := p.DueDate
				nextDue = &due
			}
		}
	}

	status := models.EnrollmentPaymentPending
	switch {
	case pending == 0 && paid > 0:
		status = models.EnrollmentPaymentPaid
	case paid > 0:
		status = models.EnrollmentPaymentPartial
	}
	return s.enrollments.UpdatePaymentStatus(ctx, enrollmentID, status, nextDue)
}

func (s *PaymentService) findPayment(ctx context.Context, id string) (*models.Payment, error) {
	payment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	return payment, nil
}

func deriveStatuses(payments []models.Payment) {
	now := time.Now().UTC()
	for i := range payments {
		payments[i].PaymentStatus = payments[i].EffectiveStatus(now)
	}
}
