package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edumanage/academy-api/internal/models"
	"github.com/edumanage/academy-api/internal/scope"
	appErrors "github.com/edumanage/academy-api/pkg/errors"
)

type enrollmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error)
	CreateWithPayments(ctx context.Context, enrollment *models.Enrollment, payments []models.Payment) error
	UpdatePaymentStatus(ctx context.Context, id string, status models.EnrollmentPaymentStatus, nextDue *time.Time) error
	Deactivate(ctx context.Context, id string) error
}

type enrollmentStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type enrollmentCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// EnrollStudentRequest describes enrollment creation payload.
type EnrollStudentRequest struct {
	StudentID string    `json:"student_id" validate:"required"`
	CourseID  string    `json:"course_id" validate:"required"`
	BranchID  string    `json:"branch_id" validate:"required"`
	StartDate time.Time `json:"start_date" validate:"required"`
}

// EnrollmentService orchestrates enrollment workflows. Creating an
// enrollment opens two pending ledger entries: the admission fee and the
// branch-priced course fee.
type EnrollmentService struct {
	repo         enrollmentRepository
	students     enrollmentStudentReader
	courses      enrollmentCourseReader
	resolver     *scope.Resolver
	audit        *ActivityService
	cache        *CacheService
	validator    *validator.Validate
	logger       *zap.Logger
	admissionFee float64
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, students enrollmentStudentReader, courses enrollmentCourseReader, resolver *scope.Resolver, audit *ActivityService, cache *CacheService, validate *validator.Validate, logger *zap.Logger, admissionFee float64) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if admissionFee <= 0 {
		admissionFee = 500
	}
	return &EnrollmentService{
		repo:         repo,
		students:     students,
		courses:      courses,
		resolver:     resolver,
		audit:        audit,
		cache:        cache,
		validator:    validate,
		logger:       logger,
		admissionFee: admissionFee,
	}
}

// List returns enrollments inside the actor's scope.
func (s *EnrollmentService) List(ctx context.Context, actor scope.Actor, filter models.EnrollmentFilter) ([]models.Enrollment, *models.Pagination, error) {
	scoped, err := s.resolver.Resolve(actor, scope.ResourceEnrollments, scope.ActionRead, scope.Filters{
		BranchID:  filter.BranchID,
		StudentID: filter.StudentID,
	})
	if err != nil {
		return nil, nil, err
	}
	filter.BranchID = scoped.BranchID
	filter.StudentID = scoped.StudentID

	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, &models.Pagination{Skip: filter.Skip, Limit: filter.Limit, Total: total}, nil
}

// Get returns an enrollment if it falls inside the actor's scope.
func (s *EnrollmentService) Get(ctx context.Context, actor scope.Actor, id string) (*models.Enrollment, error) {
	enrollment, err := s.findEnrollment(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.resolver.Resolve(actor, scope.ResourceEnrollments, scope.ActionRead, scope.Filters{
		BranchID:  enrollment.BranchID,
		StudentID: enrollment.StudentID,
	}); err != nil {
		return nil, err
	}
	return enrollment, nil
}

// Enroll registers a student on a course and opens the two required
// pending payments atomically.
func (s *EnrollmentService) Enroll(ctx context.Context, actor scope.Actor, req EnrollStudentRequest) (*models.Enrollment, error) {
	scoped, err := s.resolver.Resolve(actor, scope.ResourceEnrollments, scope.ActionCreate, scope.Filters{BranchID: req.BranchID})
	if err != nil {
		return nil, err
	}
	if scoped.BranchID != "" {
		req.BranchID = scoped.BranchID
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user is not a student")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student account is inactive")
	}
	if student.BranchID == nil || *student.BranchID != req.BranchID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student does not belong to this branch")
	}

	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if !course.Active {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course is inactive")
	}

	now := time.Now().UTC()
	fee := course.FeeFor(req.BranchID)
	endDate := req.StartDate.AddDate(0, course.DurationMonths, 0)
	courseFeeDue := req.StartDate

	enrollment := &models.Enrollment{
		StudentID:      req.StudentID,
		CourseID:       req.CourseID,
		BranchID:       req.BranchID,
		EnrollmentDate: now,
		StartDate:      req.StartDate,
		EndDate:        endDate,
		FeeAmount:      fee,
		AdmissionFee:   s.admissionFee,
		PaymentStatus:  models.EnrollmentPaymentPending,
		NextDueDate:    &courseFeeDue,
		Active:         true,
	}

	payments := []models.Payment{
		{
			StudentID:     req.StudentID,
			Amount:        s.admissionFee,
			PaymentType:   models.PaymentTypeAdmissionFee,
			PaymentMethod: models.PaymentMethodCash,
			PaymentStatus: models.PaymentPending,
			DueDate:       now,
			BranchID:      req.BranchID,
		},
		{
			StudentID:     req.StudentID,
			Amount:        fee,
			PaymentType:   models.PaymentTypeCourseFee,
			PaymentMethod: models.PaymentMethodCash,
			PaymentStatus: models.PaymentPending,
			DueDate:       courseFeeDue,
			BranchID:      req.BranchID,
		},
	}

	if err := s.repo.CreateWithPayments(ctx, enrollment, payments); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	s.cache.InvalidateDashboards(ctx, req.BranchID)

	if s.audit != nil {
		s.audit.Record(&actor.ID, models.ActivityCreate, "enrollments", &enrollment.ID, map[string]string{
			"student_id": req.StudentID,
			"course_id":  req.CourseID,
		})
	}
	return enrollment, nil
}

// Deactivate retires an enrollment.
func (s *EnrollmentService) Deactivate(ctx context.Context, actor scope.Actor, id string) error {
	enrollment, err := s.findEnrollment(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.resolver.Resolve(actor, scope.ResourceEnrollments, scope.ActionDelete, scope.Filters{BranchID: enrollment.BranchID}); err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate enrollment")
	}
	s.cache.InvalidateDashboards(ctx, enrollment.BranchID)
	if s.audit != nil {
		s.audit.Record(&actor.ID, models.ActivityStatusChange, "enrollments", &id, map[string]string{"is_active": "false"})
	}
	return nil
}

func (s *EnrollmentService) findEnrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}
