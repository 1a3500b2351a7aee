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

type requestRepository interface {
	CreateCourseChange(ctx context.Context, req *models.CourseChangeRequest) error
	FindCourseChange(ctx context.Context, id string) (*models.CourseChangeRequest, error)
	ListCourseChanges(ctx context.Context, filter models.RequestFilter) ([]models.CourseChangeRequest, error)
	DecideCourseChange(ctx context.Context, id string, status models.RequestStatus, decidedBy string, decidedAt time.Time) (bool, error)
	CreateTransfer(ctx context.Context, req *models.TransferRequest) error
	FindTransfer(ctx context.Context, id string) (*models.TransferRequest, error)
	ListTransfers(ctx context.Context, filter models.RequestFilter) ([]models.TransferRequest, error)
	DecideTransfer(ctx context.Context, id string, status models.RequestStatus, decidedBy string, decidedAt time.Time) (bool, error)
	CreateResourceRequest(ctx context.Context, req *models.ResourceRequest) error
	FindResourceRequest(ctx context.Context, id string) (*models.ResourceRequest, error)
	ListResourceRequests(ctx context.Context, filter models.RequestFilter) ([]models.ResourceRequest, error)
	DecideResourceRequest(ctx context.Context, id string, status models.RequestStatus, decidedBy string, decidedAt time.Time) (bool, error)
}

type requestEnrollmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
}

type requestUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateBranch(ctx context.Context, id, branchID string) error
}

// enrollmentWorkflow is the slice of EnrollmentService a course change
// approval needs: retire the old enrollment and open the new one with
// its payment ledger.
type enrollmentWorkflow interface {
	Enroll(ctx context.Context, actor scope.Actor, req EnrollStudentRequest) (*models.Enrollment, error)
	Deactivate(ctx context.Context, actor scope.Actor, id string) error
}

// CreateCourseChangeRequest is a student's ask to switch courses.
type CreateCourseChangeRequest struct {
	EnrollmentID string `json:"enrollment_id" validate:"required"`
	NewCourseID  string `json:"new_course_id" validate:"required"`
	Reason       string `json:"reason" validate:"required"`
}

// CreateTransferRequest is a student's ask to move branches.
type CreateTransferRequest struct {
	ToBranchID string `json:"to_branch_id" validate:"required"`
	Reason     string `json:"reason" validate:"required"`
}

// CreateResourceRequestInput is a staff ask for equipment or materials.
type CreateResourceRequestInput struct {
	BranchID     string `json:"branch_id"`
	ResourceType string `json:"resource_type" validate:"required"`
	Description  string `json:"description" validate:"required"`
}

// DecideRequest approves or rejects a pending request.
type DecideRequest struct {
	Approve bool `json:"approve"`
}

// RequestService runs the pending -> approved/rejected workflows. Side
// effects fire on approval only: course changes re-enroll, transfers
// move the student's branch.
type RequestService struct {
	repo        requestRepository
	enrollments requestEnrollmentReader
	users       requestUserRepository
	workflow    enrollmentWorkflow
	audit       *ActivityService
	resolver    *scope.Resolver
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewRequestService constructs RequestService.
func NewRequestService(repo requestRepository, enrollments requestEnrollmentReader, users requestUserRepository, workflow enrollmentWorkflow, audit *ActivityService, resolver *scope.Resolver, validate *validator.Validate, logger *zap.Logger) *RequestService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestService{
		repo:        repo,
		enrollments: enrollments,
		users:       users,
		workflow:    workflow,
		audit:       audit,
		resolver:    resolver,
		validator:   validate,
		logger:      logger,
	}
}

// CreateCourseChange files a course change request for the acting
// student's own active enrollment.
func (s *RequestService) CreateCourseChange(ctx context.Context, actor scope.Actor, req CreateCourseChangeRequest) (*models.CourseChangeRequest, error) {
	if _, err := s.resolver.Resolve(actor, scope.ResourceRequests, scope.ActionCreate, scope.Filters{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request payload")
	}

	enrollment, err := s.enrollments.FindByID(ctx, req.EnrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if actor.Role == models.RoleStudent && enrollment.StudentID != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "enrollment belongs to another student")
	}
	if !enrollment.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "enrollment is not active")
	}
	if enrollment.CourseID == req.NewCourseID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student is already enrolled in this course")
	}

	change := &models.CourseChangeRequest{
		StudentID:           enrollment.StudentID,
		CurrentEnrollmentID: enrollment.ID,
		NewCourseID:         req.NewCourseID,
		BranchID:            enrollment.BranchID,
		Reason:              req.Reason,
		Status:              models.RequestPending,
	}
	if err := s.repo.CreateCourseChange(ctx, change); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create request")
	}
	return change, nil
}

// CreateTransfer files a branch transfer request for the acting student.
func (s *RequestService) CreateTransfer(ctx context.Context, actor scope.Actor, req CreateTransferRequest) (*models.TransferRequest, error) {
	if _, err := s.resolver.Resolve(actor, scope.ResourceRequests, scope.ActionCreate, scope.Filters{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request payload")
	}
	if actor.BranchID == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student has no branch assigned")
	}
	if *actor.BranchID == req.ToBranchID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student is already at this branch")
	}

	transfer := &models.TransferRequest{
		StudentID:    actor.ID,
		FromBranchID: *actor.BranchID,
		ToBranchID:   req.ToBranchID,
		Reason:       req.Reason,
		Status:       models.RequestPending,
	}
	if err := s.repo.CreateTransfer(ctx, transfer); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create request")
	}
	return transfer, nil
}

// CreateResourceRequest files an equipment request. Branch staff request
// for their own branch.
func (s *RequestService) CreateResourceRequest(ctx context.Context, actor scope.Actor, req CreateResourceRequestInput) (*models.ResourceRequest, error) {
	scoped, err := s.resolver.Resolve(actor, scope.ResourceRequests, scope.ActionCreate, scope.Filters{BranchID: req.BranchID})
	if err != nil {
		return nil, err
	}
	if scoped.BranchID != "" {
		req.BranchID = scoped.BranchID
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request payload")
	}
	if req.BranchID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "branch_id is required")
	}

	resource := &models.ResourceRequest{
		RequestedBy:  actor.ID,
		BranchID:     req.BranchID,
		ResourceType: req.ResourceType,
		Description:  req.Description,
		Status:       models.RequestPending,
	}
	if err := s.repo.CreateResourceRequest(ctx, resource); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create request")
	}
	return resource, nil
}

// ListCourseChanges returns course change requests visible to the actor.
func (s *RequestService) ListCourseChanges(ctx context.Context, actor scope.Actor, filter models.RequestFilter) ([]models.CourseChangeRequest, error) {
	scoped, err := s.resolver.Resolve(actor, scope.ResourceRequests, scope.ActionRead, scope.Filters{
		BranchID:  filter.BranchID,
		StudentID: filter.StudentID,
	})
	if err != nil {
		return nil, err
	}
	filter.BranchID = scoped.BranchID
	filter.StudentID = scoped.StudentID

	requests, err := s.repo.ListCourseChanges(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}
	return requests, nil
}

// ListTransfers returns transfer requests visible to the actor. A branch
// filter matches either side of the transfer.
func (s *RequestService) ListTransfers(ctx context.Context, actor scope.Actor, filter models.RequestFilter) ([]models.TransferRequest, error) {
	scoped, err := s.resolver.Resolve(actor, scope.ResourceRequests, scope.ActionRead, scope.Filters{
		BranchID:  filter.BranchID,
		StudentID: filter.StudentID,
	})
	if err != nil {
		return nil, err
	}
	filter.BranchID = scoped.BranchID
	filter.StudentID = scoped.StudentID

	requests, err := s.repo.ListTransfers(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}
	return requests, nil
}

// ListResourceRequests returns equipment requests visible to the actor.
func (s *RequestService) ListResourceRequests(ctx context.Context, actor scope.Actor, filter models.RequestFilter) ([]models.ResourceRequest, error) {
	scoped, err := s.resolver.Resolve(actor, scope.ResourceRequests, scope.ActionRead, scope.Filters{BranchID: filter.BranchID})
	if err != nil {
		return nil, err
	}
	filter.BranchID = scoped.BranchID

	requests, err := s.repo.ListResourceRequests(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}
	return requests, nil
}

// DecideCourseChange approves or rejects a pending course change. On
// approval the old enrollment is deactivated and a new one is created in
// the same branch, with the usual payment ledger.
func (s *RequestService) DecideCourseChange(ctx context.Context, actor scope.Actor, id string, decision DecideRequest) (*models.CourseChangeRequest, error) {
	change, err := s.findCourseChange(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.resolver.Resolve(actor, scope.ResourceRequests, scope.ActionApprove, scope.Filters{BranchID: change.BranchID}); err != nil {
		return nil, err
	}
	if change.Status != models.RequestPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "request has already been decided")
	}

	status := models.RequestRejected
	if decision.Approve {
		status = models.RequestApproved
	}

	if decision.Approve {
		if err := s.workflow.Deactivate(ctx, actor, change.CurrentEnrollmentID); err != nil {
			return nil, err
		}
		if _, err := s.workflow.Enroll(ctx, actor, EnrollStudentRequest{
			StudentID: change.StudentID,
			CourseID:  change.NewCourseID,
			BranchID:  change.BranchID,
			StartDate: time.Now().UTC(),
		}); err != nil {
			return nil, err
		}
	}

	decided, err := s.repo.DecideCourseChange(ctx, id, status, actor.ID, time.Now().UTC())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decide request")
	}
	if !decided {
		return nil, appErrors.Clone(appErrors.ErrConflict, "request has already been decided")
	}

	if s.audit != nil {
		s.audit.Record(&actor.ID, models.ActivityStatusChange, "requests", &id, map[string]string{"status": string(status)})
	}
	return s.findCourseChange(ctx, id)
}

// DecideTransfer approves or rejects a pending transfer. On approval the
// student's branch assignment moves to the target branch.
func (s *RequestService) DecideTransfer(ctx context.Context, actor scope.Actor, id string, decision DecideRequest) (*models.TransferRequest, error) {
	transfer, err := s.findTransfer(ctx, id)
	if err != nil {
		return nil, err
	}
	// a transfer touches both branches; approval stays with head office
	// and the receiving branch admin
	if _, err := s.resolver.Resolve(actor, scope.ResourceRequests, scope.ActionApprove, scope.Filters{BranchID: transfer.ToBranchID}); err != nil {
		return nil, err
	}
	if transfer.Status != models.RequestPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "request has already been decided")
	}

	status := models.RequestRejected
	if decision.Approve {
		status = models.RequestApproved
	}

	decided, err := s.repo.DecideTransfer(ctx, id, status, actor.ID, time.Now().UTC())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decide request")
	}
	if !decided {
		return nil, appErrors.Clone(appErrors.ErrConflict, "request has already been decided")
	}

	if decision.Approve {
		if err := s.users.UpdateBranch(ctx, transfer.StudentID, transfer.ToBranchID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to move student to new branch")
		}
	}

	if s.audit != nil {
		s.audit.Record(&actor.ID, models.ActivityStatusChange, "requests", &id, map[string]string{"status": string(status)})
	}
	return s.findTransfer(ctx, id)
}

// DecideResourceRequest approves or rejects a pending equipment request.
func (s *RequestService) DecideResourceRequest(ctx context.Context, actor scope.Actor, id string, decision DecideRequest) (*models.ResourceRequest, error) {
	resource, err := s.findResourceRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.resolver.Resolve(actor, scope.ResourceRequests, scope.ActionApprove, scope.Filters{BranchID: resource.BranchID}); err != nil {
		return nil, err
	}
	if resource.Status != models.RequestPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "request has already been decided")
	}

	status := models.RequestRejected
	if decision.Approve {
		status = models.RequestApproved
	}

	decided, err := s.repo.DecideResourceRequest(ctx, id, status, actor.ID, time.Now().UTC())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decide request")
	}
	if !decided {
		return nil, appErrors.Clone(appErrors.ErrConflict, "request has already been decided")
	}

	if s.audit != nil {
		s.audit.Record(&actor.ID, models.ActivityStatusChange, "requests", &id, map[string]string{"status": string(status)})
	}
	return s.findResourceRequest(ctx, id)
}

func (s *RequestService) findCourseChange(ctx context.Context, id string) (*models.CourseChangeRequest, error) {
	req, err := s.repo.FindCourseChange(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	return req, nil
}

func (s *RequestService) findTransfer(ctx context.Context, id string) (*models.TransferRequest, error) {
	req, err := s.repo.FindTransfer(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	return req, nil
}

func (s *RequestService) findResourceRequest(ctx context.Context, id string) (*models.ResourceRequest, error) {
	req, err := s.repo.FindResourceRequest(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	return req, nil
}
