package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edumanage/academy-api/internal/models"
	"github.com/edumanage/academy-api/internal/scope"
	appErrors "github.com/edumanage/academy-api/pkg/errors"
)

type complaintRepository interface {
	FindByID(ctx context.Context, id string) (*models.Complaint, error)
	List(ctx context.Context, filter models.ComplaintFilter) ([]models.Complaint, int, error)
	Create(ctx context.Context, complaint *models.Complaint) error
	UpdateStatus(ctx context.Context, id string, status models.ComplaintStatus, assignedTo, resolution *string) error
	CreateRating(ctx context.Context, rating *models.CoachRating) error
	ListRatings(ctx context.Context, coachID string) ([]models.CoachRating, error)
	RatingSummary(ctx context.Context, coachID string) (*models.CoachRatingSummary, error)
}

type complaintUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// CreateComplaintRequest is a student's grievance payload. The student
// and branch come from the actor, never from the body.
type CreateComplaintRequest struct {
	Subject     string  `json:"subject" validate:"required"`
	Description string  `json:"description" validate:"required"`
	Category    string  `json:"category" validate:"required"`
	CoachID     *string `json:"coach_id"`
	Priority    string  `json:"priority"`
}

// UpdateComplaintRequest moves a complaint through its lifecycle.
type UpdateComplaintRequest struct {
	Status     models.ComplaintStatus `json:"status" validate:"required"`
	AssignedTo *string                `json:"assigned_to"`
	Resolution *string                `json:"resolution"`
}

// RateCoachRequest is a student's 1-5 star review of a coach.
type RateCoachRequest struct {
	CoachID string  `json:"coach_id" validate:"required"`
	Rating  int     `json:"rating" validate:"required,min=1,max=5"`
	Review  *string `json:"review"`
}

// ComplaintService handles student complaints and coach ratings.
type ComplaintService struct {
	repo      complaintRepository
	users     complaintUserReader
	audit     *ActivityService
	resolver  *scope.Resolver
	validator *validator.Validate
	logger    *zap.Logger
}

// NewComplaintService constructs ComplaintService.
func NewComplaintService(repo complaintRepository, users complaintUserReader, audit *ActivityService, resolver *scope.Resolver, validate *validator.Validate, logger *zap.Logger) *ComplaintService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ComplaintService{
		repo:      repo,
		users:     users,
		audit:     audit,
		resolver:  resolver,
		validator: validate,
		logger:    logger,
	}
}

// Create files a complaint on behalf of the acting student.
func (s *ComplaintService) Create(ctx context.Context, actor scope.Actor, req CreateComplaintRequest) (*models.Complaint, error) {
	if _, err := s.resolver.Resolve(actor, scope.ResourceComplaints, scope.ActionCreate, scope.Filters{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid complaint payload")
	}
	if actor.BranchID == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student has no branch assigned")
	}
	if req.CoachID != nil {
		if err := s.requireCoach(ctx, *req.CoachID); err != nil {
			return nil, err
		}
	}
	if req.Priority == "" {
		req.Priority = "medium"
	}

	complaint := &models.Complaint{
		StudentID:   actor.ID,
		BranchID:    *actor.BranchID,
		Subject:     req.Subject,
		Description: req.Description,
		Category:    req.Category,
		CoachID:     req.CoachID,
		Status:      models.ComplaintOpen,
		Priority:    req.Priority,
	}
	if err := s.repo.Create(ctx, complaint); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create complaint")
	}

	if s.audit != nil {
		s.audit.Record(&actor.ID, models.ActivityCreate, "complaints", &complaint.ID, map[string]string{"category": complaint.Category})
	}
	return complaint, nil
}

// List returns complaints visible to the actor. Students see their own,
// branch staff their branch.
func (s *ComplaintService) List(ctx context.Context, actor scope.Actor, filter models.ComplaintFilter) ([]models.Complaint, *models.Pagination, error) {
	scoped, err := s.resolver.Resolve(actor, scope.ResourceComplaints, scope.ActionRead, scope.Filters{
		BranchID:  filter.BranchID,
		StudentID: filter.StudentID,
	})
	if err != nil {
		return nil, nil, err
	}
	filter.BranchID = scoped.BranchID
	filter.StudentID = scoped.StudentID

	complaints, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list complaints")
	}
	return complaints, &models.Pagination{Skip: filter.Skip, Limit: filter.Limit, Total: total}, nil
}

// Get returns a single complaint the actor is allowed to see.
func (s *ComplaintService) Get(ctx context.Context, actor scope.Actor, id string) (*models.Complaint, error) {
	complaint, err := s.findComplaint(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.resolver.Resolve(actor, scope.ResourceComplaints, scope.ActionRead, scope.Filters{
		BranchID:  complaint.BranchID,
		StudentID: complaint.StudentID,
	}); err != nil {
		return nil, err
	}
	return complaint, nil
}

// UpdateStatus moves a complaint through its lifecycle. Resolving or
// closing requires a resolution note.
func (s *ComplaintService) UpdateStatus(ctx context.Context, actor scope.Actor, id string, req UpdateComplaintRequest) (*models.Complaint, error) {
	complaint, err := s.findComplaint(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.resolver.Resolve(actor, scope.ResourceComplaints, scope.ActionUpdate, scope.Filters{BranchID: complaint.BranchID}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	if !req.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown complaint status")
	}
	if (req.Status == models.ComplaintResolved || req.Status == models.ComplaintClosed) && req.Resolution == nil && complaint.Resolution == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "resolution note is required to resolve a complaint")
	}

	if err := s.repo.UpdateStatus(ctx, id, req.Status, req.AssignedTo, req.Resolution); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "complaint not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update complaint")
	}

	if s.audit != nil {
		s.audit.Record(&actor.ID, models.ActivityStatusChange, "complaints", &id, map[string]string{"status": string(req.Status)})
	}
	return s.findComplaint(ctx, id)
}

// RateCoach records a student's rating of a coach.
func (s *ComplaintService) RateCoach(ctx context.Context, actor scope.Actor, req RateCoachRequest) (*models.CoachRating, error) {
	if _, err := s.resolver.Resolve(actor, scope.ResourceRatings, scope.ActionCreate, scope.Filters{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rating payload")
	}
	if actor.BranchID == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student has no branch assigned")
	}
	if err := s.requireCoach(ctx, req.CoachID); err != nil {
		return nil, err
	}

	rating := &models.CoachRating{
		StudentID: actor.ID,
		CoachID:   req.CoachID,
		BranchID:  *actor.BranchID,
		Rating:    req.Rating,
		Review:    req.Review,
	}
	if err := s.repo.CreateRating(ctx, rating); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save rating")
	}
	return rating, nil
}

// CoachRatings returns the individual ratings and the aggregate for a
// coach.
func (s *ComplaintService) CoachRatings(ctx context.Context, actor scope.Actor, coachID string) ([]models.CoachRating, *models.CoachRatingSummary, error) {
	if _, err := s.resolver.Resolve(actor, scope.ResourceRatings, scope.ActionRead, scope.Filters{}); err != nil {
		return nil, nil, err
	}
	if err := s.requireCoach(ctx, coachID); err != nil {
		return nil, nil, err
	}

	ratings, err := s.repo.ListRatings(ctx, coachID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list ratings")
	}
	summary, err := s.repo.RatingSummary(ctx, coachID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate ratings")
	}
	return ratings, summary, nil
}

func (s *ComplaintService) findComplaint(ctx context.Context, id string) (*models.Complaint, error) {
	complaint, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "complaint not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load complaint")
	}
	return complaint, nil
}

func (s *ComplaintService) requireCoach(ctx context.Context, coachID string) error {
	coach, err := s.users.FindByID(ctx, coachID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "coach not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load coach")
	}
	if coach.Role != models.RoleCoach {
		return appErrors.Clone(appErrors.ErrValidation, "user is not a coach")
	}
	return nil
}
