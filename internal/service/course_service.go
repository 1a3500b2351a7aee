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

type courseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
}

type courseEnrollmentCounter interface {
	CountActiveByCourse(ctx context.Context, courseID string) (int, error)
}

// CreateCourseRequest describes course creation payload.
type CreateCourseRequest struct {
	Name           string                `json:"name" validate:"required"`
	Description    string                `json:"description"`
	DurationMonths int                   `json:"duration_months" validate:"required,min=1"`
	BaseFee        float64               `json:"base_fee" validate:"required,gt=0"`
	BranchPricing  models.PriceMap       `json:"branch_pricing"`
	CoachID        *string               `json:"coach_id"`
	Schedule       models.CourseSchedule `json:"schedule"`
}

// UpdateCourseRequest describes course update payload.
type UpdateCourseRequest struct {
	Name           *string                `json:"name"`
	Description    *string                `json:"description"`
	DurationMonths *int                   `json:"duration_months" validate:"omitempty,min=1"`
	BaseFee        *float64               `json:"base_fee" validate:"omitempty,gt=0"`
	BranchPricing  *models.PriceMap       `json:"branch_pricing"`
	CoachID        *string                `json:"coach_id"`
	Schedule       *models.CourseSchedule `json:"schedule"`
	Active         *bool                  `json:"is_active"`
}

// CourseService orchestrates course management.
type CourseService struct {
	repo        courseRepository
	enrollments courseEnrollmentCounter
	resolver    *scope.Resolver
	audit       *ActivityService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewCourseService constructs CourseService.
func NewCourseService(repo courseRepository, enrollments courseEnrollmentCounter, resolver *scope.Resolver, audit *ActivityService, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, enrollments: enrollments, resolver: resolver, audit: audit, validator: validate, logger: logger}
}

// List returns courses. Courses are shared across branches; every role may
// browse the catalogue.
func (s *CourseService) List(ctx context.Context, actor scope.Actor, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	if _, err := s.resolver.Resolve(actor, scope.ResourceCourses, scope.ActionRead, scope.Filters{}); err != nil {
		return nil, nil, err
	}
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	return courses, &models.Pagination{Skip: filter.Skip, Limit: filter.Limit, Total: total}, nil
}

// Get returns one course.
func (s *CourseService) Get(ctx context.Context, actor scope.Actor, id string) (*models.Course, error) {
	if _, err := s.resolver.Resolve(actor, scope.ResourceCourses, scope.ActionRead, scope.Filters{}); err != nil {
		return nil, err
	}
	return s.findCourse(ctx, id)
}

// Create registers a new course.
func (s *CourseService) Create(ctx context.Context, actor scope.Actor, req CreateCourseRequest) (*models.Course, error) {
	if _, err := s.resolver.Resolve(actor, scope.ResourceCourses, scope.ActionCreate, scope.Filters{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	course := &models.Course{
		Name:           req.Name,
		Description:    req.Description,
		DurationMonths: req.DurationMonths,
		BaseFee:        req.BaseFee,
		BranchPricing:  req.BranchPricing,
		CoachID:        req.CoachID,
		Schedule:       req.Schedule,
		Active:         true,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}

	if s.audit != nil {
		s.audit.Record(&actor.ID, models.ActivityCreate, "courses", &course.ID, nil)
	}
	return course, nil
}

// Update modifies a course. Branch admins may update pricing for their
// own branch only; that restriction is enforced here rather than in the
// policy table because it depends on the payload.
func (s *CourseService) Update(ctx context.Context, actor scope.Actor, id string, req UpdateCourseRequest) (*models.Course, error) {
	if _, err := s.resolver.Resolve(actor, scope.ResourceCourses, scope.ActionUpdate, scope.Filters{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	course, err := s.findCourse(ctx, id)
	if err != nil {
		return nil, err
	}

	if actor.Role == models.RoleCoachAdmin {
		// branch admins only adjust their own branch's price
		if req.BranchPricing == nil {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "branch admins may only update branch pricing")
		}
		for branchID := range *req.BranchPricing {
			if actor.BranchID == nil || branchID != *actor.BranchID {
				return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot price another branch")
			}
		}
		if course.BranchPricing == nil {
			course.BranchPricing = models.PriceMap{}
		}
		for branchID, fee := range *req.BranchPricing {
			course.BranchPricing[branchID] = fee
		}
	} else {
		if req.Name != nil {
			course.Name = *req.Name
		}
		if req.Description != nil {
			course.Description = *req.Description
		}
		if req.DurationMonths != nil {
			course.DurationMonths = *req.DurationMonths
		}
		if req.BaseFee != nil {
			course.BaseFee = *req.BaseFee
		}
		if req.BranchPricing != nil {
			course.BranchPricing = *req.BranchPricing
		}
		if req.CoachID != nil {
			course.CoachID = req.CoachID
		}
		if req.Schedule != nil {
			course.Schedule = *req.Schedule
		}
		if req.Active != nil {
			course.Active = *req.Active
		}
	}

	if err := s.repo.Update(ctx, course); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}

	if s.audit != nil {
		s.audit.Record(&actor.ID, models.ActivityUpdate, "courses", &course.ID, nil)
	}
	return course, nil
}

// Delete removes a course. A course with active enrollments cannot be
// deleted.
func (s *CourseService) Delete(ctx context.Context, actor scope.Actor, id string) error {
	if _, err := s.resolver.Resolve(actor, scope.ResourceCourses, scope.ActionDelete, scope.Filters{}); err != nil {
		return err
	}

	count, err := s.enrollments.CountActiveByCourse(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "course still has active enrollments")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}

	if s.audit != nil {
		s.audit.Record(&actor.ID, models.ActivityDelete, "courses", &id, nil)
	}
	return nil
}

func (s *CourseService) findCourse(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}
