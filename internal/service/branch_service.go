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

type branchRepository interface {
	FindByID(ctx context.Context, id string) (*models.Branch, error)
	List(ctx context.Context, filter models.BranchFilter) ([]models.Branch, int, error)
	Create(ctx context.Context, branch *models.Branch) error
	Update(ctx context.Context, branch *models.Branch) error
	Delete(ctx context.Context, id string) error
}

type branchUserCounter interface {
	CountByBranch(ctx context.Context, branchID string) (int, error)
}

// CreateBranchRequest describes branch creation payload.
type CreateBranchRequest struct {
	Name          string               `json:"name" validate:"required"`
	Address       string               `json:"address" validate:"required"`
	City          string               `json:"city" validate:"required"`
	State         string               `json:"state"`
	Pincode       string               `json:"pincode"`
	Phone         string               `json:"phone" validate:"required"`
	Email         string               `json:"email" validate:"omitempty,email"`
	ManagerID     *string              `json:"manager_id"`
	BusinessHours models.BusinessHours `json:"business_hours"`
	Holidays      models.DateList      `json:"holidays"`
}

// UpdateBranchRequest describes branch update payload.
type UpdateBranchRequest struct {
	Name          *string               `json:"name"`
	Address       *string               `json:"address"`
	City          *string               `json:"city"`
	State         *string               `json:"state"`
	Pincode       *string               `json:"pincode"`
	Phone         *string               `json:"phone"`
	Email         *string               `json:"email" validate:"omitempty,email"`
	ManagerID     *string               `json:"manager_id"`
	BusinessHours *models.BusinessHours `json:"business_hours"`
	Holidays      *models.DateList      `json:"holidays"`
	Active        *bool                 `json:"is_active"`
}

// BranchService orchestrates branch management.
type BranchService struct {
	repo      branchRepository
	users     branchUserCounter
	resolver  *scope.Resolver
	audit     *ActivityService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewBranchService constructs BranchService.
func NewBranchService(repo branchRepository, users branchUserCounter, resolver *scope.Resolver, audit *ActivityService, validate *validator.Validate, logger *zap.Logger) *BranchService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BranchService{repo: repo, users: users, resolver: resolver, audit: audit, validator: validate, logger: logger}
}

// List returns branches visible to the actor. Branch-bound actors see only
// their own branch.
func (s *BranchService) List(ctx context.Context, actor scope.Actor, filter models.BranchFilter) ([]models.Branch, *models.Pagination, error) {
	scoped, err := s.resolver.Resolve(actor, scope.ResourceBranches, scope.ActionRead, scope.Filters{})
	if err != nil {
		return nil, nil, err
	}

	if scoped.BranchID != "" {
		branch, err := s.findBranch(ctx, scoped.BranchID)
		if err != nil {
			return nil, nil, err
		}
		return []models.Branch{*branch}, &models.Pagination{Skip: 0, Limit: 1, Total: 1}, nil
	}

	branches, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list branches")
	}
	return branches, &models.Pagination{Skip: filter.Skip, Limit: filter.Limit, Total: total}, nil
}

// Get returns a branch if it falls inside the actor's scope.
func (s *BranchService) Get(ctx context.Context, actor scope.Actor, id string) (*models.Branch, error) {
	if _, err := s.resolver.Resolve(actor, scope.ResourceBranches, scope.ActionRead, scope.Filters{BranchID: id}); err != nil {
		return nil, err
	}
	return s.findBranch(ctx, id)
}

// Create registers a new branch.
func (s *BranchService) Create(ctx context.Context, actor scope.Actor, req CreateBranchRequest) (*models.Branch, error) {
	if _, err := s.resolver.Resolve(actor, scope.ResourceBranches, scope.ActionCreate, scope.Filters{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid branch payload")
	}

	branch := &models.Branch{
		Name:          req.Name,
		Address:       req.Address,
		City:          req.City,
		State:         req.State,
		Pincode:       req.Pincode,
		Phone:         req.Phone,
		Email:         req.Email,
		ManagerID:     req.ManagerID,
		BusinessHours: req.BusinessHours,
		Holidays:      req.Holidays,
		Active:        true,
	}
	if err := s.repo.Create(ctx, branch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create branch")
	}

	if s.audit != nil {
		s.audit.Record(&actor.ID, models.ActivityCreate, "branches", &branch.ID, nil)
	}
	return branch, nil
}

// Update modifies a branch.
func (s *BranchService) Update(ctx context.Context, actor scope.Actor, id string, req UpdateBranchRequest) (*models.Branch, error) {
	if _, err := s.resolver.Resolve(actor, scope.ResourceBranches, scope.ActionUpdate, scope.Filters{BranchID: id}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid branch payload")
	}

	branch, err := s.findBranch(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		branch.Name = *req.Name
	}
	if req.Address != nil {
		branch.Address = *req.Address
	}
	if req.City != nil {
		branch.City = *req.City
	}
	if req.State != nil {
		branch.State = *req.State
	}
	if req.Pincode != nil {
		branch.Pincode = *req.Pincode
	}
	if req.Phone != nil {
		branch.Phone = *req.Phone
	}
	if req.Email != nil {
		branch.Email = *req.Email
	}
	if req.ManagerID != nil {
		branch.ManagerID = req.ManagerID
	}
	if req.BusinessHours != nil {
		branch.BusinessHours = *req.BusinessHours
	}
	if req.Holidays != nil {
		branch.Holidays = *req.Holidays
	}
	if req.Active != nil {
		branch.Active = *req.Active
	}

	if err := s.repo.Update(ctx, branch); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "branch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update branch")
	}

	if s.audit != nil {
		s.audit.Record(&actor.ID, models.ActivityUpdate, "branches", &branch.ID, nil)
	}
	return branch, nil
}

// Delete removes a branch. A branch that still has users attached cannot
// be deleted.
func (s *BranchService) Delete(ctx context.Context, actor scope.Actor, id string) error {
	if _, err := s.resolver.Resolve(actor, scope.ResourceBranches, scope.ActionDelete, scope.Filters{}); err != nil {
		return err
	}

	count, err := s.users.CountByBranch(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count branch users")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "branch still has users assigned")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "branch not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete branch")
	}

	if s.audit != nil {
		s.audit.Record(&actor.ID, models.ActivityDelete, "branches", &id, nil)
	}
	return nil
}

func (s *BranchService) findBranch(ctx context.Context, id string) (*models.Branch, error) {
	branch, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "branch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load branch")
	}
	return branch, nil
}
