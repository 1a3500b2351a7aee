package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/edumanage/academy-api/internal/models"
	"github.com/edumanage/academy-api/internal/scope"
	appErrors "github.com/edumanage/academy-api/pkg/errors"
)

type userRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	ExistsByEmailOrPhone(ctx context.Context, email, phone string) (bool, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Deactivate(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, id, passwordHash string, mustChange bool) error
}

type userBranchReader interface {
	FindByID(ctx context.Context, id string) (*models.Branch, error)
}

// CreateUserRequest describes user creation payload.
type CreateUserRequest struct {
	Email    string          `json:"email" validate:"required,email"`
	Phone    string          `json:"phone" validate:"required"`
	FullName string          `json:"full_name" validate:"required"`
	Role     models.UserRole `json:"role" validate:"required"`
	BranchID *string         `json:"branch_id"`
	Password string          `json:"password" validate:"required,min=8"`
}

// UpdateUserRequest describes user update payload.
type UpdateUserRequest struct {
	Email    *string `json:"email" validate:"omitempty,email"`
	Phone    *string `json:"phone"`
	FullName *string `json:"full_name"`
	BranchID *string `json:"branch_id"`
	Active   *bool   `json:"is_active"`
}

// ResetPasswordRequest sets a temporary password for another user.
type ResetPasswordRequest struct {
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

// UserService orchestrates user management.
type UserService struct {
	repo      userRepository
	branches  userBranchReader
	resolver  *scope.Resolver
	audit     *ActivityService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs UserService.
func NewUserService(repo userRepository, branches userBranchReader, resolver *scope.Resolver, audit *ActivityService, validate *validator.Validate, logger *zap.Logger) *UserService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, branches: branches, resolver: resolver, audit: audit, validator: validate, logger: logger}
}

// List returns users visible to the actor.
func (s *UserService) List(ctx context.Context, actor scope.Actor, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	scoped, err := s.resolver.Resolve(actor, scope.ResourceUsers, scope.ActionRead, scope.Filters{BranchID: filter.BranchID})
	if err != nil {
		return nil, nil, err
	}
	filter.BranchID = scoped.BranchID

	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, &models.Pagination{Skip: filter.Skip, Limit: filter.Limit, Total: total}, nil
}

// Get returns one user if the actor may see them. Students may only fetch
// themselves; branch staff only users of their branch.
func (s *UserService) Get(ctx context.Context, actor scope.Actor, id string) (*models.User, error) {
	if actor.Role == models.RoleStudent && actor.ID != id {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot access another student's data")
	}
	user, err := s.findUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleCoachAdmin || actor.Role == models.RoleCoach {
		if actor.BranchID == nil || user.BranchID == nil || *user.BranchID != *actor.BranchID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot access another branch")
		}
	}
	return user, nil
}

// Create registers a new user. Only super admins may create users; every
// non super_admin user must carry a branch.
func (s *UserService) Create(ctx context.Context, actor scope.Actor, req CreateUserRequest) (*models.User, error) {
	if _, err := s.resolver.Resolve(actor, scope.ResourceUsers, scope.ActionCreate, scope.Filters{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}
	if !req.Role.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown role")
	}
	if req.Role != models.RoleSuperAdmin {
		if req.BranchID == nil || *req.BranchID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "branch_id is required for this role")
		}
		if _, err := s.branches.FindByID(ctx, *req.BranchID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "branch not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load branch")
		}
	}

	exists, err := s.repo.ExistsByEmailOrPhone(ctx, req.Email, req.Phone)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate user")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email or phone already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:              req.Email,
		Phone:              req.Phone,
		FullName:           req.FullName,
		Role:               req.Role,
		BranchID:           req.BranchID,
		Active:             true,
		PasswordHash:       string(hash),
		MustChangePassword: true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	if s.audit != nil {
		s.audit.Record(&actor.ID, models.ActivityCreate, "users", &user.ID, map[string]string{"role": string(user.Role)})
	}
	return user, nil
}

// Update modifies a user's profile fields.
func (s *UserService) Update(ctx context.Context, actor scope.Actor, id string, req UpdateUserRequest) (*models.User, error) {
	scoped, err := s.resolver.Resolve(actor, scope.ResourceUsers, scope.ActionUpdate, scope.Filters{})
	if err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	user, err := s.findUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if scoped.BranchID != "" {
		if user.BranchID == nil || *user.BranchID != scoped.BranchID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "user belongs to another branch")
		}
		if req.BranchID != nil && *req.BranchID != scoped.BranchID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot move a user to another branch")
		}
	}

	if req.Email != nil {
		user.Email = *req.Email
	}
	if req.Phone != nil {
		user.Phone = *req.Phone
	}
	if req.FullName != nil {
		user.FullName = *req.FullName
	}
	if req.BranchID != nil {
		if user.Role == models.RoleSuperAdmin {
			return nil, appErrors.Clone(appErrors.ErrValidation, "super admins do not belong to a branch")
		}
		if _, err := s.branches.FindByID(ctx, *req.BranchID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "branch not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load branch")
		}
		user.BranchID = req.BranchID
	}
	if req.Active != nil {
		user.Active = *req.Active
	}

	if err := s.repo.Update(ctx, user); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	if s.audit != nil {
		s.audit.Record(&actor.ID, models.ActivityUpdate, "users", &user.ID, nil)
	}
	return user, nil
}

// Deactivate soft-disables a user.
func (s *UserService) Deactivate(ctx context.Context, actor scope.Actor, id string) error {
	if _, err := s.resolver.Resolve(actor, scope.ResourceUsers, scope.ActionDelete, scope.Filters{}); err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate user")
	}
	if s.audit != nil {
		s.audit.Record(&actor.ID, models.ActivityStatusChange, "users", &id, map[string]string{"is_active": "false"})
	}
	return nil
}

// ResetPassword sets a temporary password for a user; they must change it
// at next login.
func (s *UserService) ResetPassword(ctx context.Context, actor scope.Actor, id string, req ResetPasswordRequest) error {
	scoped, err := s.resolver.Resolve(actor, scope.ResourceUsers, scope.ActionUpdate, scope.Filters{})
	if err != nil {
		return err
	}
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid password payload")
	}
	target, err := s.findUser(ctx, id)
	if err != nil {
		return err
	}
	if target.Role == models.RoleSuperAdmin && target.ID != actor.ID {
		return appErrors.Clone(appErrors.ErrForbidden, "cannot reset another super admin's password")
	}
	if scoped.BranchID != "" && (target.BranchID == nil || *target.BranchID != scoped.BranchID) {
		return appErrors.Clone(appErrors.ErrForbidden, "user belongs to another branch")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	if err := s.repo.UpdatePassword(ctx, id, string(hash), true); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset password")
	}
	if s.audit != nil {
		s.audit.Record(&actor.ID, models.ActivityPasswordSet, "users", &id, nil)
	}
	return nil
}

func (s *UserService) findUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}
