package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edumanage/academy-api/internal/models"
	"github.com/edumanage/academy-api/internal/scope"
	appErrors "github.com/edumanage/academy-api/pkg/errors"
)

type mockUserRepo struct {
	users         map[string]*models.User
	updated       *models.User
	passwordSetTo string
	mustChange    bool
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (m *mockUserRepo) ExistsByEmailOrPhone(ctx context.Context, email, phone string) (bool, error) {
	return false, nil
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	return nil, 0, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	user.ID = "u-new"
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.User) error {
	if _, ok := m.users[user.ID]; !ok {
		return sql.ErrNoRows
	}
	m.updated = user
	return nil
}

func (m *mockUserRepo) Deactivate(ctx context.Context, id string) error {
	if _, ok := m.users[id]; !ok {
		return sql.ErrNoRows
	}
	return nil
}

func (m *mockUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string, mustChange bool) error {
	if _, ok := m.users[id]; !ok {
		return sql.ErrNoRows
	}
	m.passwordSetTo = passwordHash
	m.mustChange = mustChange
	return nil
}

type mockUserBranchReader struct{}

func (m *mockUserBranchReader) FindByID(ctx context.Context, id string) (*models.Branch, error) {
	return &models.Branch{ID: id}, nil
}

func newTestUserService(repo *mockUserRepo) *UserService {
	return NewUserService(repo, &mockUserBranchReader{}, scope.NewResolver(nil), nil, nil, nil)
}

func branchRef(id string) *string { return &id }

func TestResetPasswordByBranchAdminSameBranch(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{
		"s1": {ID: "s1", Role: models.RoleStudent, BranchID: branchRef("b1")},
	}}
	svc := newTestUserService(repo)

	err := svc.ResetPassword(context.Background(), coachAdminActor("b1"), "s1", ResetPasswordRequest{NewPassword: "temp-secret-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, repo.passwordSetTo)
	assert.True(t, repo.mustChange)
}

func TestResetPasswordByBranchAdminCrossBranch(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{
		"s1": {ID: "s1", Role: models.RoleStudent, BranchID: branchRef("b2")},
	}}
	svc := newTestUserService(repo)

	err := svc.ResetPassword(context.Background(), coachAdminActor("b1"), "s1", ResetPasswordRequest{NewPassword: "temp-secret-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.passwordSetTo)
}

func TestResetPasswordOnSuperAdminTarget(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{
		"root": {ID: "root", Role: models.RoleSuperAdmin},
	}}
	svc := newTestUserService(repo)

	err := svc.ResetPassword(context.Background(), coachAdminActor("b1"), "root", ResetPasswordRequest{NewPassword: "temp-secret-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestUpdateByBranchAdminStaysInBranch(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{
		"s1": {ID: "s1", Role: models.RoleStudent, BranchID: branchRef("b1")},
		"s2": {ID: "s2", Role: models.RoleStudent, BranchID: branchRef("b2")},
	}}
	svc := newTestUserService(repo)
	name := "Asha Rao"

	user, err := svc.Update(context.Background(), coachAdminActor("b1"), "s1", UpdateUserRequest{FullName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", user.FullName)

	_, err = svc.Update(context.Background(), coachAdminActor("b1"), "s2", UpdateUserRequest{FullName: &name})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.Update(context.Background(), coachAdminActor("b1"), "s1", UpdateUserRequest{BranchID: branchRef("b2")})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestCreateUserDeniedForBranchAdmin(t *testing.T) {
	svc := newTestUserService(&mockUserRepo{users: map[string]*models.User{}})

	_, err := svc.Create(context.Background(), coachAdminActor("b1"), CreateUserRequest{
		Email:    "new@academy.test",
		Phone:    "9999999999",
		FullName: "New Coach",
		Role:     models.RoleCoach,
		BranchID: branchRef("b1"),
		Password: "secret-pass-1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
