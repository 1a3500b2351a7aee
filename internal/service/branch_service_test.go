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

type mockBranchRepo struct {
	branches map[string]*models.Branch
	deleted  []string
}

func (m *mockBranchRepo) FindByID(ctx context.Context, id string) (*models.Branch, error) {
	branch, ok := m.branches[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return branch, nil
}

func (m *mockBranchRepo) List(ctx context.Context, filter models.BranchFilter) ([]models.Branch, int, error) {
	out := make([]models.Branch, 0, len(m.branches))
	for _, branch := range m.branches {
		out = append(out, *branch)
	}
	return out, len(out), nil
}

func (m *mockBranchRepo) Create(ctx context.Context, branch *models.Branch) error {
	branch.ID = "b-new"
	return nil
}

func (m *mockBranchRepo) Update(ctx context.Context, branch *models.Branch) error {
	if _, ok := m.branches[branch.ID]; !ok {
		return sql.ErrNoRows
	}
	m.branches[branch.ID] = branch
	return nil
}

func (m *mockBranchRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.branches[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.branches, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type mockBranchUsers struct {
	count int
}

func (m *mockBranchUsers) CountByBranch(ctx context.Context, branchID string) (int, error) {
	return m.count, nil
}

func newTestBranchService(repo *mockBranchRepo, users *mockBranchUsers) *BranchService {
	return NewBranchService(repo, users, scope.NewResolver(nil), nil, nil, nil)
}

func TestBranchDeleteBlockedWhileUsersAssigned(t *testing.T) {
	repo := &mockBranchRepo{branches: map[string]*models.Branch{"b1": {ID: "b1", Name: "North"}}}
	svc := newTestBranchService(repo, &mockBranchUsers{count: 3})

	err := svc.Delete(context.Background(), scope.Actor{ID: "a1", Role: models.RoleSuperAdmin}, "b1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.deleted)
}

func TestBranchDeleteEmptyBranch(t *testing.T) {
	repo := &mockBranchRepo{branches: map[string]*models.Branch{"b1": {ID: "b1", Name: "North"}}}
	svc := newTestBranchService(repo, &mockBranchUsers{})

	err := svc.Delete(context.Background(), scope.Actor{ID: "a1", Role: models.RoleSuperAdmin}, "b1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b1"}, repo.deleted)
}

func TestBranchDeleteDeniedForBranchAdmin(t *testing.T) {
	repo := &mockBranchRepo{branches: map[string]*models.Branch{"b1": {ID: "b1"}}}
	svc := newTestBranchService(repo, &mockBranchUsers{})

	err := svc.Delete(context.Background(), coachAdminActor("b1"), "b1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.deleted)
}

func TestBranchListScopedToOwnBranch(t *testing.T) {
	repo := &mockBranchRepo{branches: map[string]*models.Branch{
		"b1": {ID: "b1", Name: "North"},
		"b2": {ID: "b2", Name: "South"},
	}}
	svc := newTestBranchService(repo, &mockBranchUsers{})

	branches, page, err := svc.List(context.Background(), coachAdminActor("b1"), models.BranchFilter{})
	require.NoError(t, err)
	require.Len(t, branches, 1)
	assert.Equal(t, "b1", branches[0].ID)
	assert.Equal(t, 1, page.Total)
}

func TestBranchCreateValidatesPayload(t *testing.T) {
	svc := newTestBranchService(&mockBranchRepo{branches: map[string]*models.Branch{}}, &mockBranchUsers{})

	_, err := svc.Create(context.Background(), scope.Actor{ID: "a1", Role: models.RoleSuperAdmin}, CreateBranchRequest{
		Name: "North",
		City: "Pune",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
