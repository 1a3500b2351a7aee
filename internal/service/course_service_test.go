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

type mockCourseRepo struct {
	courses map[string]*models.Course
	deleted []string
	updated *models.Course
}

func (m *mockCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	course, ok := m.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return course, nil
}

func (m *mockCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	out := make([]models.Course, 0, len(m.courses))
	for _, course := range m.courses {
		out = append(out, *course)
	}
	return out, len(out), nil
}

func (m *mockCourseRepo) Create(ctx context.Context, course *models.Course) error {
	course.ID = "c-new"
	return nil
}

func (m *mockCourseRepo) Update(ctx context.Context, course *models.Course) error {
	if _, ok := m.courses[course.ID]; !ok {
		return sql.ErrNoRows
	}
	m.updated = course
	return nil
}

func (m *mockCourseRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.courses[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.courses, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type mockCourseEnrollments struct {
	count int
}

func (m *mockCourseEnrollments) CountActiveByCourse(ctx context.Context, courseID string) (int, error) {
	return m.count, nil
}

func newTestCourseService(repo *mockCourseRepo, enrollments *mockCourseEnrollments) *CourseService {
	return NewCourseService(repo, enrollments, scope.NewResolver(nil), nil, nil, nil)
}

func TestCourseDeleteBlockedWithActiveEnrollments(t *testing.T) {
	repo := &mockCourseRepo{courses: map[string]*models.Course{"c1": {ID: "c1", Name: "Chess"}}}
	svc := newTestCourseService(repo, &mockCourseEnrollments{count: 2})

	err := svc.Delete(context.Background(), scope.Actor{ID: "a1", Role: models.RoleSuperAdmin}, "c1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.deleted)
}

func TestCourseDeleteWithoutEnrollments(t *testing.T) {
	repo := &mockCourseRepo{courses: map[string]*models.Course{"c1": {ID: "c1", Name: "Chess"}}}
	svc := newTestCourseService(repo, &mockCourseEnrollments{})

	err := svc.Delete(context.Background(), scope.Actor{ID: "a1", Role: models.RoleSuperAdmin}, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, repo.deleted)
}

func TestCourseDeleteDeniedForBranchAdmin(t *testing.T) {
	repo := &mockCourseRepo{courses: map[string]*models.Course{"c1": {ID: "c1"}}}
	svc := newTestCourseService(repo, &mockCourseEnrollments{})

	err := svc.Delete(context.Background(), coachAdminActor("b1"), "c1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestBranchAdminPricingLimitedToOwnBranch(t *testing.T) {
	repo := &mockCourseRepo{courses: map[string]*models.Course{"c1": {ID: "c1", Name: "Chess", BaseFee: 1000}}}
	svc := newTestCourseService(repo, &mockCourseEnrollments{})

	foreign := models.PriceMap{"b2": 1500}
	_, err := svc.Update(context.Background(), coachAdminActor("b1"), "c1", UpdateCourseRequest{BranchPricing: &foreign})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	own := models.PriceMap{"b1": 1200}
	course, err := svc.Update(context.Background(), coachAdminActor("b1"), "c1", UpdateCourseRequest{BranchPricing: &own})
	require.NoError(t, err)
	assert.Equal(t, 1200.0, course.BranchPricing["b1"])
}

func TestBranchAdminCannotChangeCourseFields(t *testing.T) {
	repo := &mockCourseRepo{courses: map[string]*models.Course{"c1": {ID: "c1", Name: "Chess"}}}
	svc := newTestCourseService(repo, &mockCourseEnrollments{})

	name := "Advanced Chess"
	_, err := svc.Update(context.Background(), coachAdminActor("b1"), "c1", UpdateCourseRequest{Name: &name})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
