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

type mockComplaintRepo struct {
	complaints map[string]*models.Complaint
	rating     *models.CoachRating
	updated    *models.ComplaintStatus
}

func (m *mockComplaintRepo) FindByID(ctx context.Context, id string) (*models.Complaint, error) {
	c, ok := m.complaints[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return c, nil
}

func (m *mockComplaintRepo) List(ctx context.Context, filter models.ComplaintFilter) ([]models.Complaint, int, error) {
	var out []models.Complaint
	for _, c := range m.complaints {
		if filter.StudentID != "" && c.StudentID != filter.StudentID {
			continue
		}
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (m *mockComplaintRepo) Create(ctx context.Context, complaint *models.Complaint) error {
	complaint.ID = "cmp-new"
	return nil
}

func (m *mockComplaintRepo) UpdateStatus(ctx context.Context, id string, status models.ComplaintStatus, assignedTo, resolution *string) error {
	c, ok := m.complaints[id]
	if !ok {
		return sql.ErrNoRows
	}
	c.Status = status
	if resolution != nil {
		c.Resolution = resolution
	}
	m.updated = &status
	return nil
}

func (m *mockComplaintRepo) CreateRating(ctx context.Context, rating *models.CoachRating) error {
	rating.ID = "rt-new"
	m.rating = rating
	return nil
}

func (m *mockComplaintRepo) ListRatings(ctx context.Context, coachID string) ([]models.CoachRating, error) {
	return []models.CoachRating{{ID: "rt1", CoachID: coachID, Rating: 4}}, nil
}

func (m *mockComplaintRepo) RatingSummary(ctx context.Context, coachID string) (*models.CoachRatingSummary, error) {
	return &models.CoachRatingSummary{CoachID: coachID, Average: 4, Count: 1}, nil
}

type mockComplaintUsers struct {
	users map[string]*models.User
}

func (m *mockComplaintUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func newTestComplaintService(repo *mockComplaintRepo, users *mockComplaintUsers) *ComplaintService {
	return NewComplaintService(repo, users, nil, scope.NewResolver(nil), nil, nil)
}

func TestCreateComplaintFromActor(t *testing.T) {
	repo := &mockComplaintRepo{}
	svc := newTestComplaintService(repo, &mockComplaintUsers{})

	complaint, err := svc.Create(context.Background(), studentActor("s1", "b1"), CreateComplaintRequest{
		Subject:     "Broken equipment",
		Description: "The mats in hall two are torn.",
		Category:    "facility",
	})
	require.NoError(t, err)
	assert.Equal(t, "s1", complaint.StudentID)
	assert.Equal(t, "b1", complaint.BranchID)
	assert.Equal(t, models.ComplaintOpen, complaint.Status)
	assert.Equal(t, "medium", complaint.Priority)
}

func TestCreateComplaintDeniedForCoach(t *testing.T) {
	branchID := "b1"
	svc := newTestComplaintService(&mockComplaintRepo{}, &mockComplaintUsers{})

	_, err := svc.Create(context.Background(), scope.Actor{ID: "c1", Role: models.RoleCoach, BranchID: &branchID}, CreateComplaintRequest{
		Subject:     "x",
		Description: "y",
		Category:    "facility",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestCreateComplaintAgainstNonCoach(t *testing.T) {
	users := &mockComplaintUsers{users: map[string]*models.User{
		"u1": {ID: "u1", Role: models.RoleStudent},
	}}
	svc := newTestComplaintService(&mockComplaintRepo{}, users)

	coachID := "u1"
	_, err := svc.Create(context.Background(), studentActor("s1", "b1"), CreateComplaintRequest{
		Subject:     "Rude behaviour",
		Description: "details",
		Category:    "coach",
		CoachID:     &coachID,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestResolveComplaintRequiresNote(t *testing.T) {
	repo := &mockComplaintRepo{complaints: map[string]*models.Complaint{
		"cmp1": {ID: "cmp1", StudentID: "s1", BranchID: "b1", Status: models.ComplaintInProgress},
	}}
	svc := newTestComplaintService(repo, &mockComplaintUsers{})

	_, err := svc.UpdateStatus(context.Background(), coachAdminActor("b1"), "cmp1", UpdateComplaintRequest{
		Status: models.ComplaintResolved,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	note := "replaced the mats"
	complaint, err := svc.UpdateStatus(context.Background(), coachAdminActor("b1"), "cmp1", UpdateComplaintRequest{
		Status:     models.ComplaintResolved,
		Resolution: &note,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ComplaintResolved, complaint.Status)
	require.NotNil(t, complaint.Resolution)
	assert.Equal(t, note, *complaint.Resolution)
}

func TestUpdateComplaintCrossBranchDenied(t *testing.T) {
	repo := &mockComplaintRepo{complaints: map[string]*models.Complaint{
		"cmp1": {ID: "cmp1", StudentID: "s1", BranchID: "b2", Status: models.ComplaintOpen},
	}}
	svc := newTestComplaintService(repo, &mockComplaintUsers{})

	_, err := svc.UpdateStatus(context.Background(), coachAdminActor("b1"), "cmp1", UpdateComplaintRequest{
		Status: models.ComplaintInProgress,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestListComplaintsStudentSeesOwn(t *testing.T) {
	repo := &mockComplaintRepo{complaints: map[string]*models.Complaint{
		"cmp1": {ID: "cmp1", StudentID: "s1", BranchID: "b1"},
		"cmp2": {ID: "cmp2", StudentID: "s2", BranchID: "b1"},
	}}
	svc := newTestComplaintService(repo, &mockComplaintUsers{})

	complaints, _, err := svc.List(context.Background(), studentActor("s1", "b1"), models.ComplaintFilter{})
	require.NoError(t, err)
	require.Len(t, complaints, 1)
	assert.Equal(t, "s1", complaints[0].StudentID)
}

func TestRateCoach(t *testing.T) {
	repo := &mockComplaintRepo{}
	users := &mockComplaintUsers{users: map[string]*models.User{
		"c1": {ID: "c1", Role: models.RoleCoach},
	}}
	svc := newTestComplaintService(repo, users)

	review := "great sessions"
	rating, err := svc.RateCoach(context.Background(), studentActor("s1", "b1"), RateCoachRequest{
		CoachID: "c1",
		Rating:  5,
		Review:  &review,
	})
	require.NoError(t, err)
	assert.Equal(t, "s1", rating.StudentID)
	assert.Equal(t, "b1", rating.BranchID)
	assert.Equal(t, 5, rating.Rating)
}

func TestRateCoachOutOfRange(t *testing.T) {
	users := &mockComplaintUsers{users: map[string]*models.User{
		"c1": {ID: "c1", Role: models.RoleCoach},
	}}
	svc := newTestComplaintService(&mockComplaintRepo{}, users)

	_, err := svc.RateCoach(context.Background(), studentActor("s1", "b1"), RateCoachRequest{CoachID: "c1", Rating: 6})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCoachRatingsUnknownCoach(t *testing.T) {
	svc := newTestComplaintService(&mockComplaintRepo{}, &mockComplaintUsers{})

	_, _, err := svc.CoachRatings(context.Background(), coachAdminActor("b1"), "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
