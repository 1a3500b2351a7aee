package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edumanage/academy-api/internal/models"
	"github.com/edumanage/academy-api/internal/scope"
	appErrors "github.com/edumanage/academy-api/pkg/errors"
)

type mockEnrollmentRepo struct {
	enrollment     *models.Enrollment
	created        *models.Enrollment
	createdLedger  []models.Payment
	deactivated    []string
	deactivateErr  error
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if m.enrollment == nil || m.enrollment.ID != id {
		return nil, sql.ErrNoRows
	}
	return m.enrollment, nil
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	return nil, 0, nil
}

func (m *mockEnrollmentRepo) CreateWithPayments(ctx context.Context, enrollment *models.Enrollment, payments []models.Payment) error {
	enrollment.ID = "e-new"
	m.created = enrollment
	m.createdLedger = payments
	return nil
}

func (m *mockEnrollmentRepo) UpdatePaymentStatus(ctx context.Context, id string, status models.EnrollmentPaymentStatus, nextDue *time.Time) error {
	return nil
}

func (m *mockEnrollmentRepo) Deactivate(ctx context.Context, id string) error {
	if m.deactivateErr != nil {
		return m.deactivateErr
	}
	m.deactivated = append(m.deactivated, id)
	return nil
}

func newTestEnrollmentService(repo *mockEnrollmentRepo, student *models.User, course *models.Course) *EnrollmentService {
	students := &mockStudentReader{user: student}
	courses := &mockCourseReader{course: course}
	return NewEnrollmentService(repo, students, courses, scope.NewResolver(nil), nil, nil, nil, nil, 500)
}

func activeStudent(branchID string) *models.User {
	return &models.User{ID: "s1", FullName: "Sam Student", Role: models.RoleStudent, BranchID: &branchID, Active: true}
}

func TestEnrollOpensAdmissionAndCourseFee(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	course := &models.Course{
		ID:             "c1",
		DurationMonths: 6,
		BaseFee:        1000,
		BranchPricing:  models.PriceMap{"b1": 1200},
		Active:         true,
	}
	svc := newTestEnrollmentService(repo, activeStudent("b1"), course)
	start := time.Now().UTC().AddDate(0, 0, 1)

	enrollment, err := svc.Enroll(context.Background(), scope.Actor{ID: "a1", Role: models.RoleSuperAdmin}, EnrollStudentRequest{
		StudentID: "s1",
		CourseID:  "c1",
		BranchID:  "b1",
		StartDate: start,
	})
	require.NoError(t, err)
	assert.Equal(t, 1200.0, enrollment.FeeAmount)
	assert.Equal(t, 500.0, enrollment.AdmissionFee)
	assert.Equal(t, models.EnrollmentPaymentPending, enrollment.PaymentStatus)
	assert.True(t, enrollment.Active)
	assert.Equal(t, start.AddDate(0, 6, 0), enrollment.EndDate)

	require.Len(t, repo.createdLedger, 2)
	assert.Equal(t, models.PaymentTypeAdmissionFee, repo.createdLedger[0].PaymentType)
	assert.Equal(t, 500.0, repo.createdLedger[0].Amount)
	assert.Equal(t, models.PaymentTypeCourseFee, repo.createdLedger[1].PaymentType)
	assert.Equal(t, 1200.0, repo.createdLedger[1].Amount)
	assert.Equal(t, models.PaymentPending, repo.createdLedger[1].PaymentStatus)
}

func TestEnrollFallsBackToBaseFee(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	course := &models.Course{ID: "c1", DurationMonths: 3, BaseFee: 900, Active: true}
	svc := newTestEnrollmentService(repo, activeStudent("b2"), course)

	enrollment, err := svc.Enroll(context.Background(), scope.Actor{ID: "a1", Role: models.RoleSuperAdmin}, EnrollStudentRequest{
		StudentID: "s1",
		CourseID:  "c1",
		BranchID:  "b2",
		StartDate: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Equal(t, 900.0, enrollment.FeeAmount)
}

func TestEnrollRejectsWrongBranchStudent(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	course := &models.Course{ID: "c1", DurationMonths: 3, BaseFee: 900, Active: true}
	svc := newTestEnrollmentService(repo, activeStudent("b2"), course)

	_, err := svc.Enroll(context.Background(), scope.Actor{ID: "a1", Role: models.RoleSuperAdmin}, EnrollStudentRequest{
		StudentID: "s1",
		CourseID:  "c1",
		BranchID:  "b1",
		StartDate: time.Now().UTC(),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestEnrollRejectsInactiveCourse(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	course := &models.Course{ID: "c1", DurationMonths: 3, BaseFee: 900, Active: false}
	svc := newTestEnrollmentService(repo, activeStudent("b1"), course)

	_, err := svc.Enroll(context.Background(), scope.Actor{ID: "a1", Role: models.RoleSuperAdmin}, EnrollStudentRequest{
		StudentID: "s1",
		CourseID:  "c1",
		BranchID:  "b1",
		StartDate: time.Now().UTC(),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestEnrollRejectsNonStudent(t *testing.T) {
	branchID := "b1"
	repo := &mockEnrollmentRepo{}
	coach := &models.User{ID: "s1", Role: models.RoleCoach, BranchID: &branchID, Active: true}
	course := &models.Course{ID: "c1", DurationMonths: 3, BaseFee: 900, Active: true}
	svc := newTestEnrollmentService(repo, coach, course)

	_, err := svc.Enroll(context.Background(), scope.Actor{ID: "a1", Role: models.RoleSuperAdmin}, EnrollStudentRequest{
		StudentID: "s1",
		CourseID:  "c1",
		BranchID:  "b1",
		StartDate: time.Now().UTC(),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestEnrollCoachAdminForcedToOwnBranch(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	course := &models.Course{ID: "c1", DurationMonths: 3, BaseFee: 900, Active: true}
	svc := newTestEnrollmentService(repo, activeStudent("b1"), course)

	_, err := svc.Enroll(context.Background(), coachAdminActor("b1"), EnrollStudentRequest{
		StudentID: "s1",
		CourseID:  "c1",
		BranchID:  "b2",
		StartDate: time.Now().UTC(),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestDeactivateEnrollment(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollment: &models.Enrollment{ID: "e1", StudentID: "s1", BranchID: "b1", Active: true}}
	svc := newTestEnrollmentService(repo, activeStudent("b1"), &models.Course{ID: "c1", Active: true})

	err := svc.Deactivate(context.Background(), coachAdminActor("b1"), "e1")
	require.NoError(t, err)
	assert.Equal(t, []string{"e1"}, repo.deactivated)
}
