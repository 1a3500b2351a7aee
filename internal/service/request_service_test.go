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

type mockRequestRepo struct {
	courseChanges map[string]*models.CourseChangeRequest
	transfers     map[string]*models.TransferRequest
	resources     map[string]*models.ResourceRequest
	decided       models.RequestStatus
	decideOK      bool
}

func (m *mockRequestRepo) CreateCourseChange(ctx context.Context, req *models.CourseChangeRequest) error {
	req.ID = "cc-new"
	return nil
}

func (m *mockRequestRepo) FindCourseChange(ctx context.Context, id string) (*models.CourseChangeRequest, error) {
	req, ok := m.courseChanges[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return req, nil
}

func (m *mockRequestRepo) ListCourseChanges(ctx context.Context, filter models.RequestFilter) ([]models.CourseChangeRequest, error) {
	return nil, nil
}

func (m *mockRequestRepo) DecideCourseChange(ctx context.Context, id string, status models.RequestStatus, decidedBy string, decidedAt time.Time) (bool, error) {
	m.decided = status
	if m.decideOK {
		m.courseChanges[id].Status = status
	}
	return m.decideOK, nil
}

func (m *mockRequestRepo) CreateTransfer(ctx context.Context, req *models.TransferRequest) error {
	req.ID = "tr-new"
	return nil
}

func (m *mockRequestRepo) FindTransfer(ctx context.Context, id string) (*models.TransferRequest, error) {
	req, ok := m.transfers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return req, nil
}

func (m *mockRequestRepo) ListTransfers(ctx context.Context, filter models.RequestFilter) ([]models.TransferRequest, error) {
	return nil, nil
}

func (m *mockRequestRepo) DecideTransfer(ctx context.Context, id string, status models.RequestStatus, decidedBy string, decidedAt time.Time) (bool, error) {
	m.decided = status
	if m.decideOK {
		m.transfers[id].Status = status
	}
	return m.decideOK, nil
}

func (m *mockRequestRepo) CreateResourceRequest(ctx context.Context, req *models.ResourceRequest) error {
	req.ID = "rr-new"
	return nil
}

func (m *mockRequestRepo) FindResourceRequest(ctx context.Context, id string) (*models.ResourceRequest, error) {
	req, ok := m.resources[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return req, nil
}

func (m *mockRequestRepo) ListResourceRequests(ctx context.Context, filter models.RequestFilter) ([]models.ResourceRequest, error) {
	return nil, nil
}

func (m *mockRequestRepo) DecideResourceRequest(ctx context.Context, id string, status models.RequestStatus, decidedBy string, decidedAt time.Time) (bool, error) {
	m.decided = status
	if m.decideOK {
		m.resources[id].Status = status
	}
	return m.decideOK, nil
}

type mockRequestEnrollments struct {
	enrollments map[string]*models.Enrollment
}

func (m *mockRequestEnrollments) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	e, ok := m.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return e, nil
}

type mockRequestUsers struct {
	movedTo string
}

func (m *mockRequestUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	return &models.User{ID: id}, nil
}

func (m *mockRequestUsers) UpdateBranch(ctx context.Context, id, branchID string) error {
	m.movedTo = branchID
	return nil
}

type mockWorkflow struct {
	deactivated string
	enrolled    *EnrollStudentRequest
}

func (m *mockWorkflow) Enroll(ctx context.Context, actor scope.Actor, req EnrollStudentRequest) (*models.Enrollment, error) {
	m.enrolled = &req
	return &models.Enrollment{ID: "enr-new"}, nil
}

func (m *mockWorkflow) Deactivate(ctx context.Context, actor scope.Actor, id string) error {
	m.deactivated = id
	return nil
}

func newTestRequestService(repo *mockRequestRepo, enrollments *mockRequestEnrollments, users *mockRequestUsers, workflow *mockWorkflow) *RequestService {
	return NewRequestService(repo, enrollments, users, workflow, nil, scope.NewResolver(nil), nil, nil)
}

func TestCreateCourseChangeForOwnEnrollment(t *testing.T) {
	repo := &mockRequestRepo{}
	enrollments := &mockRequestEnrollments{enrollments: map[string]*models.Enrollment{
		"e1": {ID: "e1", StudentID: "s1", CourseID: "c1", BranchID: "b1", Active: true},
	}}
	svc := newTestRequestService(repo, enrollments, &mockRequestUsers{}, &mockWorkflow{})

	change, err := svc.CreateCourseChange(context.Background(), studentActor("s1", "b1"), CreateCourseChangeRequest{
		EnrollmentID: "e1",
		NewCourseID:  "c2",
		Reason:       "schedule conflict",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, change.Status)
	assert.Equal(t, "s1", change.StudentID)
	assert.Equal(t, "b1", change.BranchID)
}

func TestCreateCourseChangeForeignEnrollment(t *testing.T) {
	enrollments := &mockRequestEnrollments{enrollments: map[string]*models.Enrollment{
		"e1": {ID: "e1", StudentID: "s2", CourseID: "c1", BranchID: "b1", Active: true},
	}}
	svc := newTestRequestService(&mockRequestRepo{}, enrollments, &mockRequestUsers{}, &mockWorkflow{})

	_, err := svc.CreateCourseChange(context.Background(), studentActor("s1", "b1"), CreateCourseChangeRequest{
		EnrollmentID: "e1",
		NewCourseID:  "c2",
		Reason:       "schedule conflict",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestCreateCourseChangeSameCourse(t *testing.T) {
	enrollments := &mockRequestEnrollments{enrollments: map[string]*models.Enrollment{
		"e1": {ID: "e1", StudentID: "s1", CourseID: "c1", BranchID: "b1", Active: true},
	}}
	svc := newTestRequestService(&mockRequestRepo{}, enrollments, &mockRequestUsers{}, &mockWorkflow{})

	_, err := svc.CreateCourseChange(context.Background(), studentActor("s1", "b1"), CreateCourseChangeRequest{
		EnrollmentID: "e1",
		NewCourseID:  "c1",
		Reason:       "schedule conflict",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateTransferToSameBranch(t *testing.T) {
	svc := newTestRequestService(&mockRequestRepo{}, &mockRequestEnrollments{}, &mockRequestUsers{}, &mockWorkflow{})

	_, err := svc.CreateTransfer(context.Background(), studentActor("s1", "b1"), CreateTransferRequest{
		ToBranchID: "b1",
		Reason:     "moving house",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestApproveCourseChangeReEnrolls(t *testing.T) {
	repo := &mockRequestRepo{
		decideOK: true,
		courseChanges: map[string]*models.CourseChangeRequest{
			"cc1": {ID: "cc1", StudentID: "s1", CurrentEnrollmentID: "e1", NewCourseID: "c2", BranchID: "b1", Status: models.RequestPending},
		},
	}
	workflow := &mockWorkflow{}
	svc := newTestRequestService(repo, &mockRequestEnrollments{}, &mockRequestUsers{}, workflow)

	change, err := svc.DecideCourseChange(context.Background(), coachAdminActor("b1"), "cc1", DecideRequest{Approve: true})
	require.NoError(t, err)
	assert.Equal(t, models.RequestApproved, change.Status)
	assert.Equal(t, "e1", workflow.deactivated)
	require.NotNil(t, workflow.enrolled)
	assert.Equal(t, "c2", workflow.enrolled.CourseID)
	assert.Equal(t, "b1", workflow.enrolled.BranchID)
}

func TestRejectCourseChangeSkipsWorkflow(t *testing.T) {
	repo := &mockRequestRepo{
		decideOK: true,
		courseChanges: map[string]*models.CourseChangeRequest{
			"cc1": {ID: "cc1", StudentID: "s1", CurrentEnrollmentID: "e1", NewCourseID: "c2", BranchID: "b1", Status: models.RequestPending},
		},
	}
	workflow := &mockWorkflow{}
	svc := newTestRequestService(repo, &mockRequestEnrollments{}, &mockRequestUsers{}, workflow)

	change, err := svc.DecideCourseChange(context.Background(), coachAdminActor("b1"), "cc1", DecideRequest{Approve: false})
	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, change.Status)
	assert.Empty(t, workflow.deactivated)
	assert.Nil(t, workflow.enrolled)
}

func TestDecideCourseChangeAlreadyDecided(t *testing.T) {
	repo := &mockRequestRepo{
		courseChanges: map[string]*models.CourseChangeRequest{
			"cc1": {ID: "cc1", BranchID: "b1", Status: models.RequestApproved},
		},
	}
	svc := newTestRequestService(repo, &mockRequestEnrollments{}, &mockRequestUsers{}, &mockWorkflow{})

	_, err := svc.DecideCourseChange(context.Background(), coachAdminActor("b1"), "cc1", DecideRequest{Approve: true})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestApproveTransferMovesStudent(t *testing.T) {
	repo := &mockRequestRepo{
		decideOK: true,
		transfers: map[string]*models.TransferRequest{
			"tr1": {ID: "tr1", StudentID: "s1", FromBranchID: "b1", ToBranchID: "b2", Status: models.RequestPending},
		},
	}
	users := &mockRequestUsers{}
	svc := newTestRequestService(repo, &mockRequestEnrollments{}, users, &mockWorkflow{})

	transfer, err := svc.DecideTransfer(context.Background(), coachAdminActor("b2"), "tr1", DecideRequest{Approve: true})
	require.NoError(t, err)
	assert.Equal(t, models.RequestApproved, transfer.Status)
	assert.Equal(t, "b2", users.movedTo)
}

func TestDecideTransferScopedToReceivingBranch(t *testing.T) {
	repo := &mockRequestRepo{
		transfers: map[string]*models.TransferRequest{
			"tr1": {ID: "tr1", StudentID: "s1", FromBranchID: "b1", ToBranchID: "b2", Status: models.RequestPending},
		},
	}
	svc := newTestRequestService(repo, &mockRequestEnrollments{}, &mockRequestUsers{}, &mockWorkflow{})

	_, err := svc.DecideTransfer(context.Background(), coachAdminActor("b1"), "tr1", DecideRequest{Approve: true})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestDecideRequestDeniedForStudent(t *testing.T) {
	repo := &mockRequestRepo{
		resources: map[string]*models.ResourceRequest{
			"rr1": {ID: "rr1", RequestedBy: "c1", BranchID: "b1", Status: models.RequestPending},
		},
	}
	svc := newTestRequestService(repo, &mockRequestEnrollments{}, &mockRequestUsers{}, &mockWorkflow{})

	_, err := svc.DecideResourceRequest(context.Background(), studentActor("s1", "b1"), "rr1", DecideRequest{Approve: true})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestCreateResourceRequestForcedToActorBranch(t *testing.T) {
	branchID := "b1"
	repo := &mockRequestRepo{}
	svc := newTestRequestService(repo, &mockRequestEnrollments{}, &mockRequestUsers{}, &mockWorkflow{})

	resource, err := svc.CreateResourceRequest(context.Background(), scope.Actor{ID: "c1", Role: models.RoleCoach, BranchID: &branchID}, CreateResourceRequestInput{
		ResourceType: "equipment",
		Description:  "ten new footballs",
	})
	require.NoError(t, err)
	assert.Equal(t, "b1", resource.BranchID)
	assert.Equal(t, "c1", resource.RequestedBy)
}
