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
	"github.com/edumanage/academy-api/pkg/qr"
)

type mockAttendanceRepo struct {
	sessions     map[string]*models.QRSession
	inserted     []*models.AttendanceRecord
	insertResult bool
	existing     *models.AttendanceRecord
	presentDates []time.Time
}

func (m *mockAttendanceRepo) Insert(ctx context.Context, record *models.AttendanceRecord) (bool, error) {
	m.inserted = append(m.inserted, record)
	return m.insertResult, nil
}

func (m *mockAttendanceRepo) FindByStudentCourseDate(ctx context.Context, studentID, courseID string, date time.Time) (*models.AttendanceRecord, error) {
	if m.existing == nil {
		return nil, sql.ErrNoRows
	}
	return m.existing, nil
}

func (m *mockAttendanceRepo) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error) {
	return nil, 0, nil
}

func (m *mockAttendanceRepo) PresentDates(ctx context.Context, studentID, courseID string, from, to time.Time) ([]time.Time, error) {
	return m.presentDates, nil
}

func (m *mockAttendanceRepo) CreateQRSession(ctx context.Context, session *models.QRSession) error {
	session.ID = "qr1"
	if m.sessions == nil {
		m.sessions = make(map[string]*models.QRSession)
	}
	m.sessions[session.Token] = session
	return nil
}

func (m *mockAttendanceRepo) FindQRSessionByToken(ctx context.Context, token string) (*models.QRSession, error) {
	session, ok := m.sessions[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return session, nil
}

type mockAttendanceEnrollments struct {
	enrollment *models.Enrollment
	active     []models.Enrollment
}

func (m *mockAttendanceEnrollments) FindActiveByStudentAndCourse(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	if m.enrollment == nil {
		return nil, sql.ErrNoRows
	}
	return m.enrollment, nil
}

func (m *mockAttendanceEnrollments) ListActive(ctx context.Context, branchID string) ([]models.Enrollment, error) {
	return m.active, nil
}

type mockCourseReader struct {
	course *models.Course
}

func (m *mockCourseReader) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if m.course == nil {
		return nil, sql.ErrNoRows
	}
	return m.course, nil
}

type mockAttendanceBranchReader struct {
	branch *models.Branch
}

func (m *mockAttendanceBranchReader) FindByID(ctx context.Context, id string) (*models.Branch, error) {
	if m.branch == nil {
		return nil, sql.ErrNoRows
	}
	return m.branch, nil
}

type mockStudentReader struct {
	user *models.User
}

func (m *mockStudentReader) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.user == nil {
		return nil, sql.ErrNoRows
	}
	return m.user, nil
}

func newTestAttendanceService(repo *mockAttendanceRepo, enrollments *mockAttendanceEnrollments, courses *mockCourseReader, branches *mockAttendanceBranchReader, students *mockStudentReader, config AttendanceConfig) *AttendanceService {
	return NewAttendanceService(repo, enrollments, courses, branches, students, scope.NewResolver(nil), nil, nil, nil, config)
}

func coachAdminActor(branchID string) scope.Actor {
	return scope.Actor{ID: "admin1", Role: models.RoleCoachAdmin, BranchID: &branchID}
}

func studentActor(id, branchID string) scope.Actor {
	return scope.Actor{ID: id, Role: models.RoleStudent, BranchID: &branchID}
}

func TestGenerateQRCreatesSession(t *testing.T) {
	repo := &mockAttendanceRepo{}
	courses := &mockCourseReader{course: &models.Course{ID: "c1", Name: "Chess"}}
	svc := newTestAttendanceService(repo, &mockAttendanceEnrollments{}, courses, &mockAttendanceBranchReader{}, &mockStudentReader{}, AttendanceConfig{QRValidFor: 15 * time.Minute})

	session, err := svc.GenerateQR(context.Background(), coachAdminActor("b1"), GenerateQRRequest{CourseID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, "b1", session.BranchID)
	assert.NotEmpty(t, session.Token)
	assert.NotEmpty(t, session.Image)
	assert.True(t, session.Active)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), session.ValidUntil, time.Minute)
}

func TestGenerateQRRejectsStudent(t *testing.T) {
	svc := newTestAttendanceService(&mockAttendanceRepo{}, &mockAttendanceEnrollments{}, &mockCourseReader{}, &mockAttendanceBranchReader{}, &mockStudentReader{}, AttendanceConfig{})

	_, err := svc.GenerateQR(context.Background(), studentActor("s1", "b1"), GenerateQRRequest{CourseID: "c1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestScanQRMarksPresent(t *testing.T) {
	repo := &mockAttendanceRepo{insertResult: true}
	courses := &mockCourseReader{course: &models.Course{ID: "c1"}}
	enrollments := &mockAttendanceEnrollments{enrollment: &models.Enrollment{ID: "e1", StudentID: "s1", CourseID: "c1", BranchID: "b1", Active: true}}
	svc := newTestAttendanceService(repo, enrollments, courses, &mockAttendanceBranchReader{}, &mockStudentReader{}, AttendanceConfig{})

	session, err := svc.GenerateQR(context.Background(), coachAdminActor("b1"), GenerateQRRequest{CourseID: "c1"})
	require.NoError(t, err)

	res, err := svc.ScanQR(context.Background(), studentActor("s1", "b1"), ScanQRRequest{Token: session.Token})
	require.NoError(t, err)
	assert.True(t, res.Marked)
	assert.False(t, res.AlreadyMarked)
	require.Len(t, repo.inserted, 1)
	record := repo.inserted[0]
	assert.Equal(t, "s1", record.StudentID)
	assert.Equal(t, models.AttendanceMethodQR, record.Method)
	assert.True(t, record.Present)
}

func TestScanQRRepeatedScanIsIdempotent(t *testing.T) {
	stored := &models.AttendanceRecord{ID: "att1", StudentID: "s1", CourseID: "c1", BranchID: "b1", Method: models.AttendanceMethodQR, Present: true}
	repo := &mockAttendanceRepo{insertResult: false, existing: stored}
	courses := &mockCourseReader{course: &models.Course{ID: "c1"}}
	enrollments := &mockAttendanceEnrollments{enrollment: &models.Enrollment{ID: "e1", StudentID: "s1", CourseID: "c1", BranchID: "b1", Active: true}}
	svc := newTestAttendanceService(repo, enrollments, courses, &mockAttendanceBranchReader{}, &mockStudentReader{}, AttendanceConfig{})

	session, err := svc.GenerateQR(context.Background(), coachAdminActor("b1"), GenerateQRRequest{CourseID: "c1"})
	require.NoError(t, err)

	res, err := svc.ScanQR(context.Background(), studentActor("s1", "b1"), ScanQRRequest{Token: session.Token})
	require.NoError(t, err)
	assert.False(t, res.Marked)
	assert.True(t, res.AlreadyMarked)
	// the row that was written the first time, not the discarded insert attempt
	require.NotNil(t, res.Record)
	assert.Equal(t, "att1", res.Record.ID)
}

func TestScanQRExpiredSession(t *testing.T) {
	token := qr.Token{CourseID: "c1", BranchID: "b1", IssuedAt: time.Now().Add(-time.Hour).Unix()}
	repo := &mockAttendanceRepo{sessions: map[string]*models.QRSession{
		token.Encode(): {ID: "qr1", CourseID: "c1", BranchID: "b1", Token: token.Encode(), ValidUntil: time.Now().Add(-time.Minute), Active: true},
	}}
	svc := newTestAttendanceService(repo, &mockAttendanceEnrollments{}, &mockCourseReader{}, &mockAttendanceBranchReader{}, &mockStudentReader{}, AttendanceConfig{})

	_, err := svc.ScanQR(context.Background(), studentActor("s1", "b1"), ScanQRRequest{Token: token.Encode()})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrExpired.Code, appErrors.FromError(err).Code)
}

func TestScanQRWrongBranch(t *testing.T) {
	token := qr.Token{CourseID: "c1", BranchID: "b1", IssuedAt: time.Now().Unix()}
	repo := &mockAttendanceRepo{sessions: map[string]*models.QRSession{
		token.Encode(): {ID: "qr1", CourseID: "c1", BranchID: "b1", Token: token.Encode(), ValidUntil: time.Now().Add(time.Hour), Active: true},
	}}
	svc := newTestAttendanceService(repo, &mockAttendanceEnrollments{}, &mockCourseReader{}, &mockAttendanceBranchReader{}, &mockStudentReader{}, AttendanceConfig{})

	_, err := svc.ScanQR(context.Background(), studentActor("s1", "b2"), ScanQRRequest{Token: token.Encode()})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestScanQRNotEnrolled(t *testing.T) {
	token := qr.Token{CourseID: "c1", BranchID: "b1", IssuedAt: time.Now().Unix()}
	repo := &mockAttendanceRepo{sessions: map[string]*models.QRSession{
		token.Encode(): {ID: "qr1", CourseID: "c1", BranchID: "b1", Token: token.Encode(), ValidUntil: time.Now().Add(time.Hour), Active: true},
	}}
	svc := newTestAttendanceService(repo, &mockAttendanceEnrollments{}, &mockCourseReader{}, &mockAttendanceBranchReader{}, &mockStudentReader{}, AttendanceConfig{})

	_, err := svc.ScanQR(context.Background(), studentActor("s1", "b1"), ScanQRRequest{Token: token.Encode()})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestMarkRejectsQRMethod(t *testing.T) {
	svc := newTestAttendanceService(&mockAttendanceRepo{}, &mockAttendanceEnrollments{}, &mockCourseReader{}, &mockAttendanceBranchReader{}, &mockStudentReader{}, AttendanceConfig{})

	_, err := svc.Mark(context.Background(), coachAdminActor("b1"), MarkAttendanceRequest{
		StudentID: "s1",
		CourseID:  "c1",
		Date:      time.Now(),
		Method:    models.AttendanceMethodQR,
		Present:   true,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestMarkDuplicateReturnsExistingRecord(t *testing.T) {
	stored := &models.AttendanceRecord{ID: "att1", StudentID: "s1", CourseID: "c1", BranchID: "b1", Method: models.AttendanceMethodBiometric, Present: true}
	repo := &mockAttendanceRepo{insertResult: false, existing: stored}
	enrollments := &mockAttendanceEnrollments{enrollment: &models.Enrollment{ID: "e1", StudentID: "s1", CourseID: "c1", BranchID: "b1", Active: true}}
	svc := newTestAttendanceService(repo, enrollments, &mockCourseReader{}, &mockAttendanceBranchReader{}, &mockStudentReader{}, AttendanceConfig{})

	record, err := svc.Mark(context.Background(), coachAdminActor("b1"), MarkAttendanceRequest{
		StudentID: "s1",
		CourseID:  "c1",
		Date:      time.Now(),
		Method:    models.AttendanceMethodBiometric,
		Present:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, "att1", record.ID)
	assert.Equal(t, models.AttendanceMethodBiometric, record.Method)
}

func TestAnomaliesDetectsTrailingRun(t *testing.T) {
	now := time.Now().UTC()
	// schedule classes every day, student last seen four days ago
	repo := &mockAttendanceRepo{presentDates: []time.Time{dateOnly(now.AddDate(0, 0, -4))}}
	enrollments := &mockAttendanceEnrollments{active: []models.Enrollment{
		{ID: "e1", StudentID: "s1", CourseID: "c1", BranchID: "b1", StartDate: now.AddDate(0, 0, -10), Active: true},
	}}
	courses := &mockCourseReader{course: &models.Course{ID: "c1", Schedule: models.CourseSchedule{}}}
	branches := &mockAttendanceBranchReader{branch: &models.Branch{ID: "b1"}}
	students := &mockStudentReader{user: &models.User{ID: "s1", FullName: "Sam Student"}}
	svc := newTestAttendanceService(repo, enrollments, courses, branches, students, AttendanceConfig{AnomalyRunLength: 3})

	anomalies, err := svc.Anomalies(context.Background(), coachAdminActor("b1"))
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	assert.Equal(t, "s1", anomalies[0].StudentID)
	assert.Equal(t, "Sam Student", anomalies[0].StudentName)
	assert.GreaterOrEqual(t, anomalies[0].MissedCount, 3)
}

func TestAnomaliesShortRunIgnored(t *testing.T) {
	now := time.Now().UTC()
	repo := &mockAttendanceRepo{presentDates: []time.Time{dateOnly(now.AddDate(0, 0, -1))}}
	enrollments := &mockAttendanceEnrollments{active: []models.Enrollment{
		{ID: "e1", StudentID: "s1", CourseID: "c1", BranchID: "b1", StartDate: now.AddDate(0, 0, -10), Active: true},
	}}
	courses := &mockCourseReader{course: &models.Course{ID: "c1"}}
	branches := &mockAttendanceBranchReader{branch: &models.Branch{ID: "b1"}}
	svc := newTestAttendanceService(repo, enrollments, courses, branches, &mockStudentReader{}, AttendanceConfig{AnomalyRunLength: 3})

	anomalies, err := svc.Anomalies(context.Background(), coachAdminActor("b1"))
	require.NoError(t, err)
	assert.Empty(t, anomalies)
}

func TestScheduledDatesSkipsHolidays(t *testing.T) {
	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) // Monday
	to := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	schedule := models.CourseSchedule{Days: []string{"monday", "wednesday"}}
	holidays := models.DateList{"2026-03-04"}

	dates := scheduledDates(schedule, holidays, from, to)
	require.Len(t, dates, 1)
	assert.Equal(t, time.Monday, dates[0].Weekday())
}
