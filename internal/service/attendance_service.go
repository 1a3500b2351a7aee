package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edumanage/academy-api/internal/models"
	"github.com/edumanage/academy-api/internal/scope"
	appErrors "github.com/edumanage/academy-api/pkg/errors"
	"github.com/edumanage/academy-api/pkg/qr"
)

type attendanceRepository interface {
	Insert(ctx context.Context, record *models.AttendanceRecord) (bool, error)
	FindByStudentCourseDate(ctx context.Context, studentID, courseID string, date time.Time) (*models.AttendanceRecord, error)
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error)
	PresentDates(ctx context.Context, studentID, courseID string, from, to time.Time) ([]time.Time, error)
	CreateQRSession(ctx context.Context, session *models.QRSession) error
	FindQRSessionByToken(ctx context.Context, token string) (*models.QRSession, error)
}

type attendanceEnrollmentReader interface {
	FindActiveByStudentAndCourse(ctx context.Context, studentID, courseID string) (*models.Enrollment, error)
	ListActive(ctx context.Context, branchID string) ([]models.Enrollment, error)
}

type attendanceCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type attendanceBranchReader interface {
	FindByID(ctx context.Context, id string) (*models.Branch, error)
}

type attendanceStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// GenerateQRRequest asks for a fresh attendance QR session.
type GenerateQRRequest struct {
	CourseID string `json:"course_id" validate:"required"`
	BranchID string `json:"branch_id"`
}

// ScanQRRequest is a student's scan of a QR payload.
type ScanQRRequest struct {
	Token string `json:"token" validate:"required"`
}

// ScanQRResponse reports the outcome of a scan.
type ScanQRResponse struct {
	Marked        bool                     `json:"marked"`
	AlreadyMarked bool                     `json:"already_marked"`
	Record        *models.AttendanceRecord `json:"record,omitempty"`
}

// MarkAttendanceRequest records attendance by hand or biometric device.
type MarkAttendanceRequest struct {
	StudentID string                  `json:"student_id" validate:"required"`
	CourseID  string                  `json:"course_id" validate:"required"`
	Date      time.Time               `json:"date" validate:"required"`
	Method    models.AttendanceMethod `json:"method" validate:"required"`
	Present   bool                    `json:"is_present"`
	Notes     *string                 `json:"notes"`
}

// AttendanceConfig tunes the engine.
type AttendanceConfig struct {
	QRValidFor       time.Duration
	AnomalyRunLength int
	AnomalyLookback  time.Duration
}

// AttendanceService runs QR sessions, records attendance and sweeps for
// absence anomalies.
type AttendanceService struct {
	repo        attendanceRepository
	enrollments attendanceEnrollmentReader
	courses     attendanceCourseReader
	branches    attendanceBranchReader
	students    attendanceStudentReader
	resolver    *scope.Resolver
	audit       *ActivityService
	validator   *validator.Validate
	logger      *zap.Logger
	config      AttendanceConfig
}

// NewAttendanceService constructs AttendanceService.
func NewAttendanceService(repo attendanceRepository, enrollments attendanceEnrollmentReader, courses attendanceCourseReader, branches attendanceBranchReader, students attendanceStudentReader, resolver *scope.Resolver, audit *ActivityService, validate *validator.Validate, logger *zap.Logger, config AttendanceConfig) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.QRValidFor <= 0 {
		config.QRValidFor = 30 * time.Minute
	}
	if config.AnomalyRunLength <= 0 {
		config.AnomalyRunLength = 3
	}
	if config.AnomalyLookback <= 0 {
		config.AnomalyLookback = 30 * 24 * time.Hour
	}
	return &AttendanceService{
		repo:        repo,
		enrollments: enrollments,
		courses:     courses,
		branches:    branches,
		students:    students,
		resolver:    resolver,
		audit:       audit,
		validator:   validate,
		logger:      logger,
		config:      config,
	}
}

// GenerateQR opens a time-boxed QR session for a course at the actor's
// branch. Any previous live session for the same course is retired.
func (s *AttendanceService) GenerateQR(ctx context.Context, actor scope.Actor, req GenerateQRRequest) (*models.QRSession, error) {
	scoped, err := s.resolver.Resolve(actor, scope.ResourceAttendance, scope.ActionCreate, scope.Filters{BranchID: req.BranchID})
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students cannot generate attendance sessions")
	}
	if scoped.BranchID != "" {
		req.BranchID = scoped.BranchID
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid qr payload")
	}
	if req.BranchID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "branch_id is required")
	}

	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	now := time.Now().UTC()
	token := qr.Token{CourseID: req.CourseID, BranchID: req.BranchID, IssuedAt: now.Unix()}
	image, err := qr.RenderPNG(token)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render qr image")
	}

	session := &models.QRSession{
		CourseID:    req.CourseID,
		BranchID:    req.BranchID,
		Token:       token.Encode(),
		Image:       image,
		GeneratedBy: actor.ID,
		ValidUntil:  now.Add(s.config.QRValidFor),
		Active:      true,
	}
	if err := s.repo.CreateQRSession(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create qr session")
	}

	if s.audit != nil {
		s.audit.Record(&actor.ID, models.ActivityCreate, "attendance", &session.ID, map[string]string{"course_id": req.CourseID})
	}
	return session, nil
}

// ScanQR marks the scanning student present for today's class. A scan of
// an expired session fails with EXPIRED; a repeated scan inside the window
// is an idempotent no-op.
func (s *AttendanceService) ScanQR(ctx context.Context, actor scope.Actor, req ScanQRRequest) (*ScanQRResponse, error) {
	if _, err := s.resolver.Resolve(actor, scope.ResourceAttendance, scope.ActionCreate, scope.Filters{}); err != nil {
		return nil, err
	}
	if actor.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students scan attendance codes")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid scan payload")
	}

	token, err := qr.ParseToken(req.Token)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "malformed attendance token")
	}

	session, err := s.repo.FindQRSessionByToken(ctx, req.Token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load qr session")
	}

	now := time.Now().UTC()
	if !session.Active || now.After(session.ValidUntil) {
		return nil, appErrors.Clone(appErrors.ErrExpired, "attendance session has expired")
	}

	if actor.BranchID == nil || *actor.BranchID != session.BranchID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "session belongs to another branch")
	}

	if _, err := s.enrollments.FindActiveByStudentAndCourse(ctx, actor.ID, token.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "not enrolled in this course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify enrollment")
	}

	checkIn := now
	record := &models.AttendanceRecord{
		StudentID:      actor.ID,
		CourseID:       token.CourseID,
		BranchID:       session.BranchID,
		AttendanceDate: dateOnly(now),
		CheckInTime:    &checkIn,
		Method:         models.AttendanceMethodQR,
		Present:        true,
	}
	created, err := s.repo.Insert(ctx, record)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}
	if !created {
		existing, err := s.findRecord(ctx, record.StudentID, record.CourseID, record.AttendanceDate)
		if err != nil {
			return nil, err
		}
		record = existing
	}

	return &ScanQRResponse{Marked: created, AlreadyMarked: !created, Record: record}, nil
}

// Mark records attendance manually or from a biometric device. Staff only.
// A repeated mark for the same date is a no-op returning the stored record.
func (s *AttendanceService) Mark(ctx context.Context, actor scope.Actor, req MarkAttendanceRequest) (*models.AttendanceRecord, error) {
	if actor.Role == models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students cannot mark attendance directly")
	}
	scoped, err := s.resolver.Resolve(actor, scope.ResourceAttendance, scope.ActionCreate, scope.Filters{})
	if err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	if !req.Method.Valid() || req.Method == models.AttendanceMethodQR {
		return nil, appErrors.Clone(appErrors.ErrValidation, "method must be manual or biometric")
	}

	enrollment, err := s.enrollments.FindActiveByStudentAndCourse(ctx, req.StudentID, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student is not enrolled in this course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify enrollment")
	}
	if scoped.BranchID != "" && enrollment.BranchID != scoped.BranchID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "enrollment belongs to another branch")
	}

	markedBy := actor.ID
	record := &models.AttendanceRecord{
		StudentID:      req.StudentID,
		CourseID:       req.CourseID,
		BranchID:       enrollment.BranchID,
		AttendanceDate: dateOnly(req.Date),
		Method:         req.Method,
		MarkedBy:       &markedBy,
		Present:        req.Present,
		Notes:          req.Notes,
	}
	created, err := s.repo.Insert(ctx, record)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}
	if !created {
		// already marked for this date; hand back the stored row untouched
		return s.findRecord(ctx, record.StudentID, record.CourseID, record.AttendanceDate)
	}

	if s.audit != nil {
		s.audit.Record(&actor.ID, models.ActivityCreate, "attendance", &record.ID, map[string]string{
			"student_id": req.StudentID,
			"method":     string(req.Method),
		})
	}
	return record, nil
}

func (s *AttendanceService) findRecord(ctx context.Context, studentID, courseID string, date time.Time) (*models.AttendanceRecord, error) {
	record, err := s.repo.FindByStudentCourseDate(ctx, studentID, courseID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance record")
	}
	return record, nil
}

// List returns attendance records inside the actor's scope.
func (s *AttendanceService) List(ctx context.Context, actor scope.Actor, filter models.AttendanceFilter) ([]models.AttendanceRecord, *models.Pagination, error) {
	scoped, err := s.resolver.Resolve(actor, scope.ResourceAttendance, scope.ActionRead, scope.Filters{
		BranchID:  filter.BranchID,
		StudentID: filter.StudentID,
	})
	if err != nil {
		return nil, nil, err
	}
	filter.BranchID = scoped.BranchID
	filter.StudentID = scoped.StudentID

	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	return records, &models.Pagination{Skip: filter.Skip, Limit: filter.Limit, Total: total}, nil
}

// Anomalies sweeps active enrollments for runs of consecutive missed
// scheduled classes. A run shorter than the configured length is not an
// anomaly.
func (s *AttendanceService) Anomalies(ctx context.Context, actor scope.Actor) ([]models.AttendanceAnomaly, error) {
	scoped, err := s.resolver.Resolve(actor, scope.ResourceAttendance, scope.ActionRead, scope.Filters{})
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students cannot run anomaly sweeps")
	}

	enrollments, err := s.enrollments.ListActive(ctx, scoped.BranchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}

	now := time.Now().UTC()
	windowStart := now.Add(-s.config.AnomalyLookback)

	courseCache := make(map[string]*models.Course)
	branchCache := make(map[string]*models.Branch)

	var anomalies []models.AttendanceAnomaly
	for _, e := range enrollments {
		course, ok := courseCache[e.CourseID]
		if !ok {
			course, err = s.courses.FindByID(ctx, e.CourseID)
			if err != nil {
				s.logger.Warn("anomaly sweep: failed to load course", zap.String("course_id", e.CourseID), zap.Error(err))
				continue
			}
			courseCache[e.CourseID] = course
		}
		branch, ok := branchCache[e.BranchID]
		if !ok {
			branch, err = s.branches.FindByID(ctx, e.BranchID)
			if err != nil {
				s.logger.Warn("anomaly sweep: failed to load branch", zap.String("branch_id", e.BranchID), zap.Error(err))
				continue
			}
			branchCache[e.BranchID] = branch
		}

		from := windowStart
		if e.StartDate.After(from) {
			from = e.StartDate
		}
		scheduled := scheduledDates(course.Schedule, branch.Holidays, from, now)
		if len(scheduled) == 0 {
			continue
		}

		present, err := s.repo.PresentDates(ctx, e.StudentID, e.CourseID, from, now)
		if err != nil {
			s.logger.Warn("anomaly sweep: failed to load attendance", zap.String("student_id", e.StudentID), zap.Error(err))
			continue
		}
		presentSet := make(map[string]struct{}, len(present))
		for _, d := range present {
			presentSet[d.Format("2006-01-02")] = struct{}{}
		}

		// trailing run of consecutive scheduled-date absences
		var run []time.Time
		for i := len(scheduled) - 1; i >= 0; i-- {
			if _, ok := presentSet[scheduled[i].Format("2006-01-02")]; ok {
				break
			}
			run = append([]time.Time{scheduled[i]}, run...)
		}
		if len(run) < s.config.AnomalyRunLength {
			continue
		}

		anomaly := models.AttendanceAnomaly{
			StudentID:   e.StudentID,
			CourseID:    e.CourseID,
			BranchID:    e.BranchID,
			RunStart:    run[0],
			RunEnd:      run[len(run)-1],
			MissedCount: len(run),
		}
		if student, err := s.students.FindByID(ctx, e.StudentID); err == nil {
			anomaly.StudentName = student.FullName
		}
		anomalies = append(anomalies, anomaly)
	}
	return anomalies, nil
}

// scheduledDates expands a course schedule into concrete class dates inside
// [from, to], skipping branch holidays. A course without schedule days
// falls back to every calendar day.
func scheduledDates(schedule models.CourseSchedule, holidays models.DateList, from, to time.Time) []time.Time {
	weekdays := make(map[time.Weekday]struct{}, len(schedule.Days))
	for _, name := range schedule.Days {
		if wd, ok := weekdayByName(name); ok {
			weekdays[wd] = struct{}{}
		}
	}

	var dates []time.Time
	for d := dateOnly(from); !d.After(dateOnly(to)); d = d.AddDate(0, 0, 1) {
		if len(weekdays) > 0 {
			if _, ok := weekdays[d.Weekday()]; !ok {
				continue
			}
		}
		if holidays.Contains(d.Format("2006-01-02")) {
			continue
		}
		dates = append(dates, d)
	}
	return dates
}

func weekdayByName(name string) (time.Weekday, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sunday":
		return time.Sunday, true
	case "monday":
		return time.Monday, true
	case "tuesday":
		return time.Tuesday, true
	case "wednesday":
		return time.Wednesday, true
	case "thursday":
		return time.Thursday, true
	case "friday":
		return time.Friday, true
	case "saturday":
		return time.Saturday, true
	default:
		return time.Sunday, false
	}
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
