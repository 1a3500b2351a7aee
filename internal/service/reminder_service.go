package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/edumanage/academy-api/internal/models"
	"github.com/edumanage/academy-api/internal/scope"
)

type reminderUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// ReminderConfig drives the scheduled sweeps. Cron expressions use the
// standard five-field format.
type ReminderConfig struct {
	PaymentCron    string
	AttendanceCron string
}

// ReminderService runs the daily best-effort sweeps: payment dues and
// attendance anomalies. Sweeps act as the system, not as any user, and
// never fail the scheduler on delivery errors.
type ReminderService struct {
	payments   *PaymentService
	attendance *AttendanceService
	notifier   *NotificationService
	users      reminderUserReader
	logger     *zap.Logger
	cron       *cron.Cron
	config     ReminderConfig
}

// systemActor is the identity the scheduled sweeps run under.
var systemActor = scope.Actor{ID: "system", Role: models.RoleSuperAdmin}

// NewReminderService constructs ReminderService.
func NewReminderService(payments *PaymentService, attendance *AttendanceService, notifier *NotificationService, users reminderUserReader, logger *zap.Logger, config ReminderConfig) *ReminderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.PaymentCron == "" {
		config.PaymentCron = "0 9 * * *"
	}
	if config.AttendanceCron == "" {
		config.AttendanceCron = "0 18 * * *"
	}
	return &ReminderService{
		payments:   payments,
		attendance: attendance,
		notifier:   notifier,
		users:      users,
		logger:     logger,
		cron:       cron.New(),
		config:     config,
	}
}

// Start registers the sweeps and starts the scheduler.
func (s *ReminderService) Start() error {
	if _, err := s.cron.AddFunc(s.config.PaymentCron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := s.SendPaymentReminders(ctx, systemActor); err != nil {
			s.logger.Error("payment reminder sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule payment reminders: %w", err)
	}

	if _, err := s.cron.AddFunc(s.config.AttendanceCron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := s.SendAttendanceReminders(ctx, systemActor); err != nil {
			s.logger.Error("attendance reminder sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule attendance reminders: %w", err)
	}

	s.cron.Start()
	s.logger.Info("reminder scheduler started",
		zap.String("payment_cron", s.config.PaymentCron),
		zap.String("attendance_cron", s.config.AttendanceCron))
	return nil
}

// Stop halts the scheduler and waits for running sweeps.
func (s *ReminderService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// SendPaymentReminders queues one notification per student with dues and
// returns the number of students notified.
func (s *ReminderService) SendPaymentReminders(ctx context.Context, actor scope.Actor) (int, error) {
	dues, err := s.payments.Dues(ctx, actor)
	if err != nil {
		return 0, err
	}

	notified := 0
	for _, due := range dues {
		if due.Phone == "" {
			continue
		}
		s.notifier.SendDirect(&models.User{ID: due.StudentID, Phone: due.Phone}, models.NotificationSMS,
			fmt.Sprintf("Dear %s, you have %d pending payment(s) totalling %.2f. Please clear your dues.",
				due.StudentName, len(due.Payments), due.TotalDue))
		notified++
	}

	s.logger.Info("payment reminder sweep finished", zap.Int("students", notified))
	return notified, nil
}

// SendAttendanceReminders queues one notification per detected absence
// run and returns the number of students notified.
func (s *ReminderService) SendAttendanceReminders(ctx context.Context, actor scope.Actor) (int, error) {
	anomalies, err := s.attendance.Anomalies(ctx, actor)
	if err != nil {
		return 0, err
	}

	notified := 0
	for _, anomaly := range anomalies {
		student, err := s.users.FindByID(ctx, anomaly.StudentID)
		if err != nil {
			s.logger.Warn("failed to load student for attendance reminder",
				zap.String("student_id", anomaly.StudentID), zap.Error(err))
			continue
		}
		s.notifier.SendDirect(student, models.NotificationSMS,
			fmt.Sprintf("Dear %s, you have missed %d consecutive classes. Please contact your branch.",
				student.FullName, anomaly.MissedCount))
		notified++
	}

	s.logger.Info("attendance reminder sweep finished", zap.Int("students", notified))
	return notified, nil
}
