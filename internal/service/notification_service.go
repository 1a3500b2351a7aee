package service

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edumanage/academy-api/internal/models"
	"github.com/edumanage/academy-api/internal/scope"
	appErrors "github.com/edumanage/academy-api/pkg/errors"
	"github.com/edumanage/academy-api/pkg/jobs"
	"github.com/edumanage/academy-api/pkg/notify"
)

type notificationRepository interface {
	FindTemplateByID(ctx context.Context, id string) (*models.NotificationTemplate, error)
	ListTemplates(ctx context.Context) ([]models.NotificationTemplate, error)
	CreateTemplate(ctx context.Context, tpl *models.NotificationTemplate) error
	UpdateTemplate(ctx context.Context, tpl *models.NotificationTemplate) error
	DeleteTemplate(ctx context.Context, id string) error
	CreateLog(ctx context.Context, log *models.NotificationLog) error
	ListLogs(ctx context.Context, filter models.NotificationLogFilter) ([]models.NotificationLog, int, error)
}

type notificationUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	ListByBranchAndRole(ctx context.Context, branchID string, role models.UserRole) ([]models.User, error)
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// RenderTemplate substitutes {{placeholder}} slots with values from data.
// Unknown placeholders are left untouched so missing data is visible.
func RenderTemplate(body string, data map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(body, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		if value, ok := data[key]; ok {
			return value
		}
		return match
	})
}

// CreateTemplateRequest describes template creation payload.
type CreateTemplateRequest struct {
	Name string                  `json:"name" validate:"required"`
	Type models.NotificationType `json:"type" validate:"required"`
	Body string                  `json:"body" validate:"required"`
}

// UpdateTemplateRequest describes template update payload.
type UpdateTemplateRequest struct {
	Name *string                  `json:"name"`
	Type *models.NotificationType `json:"type"`
	Body *string                  `json:"body"`
}

// TriggerNotificationRequest sends a rendered template to a single user.
type TriggerNotificationRequest struct {
	TemplateID string            `json:"template_id" validate:"required"`
	UserID     string            `json:"user_id" validate:"required"`
	Data       map[string]string `json:"data"`
}

// BroadcastRequest sends a rendered template to every active user of a
// role at a branch.
type BroadcastRequest struct {
	TemplateID string            `json:"template_id" validate:"required"`
	BranchID   string            `json:"branch_id" validate:"required"`
	Role       models.UserRole   `json:"role" validate:"required"`
	Data       map[string]string `json:"data"`
}

type outboxItem struct {
	log     *models.NotificationLog
	message notify.Message
}

// NotificationService renders templates and delivers messages through a
// background outbox queue. Every attempt, successful or failed, lands in
// the delivery log; delivery failures never fail the triggering
// operation.
type NotificationService struct {
	repo      notificationRepository
	users     notificationUserReader
	sender    notify.Sender
	resolver  *scope.Resolver
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	queue     *jobs.Queue
}

// NewNotificationService constructs NotificationService. Call Start before
// sending.
func NewNotificationService(repo notificationRepository, users notificationUserReader, sender notify.Sender, resolver *scope.Resolver, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, queueCfg jobs.QueueConfig) *NotificationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if sender == nil {
		sender = notify.NewLogSender(logger)
	}
	s := &NotificationService{
		repo:      repo,
		users:     users,
		sender:    sender,
		resolver:  resolver,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
	queueCfg.Logger = logger
	s.queue = jobs.NewQueue("notifications", s.handleJob, queueCfg)
	return s
}

// Start spins up the outbox workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the outbox workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

func (s *NotificationService) handleJob(ctx context.Context, job jobs.Job) error {
	item, ok := job.Payload.(*outboxItem)
	if !ok {
		s.logger.Warn("notification job with unexpected payload", zap.String("job_id", job.ID))
		return nil
	}

	result := s.sender.Send(ctx, item.message)
	s.metrics.RecordNotificationDelivery(result.Sent)
	if result.Sent {
		item.log.Status = models.NotificationSent
	} else {
		item.log.Status = models.NotificationFailed
		if result.Error != "" {
			errMsg := result.Error
			item.log.Error = &errMsg
		}
	}
	item.log.SentAt = time.Now().UTC()

	if err := s.repo.CreateLog(ctx, item.log); err != nil {
		s.logger.Warn("failed to persist notification log", zap.String("log_id", item.log.ID), zap.Error(err))
	}
	// failed deliveries are logged, not retried
	return nil
}

// ListTemplates returns all templates.
func (s *NotificationService) ListTemplates(ctx context.Context, actor scope.Actor) ([]models.NotificationTemplate, error) {
	if _, err := s.resolver.Resolve(actor, scope.ResourceNotifications, scope.ActionRead, scope.Filters{}); err != nil {
		return nil, err
	}
	tpls, err := s.repo.ListTemplates(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list templates")
	}
	return tpls, nil
}

// CreateTemplate registers a new template.
func (s *NotificationService) CreateTemplate(ctx context.Context, actor scope.Actor, req CreateTemplateRequest) (*models.NotificationTemplate, error) {
	if _, err := s.resolver.Resolve(actor, scope.ResourceNotifications, scope.ActionCreate, scope.Filters{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid template payload")
	}
	if !req.Type.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown notification type")
	}

	tpl := &models.NotificationTemplate{Name: req.Name, Type: req.Type, Body: req.Body}
	if err := s.repo.CreateTemplate(ctx, tpl); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create template")
	}
	return tpl, nil
}

// UpdateTemplate modifies a template.
func (s *NotificationService) UpdateTemplate(ctx context.Context, actor scope.Actor, id string, req UpdateTemplateRequest) (*models.NotificationTemplate, error) {
	if _, err := s.resolver.Resolve(actor, scope.ResourceNotifications, scope.ActionUpdate, scope.Filters{}); err != nil {
		return nil, err
	}

	tpl, err := s.findTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		tpl.Name = *req.Name
	}
	if req.Type != nil {
		if !req.Type.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown notification type")
		}
		tpl.Type = *req.Type
	}
	if req.Body != nil {
		tpl.Body = *req.Body
	}

	if err := s.repo.UpdateTemplate(ctx, tpl); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "template not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update template")
	}
	return tpl, nil
}

// DeleteTemplate removes a template.
func (s *NotificationService) DeleteTemplate(ctx context.Context, actor scope.Actor, id string) error {
	if _, err := s.resolver.Resolve(actor, scope.ResourceNotifications, scope.ActionDelete, scope.Filters{}); err != nil {
		return err
	}
	if err := s.repo.DeleteTemplate(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "template not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete template")
	}
	return nil
}

// Trigger renders a template for one user and queues delivery.
func (s *NotificationService) Trigger(ctx context.Context, actor scope.Actor, req TriggerNotificationRequest) error {
	if _, err := s.resolver.Resolve(actor, scope.ResourceNotifications, scope.ActionCreate, scope.Filters{}); err != nil {
		return err
	}
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid trigger payload")
	}

	tpl, err := s.findTemplate(ctx, req.TemplateID)
	if err != nil {
		return err
	}
	user, err := s.users.FindByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	s.enqueue(user, tpl, RenderTemplate(tpl.Body, req.Data))
	return nil
}

// Broadcast renders a template for every active user of a role at a
// branch and queues delivery for each.
func (s *NotificationService) Broadcast(ctx context.Context, actor scope.Actor, req BroadcastRequest) (int, error) {
	scoped, err := s.resolver.Resolve(actor, scope.ResourceNotifications, scope.ActionCreate, scope.Filters{BranchID: req.BranchID})
	if err != nil {
		return 0, err
	}
	if scoped.BranchID != "" {
		req.BranchID = scoped.BranchID
	}
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid broadcast payload")
	}
	if !req.Role.Valid() {
		return 0, appErrors.Clone(appErrors.ErrValidation, "unknown role")
	}

	tpl, err := s.findTemplate(ctx, req.TemplateID)
	if err != nil {
		return 0, err
	}
	users, err := s.users.ListByBranchAndRole(ctx, req.BranchID, req.Role)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list recipients")
	}

	body := RenderTemplate(tpl.Body, req.Data)
	for i := range users {
		s.enqueue(&users[i], tpl, body)
	}
	return len(users), nil
}

// SendDirect queues an untemplated SMS to one user. Used by reminder jobs
// and event broadcasts.
func (s *NotificationService) SendDirect(user *models.User, channel models.NotificationType, body string) {
	if user == nil || user.Phone == "" {
		return
	}
	log := &models.NotificationLog{
		ID:      uuid.NewString(),
		UserID:  user.ID,
		Type:    channel,
		Content: body,
	}
	s.queue.TryEnqueue(jobs.Job{
		ID:   log.ID,
		Type: "direct",
		Payload: &outboxItem{
			log:     log,
			message: notify.Message{To: user.Phone, Body: body, Channel: notify.Channel(channel)},
		},
	})
}

// NotifyBranchRole queues an untemplated SMS to every active user of a
// role at a branch. Fire-and-forget: lookup failures only log.
func (s *NotificationService) NotifyBranchRole(ctx context.Context, branchID string, role models.UserRole, body string) {
	users, err := s.users.ListByBranchAndRole(ctx, branchID, role)
	if err != nil {
		s.logger.Warn("failed to list recipients for alert",
			zap.String("branch_id", branchID), zap.String("role", string(role)), zap.Error(err))
		return
	}
	for i := range users {
		s.SendDirect(&users[i], models.NotificationSMS, body)
	}
}

// NotifyBranchAdmins queues an alert to every branch admin of a branch.
func (s *NotificationService) NotifyBranchAdmins(ctx context.Context, branchID, body string) {
	s.NotifyBranchRole(ctx, branchID, models.RoleCoachAdmin, body)
}

// ListLogs returns delivery logs. Students see only their own entries.
func (s *NotificationService) ListLogs(ctx context.Context, actor scope.Actor, filter models.NotificationLogFilter) ([]models.NotificationLog, *models.Pagination, error) {
	scoped, err := s.resolver.Resolve(actor, scope.ResourceNotifications, scope.ActionRead, scope.Filters{StudentID: filter.UserID})
	if err != nil {
		return nil, nil, err
	}
	if scoped.StudentID != "" {
		filter.UserID = scoped.StudentID
	}

	logs, total, err := s.repo.ListLogs(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notification logs")
	}
	return logs, &models.Pagination{Skip: filter.Skip, Limit: filter.Limit, Total: total}, nil
}

func (s *NotificationService) enqueue(user *models.User, tpl *models.NotificationTemplate, body string) {
	if user.Phone == "" {
		s.logger.Warn("skipping notification for user without phone", zap.String("user_id", user.ID))
		return
	}
	tplID := tpl.ID
	log := &models.NotificationLog{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		TemplateID: &tplID,
		Type:       tpl.Type,
		Content:    body,
	}
	s.queue.TryEnqueue(jobs.Job{
		ID:   log.ID,
		Type: tpl.Name,
		Payload: &outboxItem{
			log:     log,
			message: notify.Message{To: user.Phone, Body: body, Channel: notify.Channel(tpl.Type)},
		},
	})
}

func (s *NotificationService) findTemplate(ctx context.Context, id string) (*models.NotificationTemplate, error) {
	tpl, err := s.repo.FindTemplateByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "template not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load template")
	}
	return tpl, nil
}
