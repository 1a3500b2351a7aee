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
	"github.com/edumanage/academy-api/pkg/jobs"
	"github.com/edumanage/academy-api/pkg/notify"
)

type mockNotificationRepo struct {
	templates map[string]*models.NotificationTemplate
	logs      []*models.NotificationLog
	logList   []models.NotificationLog
}

func (m *mockNotificationRepo) FindTemplateByID(ctx context.Context, id string) (*models.NotificationTemplate, error) {
	tpl, ok := m.templates[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return tpl, nil
}

func (m *mockNotificationRepo) ListTemplates(ctx context.Context) ([]models.NotificationTemplate, error) {
	var out []models.NotificationTemplate
	for _, tpl := range m.templates {
		out = append(out, *tpl)
	}
	return out, nil
}

func (m *mockNotificationRepo) CreateTemplate(ctx context.Context, tpl *models.NotificationTemplate) error {
	tpl.ID = "tpl-new"
	if m.templates == nil {
		m.templates = make(map[string]*models.NotificationTemplate)
	}
	m.templates[tpl.ID] = tpl
	return nil
}

func (m *mockNotificationRepo) UpdateTemplate(ctx context.Context, tpl *models.NotificationTemplate) error {
	m.templates[tpl.ID] = tpl
	return nil
}

func (m *mockNotificationRepo) DeleteTemplate(ctx context.Context, id string) error {
	if _, ok := m.templates[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.templates, id)
	return nil
}

func (m *mockNotificationRepo) CreateLog(ctx context.Context, log *models.NotificationLog) error {
	m.logs = append(m.logs, log)
	return nil
}

func (m *mockNotificationRepo) ListLogs(ctx context.Context, filter models.NotificationLogFilter) ([]models.NotificationLog, int, error) {
	var out []models.NotificationLog
	for _, log := range m.logList {
		if filter.UserID != "" && log.UserID != filter.UserID {
			continue
		}
		out = append(out, log)
	}
	return out, len(out), nil
}

type mockNotificationUsers struct {
	users    map[string]*models.User
	byBranch []models.User
}

func (m *mockNotificationUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (m *mockNotificationUsers) ListByBranchAndRole(ctx context.Context, branchID string, role models.UserRole) ([]models.User, error) {
	return m.byBranch, nil
}

type mockSender struct {
	sent   []notify.Message
	result notify.DeliveryResult
}

func (m *mockSender) Send(ctx context.Context, msg notify.Message) notify.DeliveryResult {
	m.sent = append(m.sent, msg)
	return m.result
}

func newTestNotificationService(repo *mockNotificationRepo, users *mockNotificationUsers, sender notify.Sender) *NotificationService {
	return NewNotificationService(repo, users, sender, scope.NewResolver(nil), nil, nil, nil, jobs.QueueConfig{Workers: 1, BufferSize: 8})
}

func TestRenderTemplate(t *testing.T) {
	body := "Hi {{name}}, your fee of {{ amount }} is due on {{due_date}}."
	out := RenderTemplate(body, map[string]string{"name": "Sam", "amount": "1200"})
	assert.Equal(t, "Hi Sam, your fee of 1200 is due on {{due_date}}.", out)
}

func TestRenderTemplateNoPlaceholders(t *testing.T) {
	assert.Equal(t, "plain text", RenderTemplate("plain text", nil))
}

func TestDeliverySuccessLogged(t *testing.T) {
	repo := &mockNotificationRepo{}
	sender := &mockSender{result: notify.DeliveryResult{Sent: true}}
	svc := newTestNotificationService(repo, &mockNotificationUsers{}, sender)

	item := &outboxItem{
		log:     &models.NotificationLog{ID: "log1", UserID: "u1", Content: "hello"},
		message: notify.Message{To: "0812", Body: "hello", Channel: notify.ChannelSMS},
	}
	err := svc.handleJob(context.Background(), jobs.Job{ID: "log1", Payload: item})
	require.NoError(t, err)
	require.Len(t, repo.logs, 1)
	assert.Equal(t, models.NotificationSent, repo.logs[0].Status)
	assert.False(t, repo.logs[0].SentAt.IsZero())
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "0812", sender.sent[0].To)
}

func TestDeliveryFailureLoggedNotRetried(t *testing.T) {
	repo := &mockNotificationRepo{}
	sender := &mockSender{result: notify.DeliveryResult{Sent: false, Error: "carrier rejected"}}
	svc := newTestNotificationService(repo, &mockNotificationUsers{}, sender)

	item := &outboxItem{
		log:     &models.NotificationLog{ID: "log1", UserID: "u1", Content: "hello"},
		message: notify.Message{To: "0812", Body: "hello", Channel: notify.ChannelSMS},
	}
	err := svc.handleJob(context.Background(), jobs.Job{ID: "log1", Payload: item})
	require.NoError(t, err)
	require.Len(t, repo.logs, 1)
	assert.Equal(t, models.NotificationFailed, repo.logs[0].Status)
	require.NotNil(t, repo.logs[0].Error)
	assert.Equal(t, "carrier rejected", *repo.logs[0].Error)
}

func TestBroadcastCountsRecipients(t *testing.T) {
	repo := &mockNotificationRepo{templates: map[string]*models.NotificationTemplate{
		"tpl1": {ID: "tpl1", Name: "fee-reminder", Type: models.NotificationSMS, Body: "Fee due {{amount}}"},
	}}
	users := &mockNotificationUsers{byBranch: []models.User{
		{ID: "s1", Phone: "0811"},
		{ID: "s2", Phone: "0812"},
		{ID: "s3", Phone: "0813"},
	}}
	svc := newTestNotificationService(repo, users, &mockSender{result: notify.DeliveryResult{Sent: true}})

	count, err := svc.Broadcast(context.Background(), scope.Actor{ID: "a1", Role: models.RoleSuperAdmin}, BroadcastRequest{
		TemplateID: "tpl1",
		BranchID:   "b1",
		Role:       models.RoleStudent,
		Data:       map[string]string{"amount": "500"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestBroadcastUnknownTemplate(t *testing.T) {
	svc := newTestNotificationService(&mockNotificationRepo{}, &mockNotificationUsers{}, &mockSender{})

	_, err := svc.Broadcast(context.Background(), scope.Actor{ID: "a1", Role: models.RoleSuperAdmin}, BroadcastRequest{
		TemplateID: "missing",
		BranchID:   "b1",
		Role:       models.RoleStudent,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTriggerDeniedForCoach(t *testing.T) {
	branchID := "b1"
	svc := newTestNotificationService(&mockNotificationRepo{}, &mockNotificationUsers{}, &mockSender{})

	err := svc.Trigger(context.Background(), scope.Actor{ID: "c1", Role: models.RoleCoach, BranchID: &branchID}, TriggerNotificationRequest{
		TemplateID: "tpl1",
		UserID:     "s1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestListLogsStudentScopedToOwn(t *testing.T) {
	branchID := "b1"
	repo := &mockNotificationRepo{logList: []models.NotificationLog{
		{ID: "l1", UserID: "s1"},
		{ID: "l2", UserID: "s2"},
	}}
	svc := newTestNotificationService(repo, &mockNotificationUsers{}, &mockSender{})

	logs, _, err := svc.ListLogs(context.Background(), scope.Actor{ID: "s1", Role: models.RoleStudent, BranchID: &branchID}, models.NotificationLogFilter{})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "s1", logs[0].UserID)
}

func TestCreateTemplateRejectsUnknownType(t *testing.T) {
	svc := newTestNotificationService(&mockNotificationRepo{}, &mockNotificationUsers{}, &mockSender{})

	_, err := svc.CreateTemplate(context.Background(), scope.Actor{ID: "a1", Role: models.RoleSuperAdmin}, CreateTemplateRequest{
		Name: "bad",
		Type: "email",
		Body: "hello",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
