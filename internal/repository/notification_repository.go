package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edumanage/academy-api/internal/models"
)

// NotificationRepository handles persistence of notification templates and
// delivery logs.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// FindTemplateByID returns a template by id.
func (r *NotificationRepository) FindTemplateByID(ctx context.Context, id string) (*models.NotificationTemplate, error) {
	const query = `SELECT id, name, type, body, created_at, updated_at FROM notification_templates WHERE id = $1`
	var tpl models.NotificationTemplate
	if err := r.db.GetContext(ctx, &tpl, query, id); err != nil {
		return nil, err
	}
	return &tpl, nil
}

// ListTemplates returns all templates.
func (r *NotificationRepository) ListTemplates(ctx context.Context) ([]models.NotificationTemplate, error) {
	const query = `SELECT id, name, type, body, created_at, updated_at FROM notification_templates ORDER BY name ASC`
	var tpls []models.NotificationTemplate
	if err := r.db.SelectContext(ctx, &tpls, query); err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return tpls, nil
}

// CreateTemplate persists a new template.
func (r *NotificationRepository) CreateTemplate(ctx context.Context, tpl *models.NotificationTemplate) error {
	if tpl.ID == "" {
		tpl.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	tpl.CreatedAt = now
	tpl.UpdatedAt = now
	const query = `INSERT INTO notification_templates (id, name, type, body, created_at, updated_at)
        VALUES (:id, :name, :type, :body, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, tpl); err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

// UpdateTemplate rewrites a template.
func (r *NotificationRepository) UpdateTemplate(ctx context.Context, tpl *models.NotificationTemplate) error {
	tpl.UpdatedAt = time.Now().UTC()
	const query = `UPDATE notification_templates SET name = :name, type = :type, body = :body, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, tpl)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteTemplate removes a template. Logs keep their template_id.
func (r *NotificationRepository) DeleteTemplate(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notification_templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CreateLog appends a delivery attempt record.
func (r *NotificationRepository) CreateLog(ctx context.Context, log *models.NotificationLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.SentAt.IsZero() {
		log.SentAt = time.Now().UTC()
	}
	const query = `INSERT INTO notification_logs (id, user_id, template_id, type, content, status, error, sent_at)
        VALUES (:id, :user_id, :template_id, :type, :content, :status, :error, :sent_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create notification log: %w", err)
	}
	return nil
}

// ListLogs returns delivery logs matching the filter, newest first.
func (r *NotificationRepository) ListLogs(ctx context.Context, filter models.NotificationLogFilter) ([]models.NotificationLog, int, error) {
	var conditions []string
	var args []interface{}

	if filter.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)+1))
		args = append(args, filter.UserID)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	skip := filter.Skip
	if skip < 0 {
		skip = 0
	}

	query := fmt.Sprintf(`SELECT id, user_id, template_id, type, content, status, error, sent_at
        FROM notification_logs%s ORDER BY sent_at DESC LIMIT %d OFFSET %d`, clause, limit, skip)

	var logs []models.NotificationLog
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list notification logs: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM notification_logs"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count notification logs: %w", err)
	}
	return logs, total, nil
}
