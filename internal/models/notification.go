package models

import "time"

// NotificationType selects the delivery channel of a template.
type NotificationType string

const (
	NotificationSMS      NotificationType = "sms"
	NotificationWhatsApp NotificationType = "whatsapp"
)

// Valid returns true for supported types.
func (t NotificationType) Valid() bool {
	return t == NotificationSMS || t == NotificationWhatsApp
}

// NotificationTemplate is a named message body with {{placeholder}} slots.
type NotificationTemplate struct {
	ID        string           `db:"id" json:"id"`
	Name      string           `db:"name" json:"name"`
	Type      NotificationType `db:"type" json:"type"`
	Body      string           `db:"body" json:"body"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// NotificationLogStatus records the delivery outcome.
type NotificationLogStatus string

const (
	NotificationSent   NotificationLogStatus = "sent"
	NotificationFailed NotificationLogStatus = "failed"
)

// NotificationLog records every delivery attempt, successful or not.
type NotificationLog struct {
	ID         string                `db:"id" json:"id"`
	UserID     string                `db:"user_id" json:"user_id"`
	TemplateID *string               `db:"template_id" json:"template_id,omitempty"`
	Type       NotificationType      `db:"type" json:"type"`
	Content    string                `db:"content" json:"content"`
	Status     NotificationLogStatus `db:"status" json:"status"`
	Error      *string               `db:"error" json:"error,omitempty"`
	SentAt     time.Time             `db:"sent_at" json:"sent_at"`
}

// NotificationLogFilter scopes delivery log listings.
type NotificationLogFilter struct {
	UserID string
	Status *NotificationLogStatus
	Skip   int
	Limit  int
}
