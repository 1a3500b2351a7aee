package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edumanage/academy-api/internal/models"
	"github.com/edumanage/academy-api/internal/service"
	appErrors "github.com/edumanage/academy-api/pkg/errors"
	"github.com/edumanage/academy-api/pkg/response"
)

// NotificationHandler exposes notification template and delivery endpoints.
type NotificationHandler struct {
	notifications *service.NotificationService
}

// NewNotificationHandler constructs NotificationHandler.
func NewNotificationHandler(notifications *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// ListTemplates godoc
// @Summary List notification templates
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /notifications/templates [get]
func (h *NotificationHandler) ListTemplates(c *gin.Context) {
	templates, err := h.notifications.ListTemplates(c.Request.Context(), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, templates, nil)
}

// CreateTemplate godoc
// @Summary Create a notification template
// @Tags Notifications
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateTemplateRequest true "Template payload"
// @Success 201 {object} response.Envelope
// @Router /notifications/templates [post]
func (h *NotificationHandler) CreateTemplate(c *gin.Context) {
	var req service.CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	template, err := h.notifications.CreateTemplate(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, template)
}

// UpdateTemplate godoc
// @Summary Update a notification template
// @Tags Notifications
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Template ID"
// @Param payload body service.UpdateTemplateRequest true "Template payload"
// @Success 200 {object} response.Envelope
// @Router /notifications/templates/{id} [put]
func (h *NotificationHandler) UpdateTemplate(c *gin.Context) {
	var req service.UpdateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	template, err := h.notifications.UpdateTemplate(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, template, nil)
}

// DeleteTemplate godoc
// @Summary Delete a notification template
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Param id path string true "Template ID"
// @Success 204 "No Content"
// @Router /notifications/templates/{id} [delete]
func (h *NotificationHandler) DeleteTemplate(c *gin.Context) {
	if err := h.notifications.DeleteTemplate(c.Request.Context(), actorFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Trigger godoc
// @Summary Send a templated notification to one user
// @Tags Notifications
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.TriggerNotificationRequest true "Trigger payload"
// @Success 202 {object} response.Envelope
// @Router /notifications/trigger [post]
func (h *NotificationHandler) Trigger(c *gin.Context) {
	var req service.TriggerNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.notifications.Trigger(c.Request.Context(), actorFromContext(c), req); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{"queued": true}, nil)
}

// Broadcast godoc
// @Summary Send a templated notification to a branch or role
// @Tags Notifications
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.BroadcastRequest true "Broadcast payload"
// @Success 202 {object} response.Envelope
// @Router /notifications/broadcast [post]
func (h *NotificationHandler) Broadcast(c *gin.Context) {
	var req service.BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	queued, err := h.notifications.Broadcast(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{"queued": queued}, nil)
}

// ListLogs godoc
// @Summary List notification delivery logs
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Param user_id query string false "Filter by user"
// @Param status query string false "Filter by delivery status"
// @Param skip query int false "Offset"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /notifications/logs [get]
func (h *NotificationHandler) ListLogs(c *gin.Context) {
	var filter models.NotificationLogFilter
	filter.UserID = c.Query("user_id")
	if status := c.Query("status"); status != "" {
		s := models.NotificationLogStatus(status)
		filter.Status = &s
	}
	filter.Skip, filter.Limit = parsePage(c)

	logs, pagination, err := h.notifications.ListLogs(c.Request.Context(), actorFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, pagination)
}
