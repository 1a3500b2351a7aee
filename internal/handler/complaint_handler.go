package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edumanage/academy-api/internal/models"
	"github.com/edumanage/academy-api/internal/service"
	appErrors "github.com/edumanage/academy-api/pkg/errors"
	"github.com/edumanage/academy-api/pkg/response"
)

// ComplaintHandler exposes complaint and rating endpoints.
type ComplaintHandler struct {
	complaints *service.ComplaintService
}

// NewComplaintHandler constructs ComplaintHandler.
func NewComplaintHandler(complaints *service.ComplaintService) *ComplaintHandler {
	return &ComplaintHandler{complaints: complaints}
}

// Create godoc
// @Summary File a complaint
// @Tags Complaints
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateComplaintRequest true "Complaint payload"
// @Success 201 {object} response.Envelope
// @Router /complaints [post]
func (h *ComplaintHandler) Create(c *gin.Context) {
	var req service.CreateComplaintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	complaint, err := h.complaints.Create(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, complaint)
}

// List godoc
// @Summary List complaints
// @Tags Complaints
// @Produce json
// @Security BearerAuth
// @Param student_id query string false "Filter by student"
// @Param branch_id query string false "Filter by branch"
// @Param status query string false "Filter by status"
// @Param skip query int false "Offset"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /complaints [get]
func (h *ComplaintHandler) List(c *gin.Context) {
	var filter models.ComplaintFilter
	filter.StudentID = c.Query("student_id")
	filter.BranchID = c.Query("branch_id")
	if status := c.Query("status"); status != "" {
		s := models.ComplaintStatus(status)
		filter.Status = &s
	}
	filter.Skip, filter.Limit = parsePage(c)

	complaints, pagination, err := h.complaints.List(c.Request.Context(), actorFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, complaints, pagination)
}

// Get godoc
// @Summary Get complaint detail
// @Tags Complaints
// @Produce json
// @Security BearerAuth
// @Param id path string true "Complaint ID"
// @Success 200 {object} response.Envelope
// @Router /complaints/{id} [get]
func (h *ComplaintHandler) Get(c *gin.Context) {
	complaint, err := h.complaints.Get(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, complaint, nil)
}

// UpdateStatus godoc
// @Summary Move a complaint through its lifecycle
// @Tags Complaints
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Complaint ID"
// @Param payload body service.UpdateComplaintRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /complaints/{id}/status [put]
func (h *ComplaintHandler) UpdateStatus(c *gin.Context) {
	var req service.UpdateComplaintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	complaint, err := h.complaints.UpdateStatus(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, complaint, nil)
}

// RateCoach godoc
// @Summary Rate a coach
// @Tags Ratings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.RateCoachRequest true "Rating payload"
// @Success 201 {object} response.Envelope
// @Router /ratings [post]
func (h *ComplaintHandler) RateCoach(c *gin.Context) {
	var req service.RateCoachRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	rating, err := h.complaints.RateCoach(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, rating)
}

// CoachRatings godoc
// @Summary List a coach's ratings with the aggregate
// @Tags Ratings
// @Produce json
// @Security BearerAuth
// @Param id path string true "Coach ID"
// @Success 200 {object} response.Envelope
// @Router /ratings/coach/{id} [get]
func (h *ComplaintHandler) CoachRatings(c *gin.Context) {
	ratings, summary, err := h.complaints.CoachRatings(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"summary": summary, "ratings": ratings}, nil)
}
