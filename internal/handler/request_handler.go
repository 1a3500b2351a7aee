package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edumanage/academy-api/internal/models"
	"github.com/edumanage/academy-api/internal/service"
	appErrors "github.com/edumanage/academy-api/pkg/errors"
	"github.com/edumanage/academy-api/pkg/response"
)

// RequestHandler exposes workflow request endpoints.
type RequestHandler struct {
	requests *service.RequestService
}

// NewRequestHandler constructs RequestHandler.
func NewRequestHandler(requests *service.RequestService) *RequestHandler {
	return &RequestHandler{requests: requests}
}

// CreateCourseChange godoc
// @Summary Request a course change
// @Tags Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateCourseChangeRequest true "Request payload"
// @Success 201 {object} response.Envelope
// @Router /requests/course-change [post]
func (h *RequestHandler) CreateCourseChange(c *gin.Context) {
	var req service.CreateCourseChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	change, err := h.requests.CreateCourseChange(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, change)
}

// CreateTransfer godoc
// @Summary Request a branch transfer
// @Tags Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateTransferRequest true "Request payload"
// @Success 201 {object} response.Envelope
// @Router /requests/transfer [post]
func (h *RequestHandler) CreateTransfer(c *gin.Context) {
	var req service.CreateTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	transfer, err := h.requests.CreateTransfer(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, transfer)
}

// CreateResource godoc
// @Summary Request equipment or materials
// @Tags Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateResourceRequestInput true "Request payload"
// @Success 201 {object} response.Envelope
// @Router /requests/resource [post]
func (h *RequestHandler) CreateResource(c *gin.Context) {
	var req service.CreateResourceRequestInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	resource, err := h.requests.CreateResourceRequest(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, resource)
}

// ListCourseChanges godoc
// @Summary List course change requests
// @Tags Requests
// @Produce json
// @Security BearerAuth
// @Param student_id query string false "Filter by student"
// @Param branch_id query string false "Filter by branch"
// @Param status query string false "Filter by status"
// @Param skip query int false "Offset"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /requests/course-change [get]
func (h *RequestHandler) ListCourseChanges(c *gin.Context) {
	requests, err := h.requests.ListCourseChanges(c.Request.Context(), actorFromContext(c), h.parseFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}

// ListTransfers godoc
// @Summary List transfer requests
// @Tags Requests
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /requests/transfer [get]
func (h *RequestHandler) ListTransfers(c *gin.Context) {
	requests, err := h.requests.ListTransfers(c.Request.Context(), actorFromContext(c), h.parseFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}

// ListResources godoc
// @Summary List resource requests
// @Tags Requests
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /requests/resource [get]
func (h *RequestHandler) ListResources(c *gin.Context) {
	requests, err := h.requests.ListResourceRequests(c.Request.Context(), actorFromContext(c), h.parseFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}

// DecideCourseChange godoc
// @Summary Approve or reject a course change request
// @Tags Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request ID"
// @Param payload body service.DecideRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Router /requests/course-change/{id}/decide [post]
func (h *RequestHandler) DecideCourseChange(c *gin.Context) {
	var req service.DecideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	change, err := h.requests.DecideCourseChange(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, change, nil)
}

// DecideTransfer godoc
// @Summary Approve or reject a transfer request
// @Tags Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request ID"
// @Param payload body service.DecideRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Router /requests/transfer/{id}/decide [post]
func (h *RequestHandler) DecideTransfer(c *gin.Context) {
	var req service.DecideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	transfer, err := h.requests.DecideTransfer(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transfer, nil)
}

// DecideResource godoc
// @Summary Approve or reject a resource request
// @Tags Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request ID"
// @Param payload body service.DecideRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Router /requests/resource/{id}/decide [post]
func (h *RequestHandler) DecideResource(c *gin.Context) {
	var req service.DecideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	resource, err := h.requests.DecideResourceRequest(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resource, nil)
}

func (h *RequestHandler) parseFilter(c *gin.Context) models.RequestFilter {
	var filter models.RequestFilter
	filter.StudentID = c.Query("student_id")
	filter.BranchID = c.Query("branch_id")
	if status := c.Query("status"); status != "" {
		s := models.RequestStatus(status)
		filter.Status = &s
	}
	filter.Skip, filter.Limit = parsePage(c)
	return filter
}
