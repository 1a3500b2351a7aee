package handler

import (
	"io"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/edumanage/academy-api/internal/models"
	"github.com/edumanage/academy-api/internal/service"
	appErrors "github.com/edumanage/academy-api/pkg/errors"
	"github.com/edumanage/academy-api/pkg/response"
)

const maxProofSize = 5 << 20 // 5 MiB

// PaymentHandler exposes ledger endpoints.
type PaymentHandler struct {
	payments  *service.PaymentService
	reminders *service.ReminderService
}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler(payments *service.PaymentService, reminders *service.ReminderService) *PaymentHandler {
	return &PaymentHandler{payments: payments, reminders: reminders}
}

// List godoc
// @Summary List payments
// @Tags Payments
// @Produce json
// @Security BearerAuth
// @Param student_id query string false "Filter by student"
// @Param enrollment_id query string false "Filter by enrollment"
// @Param branch_id query string false "Filter by branch"
// @Param status query string false "Filter by effective status"
// @Param type query string false "Filter by payment type"
// @Param from query string false "Due or paid from (YYYY-MM-DD)"
// @Param to query string false "Due or paid to (YYYY-MM-DD)"
// @Param skip query int false "Offset"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /payments [get]
func (h *PaymentHandler) List(c *gin.Context) {
	var filter models.PaymentFilter
	filter.StudentID = c.Query("student_id")
	filter.EnrollmentID = c.Query("enrollment_id")
	filter.BranchID = c.Query("branch_id")
	if status := c.Query("status"); status != "" {
		s := models.PaymentStatus(status)
		filter.Status = &s
	}
	if ptype := c.Query("type"); ptype != "" {
		t := models.PaymentType(ptype)
		filter.Type = &t
	}
	filter.DateFrom = parseDateQuery(c, "from")
	filter.DateTo = parseDateQuery(c, "to")
	filter.Skip, filter.Limit = parsePage(c)

	payments, pagination, err := h.payments.List(c.Request.Context(), actorFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payments, pagination)
}

// Get godoc
// @Summary Get payment detail
// @Tags Payments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Payment ID"
// @Success 200 {object} response.Envelope
// @Router /payments/{id} [get]
func (h *PaymentHandler) Get(c *gin.Context) {
	payment, err := h.payments.Get(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payment, nil)
}

// Create godoc
// @Summary Open an ad-hoc ledger entry
// @Tags Payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreatePaymentRequest true "Payment payload"
// @Success 201 {object} response.Envelope
// @Router /payments [post]
func (h *PaymentHandler) Create(c *gin.Context) {
	var req service.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	payment, err := h.payments.Create(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, payment)
}

// Process godoc
// @Summary Settle a pending payment
// @Tags Payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Payment ID"
// @Param payload body service.RecordPaymentRequest true "Settlement payload"
// @Success 200 {object} response.Envelope
// @Router /payments/{id}/process [post]
func (h *PaymentHandler) Process(c *gin.Context) {
	var req service.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	payment, err := h.payments.Process(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payment, nil)
}

// Cancel godoc
// @Summary Cancel a pending payment
// @Tags Payments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Payment ID"
// @Success 204
// @Router /payments/{id} [delete]
func (h *PaymentHandler) Cancel(c *gin.Context) {
	if err := h.payments.Cancel(c.Request.Context(), actorFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Dues godoc
// @Summary List outstanding dues per student
// @Tags Payments
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /payments/dues [get]
func (h *PaymentHandler) Dues(c *gin.Context) {
	dues, err := h.payments.Dues(c.Request.Context(), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dues, nil)
}

// SendReminders godoc
// @Summary Trigger the payment reminder sweep
// @Tags Payments
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /payments/reminders [post]
func (h *PaymentHandler) SendReminders(c *gin.Context) {
	notified, err := h.reminders.SendPaymentReminders(c.Request.Context(), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"notified": notified}, nil)
}

// UploadProof godoc
// @Summary Attach a payment proof image
// @Tags Payments
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path string true "Payment ID"
// @Param file formData file true "Proof file"
// @Success 200 {object} response.Envelope
// @Router /payments/{id}/proof [post]
func (h *PaymentHandler) UploadProof(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "proof file is required"))
		return
	}
	if fileHeader.Size > maxProofSize {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "proof file exceeds the size limit"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read uploaded file"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxProofSize))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read uploaded file"))
		return
	}

	payment, err := h.payments.AttachProof(c.Request.Context(), actorFromContext(c), c.Param("id"), fileHeader.Filename, data)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payment, nil)
}

// ProofURL godoc
// @Summary Create a signed download token for a payment proof
// @Tags Payments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Payment ID"
// @Success 200 {object} response.Envelope
// @Router /payments/{id}/proof-url [get]
func (h *PaymentHandler) ProofURL(c *gin.Context) {
	result, err := h.payments.ProofURL(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// DownloadProof godoc
// @Summary Download a payment proof with a signed token
// @Tags Payments
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200
// @Router /payments/proof [get]
func (h *PaymentHandler) DownloadProof(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	file, err := h.payments.OpenProof(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read proof file"))
		return
	}
	response.File(c, "application/octet-stream", filepath.Base(file.Name()), data)
}
