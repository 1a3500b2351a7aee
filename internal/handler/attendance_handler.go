package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edumanage/academy-api/internal/models"
	"github.com/edumanage/academy-api/internal/service"
	appErrors "github.com/edumanage/academy-api/pkg/errors"
	"github.com/edumanage/academy-api/pkg/response"
)

// AttendanceHandler exposes attendance endpoints.
type AttendanceHandler struct {
	attendance *service.AttendanceService
	reports    *service.ReportService
	reminders  *service.ReminderService
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(attendance *service.AttendanceService, reports *service.ReportService, reminders *service.ReminderService) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance, reports: reports, reminders: reminders}
}

// GenerateQR godoc
// @Summary Open a QR attendance session for a course
// @Tags Attendance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.GenerateQRRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Router /attendance/qr [post]
func (h *AttendanceHandler) GenerateQR(c *gin.Context) {
	var req service.GenerateQRRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	session, err := h.attendance.GenerateQR(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// ScanQR godoc
// @Summary Mark attendance by scanning a QR token
// @Tags Attendance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.ScanQRRequest true "Scan payload"
// @Success 200 {object} response.Envelope
// @Router /attendance/scan [post]
func (h *AttendanceHandler) ScanQR(c *gin.Context) {
	var req service.ScanQRRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.attendance.ScanQR(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Mark godoc
// @Summary Record attendance manually or by biometric device
// @Tags Attendance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.MarkAttendanceRequest true "Attendance payload"
// @Success 201 {object} response.Envelope
// @Router /attendance [post]
func (h *AttendanceHandler) Mark(c *gin.Context) {
	var req service.MarkAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.attendance.Mark(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// List godoc
// @Summary List attendance records
// @Tags Attendance
// @Produce json
// @Security BearerAuth
// @Param student_id query string false "Filter by student"
// @Param course_id query string false "Filter by course"
// @Param branch_id query string false "Filter by branch"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Param skip query int false "Offset"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /attendance [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	filter := h.parseFilter(c)
	records, pagination, err := h.attendance.List(c.Request.Context(), actorFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

// Export godoc
// @Summary Export attendance records as CSV or PDF
// @Tags Attendance
// @Produce octet-stream
// @Security BearerAuth
// @Param format query string false "csv or pdf"
// @Success 200
// @Router /attendance/export [get]
func (h *AttendanceHandler) Export(c *gin.Context) {
	actor := actorFromContext(c)
	filter := h.parseFilter(c)
	filter.Skip = 0
	filter.Limit = 10000

	records, _, err := h.attendance.List(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	format := service.ExportFormat(c.DefaultQuery("format", "csv"))
	file, err := h.reports.ExportAttendance(actor, records, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, file.ContentType, file.Name, file.Data)
}

// Anomalies godoc
// @Summary List students with runs of consecutive missed classes
// @Tags Attendance
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /attendance/anomalies [get]
func (h *AttendanceHandler) Anomalies(c *gin.Context) {
	anomalies, err := h.attendance.Anomalies(c.Request.Context(), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, anomalies, nil)
}

// SendReminders godoc
// @Summary Trigger the attendance reminder sweep
// @Tags Attendance
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /attendance/reminders [post]
func (h *AttendanceHandler) SendReminders(c *gin.Context) {
	notified, err := h.reminders.SendAttendanceReminders(c.Request.Context(), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"notified": notified}, nil)
}

func (h *AttendanceHandler) parseFilter(c *gin.Context) models.AttendanceFilter {
	var filter models.AttendanceFilter
	filter.StudentID = c.Query("student_id")
	filter.CourseID = c.Query("course_id")
	filter.BranchID = c.Query("branch_id")
	filter.DateFrom = parseDateQuery(c, "from")
	filter.DateTo = parseDateQuery(c, "to")
	filter.Skip, filter.Limit = parsePage(c)
	return filter
}
