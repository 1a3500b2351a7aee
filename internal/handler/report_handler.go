package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edumanage/academy-api/internal/models"
	"github.com/edumanage/academy-api/internal/service"
	appErrors "github.com/edumanage/academy-api/pkg/errors"
	"github.com/edumanage/academy-api/pkg/response"
)

// ReportHandler exposes dashboard, financial report and operational endpoints.
type ReportHandler struct {
	reports  *service.ReportService
	activity *service.ActivityService
	metrics  *service.MetricsService
}

// NewReportHandler constructs ReportHandler.
func NewReportHandler(reports *service.ReportService, activity *service.ActivityService, metrics *service.MetricsService) *ReportHandler {
	return &ReportHandler{reports: reports, activity: activity, metrics: metrics}
}

// Dashboard godoc
// @Summary Dashboard summary counters
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /reports/dashboard [get]
func (h *ReportHandler) Dashboard(c *gin.Context) {
	summary, err := h.reports.Dashboard(c.Request.Context(), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Financial godoc
// @Summary Financial report for a date range
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Param from query string false "Start date (YYYY-MM-DD), defaults to first of current month"
// @Param to query string false "End date (YYYY-MM-DD), defaults to today"
// @Success 200 {object} response.Envelope
// @Router /reports/financial [get]
func (h *ReportHandler) Financial(c *gin.Context) {
	from, to := h.parseRange(c)
	report, err := h.reports.Financial(c.Request.Context(), actorFromContext(c), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// ExportFinancial godoc
// @Summary Export the financial report as CSV or PDF
// @Tags Reports
// @Produce application/octet-stream
// @Security BearerAuth
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD)"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Router /reports/financial/export [get]
func (h *ReportHandler) ExportFinancial(c *gin.Context) {
	from, to := h.parseRange(c)
	format := service.ExportFormat(c.DefaultQuery("format", string(service.ExportCSV)))
	file, err := h.reports.ExportFinancial(c.Request.Context(), actorFromContext(c), from, to, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, file.ContentType, file.Name, file.Data)
}

// Metrics godoc
// @Summary Runtime metrics snapshot
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /reports/metrics [get]
func (h *ReportHandler) Metrics(c *gin.Context) {
	if h.metrics == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "metrics are disabled"))
		return
	}
	response.JSON(c, http.StatusOK, h.metrics.Snapshot(), nil)
}

// ActivityLogs godoc
// @Summary List audit activity logs
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Param user_id query string false "Filter by user"
// @Param action query string false "Filter by action"
// @Param resource query string false "Filter by resource"
// @Param skip query int false "Offset"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /reports/activity [get]
func (h *ReportHandler) ActivityLogs(c *gin.Context) {
	var filter models.ActivityLogFilter
	filter.UserID = c.Query("user_id")
	filter.Action = c.Query("action")
	filter.Resource = c.Query("resource")
	filter.Skip, filter.Limit = parsePage(c)

	logs, pagination, err := h.activity.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, pagination)
}

func (h *ReportHandler) parseRange(c *gin.Context) (time.Time, time.Time) {
	now := time.Now().UTC()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := now
	if parsed := parseDateQuery(c, "from"); parsed != nil {
		from = *parsed
	}
	if parsed := parseDateQuery(c, "to"); parsed != nil {
		to = *parsed
	}
	return from, to
}
