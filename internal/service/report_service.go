package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/edumanage/academy-api/internal/models"
	"github.com/edumanage/academy-api/internal/scope"
	appErrors "github.com/edumanage/academy-api/pkg/errors"
	"github.com/edumanage/academy-api/pkg/export"
)

type reportRepository interface {
	DashboardCounts(ctx context.Context, branchID string) (*models.DashboardSummary, error)
	FinancialBreakdown(ctx context.Context, branchID string, from, to time.Time) ([]models.FinancialReportRow, error)
	SalesByBranch(ctx context.Context, branchID string, from, to time.Time) ([]models.BranchSales, error)
}

type reportAttendanceReader interface {
	CountPresentByBranchAndDate(ctx context.Context, branchID string, date time.Time) (int, error)
}

type reportBranchReader interface {
	List(ctx context.Context, filter models.BranchFilter) ([]models.Branch, int, error)
}

// ExportFormat selects the report download encoding.
type ExportFormat string

const (
	ExportCSV ExportFormat = "csv"
	ExportPDF ExportFormat = "pdf"
)

// ExportFile is a rendered report ready for download.
type ExportFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// ReportService aggregates read-only dashboard and financial views.
// Dashboards are cached in Redis with a short TTL; everything else reads
// live.
type ReportService struct {
	repo       reportRepository
	attendance reportAttendanceReader
	branches   reportBranchReader
	cache      *CacheService
	metrics    *MetricsService
	resolver   *scope.Resolver
	logger     *zap.Logger
	csv        *export.CSVExporter
	pdf        *export.PDFExporter
	cacheTTL   time.Duration
}

// NewReportService constructs ReportService.
func NewReportService(repo reportRepository, attendance reportAttendanceReader, branches reportBranchReader, cache *CacheService, metrics *MetricsService, resolver *scope.Resolver, logger *zap.Logger, cacheTTL time.Duration) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 2 * time.Minute
	}
	return &ReportService{
		repo:       repo,
		attendance: attendance,
		branches:   branches,
		cache:      cache,
		metrics:    metrics,
		resolver:   resolver,
		logger:     logger,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
		cacheTTL:   cacheTTL,
	}
}

// Dashboard returns the headline counters for the actor's visibility.
func (s *ReportService) Dashboard(ctx context.Context, actor scope.Actor) (*models.DashboardSummary, error) {
	scoped, err := s.resolver.Resolve(actor, scope.ResourceReports, scope.ActionRead, scope.Filters{})
	if err != nil {
		return nil, err
	}

	cacheKey := "dashboard:academy"
	if scoped.BranchID != "" {
		cacheKey = "dashboard:branch:" + scoped.BranchID
	}
	var cached models.DashboardSummary
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return &cached, nil
	}

	queryStart := time.Now()
	summary, err := s.repo.DashboardCounts(ctx, scoped.BranchID)
	s.metrics.ObserveDBQuery("dashboard_counts", time.Since(queryStart))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build dashboard")
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	present, err := s.attendance.CountPresentByBranchAndDate(ctx, scoped.BranchID, today)
	if err != nil {
		s.logger.Warn("failed to count today's attendance", zap.Error(err))
	} else {
		summary.PresentToday = present
	}
	summary.GeneratedAt = time.Now().UTC()

	if err := s.cache.Set(ctx, cacheKey, summary, s.cacheTTL); err != nil {
		s.logger.Warn("failed to cache dashboard", zap.String("key", cacheKey), zap.Error(err))
	}
	return summary, nil
}

// Financial builds the collected/pending breakdown over [from, to].
func (s *ReportService) Financial(ctx context.Context, actor scope.Actor, from, to time.Time) (*models.FinancialReport, error) {
	scoped, err := s.resolver.Resolve(actor, scope.ResourceReports, scope.ActionRead, scope.Filters{})
	if err != nil {
		return nil, err
	}
	if !from.Before(to) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "report period start must precede its end")
	}

	queryStart := time.Now()
	rows, err := s.repo.FinancialBreakdown(ctx, scoped.BranchID, from, to)
	s.metrics.ObserveDBQuery("financial_breakdown", time.Since(queryStart))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build financial report")
	}
	sales, err := s.repo.SalesByBranch(ctx, scoped.BranchID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate sales")
	}

	report := &models.FinancialReport{
		From:        from,
		To:          to,
		Rows:        rows,
		Sales:       sales,
		GeneratedAt: time.Now().UTC(),
	}
	for _, row := range rows {
		report.TotalCollected += row.Collected
		report.TotalPending += row.Pending
	}
	return report, nil
}

// ExportFinancial renders the financial report as CSV or PDF.
func (s *ReportService) ExportFinancial(ctx context.Context, actor scope.Actor, from, to time.Time, format ExportFormat) (*ExportFile, error) {
	if _, err := s.resolver.Resolve(actor, scope.ResourceReports, scope.ActionExport, scope.Filters{}); err != nil {
		return nil, err
	}

	report, err := s.Financial(ctx, actor, from, to)
	if err != nil {
		return nil, err
	}

	branchNames, err := s.branchNames(ctx)
	if err != nil {
		s.logger.Warn("failed to resolve branch names for export", zap.Error(err))
		branchNames = map[string]string{}
	}

	dataset := export.Dataset{
		Headers: []string{"Branch", "Payment Type", "Collected", "Pending"},
	}
	for _, row := range report.Rows {
		name := branchNames[row.BranchID]
		if name == "" {
			name = row.BranchID
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Branch":       name,
			"Payment Type": string(row.PaymentType),
			"Collected":    strconv.FormatFloat(row.Collected, 'f', 2, 64),
			"Pending":      strconv.FormatFloat(row.Pending, 'f', 2, 64),
		})
	}
	dataset.Rows = append(dataset.Rows, map[string]string{
		"Branch":       "TOTAL",
		"Payment Type": "",
		"Collected":    strconv.FormatFloat(report.TotalCollected, 'f', 2, 64),
		"Pending":      strconv.FormatFloat(report.TotalPending, 'f', 2, 64),
	})

	title := fmt.Sprintf("Financial Report %s - %s", from.Format("2006-01-02"), to.Format("2006-01-02"))
	return s.render(dataset, "financial-report", title, format)
}

// ExportAttendance renders an attendance listing as CSV or PDF.
func (s *ReportService) ExportAttendance(actor scope.Actor, records []models.AttendanceRecord, format ExportFormat) (*ExportFile, error) {
	if _, err := s.resolver.Resolve(actor, scope.ResourceReports, scope.ActionExport, scope.Filters{}); err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Headers: []string{"Date", "Student", "Course", "Branch", "Present", "Method"},
	}
	for _, rec := range records {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Date":    rec.AttendanceDate.Format("2006-01-02"),
			"Student": rec.StudentID,
			"Course":  rec.CourseID,
			"Branch":  rec.BranchID,
			"Present": strconv.FormatBool(rec.Present),
			"Method":  string(rec.Method),
		})
	}
	return s.render(dataset, "attendance-report", "Attendance Report", format)
}

func (s *ReportService) render(dataset export.Dataset, baseName, title string, format ExportFormat) (*ExportFile, error) {
	switch format {
	case ExportCSV:
		data, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportFile{Name: baseName + ".csv", ContentType: "text/csv", Data: data}, nil
	case ExportPDF:
		data, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportFile{Name: baseName + ".pdf", ContentType: "application/pdf", Data: data}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}

func (s *ReportService) branchNames(ctx context.Context) (map[string]string, error) {
	branches, _, err := s.branches.List(ctx, models.BranchFilter{})
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(branches))
	for _, b := range branches {
		names[b.ID] = b.Name
	}
	return names, nil
}
