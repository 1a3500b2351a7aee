package models

import "time"

// DashboardSummary is the headline counters block. Branch-bound actors
// see their branch's slice, super admins the whole academy.
type DashboardSummary struct {
	Students          int       `db:"students" json:"students"`
	Coaches           int       `db:"coaches" json:"coaches"`
	Branches          int       `db:"branches" json:"branches"`
	ActiveCourses     int       `db:"active_courses" json:"active_courses"`
	ActiveEnrollments int       `db:"active_enrollments" json:"active_enrollments"`
	PendingPayments   int       `db:"pending_payments" json:"pending_payments"`
	OutstandingTotal  float64   `db:"outstanding_total" json:"outstanding_total"`
	OpenComplaints    int       `db:"open_complaints" json:"open_complaints"`
	PresentToday      int       `json:"present_today"`
	GeneratedAt       time.Time `json:"generated_at"`
}

// FinancialReportRow is one (branch, payment type) cell of the financial
// report.
type FinancialReportRow struct {
	BranchID    string      `db:"branch_id" json:"branch_id"`
	PaymentType PaymentType `db:"payment_type" json:"payment_type"`
	Collected   float64     `db:"collected" json:"collected"`
	Pending     float64     `db:"pending" json:"pending"`
}

// BranchSales aggregates accessory purchases for a branch.
type BranchSales struct {
	BranchID  string  `db:"branch_id" json:"branch_id"`
	Total     float64 `db:"total" json:"total"`
	Purchases int     `db:"purchases" json:"purchases"`
}

// FinancialReport is the collected/pending breakdown over a period.
type FinancialReport struct {
	From           time.Time            `json:"from"`
	To             time.Time            `json:"to"`
	TotalCollected float64              `json:"total_collected"`
	TotalPending   float64              `json:"total_pending"`
	Rows           []FinancialReportRow `json:"rows"`
	Sales          []BranchSales        `json:"sales"`
	GeneratedAt    time.Time            `json:"generated_at"`
}

// SystemMetrics is a point-in-time snapshot of runtime counters exposed
// alongside the Prometheus endpoint.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"avg_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"avg_db_query_duration_ms"`
	NotificationsSent        uint64    `json:"notifications_sent"`
	NotificationsFailed      uint64    `json:"notifications_failed"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
