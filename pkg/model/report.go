package model

import "time"

// Severity of a validation issue
type Severity string

const (
	SeverityHigh   Severity = "High"
	SeverityMedium Severity = "Medium"
	SeverityLow    Severity = "Low"
)

// Issue is one finding of the structural validator
type Issue struct {
	Field       string   `json:"field" yaml:"field"`
	Description string   `json:"issue" yaml:"issue"`
	Severity    Severity `json:"severity" yaml:"severity"`
}

// ValidationReport is produced once per validation pass and never mutated afterwards
type ValidationReport struct {
	EntityType     EntityType `json:"data_type" yaml:"data_type"`
	Timestamp      time.Time  `json:"timestamp" yaml:"timestamp"`
	TotalRecords   int        `json:"total_records" yaml:"total_records"`
	ValidRecords   int        `json:"valid_records" yaml:"valid_records"`
	InvalidRecords int        `json:"invalid_records" yaml:"invalid_records"`
	QualityScore   float64    `json:"quality_score" yaml:"quality_score"`
	// IssuesExceedRecords is set when the issue count is larger than the
	// record count and ValidRecords was clamped at zero
	IssuesExceedRecords bool    `json:"issues_exceed_records,omitempty" yaml:"issues_exceed_records,omitempty"`
	Issues              []Issue `json:"issues" yaml:"issues"`
}

// RunStats accumulates counters over one orchestrator run
type RunStats struct {
	FilesProcessed   int            `json:"files_processed" yaml:"files_processed"`
	RecordsProcessed int            `json:"records_processed" yaml:"records_processed"`
	Errors           int            `json:"errors" yaml:"errors"`
	Warnings         int            `json:"warnings" yaml:"warnings"`
	StartTime        time.Time      `json:"start_time" yaml:"start_time"`
	EndTime          time.Time      `json:"end_time" yaml:"end_time"`
	DurationSeconds  float64        `json:"duration_seconds" yaml:"duration_seconds"`
	ErrorCategories  map[string]int `json:"error_categories,omitempty" yaml:"error_categories,omitempty"`
}

// Finish stamps the end time and computes the duration
func (s *RunStats) Finish(end time.Time) {
	s.EndTime = end
	if !s.StartTime.IsZero() {
		s.DurationSeconds = end.Sub(s.StartTime).Seconds()
	}
}

// Duration returns the run duration
func (s *RunStats) Duration() time.Duration {
	return time.Duration(s.DurationSeconds * float64(time.Second))
}

// EntityOutcome is the per-entity result of a daily batch
type EntityOutcome string

const (
	OutcomeSuccess EntityOutcome = "Success"
	OutcomeFailed  EntityOutcome = "Failed"
	OutcomeSkipped EntityOutcome = "Skipped"
)

// BatchSummary is persisted after a daily batch
type BatchSummary struct {
	Timestamp  time.Time                    `json:"timestamp" yaml:"timestamp"`
	Results    map[EntityType]EntityOutcome `json:"results" yaml:"results"`
	Statistics RunStats                     `json:"statistics" yaml:"statistics"`
}

// CompletenessReport covers one canonical table
type CompletenessReport struct {
	Table            string    `json:"table" yaml:"table"`
	TotalRecords     int       `json:"total_records" yaml:"total_records"`
	CompleteRecords  int       `json:"complete_records" yaml:"complete_records"`
	CompletenessRate float64   `json:"completeness_rate" yaml:"completeness_rate"`
	Timestamp        time.Time `json:"timestamp" yaml:"timestamp"`
}

// ConsistencyReport counts cross-entity defects
type ConsistencyReport struct {
	OrphanedSales       int       `json:"orphaned_sales" yaml:"orphaned_sales"`
	NegativeStock       int       `json:"negative_stock" yaml:"negative_stock"`
	FutureSales         int       `json:"future_sales" yaml:"future_sales"`
	ExpiredDrugsInStock int       `json:"expired_drugs_in_stock" yaml:"expired_drugs_in_stock"`
	Timestamp           time.Time `json:"timestamp" yaml:"timestamp"`
}

// TotalIssues sums all consistency counters
func (c ConsistencyReport) TotalIssues() int {
	return c.OrphanedSales + c.NegativeStock + c.FutureSales + c.ExpiredDrugsInStock
}

// AccuracyIssue describes one violated business rule
type AccuracyIssue struct {
	Rule       string `json:"rule" yaml:"rule"`
	Violations int    `json:"violations" yaml:"violations"`
	Example    string `json:"example" yaml:"example"`
}

// AccuracyReport lists violated business rules. TotalIssues is the number of
// rules violated, not the number of violating rows.
type AccuracyReport struct {
	TotalIssues int             `json:"total_issues" yaml:"total_issues"`
	Issues      []AccuracyIssue `json:"issues" yaml:"issues"`
	Timestamp   time.Time       `json:"timestamp" yaml:"timestamp"`
}

// TimelinessReport describes how recent the data is
type TimelinessReport struct {
	LastSaleDate        *time.Time `json:"last_sale_date" yaml:"last_sale_date"`
	DaysSinceLastSale   *int       `json:"days_since_last_sale" yaml:"days_since_last_sale"`
	RecentSales7Days    int        `json:"recent_sales_7_days" yaml:"recent_sales_7_days"`
	RecentPatients7Days int        `json:"recent_patients_7_days" yaml:"recent_patients_7_days"`
	Timestamp           time.Time  `json:"timestamp" yaml:"timestamp"`
}

// QualityScore is the weighted aggregate of the four audit dimensions
type QualityScore struct {
	Completeness float64 `json:"completeness" yaml:"completeness"`
	Consistency  float64 `json:"consistency" yaml:"consistency"`
	Accuracy     float64 `json:"accuracy" yaml:"accuracy"`
	Timeliness   float64 `json:"timeliness" yaml:"timeliness"`
	Overall      float64 `json:"overall" yaml:"overall"`
	Grade        string  `json:"grade" yaml:"grade"`
}

// QualityAuditReport is the read-only result of one monitor pass
type QualityAuditReport struct {
	ID            string               `json:"id" yaml:"id"`
	ExecutionTime time.Time            `json:"execution_time" yaml:"execution_time"`
	Completeness  []CompletenessReport `json:"completeness" yaml:"completeness"`
	Consistency   ConsistencyReport    `json:"consistency" yaml:"consistency"`
	Accuracy      AccuracyReport       `json:"accuracy" yaml:"accuracy"`
	Timeliness    TimelinessReport     `json:"timeliness" yaml:"timeliness"`
	Score         QualityScore         `json:"quality_score" yaml:"quality_score"`
}
