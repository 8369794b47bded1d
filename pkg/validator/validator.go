// Package validator computes structural quality reports for transformed
// record sets.
package validator

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/medtrack/data-ingress/pkg/converter"
	"github.com/medtrack/data-ingress/pkg/logging"
	"github.com/medtrack/data-ingress/pkg/model"
)

// Validator checks required, numeric and date fields of a record set
type Validator struct {
	now    func() time.Time
	logger *zap.Logger
}

// New creates a validator. A nil clock uses time.Now.
func New(logger *zap.Logger, now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	return &Validator{now: now, logger: logging.OrNop(logger).Named("validator")}
}

// Validate always produces a report; it never fails. Fields absent from the
// set are not checked.
func (v *Validator) Validate(rs *model.RecordSet, entity model.EntityType) model.ValidationReport {
	report := model.ValidationReport{
		EntityType:   entity,
		Timestamp:    v.now(),
		TotalRecords: rs.Len(),
		Issues:       []model.Issue{},
	}

	schema, err := model.SchemaFor(entity)
	if err != nil {
		v.logger.Warn("No validation rules for entity", zap.String(logging.FieldEntity, entity.String()))
		return report
	}

	if rs.Len() > 0 {
		for _, col := range schema.Required {
			if n := countNull(rs, col); n > 0 {
				report.Issues = append(report.Issues, issue(col, "Missing values", n, model.SeverityHigh))
			}
		}
		for _, col := range schema.Numeric {
			if n := countNonNumeric(rs, col); n > 0 {
				report.Issues = append(report.Issues, issue(col, "Non-numeric values", n, model.SeverityMedium))
			}
		}
		for _, col := range schema.Dates {
			if n := countNull(rs, col); n > 0 {
				report.Issues = append(report.Issues, issue(col, "Invalid dates", n, model.SeverityMedium))
			}
		}
	}

	issues := len(report.Issues)
	report.InvalidRecords = issues
	report.ValidRecords = report.TotalRecords - issues
	if report.ValidRecords < 0 {
		report.ValidRecords = 0
		report.IssuesExceedRecords = true
		v.logger.Warn("Issue count exceeds record count, valid records clamped at zero",
			zap.String(logging.FieldEntity, entity.String()),
			zap.Int("issues", issues),
			zap.Int("total_records", report.TotalRecords))
	}
	report.QualityScore = Score(report.TotalRecords, report.ValidRecords)

	v.logger.Info("Validated records",
		zap.String(logging.FieldEntity, entity.String()),
		zap.Int("total_records", report.TotalRecords),
		zap.Int("issues", issues),
		zap.Float64(logging.FieldScore, report.QualityScore))
	return report
}

// Score returns valid/total as a percentage rounded to two decimals, or 0
// for an empty set
func Score(total, valid int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(valid)/float64(total)*100*100) / 100
}

func issue(col model.Column, what string, n int, sev model.Severity) model.Issue {
	return model.Issue{
		Field:       string(col),
		Description: fmt.Sprintf("%s: %d", what, n),
		Severity:    sev,
	}
}

func countNull(rs *model.RecordSet, col model.Column) int {
	if !rs.HasColumn(string(col)) {
		return 0
	}
	n := 0
	for _, row := range rs.Rows() {
		if row[string(col)] == nil {
			n++
		}
	}
	return n
}

// countNonNumeric counts values that are null or do not parse as a number
func countNonNumeric(rs *model.RecordSet, col model.Column) int {
	if !rs.HasColumn(string(col)) {
		return 0
	}
	n := 0
	for _, row := range rs.Rows() {
		switch val := row[string(col)].(type) {
		case int64, float64, int:
		case nil, bool, time.Time:
			n++
		default:
			if _, err := converter.ToFloat(val); err != nil {
				n++
			}
		}
	}
	return n
}
