package validator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medtrack/data-ingress/pkg/model"
)

var fixedNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

func newTestValidator() *Validator {
	return New(nil, func() time.Time { return fixedNow })
}

func TestValidateEmptySet(t *testing.T) {
	report := newTestValidator().Validate(model.NewRecordSet("drug_code"), model.EntityDrug)
	assert.Equal(t, 0, report.TotalRecords)
	assert.Equal(t, 0.0, report.QualityScore)
	assert.Empty(t, report.Issues)
	assert.Equal(t, fixedNow, report.Timestamp)
}

func TestValidateCleanSet(t *testing.T) {
	rs := model.NewRecordSet()
	rs.Append(model.Row{"drug_code": "D1", "drug_name": "A", "manufacturer": "M", "unit_price": 1.0, "stock_quantity": int64(1)})
	rs.Append(model.Row{"drug_code": "D2", "drug_name": "B", "manufacturer": "M", "unit_price": 2.0, "stock_quantity": int64(0)})

	report := newTestValidator().Validate(rs, model.EntityDrug)
	assert.Equal(t, 100.0, report.QualityScore)
	assert.Equal(t, 2, report.ValidRecords)
	assert.Equal(t, 0, report.InvalidRecords)
}

func TestValidateIssues(t *testing.T) {
	rs := model.NewRecordSet()
	rs.Append(model.Row{"transaction_id": "T1", "drug_id": nil, "sale_date": nil, "quantity": int64(1), "unit_price": "x"})
	rs.Append(model.Row{"transaction_id": "T2", "drug_id": "1", "sale_date": time.Now(), "quantity": int64(1), "unit_price": "2.5"})
	rs.Append(model.Row{"transaction_id": "T3", "drug_id": "1", "sale_date": time.Now(), "quantity": int64(1), "unit_price": 3.0})

	report := newTestValidator().Validate(rs, model.EntitySale)
	require.Len(t, report.Issues, 4)
	assert.Equal(t, model.Issue{Field: "drug_id", Description: "Missing values: 1", Severity: model.SeverityHigh}, report.Issues[0])
	assert.Equal(t, model.Issue{Field: "sale_date", Description: "Missing values: 1", Severity: model.SeverityHigh}, report.Issues[1])
	assert.Equal(t, model.Issue{Field: "unit_price", Description: "Non-numeric values: 1", Severity: model.SeverityMedium}, report.Issues[2])
	assert.Equal(t, model.Issue{Field: "sale_date", Description: "Invalid dates: 1", Severity: model.SeverityMedium}, report.Issues[3])

	// issue count exceeds the record count: valid clamps at zero and is flagged
	assert.Equal(t, 4, report.InvalidRecords)
	assert.Equal(t, 0, report.ValidRecords)
	assert.True(t, report.IssuesExceedRecords)
	assert.Equal(t, 0.0, report.QualityScore)
}

func TestScore(t *testing.T) {
	assert.Equal(t, 0.0, Score(0, 0))
	assert.Equal(t, 66.67, Score(3, 2))
	assert.Equal(t, 100.0, Score(7, 7))
}
