package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/medtrack/data-ingress/pkg/model"
)

var fixedNow = time.Date(2026, 3, 15, 14, 30, 5, 0, time.UTC)

func TestFileSinkJSON(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir, filepath.Join(dir, "quality"), FormatJSON, func() time.Time { return fixedNow }, nil)
	require.NoError(t, err)

	path, err := sink.SaveValidation(model.ValidationReport{
		EntityType:   model.EntitySale,
		TotalRecords: 3,
		ValidRecords: 2,
		Issues:       []model.Issue{{Field: "drug_id", Description: "Missing values: 1", Severity: model.SeverityHigh}},
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "quality_report_sales_20260315_143005.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "sale", doc["data_type"])
	assert.Equal(t, float64(3), doc["total_records"])
	issues := doc["issues"].([]any)
	assert.Equal(t, "Missing values: 1", issues[0].(map[string]any)["issue"])

	path, err = sink.SaveRunStats(model.RunStats{FilesProcessed: 1})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "pipeline_stats_20260315.json"), path)

	path, err = sink.SaveBatchSummary(model.BatchSummary{
		Results: map[model.EntityType]model.EntityOutcome{model.EntityDrug: model.OutcomeSkipped},
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "daily_pipeline_summary_20260315.json"), path)

	path, err = sink.SaveQualityAudit(model.QualityAuditReport{Score: model.QualityScore{Overall: 91, Grade: "A"}})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "quality", "quality_report_20260315_143005.json"), path)
}

func TestFileSinkYAML(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir, dir, FormatYAML, func() time.Time { return fixedNow }, nil)
	require.NoError(t, err)

	path, err := sink.SaveRunStats(model.RunStats{RecordsProcessed: 12, Warnings: 1})
	require.NoError(t, err)
	assert.Equal(t, ".yaml", filepath.Ext(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(data, &doc))
	assert.Equal(t, 12, doc["records_processed"])
	assert.Equal(t, 1, doc["warnings"])
}

func TestNewFileSinkRejectsUnknownFormat(t *testing.T) {
	_, err := NewFileSink("a", "b", Format("xml"), nil, nil)
	assert.Error(t, err)
}
