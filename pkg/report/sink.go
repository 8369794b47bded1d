// Package report persists pipeline and quality reports as structured documents.
package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/medtrack/data-ingress/pkg/logging"
	"github.com/medtrack/data-ingress/pkg/model"
)

// Format is the serialization used for report files
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Sink receives every report family the pipeline and the monitor produce
type Sink interface {
	SaveValidation(r model.ValidationReport) (string, error)
	SaveRunStats(s model.RunStats) (string, error)
	SaveBatchSummary(s model.BatchSummary) (string, error)
	SaveQualityAudit(r model.QualityAuditReport) (string, error)
}

// FileSink writes reports as files below two directories
type FileSink struct {
	reportsDir string
	qualityDir string
	format     Format
	now        func() time.Time
	logger     *zap.Logger
}

// NewFileSink creates a sink. Pipeline reports go to reportsDir and audit
// reports to qualityDir.
func NewFileSink(reportsDir, qualityDir string, format Format, now func() time.Time, logger *zap.Logger) (*FileSink, error) {
	switch format {
	case FormatJSON, FormatYAML:
	case "":
		format = FormatJSON
	default:
		return nil, errors.Newf("unsupported report format %q", format)
	}
	if now == nil {
		now = time.Now
	}
	return &FileSink{
		reportsDir: reportsDir,
		qualityDir: qualityDir,
		format:     format,
		now:        now,
		logger:     logging.OrNop(logger).Named("report"),
	}, nil
}

// SaveValidation writes quality_report_{table}_{timestamp}
func (s *FileSink) SaveValidation(r model.ValidationReport) (string, error) {
	name := "quality_report_" + r.EntityType.Table() + "_" + s.now().Format("20060102_150405")
	return s.write(s.reportsDir, name, r)
}

// SaveRunStats writes pipeline_stats_{date}; later runs of the same day overwrite it
func (s *FileSink) SaveRunStats(st model.RunStats) (string, error) {
	return s.write(s.reportsDir, "pipeline_stats_"+s.now().Format("20060102"), st)
}

// SaveBatchSummary writes daily_pipeline_summary_{date}
func (s *FileSink) SaveBatchSummary(sum model.BatchSummary) (string, error) {
	return s.write(s.reportsDir, "daily_pipeline_summary_"+s.now().Format("20060102"), sum)
}

// SaveQualityAudit writes quality_report_{timestamp} into the audit directory
func (s *FileSink) SaveQualityAudit(r model.QualityAuditReport) (string, error) {
	return s.write(s.qualityDir, "quality_report_"+s.now().Format("20060102_150405"), r)
}

func (s *FileSink) write(dir, name string, v any) (string, error) {
	data, err := s.marshal(v)
	if err != nil {
		return "", errors.Wrapf(err, "failed to encode %s", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create report directory %s", dir)
	}
	path := filepath.Join(dir, name+"."+string(s.format))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrapf(err, "failed to write report %s", path)
	}
	s.logger.Info("Report saved", zap.String(logging.FieldPath, path))
	return path, nil
}

func (s *FileSink) marshal(v any) ([]byte, error) {
	if s.format == FormatYAML {
		return yaml.Marshal(v)
	}
	return json.MarshalIndent(v, "", "  ")
}
