package loader

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/medtrack/data-ingress/pkg/converter"
	"github.com/medtrack/data-ingress/pkg/logging"
	"github.com/medtrack/data-ingress/pkg/model"
)

const fileTimestamp = "20060102_150405"

// Archiver writes immutable, timestamped copies of record sets
type Archiver struct {
	dir    string
	now    func() time.Time
	logger *zap.Logger
}

// NewArchiver creates an archiver writing into dir. A nil clock uses time.Now.
func NewArchiver(dir string, now func() time.Time, logger *zap.Logger) *Archiver {
	if now == nil {
		now = time.Now
	}
	return &Archiver{dir: dir, now: now, logger: logging.OrNop(logger).Named("archiver")}
}

// Archive writes the raw extracted set as {table}_raw_{timestamp}.csv. A
// second archive within the same second gets a random suffix.
func (a *Archiver) Archive(rs *model.RecordSet, entity model.EntityType) (string, error) {
	base := entity.Table() + "_raw_" + a.now().Format(fileTimestamp)
	path, err := a.createCSV(base, rs)
	if err != nil {
		return "", err
	}
	a.logger.Info("Raw data archived",
		zap.String(logging.FieldEntity, entity.String()),
		zap.String(logging.FieldPath, path),
		zap.Int(logging.FieldRows, rs.Len()))
	return path, nil
}

// Sheet is one named table of a backup workbook
type Sheet struct {
	Name string
	Data *model.RecordSet
}

// Backup writes every sheet into backup_{timestamp}.xlsx
func (a *Archiver) Backup(sheets []Sheet) (string, error) {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create archive directory %s", a.dir)
	}
	path := filepath.Join(a.dir, "backup_"+a.now().Format(fileTimestamp)+".xlsx")

	f := excelize.NewFile()
	defer f.Close()
	const defaultSheet = "Sheet1"

	for _, s := range sheets {
		if _, err := f.NewSheet(s.Name); err != nil {
			return "", errors.Wrapf(err, "failed to add sheet %s", s.Name)
		}
		header := make([]interface{}, 0, len(s.Data.Columns()))
		for _, c := range s.Data.Columns() {
			header = append(header, c)
		}
		if err := f.SetSheetRow(s.Name, "A1", &header); err != nil {
			return "", errors.Wrapf(err, "failed to write header of %s", s.Name)
		}
		for i := 0; i < s.Data.Len(); i++ {
			cell, err := excelize.CoordinatesToCellName(1, i+2)
			if err != nil {
				return "", errors.Wrap(err, "invalid cell coordinates")
			}
			values := s.Data.Values(i)
			for j, v := range values {
				if t, ok := v.(time.Time); ok {
					values[j] = t.Format(model.DateLayout)
				}
			}
			if err := f.SetSheetRow(s.Name, cell, &values); err != nil {
				return "", errors.Wrapf(err, "failed to write row %d of %s", i+1, s.Name)
			}
		}
	}
	if len(sheets) > 0 {
		if err := f.DeleteSheet(defaultSheet); err != nil {
			return "", errors.Wrap(err, "failed to drop default sheet")
		}
		f.SetActiveSheet(0)
	}

	if err := f.SaveAs(path); err != nil {
		return "", errors.Wrapf(err, "failed to save backup %s", path)
	}
	a.logger.Info("Backup written", zap.String(logging.FieldPath, path), zap.Int("tables", len(sheets)))
	return path, nil
}

// createCSV creates base.csv exclusively so an existing archive is never
// overwritten, falling back to a uniquely suffixed name when it is taken
func (a *Archiver) createCSV(base string, rs *model.RecordSet) (string, error) {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create archive directory %s", a.dir)
	}
	path := filepath.Join(a.dir, base+".csv")

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o444)
	if os.IsExist(err) {
		path = filepath.Join(a.dir, base+"_"+uuid.NewString()[:8]+".csv")
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o444)
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to create archive %s", path)
	}
	defer f.Close()

	if err := writeCSV(f, rs); err != nil {
		return "", errors.Wrapf(err, "failed to write archive %s", path)
	}
	return path, nil
}

// ExportCSV writes rs to path, replacing any existing file
func ExportCSV(path string, rs *model.RecordSet) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "failed to create directory %s", dir)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	if err := writeCSV(f, rs); err != nil {
		f.Close()
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return errors.Wrapf(f.Close(), "failed to close %s", path)
}

func writeCSV(out io.Writer, rs *model.RecordSet) error {
	w := csv.NewWriter(out)
	if err := w.Write(rs.Columns()); err != nil {
		return err
	}
	record := make([]string, len(rs.Columns()))
	for i := 0; i < rs.Len(); i++ {
		for j, v := range rs.Values(i) {
			record[j] = converter.ToString(v)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
