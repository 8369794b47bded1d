// Package extractor reads batch sources into record sets.
package extractor

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"

	"github.com/medtrack/data-ingress/pkg/logging"
	"github.com/medtrack/data-ingress/pkg/model"
	"github.com/medtrack/data-ingress/pkg/store"
)

var (
	// ErrSourceNotFound is returned when the source location does not exist
	ErrSourceNotFound = errors.New("source not found")
	// ErrUnsupportedSource is returned for unknown source kinds
	ErrUnsupportedSource = errors.New("unsupported source")
	// ErrStructuralRead is returned when the source is empty or cannot be parsed as a table
	ErrStructuralRead = errors.New("structurally unreadable source")
)

// SourceKind selects how a location is read
type SourceKind string

const (
	KindDelimited   SourceKind = "delimited"
	KindSpreadsheet SourceKind = "spreadsheet"
	KindStoreTable  SourceKind = "store"
	KindWarehouse   SourceKind = "warehouse"
)

// WarehouseReader reads a whole table from the data warehouse
type WarehouseReader interface {
	ReadTable(ctx context.Context, name string, batchSize int) (*model.RecordSet, error)
}

// Extractor reads sources into record sets. It has no side effects beyond reading.
type Extractor struct {
	store     store.Store
	warehouse WarehouseReader
	batchSize int
	logger    *zap.Logger
}

// Option configures an Extractor
type Option func(*Extractor)

// WithWarehouse enables the warehouse source kind
func WithWarehouse(w WarehouseReader) Option {
	return func(e *Extractor) { e.warehouse = w }
}

// WithBatchSize sets the row batch size used for warehouse reads
func WithBatchSize(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// New creates an extractor reading store tables from st
func New(st store.Store, logger *zap.Logger, opts ...Option) *Extractor {
	e := &Extractor{
		store:     st,
		batchSize: 1000,
		logger:    logging.OrNop(logger).Named("extractor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ParseLocation splits a configured source location into its kind and
// target. "store:drugs" and "warehouse:SCHEMA.TABLE" name tables; anything
// else is a file whose extension selects the kind.
func ParseLocation(location string) (SourceKind, string, error) {
	if prefix, rest, ok := strings.Cut(location, ":"); ok && len(prefix) > 1 {
		switch SourceKind(strings.ToLower(prefix)) {
		case KindStoreTable:
			return KindStoreTable, rest, nil
		case KindWarehouse:
			return KindWarehouse, rest, nil
		}
	}
	kind, err := KindFromPath(location)
	return kind, location, err
}

// KindFromPath infers the source kind from a file extension
func KindFromPath(path string) (SourceKind, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv", ".txt":
		return KindDelimited, nil
	case ".xlsx", ".xlsm":
		return KindSpreadsheet, nil
	default:
		return "", errors.Wrapf(ErrUnsupportedSource, "cannot infer source kind of %q", path)
	}
}

// Extract reads the location as the given kind
func (e *Extractor) Extract(ctx context.Context, kind SourceKind, location string) (*model.RecordSet, error) {
	var (
		rs  *model.RecordSet
		err error
	)
	switch kind {
	case KindDelimited:
		rs, err = e.readDelimited(location)
	case KindSpreadsheet:
		rs, err = e.readSpreadsheet(location)
	case KindStoreTable:
		rs, err = e.readStoreTable(ctx, location)
	case KindWarehouse:
		rs, err = e.readWarehouse(ctx, location)
	default:
		return nil, errors.Wrapf(ErrUnsupportedSource, "source kind %q", kind)
	}
	if err != nil {
		return nil, err
	}

	e.logger.Info("Extracted records",
		zap.String(logging.FieldSource, location),
		zap.String("kind", string(kind)),
		zap.Int(logging.FieldRows, rs.Len()))
	return rs, nil
}

func (e *Extractor) readDelimited(path string) (*model.RecordSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrSourceNotFound, "%s", path)
		}
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}

	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		e.logger.Warn("Source is not valid UTF-8, decoding as Latin-1", zap.String(logging.FieldPath, path))
		data, err = charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return nil, errors.Wrapf(ErrStructuralRead, "%s: %v", path, err)
		}
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		r.Comma = '\t'
	}

	header, err := r.Read()
	if err == io.EOF {
		return nil, errors.Wrapf(ErrStructuralRead, "%s: no columns", path)
	}
	if err != nil {
		return nil, errors.Wrapf(ErrStructuralRead, "%s: %v", path, err)
	}

	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(ErrStructuralRead, "%s: %v", path, err)
		}
		records = append(records, rec)
	}
	return buildRecordSet(path, header, records)
}

func (e *Extractor) readSpreadsheet(path string) (*model.RecordSet, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrSourceNotFound, "%s", path)
		}
		return nil, errors.Wrapf(err, "failed to stat %s", path)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.Wrapf(ErrStructuralRead, "%s: %v", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.Wrapf(ErrStructuralRead, "%s: workbook has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errors.Wrapf(ErrStructuralRead, "%s: %v", path, err)
	}
	if len(rows) == 0 {
		return nil, errors.Wrapf(ErrStructuralRead, "%s: no columns", path)
	}
	return buildRecordSet(path, rows[0], rows[1:])
}

func (e *Extractor) readStoreTable(ctx context.Context, table string) (*model.RecordSet, error) {
	if e.store == nil {
		return nil, errors.Wrap(ErrUnsupportedSource, "no canonical store configured")
	}
	rs, err := e.store.ReadAll(ctx, table)
	if store.IsNotFound(err) {
		return nil, errors.Wrapf(ErrSourceNotFound, "table %s", table)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read table %s", table)
	}
	return rs, nil
}

func (e *Extractor) readWarehouse(ctx context.Context, table string) (*model.RecordSet, error) {
	if e.warehouse == nil {
		return nil, errors.WithHint(
			errors.Wrap(ErrUnsupportedSource, "warehouse source not configured"),
			"set SNOWFLAKE_ACCOUNT and the related SNOWFLAKE_* variables")
	}
	rs, err := e.warehouse.ReadTable(ctx, table, e.batchSize)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read warehouse table %s", table)
	}
	return rs, nil
}

// buildRecordSet turns a header and string records into a record set. Blank
// cells become nil; short records are padded with nil.
func buildRecordSet(path string, header []string, records [][]string) (*model.RecordSet, error) {
	columns := headerNames(header)
	if len(columns) == 0 {
		return nil, errors.Wrapf(ErrStructuralRead, "%s: no columns", path)
	}

	rs := model.NewRecordSet(columns...)
	for i, rec := range records {
		if len(rec) > len(columns) {
			return nil, errors.Wrapf(ErrStructuralRead,
				"%s: line %d has %d fields, header has %d", path, i+2, len(rec), len(columns))
		}
		row := make(model.Row, len(columns))
		for j, c := range columns {
			if j < len(rec) && strings.TrimSpace(rec[j]) != "" {
				row[c] = rec[j]
			} else {
				row[c] = nil
			}
		}
		rs.Append(row)
	}
	return rs, nil
}

// headerNames trims header cells, names blank ones and de-duplicates repeats
// with a numeric suffix
func headerNames(header []string) []string {
	if len(header) == 1 && strings.TrimSpace(header[0]) == "" {
		return nil
	}
	seen := make(map[string]int, len(header))
	out := make([]string, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = "Unnamed: " + strconv.Itoa(i)
		}
		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			name = name + "." + strconv.Itoa(n)
		} else {
			seen[name] = 1
		}
		out[i] = name
	}
	return out
}
