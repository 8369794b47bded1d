// Package store holds the canonical table store the pipeline loads into and
// the quality monitor audits.
package store

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/medtrack/data-ingress/pkg/model"
)

// ErrTableNotFound is returned when reading a table that does not exist
var ErrTableNotFound = errors.New("table not found")

// ErrRowNotFound is returned when a fix targets a row that no longer exists
var ErrRowNotFound = errors.New("row not found")

// WriteMode selects how a chunk is written
type WriteMode string

const (
	// ModeAppend adds rows, creating the table if needed
	ModeAppend WriteMode = "append"
	// ModeReplace drops any existing table before writing
	ModeReplace WriteMode = "replace"
)

// FixTable is the audit table applied fixes are recorded in
const FixTable = "data_fixes"

// Store is the abstract table sink
type Store interface {
	// ReadAll returns every row of table ordered by surrogate id when present
	ReadAll(ctx context.Context, table string) (*model.RecordSet, error)
	// WriteChunk writes rs to table. Rows without an id get one assigned.
	WriteChunk(ctx context.Context, table string, rs *model.RecordSet, mode WriteMode) error
}

// Remediator applies fix records as one unit: either all fixes are applied
// or the store is left unchanged
type Remediator interface {
	ApplyFixes(ctx context.Context, fixes []model.FixRecord) error
}

// CanonicalStore is a store that also supports remediation
type CanonicalStore interface {
	Store
	Remediator
}

// IsNotFound reports whether err means the table does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTableNotFound)
}

// RowID extracts the surrogate id of a row, if any
func RowID(row model.Row) (int64, bool) {
	switch v := row[string(model.ColID)].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}
