package model

import "time"

// Row maps a column name to a scalar value: nil, string, int64, float64, bool or a
// time.Time at day precision
type Row map[string]any

// RecordSet is an ordered collection of rows sharing one column list.
// Every row carries a value (possibly nil) for every column.
type RecordSet struct {
	columns []string
	index   map[string]int
	rows    []Row
}

// NewRecordSet creates an empty record set with the given columns
func NewRecordSet(columns ...string) *RecordSet {
	rs := &RecordSet{index: make(map[string]int, len(columns))}
	for _, c := range columns {
		rs.AddColumn(c)
	}
	return rs
}

// Columns returns a copy of the column list in order
func (rs *RecordSet) Columns() []string {
	out := make([]string, len(rs.columns))
	copy(out, rs.columns)
	return out
}

// HasColumn reports whether the column exists
func (rs *RecordSet) HasColumn(name string) bool {
	_, ok := rs.index[name]
	return ok
}

// AddColumn appends a column; existing rows get a nil value for it.
// Adding an existing column is a no-op.
func (rs *RecordSet) AddColumn(name string) {
	if rs.HasColumn(name) {
		return
	}
	rs.index[name] = len(rs.columns)
	rs.columns = append(rs.columns, name)
	for _, row := range rs.rows {
		row[name] = nil
	}
}

// Append adds a row. Keys not yet known become new columns and
// columns missing from the row are filled with nil.
func (rs *RecordSet) Append(row Row) {
	out := make(Row, len(rs.columns))
	for k := range row {
		if !rs.HasColumn(k) {
			rs.AddColumn(k)
		}
	}
	for _, c := range rs.columns {
		out[c] = row[c]
	}
	rs.rows = append(rs.rows, out)
}

// Len returns the number of rows
func (rs *RecordSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.rows)
}

// Row returns the i-th row. The returned map is owned by the set.
func (rs *RecordSet) Row(i int) Row {
	return rs.rows[i]
}

// Rows returns the underlying rows
func (rs *RecordSet) Rows() []Row {
	return rs.rows
}

// Value returns the value of column col in row i
func (rs *RecordSet) Value(i int, col string) any {
	return rs.rows[i][col]
}

// Values returns row i as a slice ordered like Columns
func (rs *RecordSet) Values(i int) []any {
	out := make([]any, len(rs.columns))
	for j, c := range rs.columns {
		out[j] = rs.rows[i][c]
	}
	return out
}

// Slice returns a view over rows [start, end) sharing the same rows
func (rs *RecordSet) Slice(start, end int) *RecordSet {
	if start < 0 {
		start = 0
	}
	if end > len(rs.rows) {
		end = len(rs.rows)
	}
	out := NewRecordSet(rs.columns...)
	if start < end {
		out.rows = rs.rows[start:end]
	}
	return out
}

// Clone returns a deep copy of the set
func (rs *RecordSet) Clone() *RecordSet {
	out := NewRecordSet(rs.columns...)
	out.rows = make([]Row, len(rs.rows))
	for i, row := range rs.rows {
		cp := make(Row, len(row))
		for k, v := range row {
			cp[k] = v
		}
		out.rows[i] = cp
	}
	return out
}

// Date truncates t to a calendar date in UTC
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateLayout is the wire format used for calendar dates
const DateLayout = "2006-01-02"
