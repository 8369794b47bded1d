package model

import (
	"strings"
	"time"
)

// TableMetadata contains the structure of a canonical store table
type TableMetadata struct {
	Table       string      // Table name
	Columns     []ColumnDef // Column definitions
	PrimaryKeys []string    // Primary key column names
}

// ColumnDef describes one column of a canonical store table
type ColumnDef struct {
	Name         string
	Kind         ColumnKind
	SQLType      string // Filled in by the store dialect
	Nullable     bool
	IsPrimaryKey bool
}

// GetColumnByName returns a column by name (case-insensitive)
// Returns nil if column not found
func (tm *TableMetadata) GetColumnByName(name string) *ColumnDef {
	for i, col := range tm.Columns {
		if strings.EqualFold(col.Name, name) {
			return &tm.Columns[i]
		}
	}
	return nil
}

// ColumnNames returns the column names in order
func (tm *TableMetadata) ColumnNames() []string {
	out := make([]string, len(tm.Columns))
	for i, c := range tm.Columns {
		out[i] = c.Name
	}
	return out
}

// MetadataFor builds table metadata for a record set. Kinds come from the
// entity rule set when one matches the table; extra columns are inferred
// from the first non-null value and default to string.
func MetadataFor(table string, rs *RecordSet) *TableMetadata {
	schema, _ := SchemaForTable(table)
	md := &TableMetadata{
		Table:       table,
		PrimaryKeys: []string{string(ColID)},
		Columns: []ColumnDef{{
			Name:         string(ColID),
			Kind:         KindInteger,
			IsPrimaryKey: true,
		}},
	}

	for _, name := range rs.Columns() {
		if name == string(ColID) {
			continue
		}
		def := ColumnDef{Name: name, Nullable: true, Kind: inferKind(rs, name)}
		if schema != nil {
			if k, ok := schema.KindOf(name); ok {
				def.Kind = k
			}
		}
		md.Columns = append(md.Columns, def)
	}
	return md
}

func inferKind(rs *RecordSet, col string) ColumnKind {
	for _, row := range rs.Rows() {
		switch row[col].(type) {
		case nil:
			continue
		case int, int32, int64:
			return KindInteger
		case float32, float64:
			return KindFloat
		case bool:
			return KindBool
		case time.Time:
			return KindDate
		default:
			return KindString
		}
	}
	return KindString
}
