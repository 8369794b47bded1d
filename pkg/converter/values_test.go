package converter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medtrack/data-ingress/pkg/model"
)

func TestCoerceNumeric(t *testing.T) {
	c := NewTypeConverter(nil)

	tests := []struct {
		name  string
		in    any
		kind  model.ColumnKind
		want  any
		clean bool
	}{
		{"float from text", " 12.50 ", model.KindFloat, 12.5, true},
		{"float from int", int64(3), model.KindFloat, 3.0, true},
		{"bad float", "twelve", model.KindFloat, nil, false},
		{"integer from text", "42", model.KindInteger, int64(42), true},
		{"integer from whole float text", "7.0", model.KindInteger, int64(7), true},
		{"fractional integer truncates", "7.9", model.KindInteger, int64(7), true},
		{"negative fractional integer truncates", "-2.5", model.KindInteger, int64(-2), true},
		{"fractional float to integer", 37.9, model.KindInteger, int64(37), true},
		{"infinite integer", "Inf", model.KindInteger, nil, false},
		{"text integer", "lots", model.KindInteger, nil, false},
		{"null token", "NULL", model.KindInteger, nil, true},
		{"blank", "   ", model.KindFloat, nil, true},
		{"string trims", "  Pfizer ", model.KindString, "Pfizer", true},
		{"string from int", int64(5), model.KindString, "5", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := c.Coerce(tt.in, tt.kind)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.clean, ok)
		})
	}
}

func TestCoerceDate(t *testing.T) {
	c := NewTypeConverter(nil)
	want := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)

	for _, in := range []any{"2025-01-31", "01/31/2025", "2025-01-31 14:22:00", "2025-01-31T08:00:00Z", "2025/01/31"} {
		got, ok := c.Coerce(in, model.KindDate)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	got, ok := c.Coerce("31st of never", model.KindDate)
	assert.Nil(t, got)
	assert.False(t, ok)
}

func TestToSQLValueFormatsDates(t *testing.T) {
	d := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-02-29", ToSQLValue(d))
	assert.Equal(t, "x", ToSQLValue([]byte("x")))
	assert.Equal(t, int64(1), ToSQLValue(int64(1)))
}

func TestFromSQLValue(t *testing.T) {
	c := NewTypeConverter(nil)
	assert.Equal(t, int64(4), c.FromSQLValue(int32(4), model.KindInteger))
	assert.Equal(t, "abc", c.FromSQLValue([]byte("abc"), model.KindString))
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), c.FromSQLValue("2024-05-01", model.KindDate))
	assert.Nil(t, c.FromSQLValue(nil, model.KindFloat))
}

func TestSQLTypeAndWarehouseKinds(t *testing.T) {
	assert.Equal(t, "DOUBLE PRECISION", SQLType(model.KindFloat, DialectPostgres))
	assert.Equal(t, "DATE", SQLType(model.KindDate, DialectPostgres))
	assert.Equal(t, "TEXT", SQLType(model.KindDate, DialectSQLite))
	assert.Equal(t, "INTEGER", SQLType(model.KindInteger, DialectSQLite))

	c := NewTypeConverter(nil)
	assert.Equal(t, model.KindInteger, c.KindForWarehouseType("NUMBER(38,0)"))
	assert.Equal(t, model.KindFloat, c.KindForWarehouseType("NUMBER(10,2)"))
	assert.Equal(t, model.KindDate, c.KindForWarehouseType("TIMESTAMP_NTZ(9)"))
	assert.Equal(t, model.KindString, c.KindForWarehouseType("VARCHAR(16777216)"))
	assert.Equal(t, model.KindString, c.KindForWarehouseType("GEOGRAPHY"))
}
