package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSetAppendFillsMissingColumns(t *testing.T) {
	rs := NewRecordSet("a", "b")
	rs.Append(Row{"a": "1"})
	rs.Append(Row{"b": int64(2), "c": 3.5})

	assert.Equal(t, []string{"a", "b", "c"}, rs.Columns())
	require.Equal(t, 2, rs.Len())
	assert.Nil(t, rs.Value(0, "b"))
	assert.Nil(t, rs.Value(0, "c"))
	assert.Equal(t, []any{nil, int64(2), 3.5}, rs.Values(1))
}

func TestRecordSetSliceAndClone(t *testing.T) {
	rs := NewRecordSet("n")
	for i := 0; i < 5; i++ {
		rs.Append(Row{"n": int64(i)})
	}

	s := rs.Slice(3, 10)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, int64(3), s.Value(0, "n"))
	assert.Equal(t, 0, rs.Slice(4, 2).Len())

	c := rs.Clone()
	c.Row(0)["n"] = int64(99)
	assert.Equal(t, int64(0), rs.Value(0, "n"))
}

func TestDateTruncates(t *testing.T) {
	d := Date(time.Date(2024, 3, 9, 17, 45, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), d)
}

func TestParseEntityType(t *testing.T) {
	for in, want := range map[string]EntityType{
		"drug": EntityDrug, "Drugs": EntityDrug,
		"sales": EntitySale, " patient ": EntityPatient,
	} {
		got, err := ParseEntityType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseEntityType("prescriptions")
	assert.ErrorIs(t, err, ErrUnknownEntityType)

	_, err = SchemaFor(EntityType("bogus"))
	assert.ErrorIs(t, err, ErrUnknownEntityType)
}

func TestSchemaResolve(t *testing.T) {
	s, err := SchemaFor(EntityDrug)
	require.NoError(t, err)

	c, ok := s.Resolve("Drug_ID")
	assert.True(t, ok)
	assert.Equal(t, ColDrugCode, c)

	c, ok = s.Resolve("unit_price")
	assert.True(t, ok)
	assert.Equal(t, ColUnitPrice, c)

	_, ok = s.Resolve("Shelf")
	assert.False(t, ok)
}

func TestMetadataForUsesEntityKinds(t *testing.T) {
	rs := NewRecordSet("drug_code", "unit_price", "shelf")
	rs.Append(Row{"drug_code": "D1", "unit_price": 2.5, "shelf": int64(4)})

	md := MetadataFor("drugs", rs)
	require.Len(t, md.Columns, 4)
	assert.Equal(t, "id", md.Columns[0].Name)
	assert.True(t, md.Columns[0].IsPrimaryKey)
	assert.Equal(t, KindFloat, md.GetColumnByName("UNIT_PRICE").Kind)
	assert.Equal(t, KindInteger, md.GetColumnByName("shelf").Kind)
}
