package sample

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medtrack/data-ingress/pkg/model"
	"github.com/medtrack/data-ingress/pkg/store"
	"github.com/medtrack/data-ingress/pkg/transformer"
	"github.com/medtrack/data-ingress/pkg/validator"
)

var fixedNow = time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func TestGenerateRoundTripsThroughPipeline(t *testing.T) {
	ctx := context.Background()
	g := New(42, nil, WithClock(clock))
	tr := transformer.New(nil, transformer.WithClock(clock))
	v := validator.New(nil, clock)

	for _, e := range model.AllEntityTypes() {
		t.Run(e.String(), func(t *testing.T) {
			raw, err := g.Generate(ctx, e, 25)
			require.NoError(t, err)
			assert.Equal(t, 25, raw.Len())

			out, err := tr.Transform(raw, e)
			require.NoError(t, err)
			assert.Equal(t, 25, out.Len())

			report := v.Validate(out, e)
			assert.Equal(t, 100.0, report.QualityScore)
			assert.Empty(t, report.Issues)
		})
	}
}

func TestGenerateDrugFormats(t *testing.T) {
	rs, err := New(1, nil, WithClock(clock)).Generate(context.Background(), model.EntityDrug, 3)
	require.NoError(t, err)

	assert.Equal(t, "DRG1000", rs.Value(0, "drug_code"))
	assert.Equal(t, "DRG1002", rs.Value(2, "drug_code"))
	for _, row := range rs.Rows() {
		price := row["unit_price"].(float64)
		assert.GreaterOrEqual(t, price, 5.0)
		assert.LessOrEqual(t, price, 150.0)

		expiry, err := time.Parse(model.DateLayout, row["expiry_date"].(string))
		require.NoError(t, err)
		assert.True(t, expiry.After(fixedNow))
	}
}

func TestGenerateSalesReferenceStoredDrugs(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	drugs := model.NewRecordSet()
	drugs.Append(model.Row{"drug_code": "D1", "unit_price": 12.5})
	drugs.Append(model.Row{"drug_code": "D2", "unit_price": 3.0})
	require.NoError(t, st.WriteChunk(ctx, "drugs", drugs, store.ModeReplace))

	rs, err := New(7, nil, WithClock(clock), WithStore(st)).Generate(ctx, model.EntitySale, 50)
	require.NoError(t, err)

	windowStart := model.Date(fixedNow).AddDate(0, 0, -salesWindowDays)
	for _, row := range rs.Rows() {
		assert.Contains(t, []string{"1", "2"}, row["drug_id"])
		assert.Contains(t, []float64{12.5, 3.0}, row["unit_price"])

		d, err := time.Parse(model.DateLayout, row["sale_date"].(string))
		require.NoError(t, err)
		assert.False(t, d.Before(windowStart))
		assert.False(t, d.After(model.Date(fixedNow)))
	}
	assert.Equal(t, "SALE-10000", rs.Value(0, "transaction_id"))
}

func TestGenerateSalesWithoutDrugs(t *testing.T) {
	rs, err := New(7, nil, WithClock(clock), WithStore(store.NewMemoryStore())).
		Generate(context.Background(), model.EntitySale, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, rs.Len())
}

func TestGeneratePatientsAreAdults(t *testing.T) {
	rs, err := New(3, nil, WithClock(clock)).Generate(context.Background(), model.EntityPatient, 30)
	require.NoError(t, err)
	for _, row := range rs.Rows() {
		age := row["age"].(int64)
		assert.GreaterOrEqual(t, age, int64(17))
		assert.LessOrEqual(t, age, int64(90))
		assert.Contains(t, row["email"], "@")
	}
	assert.Equal(t, "PAT1000", rs.Value(0, "patient_code"))
}

func TestGenerateErrors(t *testing.T) {
	g := New(1, nil)
	_, err := g.Generate(context.Background(), model.EntityType("invoices"), 1)
	assert.ErrorIs(t, err, model.ErrUnknownEntityType)

	_, err = g.Generate(context.Background(), model.EntityDrug, -1)
	assert.Error(t, err)

	rs, err := g.Generate(context.Background(), model.EntityDrug, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, rs.Len())
}
