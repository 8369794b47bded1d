package extractor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/medtrack/data-ingress/pkg/model"
	"github.com/medtrack/data-ingress/pkg/store"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestExtractDelimited(t *testing.T) {
	path := writeFile(t, "drugs.csv", []byte("\xef\xbb\xbfDrugCode,DrugName,UnitPrice\nD1,Aspirin,1.50\nD2,,\nD3\n"))

	rs, err := New(nil, nil).Extract(context.Background(), KindDelimited, path)
	require.NoError(t, err)
	assert.Equal(t, []string{"DrugCode", "DrugName", "UnitPrice"}, rs.Columns())
	require.Equal(t, 3, rs.Len())
	assert.Equal(t, "1.50", rs.Value(0, "UnitPrice"))
	assert.Nil(t, rs.Value(1, "DrugName"))
	assert.Nil(t, rs.Value(2, "UnitPrice"))
}

func TestExtractDelimitedLatin1Fallback(t *testing.T) {
	path := writeFile(t, "patients.csv", []byte("FirstName,LastName\nJos\xe9,M\xfcller\n"))

	rs, err := New(nil, nil).Extract(context.Background(), KindDelimited, path)
	require.NoError(t, err)
	require.Equal(t, 1, rs.Len())
	assert.Equal(t, "José", rs.Value(0, "FirstName"))
	assert.Equal(t, "Müller", rs.Value(0, "LastName"))
}

func TestExtractErrors(t *testing.T) {
	ctx := context.Background()
	e := New(store.NewMemoryStore(), nil)

	_, err := e.Extract(ctx, KindDelimited, filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorIs(t, err, ErrSourceNotFound)

	_, err = e.Extract(ctx, KindSpreadsheet, filepath.Join(t.TempDir(), "missing.xlsx"))
	assert.ErrorIs(t, err, ErrSourceNotFound)

	_, err = e.Extract(ctx, KindDelimited, writeFile(t, "empty.csv", nil))
	assert.ErrorIs(t, err, ErrStructuralRead)

	_, err = e.Extract(ctx, KindDelimited, writeFile(t, "wide.csv", []byte("a,b\n1,2,3\n")))
	assert.ErrorIs(t, err, ErrStructuralRead)

	_, err = e.Extract(ctx, SourceKind("parquet"), "x.parquet")
	assert.ErrorIs(t, err, ErrUnsupportedSource)

	_, err = e.Extract(ctx, KindStoreTable, "drugs")
	assert.ErrorIs(t, err, ErrSourceNotFound)

	_, err = e.Extract(ctx, KindWarehouse, "PUBLIC.DRUGS")
	assert.ErrorIs(t, err, ErrUnsupportedSource)
}

func TestExtractSpreadsheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sales.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"TransactionID", "Quantity"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{"SALE-00001", 3}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	rs, err := New(nil, nil).Extract(context.Background(), KindSpreadsheet, path)
	require.NoError(t, err)
	require.Equal(t, 1, rs.Len())
	assert.Equal(t, "SALE-00001", rs.Value(0, "TransactionID"))
	assert.Equal(t, "3", rs.Value(0, "Quantity"))
}

func TestExtractStoreTable(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	in := model.NewRecordSet("drug_code")
	in.Append(model.Row{"drug_code": "D1"})
	require.NoError(t, st.WriteChunk(ctx, "drugs", in, store.ModeReplace))

	rs, err := New(st, nil).Extract(ctx, KindStoreTable, "drugs")
	require.NoError(t, err)
	assert.Equal(t, 1, rs.Len())
}

type fakeWarehouse struct{ batch int }

func (f *fakeWarehouse) ReadTable(_ context.Context, name string, batchSize int) (*model.RecordSet, error) {
	f.batch = batchSize
	rs := model.NewRecordSet("DRUG_CODE")
	rs.Append(model.Row{"DRUG_CODE": name})
	return rs, nil
}

func TestExtractWarehouse(t *testing.T) {
	w := &fakeWarehouse{}
	rs, err := New(nil, nil, WithWarehouse(w), WithBatchSize(50)).
		Extract(context.Background(), KindWarehouse, "PUBLIC.DRUGS")
	require.NoError(t, err)
	assert.Equal(t, "PUBLIC.DRUGS", rs.Value(0, "DRUG_CODE"))
	assert.Equal(t, 50, w.batch)
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		in     string
		kind   SourceKind
		target string
		err    bool
	}{
		{"data/raw/drugs.csv", KindDelimited, "data/raw/drugs.csv", false},
		{"data/raw/sales.XLSX", KindSpreadsheet, "data/raw/sales.XLSX", false},
		{"store:drugs", KindStoreTable, "drugs", false},
		{"warehouse:PUBLIC.SALES", KindWarehouse, "PUBLIC.SALES", false},
		{"data/raw/drugs.parquet", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			kind, target, err := ParseLocation(tt.in)
			if tt.err {
				assert.ErrorIs(t, err, ErrUnsupportedSource)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.target, target)
		})
	}
}

func TestHeaderNames(t *testing.T) {
	assert.Equal(t, []string{"a", "Unnamed: 1", "a.1"}, headerNames([]string{" a ", "", "a"}))
}
