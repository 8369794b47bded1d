package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medtrack/data-ingress/pkg/model"
	"github.com/medtrack/data-ingress/pkg/report"
	"github.com/medtrack/data-ingress/pkg/store"
)

var fixedNow = time.Date(2026, 3, 15, 2, 0, 0, 0, time.UTC)

type env struct {
	dir      string
	raw      string
	reports  string
	archive  string
	store    store.Store
	settings Settings
	sink     *report.FileSink
}

func newEnv(t *testing.T, st store.Store) *env {
	t.Helper()
	dir := t.TempDir()
	e := &env{
		dir:     dir,
		raw:     filepath.Join(dir, "raw"),
		reports: filepath.Join(dir, "reports"),
		archive: filepath.Join(dir, "archive"),
		store:   st,
	}
	if e.store == nil {
		e.store = store.NewMemoryStore()
	}
	require.NoError(t, os.MkdirAll(e.raw, 0o755))

	sink, err := report.NewFileSink(e.reports, filepath.Join(e.reports, "quality"), report.FormatJSON,
		func() time.Time { return fixedNow }, nil)
	require.NoError(t, err)
	e.sink = sink

	e.settings = Settings{
		Sources: map[model.EntityType]string{
			model.EntityDrug:    filepath.Join(e.raw, "drugs.csv"),
			model.EntitySale:    filepath.Join(e.raw, "sales.csv"),
			model.EntityPatient: filepath.Join(e.raw, "patients.csv"),
		},
		ChunkSize:        2,
		ValidateData:     true,
		BackupRawData:    true,
		QualityThreshold: 80,
		LoadMode:         store.ModeReplace,
		ArchiveDir:       e.archive,
		WorkingDirs:      []string{e.raw, e.reports, e.archive},
	}
	return e
}

func (e *env) orchestrator(opts ...Option) *Orchestrator {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(e.store, e.sink, e.settings, nil, opts...)
}

func (e *env) writeSource(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(e.raw, name), []byte(content), 0o644))
}

const salesCSV = `TransactionID,SaleDate,DrugID,Quantity,Price
SALE-00001,2026-03-10,1,2,4.50
SALE-00002,2026-03-11,2,1,10
SALE-00003,2026-03-12,1,0,4.50
SALE-00004,,1,1,4.50
SALE-00005,2026-03-14,3,5,1.25
`

func TestRunDailyBatchWithOnlySales(t *testing.T) {
	e := newEnv(t, nil)
	e.writeSource(t, "sales.csv", salesCSV)

	summary, err := e.orchestrator().RunDailyBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[model.EntityType]model.EntityOutcome{
		model.EntityDrug:    model.OutcomeSkipped,
		model.EntitySale:    model.OutcomeSuccess,
		model.EntityPatient: model.OutcomeSkipped,
	}, summary.Results)
	assert.Equal(t, 1, summary.Statistics.FilesProcessed)
	assert.Equal(t, 5, summary.Statistics.RecordsProcessed)
	assert.Equal(t, 0, summary.Statistics.Errors)

	sales, err := e.store.ReadAll(context.Background(), "sales")
	require.NoError(t, err)
	assert.Equal(t, 3, sales.Len())

	assert.FileExists(t, filepath.Join(e.reports, "daily_pipeline_summary_20260315.json"))
	assert.FileExists(t, filepath.Join(e.reports, "pipeline_stats_20260315.json"))
	assert.FileExists(t, filepath.Join(e.reports, "quality_report_sales_20260315_020000.json"))
	assert.FileExists(t, filepath.Join(e.archive, "sales_raw_20260315_020000.csv"))
}

func TestRunForEntityMissingSource(t *testing.T) {
	e := newEnv(t, nil)

	res := e.orchestrator().RunForEntity(context.Background(), model.EntityDrug, "")
	assert.False(t, res.Success())
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, model.OutcomeSkipped, res.Outcome)
	require.NotNil(t, res.Error)
	assert.Equal(t, ErrorCategorySourceMissing, res.Error.Category)
	assert.Equal(t, StateExtracting, res.Error.Stage)
	assert.Equal(t, 1, res.Stats.Errors)
	assert.Equal(t, map[string]int{"SourceMissing": 1}, res.Stats.ErrorCategories)

	// statistics are persisted even on failure
	assert.FileExists(t, filepath.Join(e.reports, "pipeline_stats_20260315.json"))
}

func TestRunForEntityUnknownEntity(t *testing.T) {
	e := newEnv(t, nil)
	res := e.orchestrator().RunForEntity(context.Background(), model.EntityType("invoice"), "x.csv")
	assert.Equal(t, model.OutcomeFailed, res.Outcome)
	assert.Equal(t, ErrorCategoryUnknownEntity, res.Error.Category)
}

func TestRunForEntityLowQualityIsWarningOnly(t *testing.T) {
	e := newEnv(t, nil)
	e.writeSource(t, "drugs.csv", `DrugCode,DrugName,Manufacturer,UnitPrice,Stock,ExpiryDate
D1,Aspirin,Bayer,2.5,10,
D2,Ibuprofen,GSK,3,5,2027-01-01
`)

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	res := e.orchestrator(WithMetrics(metrics)).RunForEntity(context.Background(), model.EntityDrug, "")
	require.True(t, res.Success())
	require.NotNil(t, res.Validation)
	assert.Equal(t, 50.0, res.Validation.QualityScore)
	assert.Equal(t, 1, res.Stats.Warnings)
	assert.Equal(t, 2, res.RowsLoaded)
	assert.Equal(t, []State{StateIdle, StateExtracting, StateTransforming, StateValidating,
		StateLoading, StateArchiving, StateDone}, res.History)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues("drug", "Success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.chunks.WithLabelValues("drugs")))
	assert.Equal(t, 50.0, testutil.ToFloat64(metrics.validationScore.WithLabelValues("drug")))
}

func TestRunForEntitySkipsOptionalStages(t *testing.T) {
	e := newEnv(t, nil)
	e.settings.ValidateData = false
	e.settings.BackupRawData = false
	e.writeSource(t, "patients.csv", "FirstName,LastName,DOB\nAnn,Lee,1990-01-01\n")

	res := e.orchestrator().RunForEntity(context.Background(), model.EntityPatient, "")
	require.True(t, res.Success())
	assert.Equal(t, []State{StateIdle, StateExtracting, StateTransforming, StateLoading, StateDone}, res.History)
	assert.Nil(t, res.Validation)
	assert.Empty(t, res.ArchivePath)
}

// failingStore fails the failAt-th chunk write
type failingStore struct {
	*store.MemoryStore
	writes int
	failAt int
}

func (s *failingStore) WriteChunk(ctx context.Context, table string, rs *model.RecordSet, mode store.WriteMode) error {
	s.writes++
	if s.writes == s.failAt {
		return errors.New("connection reset")
	}
	return s.MemoryStore.WriteChunk(ctx, table, rs, mode)
}

func TestRunForEntityPartialLoad(t *testing.T) {
	st := &failingStore{MemoryStore: store.NewMemoryStore(), failAt: 2}
	e := newEnv(t, st)
	e.writeSource(t, "sales.csv", salesCSV)

	res := e.orchestrator().RunForEntity(context.Background(), model.EntitySale, "")
	assert.False(t, res.Success())
	assert.Equal(t, model.OutcomeFailed, res.Outcome)
	assert.Equal(t, ErrorCategoryPartialLoad, res.Error.Category)
	assert.Equal(t, StateLoading, res.Error.Stage)
	assert.Equal(t, 2, res.RowsLoaded)

	// first chunk stays persisted
	sales, err := st.ReadAll(context.Background(), "sales")
	require.NoError(t, err)
	assert.Equal(t, 2, sales.Len())
}

// shrinkingStore reports one row fewer than stored
type shrinkingStore struct{ *store.MemoryStore }

func (s shrinkingStore) ReadAll(ctx context.Context, table string) (*model.RecordSet, error) {
	rs, err := s.MemoryStore.ReadAll(ctx, table)
	if err != nil || rs.Len() == 0 {
		return rs, err
	}
	return rs.Slice(1, rs.Len()), nil
}

func TestRunForEntityRowCountMismatchWarns(t *testing.T) {
	e := newEnv(t, shrinkingStore{store.NewMemoryStore()})
	e.settings.ValidateData = false
	e.writeSource(t, "sales.csv", salesCSV)

	res := e.orchestrator().RunForEntity(context.Background(), model.EntitySale, "")
	require.True(t, res.Success())
	assert.Equal(t, 1, res.Stats.Warnings)
}

func TestRunForEntityFromStoreTable(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	e.settings.BackupRawData = false
	seed := model.NewRecordSet("drug_code", "drug_name", "manufacturer", "unit_price")
	seed.Append(model.Row{"drug_code": "D1", "drug_name": "A", "manufacturer": "M", "unit_price": 1.0})
	require.NoError(t, e.store.WriteChunk(ctx, "staging_drugs", seed, store.ModeReplace))

	res := e.orchestrator().RunForEntity(ctx, model.EntityDrug, "store:staging_drugs")
	require.True(t, res.Success())
	drugs, err := e.store.ReadAll(ctx, "drugs")
	require.NoError(t, err)
	assert.Equal(t, 1, drugs.Len())
}
