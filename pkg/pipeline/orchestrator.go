// Package pipeline sequences extract, transform, validate, load and archive
// for one entity type or a whole daily batch.
package pipeline

import (
	"context"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/medtrack/data-ingress/pkg/config"
	"github.com/medtrack/data-ingress/pkg/extractor"
	"github.com/medtrack/data-ingress/pkg/loader"
	"github.com/medtrack/data-ingress/pkg/logging"
	"github.com/medtrack/data-ingress/pkg/model"
	"github.com/medtrack/data-ingress/pkg/report"
	"github.com/medtrack/data-ingress/pkg/store"
	"github.com/medtrack/data-ingress/pkg/transformer"
	"github.com/medtrack/data-ingress/pkg/validator"
)

// Settings controls an orchestrator
type Settings struct {
	Sources          map[model.EntityType]string
	ChunkSize        int
	ValidateData     bool
	BackupRawData    bool
	QualityThreshold float64
	LoadMode         store.WriteMode
	ArchiveDir       string
	WorkingDirs      []string
}

// SettingsFromConfig derives orchestrator settings from configuration
func SettingsFromConfig(cfg *config.Config) Settings {
	sources := make(map[model.EntityType]string)
	for _, e := range model.AllEntityTypes() {
		sources[e] = cfg.SourceFor(e)
	}
	return Settings{
		Sources:          sources,
		ChunkSize:        cfg.Processing.ChunkSize,
		ValidateData:     cfg.Processing.ValidateData,
		BackupRawData:    cfg.Processing.BackupRawData,
		QualityThreshold: cfg.Processing.QualityThreshold,
		LoadMode:         store.ModeReplace,
		ArchiveDir:       cfg.Output.ArchivePath,
		WorkingDirs:      cfg.WorkingDirs(),
	}
}

// RunResult describes one entity run
type RunResult struct {
	Entity      model.EntityType
	Source      string
	State       State
	History     []State
	Outcome     model.EntityOutcome
	Validation  *model.ValidationReport
	RowsLoaded  int
	ArchivePath string
	Error       *ErrorRecord
	// Stats is a snapshot of the run statistics when the run ended
	Stats model.RunStats
}

// Success reports whether the run reached Done
func (r *RunResult) Success() bool {
	return r.State == StateDone
}

// Orchestrator runs the ETL stages against a canonical store. It does not
// synchronize concurrent runs; callers serialize runs per entity type.
type Orchestrator struct {
	settings    Settings
	store       store.Store
	sink        report.Sink
	extractor   *extractor.Extractor
	transformer *transformer.Transformer
	validator   *validator.Validator
	loader      *loader.Loader
	archiver    *loader.Archiver
	metrics     *Metrics
	now         func() time.Time
	logger      *zap.Logger
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithClock sets the clock used for statistics and derived fields
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithMetrics enables Prometheus metrics
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithExtractor replaces the default extractor, e.g. to enable the warehouse source
func WithExtractor(e *extractor.Extractor) Option {
	return func(o *Orchestrator) { o.extractor = e }
}

// WithTransformer replaces the default transformer
func WithTransformer(t *transformer.Transformer) Option {
	return func(o *Orchestrator) { o.transformer = t }
}

// New creates an orchestrator loading into st and reporting to sink
func New(st store.Store, sink report.Sink, settings Settings, logger *zap.Logger, opts ...Option) *Orchestrator {
	logger = logging.OrNop(logger)
	if settings.LoadMode == "" {
		settings.LoadMode = store.ModeReplace
	}
	o := &Orchestrator{
		settings: settings,
		store:    st,
		sink:     sink,
		now:      time.Now,
		logger:   logger.Named("pipeline"),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.extractor == nil {
		o.extractor = extractor.New(st, logger, extractor.WithBatchSize(settings.ChunkSize))
	}
	if o.transformer == nil {
		o.transformer = transformer.New(logger, transformer.WithClock(o.now))
	}
	o.validator = validator.New(logger, o.now)
	o.loader = loader.New(st, settings.ChunkSize, logger)
	o.loader.OnChunk(o.metrics.observeChunk)
	o.archiver = loader.NewArchiver(settings.ArchiveDir, o.now, logger)
	return o
}

// RunForEntity runs the pipeline for one entity. An empty source uses the
// configured location. Statistics are persisted whatever the outcome.
func (o *Orchestrator) RunForEntity(ctx context.Context, entity model.EntityType, source string) *RunResult {
	stats := &model.RunStats{}
	return o.run(ctx, entity, source, stats)
}

// RunDailyBatch runs drug, sale and patient in that order. Entities whose
// source file is missing or unreadable are Skipped and do not stop the batch.
func (o *Orchestrator) RunDailyBatch(ctx context.Context) (*model.BatchSummary, error) {
	for _, dir := range o.settings.WorkingDirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "failed to create working directory %s", dir)
		}
	}

	o.logger.Info("Starting daily pipeline batch")
	stats := &model.RunStats{StartTime: o.now()}
	summary := &model.BatchSummary{Results: make(map[model.EntityType]model.EntityOutcome)}

	for _, entity := range model.AllEntityTypes() {
		source := o.settings.Sources[entity]
		if missingFile(source) {
			o.logger.Warn("Source not found, skipping",
				zap.String(logging.FieldEntity, entity.String()),
				zap.String(logging.FieldSource, source))
			summary.Results[entity] = model.OutcomeSkipped
			continue
		}
		res := o.run(ctx, entity, source, stats)
		summary.Results[entity] = res.Outcome
	}

	stats.Finish(o.now())
	summary.Timestamp = o.now()
	summary.Statistics = *stats
	if _, err := o.sink.SaveBatchSummary(*summary); err != nil {
		o.logger.Error("Failed to save batch summary", zap.Error(err))
	}

	o.logger.Info("Daily pipeline batch completed",
		zap.Any("results", summary.Results),
		zap.Int("errors", stats.Errors),
		zap.Int("warnings", stats.Warnings))
	return summary, nil
}

// missingFile reports whether a file source is unset or absent. Table
// sources are never considered missing here.
func missingFile(source string) bool {
	if source == "" {
		return true
	}
	kind, path, err := extractor.ParseLocation(source)
	if err != nil || (kind != extractor.KindDelimited && kind != extractor.KindSpreadsheet) {
		return false
	}
	_, err = os.Stat(path)
	return os.IsNotExist(err)
}

func (o *Orchestrator) run(ctx context.Context, entity model.EntityType, source string, stats *model.RunStats) (res *RunResult) {
	if source == "" {
		source = o.settings.Sources[entity]
	}
	sm := newStateMachine()
	res = &RunResult{Entity: entity, Source: source}
	start := o.now()
	if stats.StartTime.IsZero() {
		stats.StartTime = start
	}
	log := o.logger.With(zap.String(logging.FieldEntity, entity.String()))
	log.Info("Starting ETL pipeline", zap.String(logging.FieldSource, source))

	defer func() {
		res.State = sm.current
		res.History = sm.history
		if res.Outcome == "" {
			res.Outcome = model.OutcomeSuccess
		}
		stats.Finish(o.now())
		res.Stats = *stats
		if _, err := o.sink.SaveRunStats(*stats); err != nil {
			log.Error("Failed to save pipeline statistics", zap.Error(err))
		}
		o.metrics.observeRun(entity, res.Outcome, o.now().Sub(start).Seconds())
	}()

	fail := func(err error) *RunResult {
		rec := NewErrorRecord(err, entity, sm.current, o.now())
		_ = sm.to(StateFailed)
		res.Error = &rec
		res.Outcome = rec.Category.Outcome()
		stats.Errors++
		if stats.ErrorCategories == nil {
			stats.ErrorCategories = make(map[string]int)
		}
		stats.ErrorCategories[rec.Category.String()]++
		o.metrics.observeError(rec.Category)
		log.Error("ETL pipeline failed",
			zap.String(logging.FieldState, string(rec.Stage)),
			zap.String("category", rec.Category.String()),
			zap.Error(err))
		return res
	}

	if !entity.Valid() {
		return fail(errors.Wrapf(model.ErrUnknownEntityType, "%q", entity.String()))
	}
	if source == "" {
		return fail(errors.Wrapf(extractor.ErrSourceNotFound, "no source configured for %s", entity))
	}

	// Extract
	_ = sm.to(StateExtracting)
	kind, location, err := extractor.ParseLocation(source)
	if err != nil {
		return fail(err)
	}
	raw, err := o.extractor.Extract(ctx, kind, location)
	if err != nil {
		return fail(err)
	}
	stats.RecordsProcessed += raw.Len()
	o.metrics.observeRecords(entity, raw.Len())

	// Transform
	_ = sm.to(StateTransforming)
	clean, err := o.transformer.Transform(raw, entity)
	if err != nil {
		return fail(err)
	}

	// Validate
	if o.settings.ValidateData {
		_ = sm.to(StateValidating)
		vr := o.validator.Validate(clean, entity)
		res.Validation = &vr
		o.metrics.observeValidation(entity, vr.QualityScore)
		if _, err := o.sink.SaveValidation(vr); err != nil {
			log.Error("Failed to save validation report", zap.Error(err))
		}
		if vr.QualityScore < o.settings.QualityThreshold {
			log.Warn("Low data quality score",
				zap.Float64(logging.FieldScore, vr.QualityScore),
				zap.Float64("threshold", o.settings.QualityThreshold))
			stats.Warnings++
		}
	}

	// Load
	_ = sm.to(StateLoading)
	table := entity.Table()
	loaded, err := o.loader.Load(ctx, clean, table, o.settings.LoadMode)
	res.RowsLoaded = loaded.RowsWritten
	if err != nil {
		return fail(err)
	}
	if o.settings.LoadMode == store.ModeReplace && !o.verifyRowCount(ctx, log, table, loaded.RowsWritten) {
		stats.Warnings++
	}

	// Archive
	if o.settings.BackupRawData {
		_ = sm.to(StateArchiving)
		path, err := o.archiver.Archive(raw, entity)
		if err != nil {
			log.Warn("Raw data archive failed", zap.Error(err))
		}
		res.ArchivePath = path
	}

	_ = sm.to(StateDone)
	stats.FilesProcessed++
	log.Info("ETL pipeline completed successfully",
		zap.Int(logging.FieldRows, res.RowsLoaded),
		zap.Duration(logging.FieldDuration, o.now().Sub(start)))
	return res
}

// verifyRowCount compares the row count of the target table with the rows
// just written. Only meaningful after a replace load.
func (o *Orchestrator) verifyRowCount(ctx context.Context, log *zap.Logger, table string, expected int) bool {
	if expected == 0 {
		return true
	}
	rs, err := o.store.ReadAll(ctx, table)
	if err != nil {
		log.Warn("Row count verification failed", zap.String(logging.FieldTable, table), zap.Error(err))
		return false
	}
	if rs.Len() != expected {
		log.Warn("Row count mismatch",
			zap.String(logging.FieldTable, table),
			zap.Int("expected", expected),
			zap.Int("actual", rs.Len()),
			zap.Int("difference", expected-rs.Len()))
		return false
	}
	log.Info("Row count verification successful",
		zap.String(logging.FieldTable, table),
		zap.Int("count", expected))
	return true
}
