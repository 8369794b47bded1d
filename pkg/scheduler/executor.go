// Package scheduler triggers pipeline runs, quality audits and backups on
// cron schedules and on demand. It is the only place that introduces
// concurrency, so it serializes every job touching the same entity type.
package scheduler

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/medtrack/data-ingress/pkg/loader"
	"github.com/medtrack/data-ingress/pkg/logging"
	"github.com/medtrack/data-ingress/pkg/model"
	"github.com/medtrack/data-ingress/pkg/pipeline"
	"github.com/medtrack/data-ingress/pkg/quality"
	"github.com/medtrack/data-ingress/pkg/sample"
	"github.com/medtrack/data-ingress/pkg/store"
)

// Job names used for single-flight keys and logging
const (
	JobETL     = "etl"
	JobQuality = "quality"
	JobFix     = "fix"
	JobBackup  = "backup"
)

// Deps are the components an Executor drives
type Deps struct {
	Store        store.Store
	Orchestrator *pipeline.Orchestrator
	Monitor      *quality.Monitor
	Generator    *sample.Generator
	Archiver     *loader.Archiver
}

// Executor runs jobs. Concurrent triggers of the same job share one
// execution, and jobs touching the same entity type never overlap.
type Executor struct {
	deps             Deps
	autoFixThreshold float64
	locks            map[model.EntityType]*sync.Mutex
	group            singleflight.Group
	logger           *zap.Logger
}

// NewExecutor creates an executor. The quality job runs auto-fix when the
// overall score falls below autoFixThreshold.
func NewExecutor(deps Deps, autoFixThreshold float64, logger *zap.Logger) *Executor {
	locks := make(map[model.EntityType]*sync.Mutex)
	for _, e := range model.AllEntityTypes() {
		locks[e] = &sync.Mutex{}
	}
	return &Executor{
		deps:             deps,
		autoFixThreshold: autoFixThreshold,
		locks:            locks,
		logger:           logging.OrNop(logger).Named("scheduler"),
	}
}

// lock acquires the locks of the given entity types, always in the canonical
// entity order, and returns the matching unlock
func (x *Executor) lock(entities ...model.EntityType) func() {
	want := make(map[model.EntityType]bool, len(entities))
	for _, e := range entities {
		want[e] = true
	}
	var held []*sync.Mutex
	for _, e := range model.AllEntityTypes() {
		if want[e] {
			mu := x.locks[e]
			mu.Lock()
			held = append(held, mu)
		}
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

func (x *Executor) lockAll() func() {
	return x.lock(model.AllEntityTypes()...)
}

// RunEtl runs the pipeline for one entity type, or the daily batch when
// entity is nil, and reports whether it succeeded. A batch succeeds when no
// entity failed; skipped entities do not count as failures.
func (x *Executor) RunEtl(ctx context.Context, entity *model.EntityType) bool {
	key := JobETL
	if entity != nil {
		if !entity.Valid() {
			x.logger.Error("Unknown entity type for ETL", zap.String(logging.FieldEntity, entity.String()))
			return false
		}
		key += ":" + entity.String()
	}

	v, _, _ := x.group.Do(key, func() (interface{}, error) {
		if entity != nil {
			defer x.lock(*entity)()
			return x.deps.Orchestrator.RunForEntity(ctx, *entity, "").Success(), nil
		}

		defer x.lockAll()()
		summary, err := x.deps.Orchestrator.RunDailyBatch(ctx)
		if err != nil {
			x.logger.Error("Daily ETL failed", zap.Error(err))
			return false, nil
		}
		for _, outcome := range summary.Results {
			if outcome == model.OutcomeFailed {
				return false, nil
			}
		}
		return true, nil
	})
	return v.(bool)
}

// RunQualityCheck runs one quality audit
func (x *Executor) RunQualityCheck(ctx context.Context) (*model.QualityAuditReport, error) {
	v, err, _ := x.group.Do(JobQuality, func() (interface{}, error) {
		defer x.lockAll()()
		return x.deps.Monitor.RunQualityCheck(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.QualityAuditReport), nil
}

// FixDataIssues runs one auto-fix pass
func (x *Executor) FixDataIssues(ctx context.Context) model.FixResult {
	v, _, _ := x.group.Do(JobFix, func() (interface{}, error) {
		defer x.lockAll()()
		return x.deps.Monitor.FixDataIssues(ctx), nil
	})
	return v.(model.FixResult)
}

// QualityJob runs an audit and, when the overall score is below the auto-fix
// threshold, an auto-fix pass. The returned fix result is nil when no fix
// was attempted.
func (x *Executor) QualityJob(ctx context.Context) (*model.QualityAuditReport, *model.FixResult, error) {
	report, err := x.RunQualityCheck(ctx)
	if err != nil {
		x.logger.Error("Quality check failed", zap.Error(err))
		return nil, nil, err
	}
	x.logger.Info("Quality check completed", zap.Float64(logging.FieldScore, report.Score.Overall))
	if report.Score.Overall >= x.autoFixThreshold {
		return report, nil, nil
	}

	x.logger.Warn("Low quality score, attempting fixes",
		zap.Float64(logging.FieldScore, report.Score.Overall),
		zap.Float64("threshold", x.autoFixThreshold))
	fix := x.FixDataIssues(ctx)
	x.logger.Info("Applied fixes", zap.Int("fixes_applied", fix.FixesApplied), zap.Bool("success", fix.Success))
	return report, &fix, nil
}

// Backup snapshots every canonical table into one workbook in the archive
// directory. Tables that do not exist yet are left out.
func (x *Executor) Backup(ctx context.Context) (string, error) {
	v, err, _ := x.group.Do(JobBackup, func() (interface{}, error) {
		defer x.lockAll()()

		var sheets []loader.Sheet
		for _, e := range model.AllEntityTypes() {
			rs, err := x.deps.Store.ReadAll(ctx, e.Table())
			if store.IsNotFound(err) {
				continue
			}
			if err != nil {
				return "", errors.Wrapf(err, "failed to read %s for backup", e.Table())
			}
			sheets = append(sheets, loader.Sheet{Name: e.Table(), Data: rs})
		}
		return x.deps.Archiver.Backup(sheets)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// GenerateSampleData returns count synthetic records of the given type
func (x *Executor) GenerateSampleData(ctx context.Context, entity model.EntityType, count int) (*model.RecordSet, error) {
	return x.deps.Generator.Generate(ctx, entity, count)
}
