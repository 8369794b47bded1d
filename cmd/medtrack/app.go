package main

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/medtrack/data-ingress/pkg/config"
	"github.com/medtrack/data-ingress/pkg/connector"
	"github.com/medtrack/data-ingress/pkg/extractor"
	"github.com/medtrack/data-ingress/pkg/loader"
	"github.com/medtrack/data-ingress/pkg/pipeline"
	"github.com/medtrack/data-ingress/pkg/quality"
	"github.com/medtrack/data-ingress/pkg/report"
	"github.com/medtrack/data-ingress/pkg/sample"
	"github.com/medtrack/data-ingress/pkg/scheduler"
	"github.com/medtrack/data-ingress/pkg/store"
)

// app holds the components wired for one CLI invocation
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry

	conn      connector.DatabaseConnector
	warehouse *connector.SnowflakeConnector

	store        store.CanonicalStore
	orchestrator *pipeline.Orchestrator
	monitor      *quality.Monitor
	executor     *scheduler.Executor
}

// open connects to the canonical store (and the warehouse when configured)
// and wires the pipeline components
func (a *app) open(ctx context.Context) error {
	factory := connector.NewConnectorFactory(a.cfg, a.logger)

	conn, err := factory.CreateStoreConnector(ctx)
	if err != nil {
		return err
	}
	a.conn = conn
	a.store = store.NewSQLStoreFromConnector(conn, a.logger)

	extractorOpts := []extractor.Option{extractor.WithBatchSize(a.cfg.Processing.ChunkSize)}
	if a.cfg.Snowflake != nil {
		wh, err := factory.CreateSnowflakeConnector(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to open warehouse source")
		}
		a.warehouse = wh
		extractorOpts = append(extractorOpts, extractor.WithWarehouse(wh))
	}

	sink, err := report.NewFileSink(a.cfg.Output.ReportsPath, a.cfg.Output.QualityReportsPath,
		report.Format(a.cfg.Output.ReportFormat), nil, a.logger)
	if err != nil {
		return err
	}

	a.orchestrator = pipeline.New(a.store, sink, pipeline.SettingsFromConfig(a.cfg), a.logger,
		pipeline.WithMetrics(pipeline.NewMetrics(a.registry)),
		pipeline.WithExtractor(extractor.New(a.store, a.logger, extractorOpts...)))

	a.monitor = quality.NewMonitor(a.store, a.cfg.Scoring, a.logger,
		quality.WithSink(sink),
		quality.WithMetrics(quality.NewMetrics(a.registry)))

	a.executor = scheduler.NewExecutor(scheduler.Deps{
		Store:        a.store,
		Orchestrator: a.orchestrator,
		Monitor:      a.monitor,
		Generator:    sample.New(0, a.logger, sample.WithStore(a.store)),
		Archiver:     loader.NewArchiver(a.cfg.Output.ArchivePath, nil, a.logger),
	}, a.cfg.Schedule.AutoFixThreshold, a.logger)
	return nil
}

// close releases database connections
func (a *app) close() {
	if a.warehouse != nil {
		if err := a.warehouse.Close(); err != nil {
			a.logger.Warn("Failed to close warehouse connection", zap.Error(err))
		}
	}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			a.logger.Warn("Failed to close store connection", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
