package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/medtrack/data-ingress/pkg/config"
	"github.com/medtrack/data-ingress/pkg/loader"
	"github.com/medtrack/data-ingress/pkg/logging"
	"github.com/medtrack/data-ingress/pkg/model"
	"github.com/medtrack/data-ingress/pkg/scheduler"
)

type appKey struct{}

func appFrom(cmd *cobra.Command) *app {
	return cmd.Context().Value(appKey{}).(*app)
}

func newRootCmd() *cobra.Command {
	var (
		envFiles []string
		logLevel string
	)

	root := &cobra.Command{
		Use:   "medtrack",
		Short: "Pharmacy data pipeline and quality monitor",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			cfg, err := config.LoadConfig(envFiles...)
			if err != nil {
				return errors.Wrap(err, "failed to load configuration")
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			zap.ReplaceGlobals(logger)

			a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
			if err := a.open(cmd.Context()); err != nil {
				a.close()
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, a))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a, ok := cmd.Context().Value(appKey{}).(*app); ok {
				a.close()
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "env files to load (default .env)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (debug|info|warn|error)")

	root.AddCommand(
		newEtlCmd(),
		newQualityCmd(),
		newFixCmd(),
		newGenerateCmd(),
		newBackupCmd(),
		newScheduleCmd(),
	)
	return root
}

func parseEntity(s string) (model.EntityType, error) {
	e, err := model.ParseEntityType(s)
	if err != nil {
		return "", errors.WithHint(err, "use one of drugs, sales, patients")
	}
	return e, nil
}

func newEtlCmd() *cobra.Command {
	var entity, source string
	cmd := &cobra.Command{
		Use:   "etl",
		Short: "Run the ETL pipeline for one entity type or the daily batch",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := appFrom(cmd)
			ctx := cmd.Context()

			if entity == "" {
				if source != "" {
					return errors.New("--source requires --entity")
				}
				summary, err := a.orchestrator.RunDailyBatch(ctx)
				if err != nil {
					return err
				}
				renderBatch(cmd.OutOrStdout(), summary)
				for _, outcome := range summary.Results {
					if outcome == model.OutcomeFailed {
						return errors.New("daily batch finished with failures")
					}
				}
				return nil
			}

			e, err := parseEntity(entity)
			if err != nil {
				return err
			}
			res := a.orchestrator.RunForEntity(ctx, e, source)
			renderRun(cmd.OutOrStdout(), res)
			if !res.Success() {
				return errors.Newf("pipeline for %s did not complete: %s", e, res.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&entity, "entity", "", "entity type (drugs|sales|patients); empty runs the daily batch")
	cmd.Flags().StringVar(&source, "source", "", "source location overriding the configured one")
	return cmd
}

func newQualityCmd() *cobra.Command {
	var fix bool
	cmd := &cobra.Command{
		Use:   "quality",
		Short: "Run a data quality audit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := appFrom(cmd)
			r, err := a.executor.RunQualityCheck(cmd.Context())
			if err != nil {
				return err
			}
			renderAudit(cmd.OutOrStdout(), r)
			if !fix {
				return nil
			}
			res := a.executor.FixDataIssues(cmd.Context())
			renderFixes(cmd.OutOrStdout(), res)
			if !res.Success {
				return errors.Newf("auto-fix failed: %s", res.Error)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "apply automatic fixes after the audit")
	return cmd
}

func newFixCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fix",
		Short: "Fix negative stock, orphaned sales and future-dated sales",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res := appFrom(cmd).executor.FixDataIssues(cmd.Context())
			renderFixes(cmd.OutOrStdout(), res)
			if !res.Success {
				return errors.Newf("auto-fix failed: %s", res.Error)
			}
			return nil
		},
	}
}

func newGenerateCmd() *cobra.Command {
	var (
		entity  string
		records int
		out     string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate sample source data",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := appFrom(cmd)
			e, err := parseEntity(entity)
			if err != nil {
				return err
			}
			rs, err := a.executor.GenerateSampleData(cmd.Context(), e, records)
			if err != nil {
				return err
			}
			if out == "" {
				out = filepath.Join(a.cfg.Output.RawPath, e.Table()+"_sample.csv")
			}
			if err := loader.ExportCSV(out, rs); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated %d sample %s records to %s\n", rs.Len(), e.Table(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&entity, "entity", "", "entity type (drugs|sales|patients)")
	cmd.Flags().IntVar(&records, "records", 100, "number of records to generate")
	cmd.Flags().StringVar(&out, "out", "", "output CSV path (default {raw_path}/{table}_sample.csv)")
	_ = cmd.MarkFlagRequired("entity")
	return cmd
}

func newBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Snapshot every canonical table into the archive directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := appFrom(cmd).executor.Backup(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backup written to %s\n", path)
			return nil
		},
	}
}

func newScheduleCmd() *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the ETL, quality and backup jobs on their schedules until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := appFrom(cmd)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var srv *http.Server
			if metricsAddr != "" {
				a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
				srv = &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
				go func() {
					a.logger.Info("Serving metrics", zap.String("addr", metricsAddr))
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.logger.Error("Metrics server failed", zap.Error(err))
					}
				}()
			}

			s := scheduler.New(a.executor, a.cfg.Schedule, a.logger)
			if err := s.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			s.Stop()

			if srv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					a.logger.Warn("Metrics server shutdown failed", zap.Error(err))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address for the Prometheus /metrics endpoint; empty disables it")
	return cmd
}
