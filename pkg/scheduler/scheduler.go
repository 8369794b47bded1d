package scheduler

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/medtrack/data-ingress/pkg/config"
	"github.com/medtrack/data-ingress/pkg/logging"
)

// ErrUnknownTask is returned by RunOnce for an unrecognized task name
var ErrUnknownTask = errors.New("unknown task")

// ErrAlreadyStarted is returned when Start is called twice
var ErrAlreadyStarted = errors.New("scheduler already started")

// Scheduler fires the ETL, quality and backup jobs on cron schedules
type Scheduler struct {
	exec   *Executor
	cfg    config.ScheduleConfig
	cron   *cron.Cron
	logger *zap.Logger

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a scheduler. Cron expressions include a seconds field.
func New(exec *Executor, cfg config.ScheduleConfig, logger *zap.Logger) *Scheduler {
	logger = logging.OrNop(logger).Named("scheduler")
	cl := cronLogger{logger.Sugar()}
	return &Scheduler{
		exec:   exec,
		cfg:    cfg,
		cron:   cron.New(cron.WithSeconds(), cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		logger: logger,
	}
}

// Start registers the jobs and starts the cron loop. With RunOnStart the
// daily ETL and a quality check run immediately in the background.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	jobs := []struct {
		name string
		spec string
	}{
		{JobETL, s.cfg.ETLCron},
		{JobQuality, s.cfg.QualityCron},
		{JobBackup, s.cfg.BackupCron},
	}
	for _, j := range jobs {
		if j.spec == "" {
			s.logger.Info("Job disabled", zap.String(logging.FieldJob, j.name))
			continue
		}
		name := j.name
		if _, err := s.cron.AddFunc(j.spec, func() { s.track(name) }); err != nil {
			s.cancel()
			return errors.Wrapf(err, "invalid schedule %q for %s job", j.spec, name)
		}
		s.logger.Info("Job scheduled", zap.String(logging.FieldJob, name), zap.String("cron", j.spec))
	}

	s.cron.Start()
	s.started = true
	s.logger.Info("Pipeline scheduler started")

	if s.cfg.RunOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.run(JobETL)
			s.run(JobQuality)
		}()
	}
	return nil
}

// Stop stops the cron loop, cancels running jobs and waits for them to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	done := s.cron.Stop()
	s.cancel()
	<-done.Done()
	s.wg.Wait()
	s.logger.Info("Pipeline scheduler stopped")
}

// Entries returns the number of registered cron jobs
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// RunOnce runs the named task synchronously
func (s *Scheduler) RunOnce(ctx context.Context, task string) error {
	s.logger.Info("Manually running task", zap.String(logging.FieldJob, task))
	return runTask(ctx, s.exec, task)
}

func (s *Scheduler) track(name string) {
	s.wg.Add(1)
	defer s.wg.Done()
	s.run(name)
}

func (s *Scheduler) run(name string) {
	if s.ctx.Err() != nil {
		return
	}
	s.logger.Info("Executing scheduled job", zap.String(logging.FieldJob, name))
	if err := runTask(s.ctx, s.exec, name); err != nil {
		s.logger.Error("Scheduled job failed", zap.String(logging.FieldJob, name), zap.Error(err))
	}
}

func runTask(ctx context.Context, exec *Executor, task string) error {
	switch task {
	case JobETL:
		if !exec.RunEtl(ctx, nil) {
			return errors.New("daily ETL did not complete for every entity")
		}
		return nil
	case JobQuality:
		_, _, err := exec.QualityJob(ctx)
		return err
	case JobFix:
		if res := exec.FixDataIssues(ctx); !res.Success {
			return errors.Newf("auto-fix failed: %s", res.Error)
		}
		return nil
	case JobBackup:
		_, err := exec.Backup(ctx)
		return err
	default:
		return errors.Wrapf(ErrUnknownTask, "%q", task)
	}
}

// cronLogger routes cron's own logging through zap
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
