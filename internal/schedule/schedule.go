// Package schedule triggers watcher runs from a cron expression while the
// HTTP server is up.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobwatch/internal/runner"
)

// Runner is the part of runner.Runner the scheduler drives.
type Runner interface {
	Run(ctx context.Context, opts runner.Options) (runner.Summary, error)
}

// Scheduler owns a cron instance with a single watcher entry.
type Scheduler struct {
	cron   *cron.Cron
	entry  cron.EntryID
	runner Runner
	opts   runner.Options
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// Parser accepts standard 5-field expressions plus descriptors like @daily.
var Parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New validates spec and registers the run. Overlapping triggers are skipped
// while a run is still in flight.
func New(spec string, r Runner, opts runner.Options, logger *zap.Logger) (*Scheduler, error) {
	if r == nil {
		return nil, errors.New("schedule: runner is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{logger: logger.Sugar()}
	c := cron.New(
		cron.WithParser(Parser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:   c,
		runner: r,
		opts:   opts,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
	entry, err := c.AddFunc(spec, s.trigger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	s.entry = entry
	return s, nil
}

// Start begins firing the schedule in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Time("next_run", s.Next()))
}

// Next reports the upcoming trigger time. It is zero before Start.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// Stop halts new triggers, cancels an in-flight run and waits for it to
// return or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	cronCtx := s.cron.Stop()
	s.cancel()
	select {
	case <-cronCtx.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

func (s *Scheduler) trigger() {
	if s.ctx.Err() != nil {
		return
	}
	s.logger.Info("scheduled run triggered", zap.String("mode", s.opts.Mode()))
	summary, err := s.runner.Run(s.ctx, s.opts)
	if err != nil {
		s.logger.Error("scheduled run failed", zap.Error(err), zap.String("run_id", summary.RunID))
		return
	}
	s.logger.Info("scheduled run finished",
		zap.String("run_id", summary.RunID),
		zap.Int("count", summary.Reported),
		zap.Bool("delivered", summary.Delivered),
	)
}

// cronLogger routes cron's internal logging through zap.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
