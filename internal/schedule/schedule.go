// Package schedule repeats archive runs on a cron expression until the
// context is cancelled.
package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/kamazee/vcutil/pkg/vcerrors"
)

// Job is one scheduled run. A failed run is logged and the schedule keeps going.
type Job func(ctx context.Context) error

// Scheduler runs a Job on a cron schedule. Runs never overlap: a tick that
// fires while the previous run is still going is skipped.
type Scheduler struct {
	spec string
	job  Job
	cron *cron.Cron
	log  *zap.Logger

	mu      sync.Mutex
	running bool
	runs    int
}

// New parses spec with the standard five-field syntax (descriptors such as
// "@hourly" and "@every 10m" are accepted too).
func New(spec string, job Job, log *zap.Logger) (*Scheduler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, vcerrors.Wrap(err, vcerrors.ErrorTypeConfig, "invalid schedule").
			WithDetail("schedule", spec)
	}
	cl := cronLogger{log: log.Named("cron")}
	return &Scheduler{
		spec: spec,
		job:  job,
		cron: cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		log:  log,
	}, nil
}

// Run starts the schedule and blocks until ctx is done, then waits for an
// in-flight run to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.runOnce(ctx) }); err != nil {
		return vcerrors.Wrap(err, vcerrors.ErrorTypeConfig, "failed to schedule run").
			WithDetail("schedule", s.spec)
	}

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	s.cron.Start()
	s.log.Info("Scheduler started", zap.String("schedule", s.spec), zap.Timep("next_run", s.NextRun()))

	<-ctx.Done()

	<-s.cron.Stop().Done()
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.log.Info("Scheduler stopped", zap.Int("runs", s.Runs()))
	return nil
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	s.mu.Lock()
	s.runs++
	n := s.runs
	s.mu.Unlock()

	s.log.Info("Starting scheduled run", zap.Int("run", n))
	if err := s.job(ctx); err != nil {
		s.log.Error("Scheduled run failed", zap.Int("run", n), zap.Error(err))
		return
	}
	s.log.Debug("Scheduled run completed", zap.Int("run", n))
}

// IsRunning reports whether the schedule is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Runs returns how many runs have started.
func (s *Scheduler) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

// NextRun returns the next activation, or nil before Run.
func (s *Scheduler) NextRun() *time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
