package scheduler

import (
	"context"
	"errors"
	"time"

	"labtool-ledger/internal/jobs"
	"labtool-ledger/internal/logger"
	"labtool-ledger/internal/runlock"

	"github.com/robfig/cron/v3"
)

const lockName = "reconcile"

// Runner is the reconciliation entry point.
type Runner interface {
	Run(ctx context.Context, action jobs.Action, now time.Time) (jobs.Stats, error)
}

// Scheduler triggers reconciliation on a cron schedule and on demand. Both
// paths go through the same run lock, so runs never overlap.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	lock   runlock.Locker
	clock  func() time.Time
}

type Option func(*Scheduler)

// WithClock replaces time.Now.
func WithClock(clock func() time.Time) Option {
	return func(s *Scheduler) { s.clock = clock }
}

// NewScheduler registers the reconcile job under spec, a six-field cron
// expression evaluated in loc.
func NewScheduler(runner Runner, lock runlock.Locker, spec string, loc *time.Location, opts ...Option) (*Scheduler, error) {
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithSeconds(),
		cron.WithChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{})),
	)

	s := &Scheduler{
		cron:   c,
		runner: runner,
		lock:   lock,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if _, err := s.cron.AddFunc(spec, s.reconcile); err != nil {
		return nil, err
	}
	logger.Info("Reconcile job registered", "schedule", spec, "timezone", loc.String())
	return s, nil
}

func (s *Scheduler) reconcile() {
	_, err := s.RunOnce(context.Background(), jobs.ActionAll)
	if errors.Is(err, runlock.ErrHeld) {
		logger.Warn("Skipping scheduled reconciliation, previous run still active")
		return
	}
	if err != nil {
		logger.Error("Scheduled reconciliation failed", "error", err)
	}
}

// RunOnce runs action now, unless another run holds the lock.
func (s *Scheduler) RunOnce(ctx context.Context, action jobs.Action) (jobs.Stats, error) {
	release, err := s.lock.Acquire(ctx, lockName)
	if err != nil {
		return jobs.Stats{}, err
	}
	defer release()
	return s.runner.Run(ctx, action, s.clock())
}

// Start begins the cron scheduler
func (s *Scheduler) Start() {
	logger.Info("Starting cron scheduler...")
	s.cron.Start()
	logger.Info("Cron scheduler started successfully")
}

// Stop waits for a running job to finish.
func (s *Scheduler) Stop() {
	logger.Info("Stopping cron scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("Cron scheduler stopped")
}

// Next reports when the reconcile job fires next.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// cronLogger sends cron's own messages to the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
