// Package scheduler runs periodic jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"ucontrol/internal/log"
)

// Job is one scheduled unit of work. The context is cancelled after the
// job's timeout or when the scheduler stops.
type Job func(ctx context.Context) error

type Scheduler struct {
	cronEngine *cron.Cron
	logger     *log.Logger
	timeout    time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// New returns a scheduler that evaluates schedules in loc. Overlapping runs
// of the same job are skipped.
func New(loc *time.Location, timeout time.Duration, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Discard()
	}
	if loc == nil {
		loc = time.Local
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := logger.WithComponent(log.ComponentScheduler)
	return &Scheduler{
		cronEngine: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{l}), cron.Recover(cronLogger{l})),
		),
		logger:  l,
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Add registers job under name on a standard five-field cron spec.
func (s *Scheduler) Add(spec, name string, job Job) error {
	_, err := s.cronEngine.AddFunc(spec, func() {
		s.run(name, job)
	})
	if err != nil {
		return fmt.Errorf("add job %s (%q): %w", name, spec, err)
	}
	s.logger.Info("Job scheduled", "job", name, "spec", spec)
	return nil
}

// RunNow executes the job synchronously, outside the schedule.
func (s *Scheduler) RunNow(name string, job Job) {
	s.run(name, job)
}

func (s *Scheduler) run(name string, job Job) {
	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	start := time.Now()
	if err := job(ctx); err != nil {
		s.logger.LogError(ctx, "Job failed", err, log.ErrorTypeInternal, "job", name)
		return
	}
	s.logger.Debug("Job finished", "job", name, log.FieldDuration, time.Since(start).Milliseconds())
}

func (s *Scheduler) Start() {
	s.cronEngine.Start()
	s.logger.Info("Scheduler started", "jobs", len(s.cronEngine.Entries()))
}

// Stop prevents new runs, cancels running jobs and waits for them to return
// or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cronEngine.Stop()
	s.cancel()
	select {
	case <-done.Done():
		s.logger.Info("Scheduler gracefully stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts the structured logger to cron.Logger.
type cronLogger struct {
	l *log.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, log.FieldError, err)...)
}
