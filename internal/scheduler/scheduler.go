// Package scheduler runs periodic jobs on cron schedules in Korean time.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"findash/internal/core"
	"findash/internal/log"
)

// Job is a scheduled unit of work. It receives the runner's base context.
type Job func(ctx context.Context) error

type Runner struct {
	cron    *cron.Cron
	logger  *log.Logger
	baseCtx context.Context
}

// New creates a runner with six-field (seconds) schedules evaluated in KST.
// A job still running when its next tick arrives is skipped.
func New(baseCtx context.Context, logger *log.Logger) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = log.New(log.Config{Component: log.ComponentScheduler})
	}
	cl := cronLogger{logger}
	return &Runner{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(core.KST),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// Add registers job under name on spec.
func (r *Runner) Add(name, spec string, job Job) (cron.EntryID, error) {
	id, err := r.cron.AddFunc(spec, func() { r.run(name, job) })
	if err != nil {
		return 0, fmt.Errorf("schedule %s on %q: %w", name, spec, err)
	}
	r.logger.Info("Job scheduled", "job", name, "spec", spec)
	return id, nil
}

// RunNow runs job synchronously outside the schedule.
func (r *Runner) RunNow(name string, job Job) {
	r.run(name, job)
}

func (r *Runner) run(name string, job Job) {
	if r.baseCtx.Err() != nil {
		return
	}
	start := time.Now()
	r.logger.InfoContext(r.baseCtx, "Job started", "job", name)
	if err := job(r.baseCtx); err != nil {
		r.logger.LogError(r.baseCtx, "Job failed", err, log.OpSync, log.LogFields{"job": name})
		return
	}
	r.logger.InfoContext(r.baseCtx, "Job finished", "job", name, log.FieldDuration, time.Since(start).Milliseconds())
}

// Next returns the next activation of entry id.
func (r *Runner) Next(id cron.EntryID) time.Time {
	return r.cron.Entry(id).Next
}

func (r *Runner) Start() {
	r.logger.Info("cron started")
	r.cron.Start()
}

// Stop stops scheduling and waits for running jobs.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("cron stopped")
}

// cronLogger adapts the logger to cron.Logger.
type cronLogger struct {
	l *log.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, log.FieldError, err)...)
}
