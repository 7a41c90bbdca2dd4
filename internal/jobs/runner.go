// Package jobs runs periodic maintenance tasks on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	cron "github.com/robfig/cron"
)

// Job is a named task run on a cron schedule.
type Job interface {
	Name() string
	Schedule() string
	Run(ctx context.Context) error
}

// Func adapts a function to a Job.
type Func struct {
	JobName string
	Spec    string
	Fn      func(ctx context.Context) error
}

// Name implements Job.
func (f Func) Name() string { return f.JobName }

// Schedule implements Job.
func (f Func) Schedule() string { return f.Spec }

// Run implements Job.
func (f Func) Run(ctx context.Context) error { return f.Fn(ctx) }

// Runner executes jobs on their schedules. A job whose previous run is
// still in progress is skipped.
type Runner struct {
	cron   *cron.Cron
	jobs   []Job
	logger *slog.Logger

	mu      sync.Mutex
	running mapset.Set[string]
}

// NewRunner creates a Runner for jobs.
func NewRunner(logger *slog.Logger, jobs ...Job) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cron:    cron.New(),
		jobs:    jobs,
		logger:  logger,
		running: mapset.NewThreadUnsafeSet[string](),
	}
}

// Start schedules every job and starts the scheduler. Jobs run with ctx.
func (r *Runner) Start(ctx context.Context) error {
	for _, job := range r.jobs {
		if job.Schedule() == "" {
			continue
		}
		if err := r.cron.AddFunc(job.Schedule(), func() { r.run(ctx, job) }); err != nil {
			return fmt.Errorf("jobs: schedule %s: %w", job.Name(), err)
		}
		r.logger.Info("jobs: scheduled", slog.String("job", job.Name()), slog.String("schedule", job.Schedule()))
	}
	r.cron.Start()
	return nil
}

// Stop halts the scheduler. Runs already in progress are not interrupted.
func (r *Runner) Stop() {
	r.cron.Stop()
}

func (r *Runner) run(ctx context.Context, job Job) {
	r.mu.Lock()
	if r.running.Contains(job.Name()) {
		r.mu.Unlock()
		r.logger.Warn("jobs: previous run still in progress", slog.String("job", job.Name()))
		return
	}
	r.running.Add(job.Name())
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running.Remove(job.Name())
		r.mu.Unlock()
	}()

	if err := job.Run(ctx); err != nil {
		r.logger.Error("jobs: run failed", slog.String("job", job.Name()), slog.String("error", err.Error()))
	}
}
