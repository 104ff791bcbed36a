// Package scheduler runs the background jobs on cron schedules. Every job is
// guarded by a shared lease so that only one instance executes a given job at
// a time, while all instances keep scheduling it.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"onboarding-gateway/internal/scheduler/lock"
)

const (
	// defaultMinHold keeps a released lease reserved briefly so a fast run is
	// not immediately repeated by another instance.
	defaultMinHold = time.Second
	// defaultMaxHold bounds how long a dead holder can block a job.
	defaultMaxHold = 5 * time.Minute
)

// Runner schedules lease-guarded jobs. Schedules use six-field cron specs
// with a seconds column, evaluated in UTC.
type Runner struct {
	cron    *cron.Cron
	leases  lock.Store
	logger  *zap.Logger
	metrics *Metrics
	minHold time.Duration
	maxHold time.Duration
}

func NewRunner(leases lock.Store, logger *zap.Logger, metrics *Metrics) *Runner {
	return &Runner{
		cron:    cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC)),
		leases:  leases,
		logger:  logger,
		metrics: metrics,
		minHold: defaultMinHold,
		maxHold: defaultMaxHold,
	}
}

// Register schedules a job under its lease. The name doubles as the lease
// key and the metric label.
func (r *Runner) Register(name, spec string, job lock.Job) error {
	guarded := lock.Guard(r.leases, name, r.minHold, r.maxHold, r.logger, job)
	_, err := r.cron.AddFunc(spec, func() {
		started := time.Now()
		err := guarded(context.Background())
		if r.metrics != nil {
			r.metrics.JobDuration.WithLabelValues(name).Observe(time.Since(started).Seconds())
			r.metrics.JobRuns.WithLabelValues(name, outcomeLabel(err)).Inc()
		}
		if err != nil {
			r.logger.Error("scheduled job failed", zap.String("job", name), zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("register job %s: %w", name, err)
	}
	return nil
}

// Start begins scheduling. It returns immediately; jobs run on the cron's
// own goroutines.
func (r *Runner) Start() {
	r.cron.Start()
}

// Stop halts scheduling and waits for running jobs to finish or the context
// to expire.
func (r *Runner) Stop(ctx context.Context) error {
	done := r.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
