// README: Background jobs (no-show sweep, extension expiry, assignment retry) with panic recovery.
package jobs

import (
	"context"
	"time"

	"vrent/internal/logger"
)

type NoShowSweeper interface {
	SweepNoShows(ctx context.Context) (int, error)
}

type ExtensionExpirer interface {
	ExpireOverdue(ctx context.Context) (int, error)
}

type PendingAssigner interface {
	AssignPending(ctx context.Context, limit int) (int, error)
}

// Services holds the service dependencies needed by jobs. A nil member
// disables its job.
type Services struct {
	Bookings   NoShowSweeper
	Extensions ExtensionExpirer
	Matching   PendingAssigner
}

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	services Services
	timeout  time.Duration
}

func NewJobRunner(services Services, timeout time.Duration) *JobRunner {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &JobRunner{services: services, timeout: timeout}
}

// runWithRecovery wraps job execution with panic recovery and a deadline.
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), jr.timeout)
	defer cancel()

	start := time.Now()
	logger.Debug("Starting job", "job", jobName)
	jobFunc(ctx)
	logger.Debug("Job completed", "job", jobName, "took", time.Since(start))
}

// SweepNoShows marks confirmed bookings whose pickup never happened.
func (jr *JobRunner) SweepNoShows() {
	if jr.services.Bookings == nil {
		return
	}
	jr.runWithRecovery("SweepNoShows", func(ctx context.Context) {
		n, err := jr.services.Bookings.SweepNoShows(ctx)
		if err != nil {
			logger.Error("No-show sweep failed", "error", err)
			return
		}
		if n > 0 {
			logger.Info("Bookings marked no-show", "count", n)
		}
	})
}

// ExpireExtensions expires approved extensions left unpaid past the grace window.
func (jr *JobRunner) ExpireExtensions() {
	if jr.services.Extensions == nil {
		return
	}
	jr.runWithRecovery("ExpireExtensions", func(ctx context.Context) {
		n, err := jr.services.Extensions.ExpireOverdue(ctx)
		if err != nil {
			logger.Error("Extension expiry failed", "error", err)
			return
		}
		if n > 0 {
			logger.Info("Extensions expired", "count", n)
		}
	})
}

// RetryAssignments re-runs agent selection for confirmed, unassigned bookings.
func (jr *JobRunner) RetryAssignments() {
	if jr.services.Matching == nil {
		return
	}
	jr.runWithRecovery("RetryAssignments", func(ctx context.Context) {
		n, err := jr.services.Matching.AssignPending(ctx, 50)
		if err != nil {
			logger.Error("Assignment retry failed", "error", err)
			return
		}
		if n > 0 {
			logger.Info("Bookings assigned", "count", n)
		}
	})
}

// RunAll runs every job once (for manual execution).
func (jr *JobRunner) RunAll() {
	jr.SweepNoShows()
	jr.ExpireExtensions()
	jr.RetryAssignments()
}
