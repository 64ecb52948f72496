// README: Cron scheduler wiring the background jobs to their configured specs.
package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"vrent/internal/config"
	"vrent/internal/jobs"
	"vrent/internal/logger"
)

// Scheduler manages cron job scheduling
type Scheduler struct {
	cron *cron.Cron
	jobs *jobs.JobRunner
}

// NewScheduler registers every job; an invalid cron spec is an error.
// Overlapping runs of the same job are skipped.
func NewScheduler(jobRunner *jobs.JobRunner, cfg config.SchedulerConfig, loc *time.Location) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	s := &Scheduler{cron: c, jobs: jobRunner}

	specs := []struct {
		name string
		spec string
		fn   func()
	}{
		{"SweepNoShows", cfg.NoShowSweep, jobRunner.SweepNoShows},
		{"ExpireExtensions", cfg.ExtensionExpiry, jobRunner.ExpireExtensions},
		{"RetryAssignments", cfg.AssignmentRetry, jobRunner.RetryAssignments},
	}
	for _, j := range specs {
		if j.spec == "" {
			logger.Warn("Cron job disabled, empty spec", "job", j.name)
			continue
		}
		if _, err := c.AddFunc(j.spec, j.fn); err != nil {
			return nil, fmt.Errorf("register %s (%q): %w", j.name, j.spec, err)
		}
	}
	logger.Info("Cron jobs registered", "count", len(c.Entries()))
	return s, nil
}

// Start begins the cron scheduler
func (s *Scheduler) Start() {
	logger.Info("Starting cron scheduler...")
	s.cron.Start()
}

// Stop gracefully stops the cron scheduler, waiting for running jobs.
func (s *Scheduler) Stop() {
	logger.Info("Stopping cron scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("Cron scheduler stopped")
}

// Entries returns the number of registered jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
