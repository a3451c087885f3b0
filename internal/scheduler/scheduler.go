// Package scheduler runs background jobs on cron expressions.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/momentsapp/moments/internal/logger"
	"github.com/momentsapp/moments/internal/service"
	"github.com/robfig/cron/v3"
)

// Scheduler manages background jobs using cron scheduling.
type Scheduler struct {
	cron *cron.Cron
	mu   sync.Mutex
	jobs map[string]cron.EntryID
}

// New creates a scheduler. Jobs use the standard 5-field format or descriptors
// such as "@every 1h". A job still running when its next tick fires is skipped.
func New() *Scheduler {
	cronLog := cron.PrintfLogger(logger.GetDefault().WithField(logger.FieldComponent, "cron"))
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cronLog),
			cron.Recover(cronLog),
		)),
		jobs: make(map[string]cron.EntryID),
	}
}

// AddJob registers job under name.
func (s *Scheduler) AddJob(name, spec string, job func(ctx context.Context)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already exists", name)
	}

	id, err := s.cron.AddFunc(spec, func() {
		ctx := logger.WithField(context.Background(), logger.FieldJob, name)
		start := time.Now()
		logger.CtxInfo(ctx, "Running scheduled job")
		job(ctx)
		logger.With(logger.Fields{}).WithDuration(time.Since(start).Milliseconds()).Info(ctx, "Completed scheduled job")
	})
	if err != nil {
		return fmt.Errorf("failed to add job %s: %w", name, err)
	}
	s.jobs[name] = id

	logger.GetDefault().WithFields(logger.Fields{logger.FieldJob: name, "schedule": spec}).Info("Added scheduled job")
	return nil
}

// Jobs returns the registered job names.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}

// Start starts the scheduler.
func (s *Scheduler) Start() {
	logger.Info("Starting job scheduler")
	s.cron.Start()
}

// Stop stops the scheduler and returns a context done when running jobs finish.
func (s *Scheduler) Stop() context.Context {
	logger.Info("Stopping job scheduler")
	return s.cron.Stop()
}

// Backfiller is the job run by the backfill schedule.
type Backfiller interface {
	Run(ctx context.Context, opts *service.BackfillOptions) (*service.BackfillStats, error)
}

// AddBackfillJob schedules periodic analysis of photos missing alt-text or detection.
func (s *Scheduler) AddBackfillJob(spec string, batchSize int, backfill Backfiller) error {
	return s.AddJob("backfill", spec, func(ctx context.Context) {
		stats, err := backfill.Run(ctx, &service.BackfillOptions{Limit: batchSize})
		switch {
		case errors.Is(err, service.ErrBackfillRunning):
			logger.With(logger.Fields{}).WithStatus("skipped").Info(ctx, "Previous backfill still running")
		case err != nil:
			logger.With(logger.Fields{}).WithStatus("failed").Error(ctx, "Scheduled backfill failed: %v", err)
		default:
			logger.With(logger.Fields{"failed": stats.FailedItems}).WithCount(stats.ProcessedItems).
				WithStatus("success").Info(ctx, "Scheduled backfill finished")
		}
	})
}
