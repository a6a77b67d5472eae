package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Job is a named piece of periodic work.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// Scheduler evaluates cron expressions and runs jobs against a shared
// context.
type Scheduler struct {
	jobs   []Job
	cron   *cron.Cron
	cancel context.CancelFunc
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field, plus descriptors like
// "@every 30s".
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Validate reports whether schedule parses.
func Validate(schedule string) error {
	if _, err := cronParser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	return nil
}

func New(jobs ...Job) *Scheduler {
	return &Scheduler{
		jobs: jobs,
		cron: cron.New(cron.WithParser(cronParser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

// Start registers every job with a valid schedule and starts the ticker.
// Jobs with an empty or invalid schedule are skipped. Start returns the
// number of jobs registered.
func (s *Scheduler) Start(ctx context.Context) int {
	ctx, s.cancel = context.WithCancel(ctx)

	registered := 0
	for _, job := range s.jobs {
		if job.Schedule == "" {
			continue
		}
		_, err := s.cron.AddFunc(job.Schedule, func() {
			if err := job.Run(ctx); err != nil {
				slog.Warn("scheduled job failed", "name", job.Name, "error", err)
			}
		})
		if err != nil {
			slog.Error("invalid cron schedule", "name", job.Name, "schedule", job.Schedule, "error", err)
			continue
		}
		registered++
		slog.Info("scheduled job", "name", job.Name, "schedule", job.Schedule)
	}

	s.cron.Start()
	return registered
}

// Stop stops the ticker and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
}
