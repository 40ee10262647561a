// Package scheduler manages background jobs on cron schedules: draining
// the analysis queue, pruning old runs and caches, and nightly backups.
package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a unit of background work the scheduler can run, either on its
// cron schedule or on demand through the system API.
type Job interface {
	Run() error
	Name() string
}

// Scheduler wraps a seconds-granularity cron runner and funnels every
// job execution through one logging path, so scheduled runs and manual
// triggers produce the same log shape.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
}

// Stop blocks until in-flight jobs finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a job under a six-field cron expression (with
// seconds), e.g. "0 */5 * * * *", or a descriptor like "@hourly" or
// "@every 30s".
func (s *Scheduler) AddJob(schedule string, job Job) error {
	if _, err := s.cron.AddFunc(schedule, func() { s.runLogged(job) }); err != nil {
		return fmt.Errorf("failed to schedule job %q: %w", job.Name(), err)
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")
	return nil
}

// RunNow executes a job immediately, outside its schedule.
func (s *Scheduler) RunNow(job Job) error {
	return s.runLogged(job)
}

func (s *Scheduler) runLogged(job Job) error {
	log := s.log.With().Str("job", job.Name()).Logger()
	log.Debug().Msg("Job starting")

	start := time.Now()
	err := job.Run()
	elapsed := time.Since(start)

	if err != nil {
		log.Error().Err(err).Dur("elapsed", elapsed).Msg("Job failed")
		return err
	}
	log.Debug().Dur("elapsed", elapsed).Msg("Job completed")
	return nil
}
