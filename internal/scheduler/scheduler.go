// Package scheduler runs background maintenance jobs.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

type taskFn func(ctx context.Context) error

type Scheduler struct {
	scheduler gocron.Scheduler
	log       zerolog.Logger
}

func New(log zerolog.Logger) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return &Scheduler{scheduler: s, log: log.With().Str("component", "scheduler").Logger()}, nil
}

func (s *Scheduler) Start() {
	s.scheduler.Start()
}

func (s *Scheduler) Stop() error {
	return s.scheduler.Shutdown()
}

// NewIntervalJob runs fn every interval. A run still in progress when the
// next one is due pushes the next one back.
func (s *Scheduler) NewIntervalJob(name string, fn taskFn, interval time.Duration, startImmediately bool) error {
	opts := []gocron.JobOption{
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	}
	if startImmediately {
		opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
	}

	if _, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.taskWithRecover(fn, name)),
		opts...,
	); err != nil {
		return fmt.Errorf("failed to create job %s: %w", name, err)
	}
	return nil
}

func (s *Scheduler) taskWithRecover(fn taskFn, name string) func(ctx context.Context) {
	return func(ctx context.Context) {
		log := s.log.With().Str("job", name).Logger()
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Interface("panic", r).
					Str("stacktrace", string(debug.Stack())).
					Msg("Panic recovered in scheduler job")
			}
		}()

		start := time.Now()
		log.Info().Msg("Job started")

		if err := fn(log.WithContext(ctx)); err != nil {
			log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("Job failed")
			return
		}
		log.Info().Dur("elapsed", time.Since(start)).Msg("Job completed")
	}
}
