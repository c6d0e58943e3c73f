// Package cron runs payment housekeeping (outbox and webhook log retention)
// on a fixed cadence, one worker at a time.
package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/paysettle-backend/pkg/logger"
)

const (
	defaultEvery      = time.Hour
	defaultJobTimeout = 5 * time.Minute
)

// Job is one unit of scheduled maintenance.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Recorder receives the outcome of every job run.
type Recorder interface {
	Observe(job string, took time.Duration, err error)
}

type Options struct {
	// Every is the pause between the end of one cycle and the start of the next.
	Every      time.Duration
	JobTimeout time.Duration
	Recorder   Recorder
}

type Scheduler struct {
	logg       *logger.Logger
	lock       Lock
	jobs       []Job
	rec        Recorder
	every      time.Duration
	jobTimeout time.Duration
}

func NewScheduler(logg *logger.Logger, lock Lock, jobs []Job, opts Options) (*Scheduler, error) {
	if logg == nil {
		return nil, errors.New("logger required")
	}
	if lock == nil {
		return nil, errors.New("lock required")
	}
	seen := make(map[string]bool, len(jobs))
	kept := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		if job == nil {
			continue
		}
		if seen[job.Name()] {
			return nil, fmt.Errorf("cron job %q registered twice", job.Name())
		}
		seen[job.Name()] = true
		kept = append(kept, job)
	}
	s := &Scheduler{
		logg:       logg,
		lock:       lock,
		jobs:       kept,
		rec:        opts.Recorder,
		every:      opts.Every,
		jobTimeout: opts.JobTimeout,
	}
	if s.every <= 0 {
		s.every = defaultEvery
	}
	if s.jobTimeout <= 0 {
		s.jobTimeout = defaultJobTimeout
	}
	return s, nil
}

// Run starts a cycle right away and then waits Every between cycles. It only
// returns once ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	wait := time.NewTimer(0)
	defer wait.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron scheduler stopping")
			return ctx.Err()
		case <-wait.C:
		}
		if err := s.Cycle(ctx); err != nil {
			s.logg.Error(ctx, "cron cycle finished with errors", err)
		}
		wait.Reset(s.every)
	}
}

// Cycle runs every job once if this worker wins the lock. A failing job
// does not stop the ones after it.
func (s *Scheduler) Cycle(ctx context.Context) (err error) {
	release, won, err := s.lock.TryLock(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !won {
		s.logg.Debug(ctx, "cron lock held elsewhere, skipping cycle")
		return nil
	}
	defer func() {
		if relErr := release(context.WithoutCancel(ctx)); relErr != nil {
			err = multierr.Append(err, fmt.Errorf("lock release: %w", relErr))
		}
	}()

	for _, job := range s.jobs {
		if ctx.Err() != nil {
			return multierr.Append(err, ctx.Err())
		}
		err = multierr.Append(err, s.runJob(ctx, job))
	}
	return err
}

func (s *Scheduler) runJob(ctx context.Context, job Job) error {
	jobCtx, cancel := context.WithTimeout(s.logg.WithField(ctx, "job", job.Name()), s.jobTimeout)
	defer cancel()

	start := time.Now()
	err := invoke(jobCtx, job)
	took := time.Since(start)
	if s.rec != nil {
		s.rec.Observe(job.Name(), took, err)
	}

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "cron job failed", err)
		return fmt.Errorf("%s: %w", job.Name(), err)
	}
	s.logg.Info(jobCtx, "cron job completed")
	return nil
}

func invoke(ctx context.Context, job Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return job.Run(ctx)
}
