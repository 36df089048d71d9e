package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/farmlink-backend/pkg/logger"
	"github.com/angelmondragon/farmlink-backend/pkg/metrics"
)

const defaultInterval = 24 * time.Hour

type ServiceParams struct {
	Logger   *logger.Logger
	Jobs     []Job
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
}

// Service sweeps every job once per interval while holding the worker lock.
type Service struct {
	logg     *logger.Logger
	jobs     []Job
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
	now      func() time.Time
}

// NewService rejects nil jobs and duplicate job names.
func NewService(p ServiceParams) (*Service, error) {
	var err error
	if p.Logger == nil {
		err = multierr.Append(err, errors.New("logger required"))
	}
	if p.Lock == nil {
		err = multierr.Append(err, errors.New("lock required"))
	}
	seen := make(map[string]struct{}, len(p.Jobs))
	for i, job := range p.Jobs {
		if job == nil {
			err = multierr.Append(err, fmt.Errorf("job %d is nil", i))
			continue
		}
		if _, dup := seen[job.Name()]; dup {
			err = multierr.Append(err, fmt.Errorf("job %q registered twice", job.Name()))
		}
		seen[job.Name()] = struct{}{}
	}
	if err != nil {
		return nil, err
	}

	interval := p.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:     p.Logger,
		jobs:     append([]Job(nil), p.Jobs...),
		lock:     p.Lock,
		metrics:  p.Metrics,
		interval: interval,
		now:      time.Now,
	}, nil
}

// Run sweeps immediately and then on every tick until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.sweep(ctx); err != nil {
			s.logg.Error(ctx, "cron sweep finished with errors", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron worker stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// sweep runs every job in order under the lock. One failing job does not
// stop the rest; every failure is returned.
func (s *Service) sweep(ctx context.Context) (err error) {
	held, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !held {
		s.logg.Info(ctx, "cron lock held elsewhere, skipping sweep")
		return nil
	}
	defer func() {
		if relErr := s.lock.Release(ctx); relErr != nil {
			err = multierr.Append(err, fmt.Errorf("lock release: %w", relErr))
		}
	}()

	for _, job := range s.jobs {
		err = multierr.Append(err, s.runJob(ctx, job))
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"jobs":        len(s.jobs),
		"failed_jobs": len(multierr.Errors(err)),
	}), "cron sweep complete")
	return err
}

func (s *Service) runJob(ctx context.Context, job Job) (err error) {
	jobCtx := s.logg.WithField(ctx, "job", job.Name())
	start := s.now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		elapsed := s.now().Sub(start)
		s.metrics.Observe(job.Name(), s.now(), elapsed, err)

		doneCtx := s.logg.WithField(jobCtx, "duration_ms", elapsed.Milliseconds())
		if err != nil {
			s.logg.Error(doneCtx, "cron job failed", err)
			err = fmt.Errorf("%s: %w", job.Name(), err)
			return
		}
		s.logg.Info(doneCtx, "cron job completed")
	}()

	return job.Run(jobCtx)
}
