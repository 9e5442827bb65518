package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/bukkus/bukkus-backend/pkg/logger"
	"github.com/bukkus/bukkus-backend/pkg/metrics"
)

const (
	defaultInterval   = time.Hour
	defaultJobTimeout = 10 * time.Minute
)

type ServiceParams struct {
	Logger     *logger.Logger
	Jobs       []Job
	Lock       Locker
	Metrics    *metrics.HousekeepingMetrics
	Interval   time.Duration
	JobTimeout time.Duration
}

// Result summarizes one job execution. Rows counts records purged or flagged.
type Result struct {
	Rows int64
}

// Job is one housekeeping task.
type Job interface {
	Name() string
	Run(ctx context.Context) (Result, error)
}

// Service runs its jobs in order once per interval while holding the lease.
// A failing job is logged and counted and the remaining jobs still run.
type Service struct {
	logg       *logger.Logger
	jobs       []Job
	lock       Locker
	metrics    *metrics.HousekeepingMetrics
	interval   time.Duration
	jobTimeout time.Duration
	now        func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	var jobs []Job
	for _, job := range params.Jobs {
		if job != nil {
			jobs = append(jobs, job)
		}
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	timeout := params.JobTimeout
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}
	return &Service{
		logg:       params.Logger,
		jobs:       jobs,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   interval,
		jobTimeout: timeout,
		now:        time.Now,
	}, nil
}

// Run executes a cycle immediately and then on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.runCycle(ctx); err != nil {
			s.logg.Error(ctx, "housekeeping.cycle.failed", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	unlock, err := s.lock.TryLock(ctx)
	if err != nil {
		return err
	}
	if unlock == nil {
		s.logg.Info(ctx, "housekeeping.cycle.skipped")
		return nil
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "housekeeping.unlock_failed", err)
		}
	}()

	for _, job := range s.jobs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.runJob(ctx, job)
	}
	return nil
}

func (s *Service) runJob(ctx context.Context, job Job) {
	jobCtx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	defer cancel()
	jobCtx = s.logg.WithField(jobCtx, "job", job.Name())

	started := s.now()
	result, err := job.Run(jobCtx)
	elapsed := s.now().Sub(started)
	s.metrics.ObserveRun(job.Name(), err == nil, elapsed)
	s.metrics.AddRows(job.Name(), result.Rows)

	logCtx := s.logg.WithFields(jobCtx, map[string]any{
		"duration_ms": elapsed.Milliseconds(),
		"rows":        result.Rows,
	})
	if err != nil {
		s.logg.Error(logCtx, "housekeeping.job.failed", err)
		return
	}
	s.logg.Info(logCtx, "housekeeping.job.completed")
}
