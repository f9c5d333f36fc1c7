package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Job is one complete rebuild.
type Job func(ctx context.Context) error

// Scheduler reruns a Job at a fixed interval. It is ready once a run has
// succeeded: a later failure leaves the previous output in place.
type Scheduler struct {
	job      Job
	interval time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger

	mu        sync.Mutex
	succeeded bool
	lastErr   error
	runs      int
}

// NewScheduler creates a scheduler for job.
func NewScheduler(job Job, interval time.Duration, clock clockwork.Clock, logger *slog.Logger) *Scheduler {
	return &Scheduler{job: job, interval: interval, clock: clock, logger: logger}
}

// Run executes the job immediately and then once per interval until ctx is
// cancelled. A run in progress is not interrupted by the next tick.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.runOnce(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	err := s.job(ctx)

	s.mu.Lock()
	s.runs++
	s.lastErr = err
	if err == nil {
		s.succeeded = true
	}
	s.mu.Unlock()

	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("scheduled run failed", "error", err)
	}
}

// Runs returns the number of completed runs.
func (s *Scheduler) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

// CheckReadiness implements the readiness probe.
func (s *Scheduler) CheckReadiness(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.succeeded {
		return nil
	}
	if s.lastErr != nil {
		return fmt.Errorf("no successful run yet: %w", s.lastErr)
	}
	return errors.New("no successful run yet")
}
