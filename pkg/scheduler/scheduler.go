// Package scheduler runs the pipeline on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/pipeline"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var (
	// ErrSchedulerAlreadyRunning is returned when trying to start an already running scheduler
	ErrSchedulerAlreadyRunning = errors.New("scheduler already running")
)

const (
	// DefaultInterval is the default interval between runs
	DefaultInterval = 6 * time.Hour
)

// Runner executes one pass of the pipeline.
type Runner interface {
	Run(ctx context.Context, today time.Time) (*pipeline.Report, error)
}

// Config holds configuration for the scheduler
type Config struct {
	// Interval is the time between the start of consecutive runs
	Interval time.Duration
}

// Status describes the most recent run.
type Status struct {
	Runs       int
	LastRunID  string
	LastStart  time.Time
	LastFinish time.Time
	LastErr    error
}

// Scheduler triggers pipeline runs
type Scheduler struct {
	runner Runner
	config Config
	logger ectologger.Logger
	now    func() time.Time

	// Coordination
	stopCh   chan struct{}
	stoppedC chan struct{}
	cancel   context.CancelFunc
	running  bool
	status   Status
	mu       sync.RWMutex
}

// NewScheduler creates a new scheduler
func NewScheduler(runner Runner, config Config, logger ectologger.Logger) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}

	return &Scheduler{
		runner:   runner,
		config:   config,
		logger:   logger,
		now:      time.Now,
		stopCh:   make(chan struct{}),
		stoppedC: make(chan struct{}),
	}
}

// Start starts the scheduler. The first run begins immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.logger.WithContext(ctx).Infof("Starting scheduler: interval=%s", s.config.Interval)

	go s.pollLoop(ctx)

	return nil
}

// Stop cancels an in-flight run and waits for the loop to exit
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.WithContext(ctx).Info("Stopping scheduler...")

	close(s.stopCh)
	s.cancel()

	select {
	case <-s.stoppedC:
		s.logger.WithContext(ctx).Info("Scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.WithContext(ctx).Warn("Scheduler shutdown timed out")
		return ctx.Err()
	}

	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Status returns a snapshot of the most recent run
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Ping reports the last run's storage failure, if any, so the health endpoint can
// surface it.
func (s *Scheduler) Ping(ctx context.Context) error {
	st := s.Status()
	if errors.Is(st.LastErr, pipeline.ErrStorageUnavailable) {
		return st.LastErr
	}
	return nil
}

func (s *Scheduler) pollLoop(ctx context.Context) {
	defer close(s.stoppedC)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.runCycle(ctx)

	for {
		select {
		case <-s.stopCh:
			s.logger.WithContext(ctx).Debug("Scheduler loop stopping")
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "Scheduler.runCycle")
	defer span.End()

	start := s.now()
	s.mu.Lock()
	s.status.LastStart = start
	s.mu.Unlock()

	rep, err := s.runner.Run(ctx, start)

	s.mu.Lock()
	s.status.Runs++
	s.status.LastFinish = s.now()
	s.status.LastErr = err
	if rep != nil {
		s.status.LastRunID = rep.RunID
	}
	s.mu.Unlock()

	log := s.logger.WithContext(ctx).WithField("duration", s.now().Sub(start).String())
	if rep != nil {
		log = log.WithField("run_id", rep.RunID)
	}
	if err != nil {
		log.WithError(err).Error("Scheduled run failed")
		return
	}
	log.Info("Scheduled run completed")
}
