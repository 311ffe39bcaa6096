// Package scheduler drives periodic discovery passes off a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/walletradar/internal/worker"
)

// Runner is the pipeline surface the scheduler triggers.
type Runner interface {
	RunDiscoveryPass(ctx context.Context) (*worker.PassResult, error)
}

// Scheduler fires discovery passes on a six-field cron expression
// (seconds included).
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	log    zerolog.Logger
	ctx    context.Context
}

// New creates a scheduler bound to ctx. Pass runs started by the cron
// inherit ctx and stop when it is cancelled.
func New(ctx context.Context, runner Runner, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		runner: runner,
		log:    log,
		ctx:    ctx,
	}
}

// Register adds the discovery pass at the given cron expression.
func (s *Scheduler) Register(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, s.runPass); err != nil {
		return fmt.Errorf("register discovery pass: %w", err)
	}
	return nil
}

// Start starts the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("scheduler started")
}

// Stop stops the cron loop and waits for already-running passes to finish,
// so callers can safely tear down anything a pass might still touch.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

// RunNow triggers a pass immediately, outside the schedule.
func (s *Scheduler) RunNow() {
	s.runPass()
}

func (s *Scheduler) runPass() {
	result, err := s.runner.RunDiscoveryPass(s.ctx)
	if err != nil {
		if errors.Is(err, worker.ErrPassInProgress) {
			s.log.Warn().Msg("skipping scheduled pass, previous pass still running")
			return
		}
		s.log.Error().Err(err).Msg("discovery pass failed")
		return
	}
	s.log.Info().
		Str("run_id", result.RunID).
		Int("ranked", result.Ranked).
		Msg("scheduled pass complete")
}
