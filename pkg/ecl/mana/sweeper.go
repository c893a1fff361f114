package mana

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper removes inactive accounts on a cron schedule.
type Sweeper struct {
	manager  *Manager
	schedule string
	maxIdle  time.Duration

	cron    *cron.Cron
	mu      sync.Mutex
	logger  *slog.Logger
	running bool
}

// NewSweeper creates a sweeper that removes accounts idle for maxIdle.
// schedule uses standard five-field cron syntax, e.g. "*/10 * * * *".
func NewSweeper(manager *Manager, schedule string, maxIdle time.Duration) *Sweeper {
	return &Sweeper{
		manager:  manager,
		schedule: schedule,
		maxIdle:  maxIdle,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "ecl.mana.sweeper"),
	}
}

// Start schedules the sweep. An empty schedule disables the sweeper.
// The sweeper stops when ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("sweep schedule not configured, skipping sweeper")
		return nil
	}
	if s.running {
		return nil
	}
	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}
	if _, err := s.cron.AddFunc(s.schedule, s.Sweep); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("mana sweeper started", "schedule", s.schedule, "max_idle", s.maxIdle)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Sweep runs one cleanup pass.
func (s *Sweeper) Sweep() {
	removed := s.manager.CleanupInactive(s.maxIdle)
	if removed > 0 {
		s.logger.Info("inactive mana accounts removed", "count", removed)
		return
	}
	s.logger.Debug("mana sweep completed, nothing removed")
}

// Stop stops the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("mana sweeper stopped")
	}
}

// IsRunning reports whether the schedule is active.
func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled sweep, or nil when not scheduled.
func (s *Sweeper) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
