package scheduler

import (
	"context"
	"fmt"

	"github.com/boxdarr/boxdarr/internal/controllers"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler manages the periodic poll cycle and the failed-record retry sweep
type Scheduler struct {
	cron                *cron.Cron
	reconciler          *controllers.Reconciler
	pollIntervalMinutes int
	logger              *logrus.Logger
}

// NewScheduler creates a new scheduler
func NewScheduler(reconciler *controllers.Reconciler, pollIntervalMinutes int, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:                cron.New(),
		reconciler:          reconciler,
		pollIntervalMinutes: pollIntervalMinutes,
		logger:              logger,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.logger.Info("Starting scheduler")

	// Poll the Plex history on the configured cadence
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %dm", s.pollIntervalMinutes), func() {
		s.runCycle()
	})
	if err != nil {
		return fmt.Errorf("failed to add poll job: %w", err)
	}

	// Every 6 hours: sweep FAILED records for automatic retry
	_, err = s.cron.AddFunc("0 */6 * * *", func() {
		s.runRetrySweep()
	})
	if err != nil {
		return fmt.Errorf("failed to add retry sweep job: %w", err)
	}

	s.cron.Start()
	s.logger.Info("Scheduler started")

	// Run the first cycle immediately
	go s.runCycle()

	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	s.cron.Stop()
}

// runCycle executes one detector/dispatch cycle
func (s *Scheduler) runCycle() {
	s.logger.Debug("Running poll cycle")
	ctx := context.Background()

	if err := s.reconciler.RunCycle(ctx); err != nil {
		s.logger.WithError(err).Error("Poll cycle failed")
	} else {
		s.logger.Debug("Poll cycle completed")
	}
}

// runRetrySweep retries all failed records
func (s *Scheduler) runRetrySweep() {
	s.logger.Info("Running retry sweep")
	ctx := context.Background()

	retried, err := s.reconciler.RetryFailed(ctx, "")
	if err != nil {
		s.logger.WithError(err).Error("Retry sweep failed")
		return
	}
	if retried > 0 {
		s.logger.WithField("count", retried).Info("Retry sweep completed")
	}
}
