// Package scheduler runs the periodic reconciliation sweep.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/tallyhq/tally/internal/infrastructure/metrics"
	"github.com/tallyhq/tally/internal/usecase"
)

// Scheduler drives full-ledger reconciliation on a cron schedule.
type Scheduler struct {
	cron           *cron.Cron
	reconciliation *usecase.ReconciliationUseCase
	metrics        *metrics.Metrics
	logger         zerolog.Logger
}

// New creates a new Scheduler.
func New(reconciliation *usecase.ReconciliationUseCase, m *metrics.Metrics, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:           cron.New(),
		reconciliation: reconciliation,
		metrics:        m,
		logger:         logger,
	}
}

// Start registers the reconciliation job and starts the cron loop.
// The schedule uses cron syntax or the @every shorthand.
func (s *Scheduler) Start(schedule string) error {
	_, err := s.cron.AddFunc(schedule, s.run)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info().Str("schedule", schedule).Msg("reconciliation scheduler started")

	return nil
}

// Stop stops the cron loop and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) run() {
	ctx := context.Background()
	started := time.Now()

	report, err := s.reconciliation.Reconcile(ctx, usecase.ReconcileScope{})
	if err != nil {
		s.logger.Error().Err(err).Msg("scheduled reconciliation failed")
		return
	}

	s.metrics.ReconciliationRuns.Inc()
	s.metrics.ReconciliationDuration.Observe(time.Since(started).Seconds())
	s.metrics.DiscrepanciesFound.Add(float64(report.Discrepancies))

	s.logger.Info().
		Int("accounts", len(report.Accounts)).
		Int("discrepancies", report.Discrepancies).
		Dur("took", time.Since(started)).
		Msg("scheduled reconciliation finished")

	if err := s.reconciliation.CheckLedgerConsistency(ctx); err != nil {
		s.logger.Error().Err(err).Msg("ledger-wide consistency check failed")
	}
}
