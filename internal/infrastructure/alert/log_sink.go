// Package alert routes reconciliation discrepancies to operators.
package alert

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tallyhq/tally/internal/usecase"
)

// LogSink implements usecase.AlertSink by writing discrepancies to the
// application log at error level.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a new LogSink.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Notify logs the discrepancy.
func (s *LogSink) Notify(ctx context.Context, d usecase.Discrepancy) error {
	s.logger.Error().
		Str("account_id", d.AccountID).
		Str("expected", d.Expected.String()).
		Str("actual", d.Actual.String()).
		Str("delta", d.Delta.String()).
		Time("detected_at", d.DetectedAt).
		Msg("balance discrepancy detected")

	return nil
}
