// Package eventhandler reacts to finished sweeps. Handlers fan a sweep result
// out to the side effects that follow it: history, cached leaderboard and the
// community report.
package eventhandler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/leetbuddy/challenge-tracker/internal/application/tracking"
	"github.com/leetbuddy/challenge-tracker/internal/domain/participant"
	"github.com/leetbuddy/challenge-tracker/internal/domain/report"
	"github.com/leetbuddy/challenge-tracker/internal/domain/sweep"
	"github.com/leetbuddy/challenge-tracker/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON SWEEP COMPLETED HANDLER
// ═══════════════════════════════════════════════════════════════════════════

// Notifier delivers the post-sweep report.
type Notifier interface {
	Notify(ctx context.Context, r report.IncompleteReport) error
}

// LeaderboardPublisher mirrors standings to an external read model.
type LeaderboardPublisher interface {
	Publish(ctx context.Context, standings []report.Standing, result sweep.Result) error
}

// SweepCompletedConfig configures the handler.
type SweepCompletedConfig struct {
	// LeaderboardSize is how many standings are published.
	LeaderboardSize int
	// Timeout bounds all side effects of one sweep.
	Timeout time.Duration
}

// DefaultSweepCompletedConfig returns the defaults.
func DefaultSweepCompletedConfig() SweepCompletedConfig {
	return SweepCompletedConfig{
		LeaderboardSize: 10,
		Timeout:         time.Minute,
	}
}

// OnSweepCompletedHandler records, publishes and reports a sweep. Any of its
// collaborators may be nil.
type OnSweepCompletedHandler struct {
	history   sweep.History
	publisher LeaderboardPublisher
	notifier  Notifier
	config    SweepCompletedConfig
	logger    zerolog.Logger
}

// NewOnSweepCompletedHandler creates the handler.
func NewOnSweepCompletedHandler(
	history sweep.History,
	publisher LeaderboardPublisher,
	notifier Notifier,
	config SweepCompletedConfig,
	log zerolog.Logger,
) *OnSweepCompletedHandler {
	def := DefaultSweepCompletedConfig()
	if config.LeaderboardSize <= 0 {
		config.LeaderboardSize = def.LeaderboardSize
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	return &OnSweepCompletedHandler{
		history:   history,
		publisher: publisher,
		notifier:  notifier,
		config:    config,
		logger:    logger.Component(log, "on_sweep_completed"),
	}
}

// Hook adapts the handler to the engine's report hook.
func (h *OnSweepCompletedHandler) Hook() tracking.ReportHook {
	return h.Handle
}

// Handle runs every side effect even if an earlier one fails, and returns
// the joined failures.
func (h *OnSweepCompletedHandler) Handle(ctx context.Context, result sweep.Result, snapshot []participant.Entry) error {
	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	log := h.logger.With().Str(logger.KeySweepID, result.ID).Logger()
	var errs []error

	if h.history != nil {
		if err := h.history.Record(ctx, result); err != nil {
			errs = append(errs, fmt.Errorf("record sweep: %w", err))
		}
	}

	if h.publisher != nil {
		standings := report.Leaderboard(snapshot, h.config.LeaderboardSize)
		if err := h.publisher.Publish(ctx, standings, result); err != nil {
			errs = append(errs, fmt.Errorf("publish leaderboard: %w", err))
		}
	}

	if h.notifier != nil {
		r := report.Incomplete(result, snapshot)
		if err := h.notifier.Notify(ctx, r); err != nil {
			errs = append(errs, fmt.Errorf("notify: %w", err))
		} else {
			log.Info().
				Int("incomplete", len(r.Incomplete)).
				Int("status_unknown", len(r.StatusUnknown)).
				Bool("all_clear", r.AllClear).
				Msg("daily report sent")
		}
	}

	return errors.Join(errs...)
}
