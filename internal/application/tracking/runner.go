// Package tracking runs sweeps: it fetches fresh statistics for every
// registered participant, commits them to the store and classifies each
// participant as completed, incomplete or failed.
package tracking

import (
	"context"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/leetbuddy/challenge-tracker/internal/domain/participant"
	"github.com/leetbuddy/challenge-tracker/internal/domain/sweep"
	"github.com/leetbuddy/challenge-tracker/pkg/logger"
	"github.com/leetbuddy/challenge-tracker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// Fetcher looks up the current statistics of one tracked username.
type Fetcher interface {
	Fetch(ctx context.Context, username string) (participant.Stats, error)
}

// SweepResult is the outcome of one sweep.
type SweepResult = sweep.Result

// ══════════════════════════════════════════════════════════════════════════════
// RUNNER
// ══════════════════════════════════════════════════════════════════════════════

// DefaultMaxConcurrent bounds fetch fan-out when no limit is configured.
const DefaultMaxConcurrent = 4

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// MaxConcurrent is the number of fetches in flight at once.
	MaxConcurrent int
}

// Runner performs one sweep at a time. It holds no state between runs.
type Runner struct {
	cfg    RunnerConfig
	clock  timeutil.Clock
	newID  func() (string, error)
	logger zerolog.Logger
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithRunnerClock sets the clock used for sweep timestamps.
func WithRunnerClock(c timeutil.Clock) RunnerOption {
	return func(r *Runner) { r.clock = c }
}

// WithIDGenerator replaces the sweep id generator.
func WithIDGenerator(fn func() (string, error)) RunnerOption {
	return func(r *Runner) { r.newID = fn }
}

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig, log zerolog.Logger, opts ...RunnerOption) *Runner {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	r := &Runner{
		cfg:    cfg,
		clock:  timeutil.SystemClock{},
		newID:  func() (string, error) { return gonanoid.New() },
		logger: logger.Component(log, "runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type outcome struct {
	stats     participant.Stats
	err       error
	fetchedAt time.Time
}

// Run sweeps every participant in store. Fetches run concurrently; store
// updates are applied one by one afterwards, followed by a single Persist.
// A fetch failure leaves that participant's record untouched and lists it
// under Failed, as does a record the store rejects. A Persist failure is
// returned together with the result.
func (r *Runner) Run(ctx context.Context, store participant.Store, fetcher Fetcher) (SweepResult, error) {
	id, err := r.newID()
	if err != nil {
		return SweepResult{}, fmt.Errorf("failed to generate sweep id: %w", err)
	}
	log := r.logger.With().Str(logger.KeySweepID, id).Logger()

	result := SweepResult{ID: id, StartedAt: r.clock.Now()}
	snapshot := store.All()
	if len(snapshot) == 0 {
		result.FinishedAt = r.clock.Now()
		log.Info().Msg("no participants registered, nothing to sweep")
		return result, nil
	}

	log.Info().Int("participants", len(snapshot)).Int("concurrency", r.cfg.MaxConcurrent).Msg("sweep started")

	fail := func(id string, err error) {
		result.Failed = append(result.Failed, id)
		if result.Errors == nil {
			result.Errors = make(map[string]error)
		}
		result.Errors[id] = err
	}
	// Committed participants are classified from the stored record.
	classify := func(id string, completed bool) {
		if completed {
			result.Completed = append(result.Completed, id)
		} else {
			result.Incomplete = append(result.Incomplete, id)
		}
	}

	outcomes := make([]outcome, len(snapshot))
	g := new(errgroup.Group)
	g.SetLimit(r.cfg.MaxConcurrent)
	for i, entry := range snapshot {
		g.Go(func() error {
			stats, err := fetcher.Fetch(ctx, entry.Record.TrackedUsername)
			outcomes[i] = outcome{stats: stats, err: err, fetchedAt: r.clock.Now()}
			// Never fail the group: one participant must not cancel the rest.
			return nil
		})
	}
	_ = g.Wait()

	for i, entry := range snapshot {
		out := outcomes[i]
		plog := log.With().Str(logger.KeyParticipantID, entry.ID).Str(logger.KeyUsername, entry.Record.TrackedUsername).Logger()

		if out.err != nil {
			fail(entry.ID, out.err)
			plog.Warn().Err(out.err).Msg("fetch failed, record left unchanged")
			continue
		}

		current, ok := store.Get(entry.ID)
		switch {
		case !ok:
			classify(entry.ID, out.stats.CompletedToday)
			plog.Info().Msg("participant unregistered during sweep, skipping update")
			continue
		case current.TrackedUsername != entry.Record.TrackedUsername:
			classify(entry.ID, out.stats.CompletedToday)
			plog.Info().Str("current_username", current.TrackedUsername).Msg("participant re-registered during sweep, skipping update")
			continue
		}

		updated := current.WithStats(out.stats, out.fetchedAt)
		if err := store.Upsert(entry.ID, updated); err != nil {
			fail(entry.ID, err)
			plog.Error().Err(err).Msg("failed to apply stats, record left unchanged")
			continue
		}
		classify(entry.ID, updated.CompletedToday)
	}

	persistErr := store.Persist(ctx)
	result.FinishedAt = r.clock.Now()

	ev := log.Info()
	if persistErr != nil {
		ev = log.Error().Err(persistErr)
	}
	ev.Int("completed", len(result.Completed)).
		Int("incomplete", len(result.Incomplete)).
		Int("failed", len(result.Failed)).
		Dur(logger.KeyLatency, result.Duration()).
		Msg("sweep finished")

	if persistErr != nil {
		return result, fmt.Errorf("sweep %s: %w", id, persistErr)
	}
	return result, nil
}
