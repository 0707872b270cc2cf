package tracking

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/leetbuddy/challenge-tracker/internal/domain/participant"
	"github.com/leetbuddy/challenge-tracker/internal/domain/shared"
	"github.com/leetbuddy/challenge-tracker/pkg/logger"
)

// Engine errors.
var (
	ErrSweepInProgress = shared.NewDomainError("tracking", "Sweep", shared.ErrConflict, "a sweep is already running")
	ErrEngineClosed    = shared.NewDomainError("tracking", "Sweep", shared.ErrClosed, "tracking engine is closed")
)

// ReportHook receives the result of a reporting sweep and the registry as it
// stood when the sweep finished.
type ReportHook func(ctx context.Context, result SweepResult, snapshot []participant.Entry) error

// Trigger describes why a sweep runs.
type Trigger struct {
	Name string
	// Report runs the report hook after the sweep.
	Report bool
	// Wait queues the sweep behind a running one instead of failing with
	// ErrSweepInProgress.
	Wait bool
}

// Built-in triggers.
var (
	TriggerScheduled = Trigger{Name: "scheduled", Report: true, Wait: true}
	TriggerManual    = Trigger{Name: "manual"}
	TriggerAPI       = Trigger{Name: "api", Report: true}
)

// Engine serializes sweeps over one store. At most one sweep runs at a time;
// a second request while one runs is rejected unless its trigger waits.
type Engine struct {
	runner  *Runner
	store   participant.Store
	fetcher Fetcher
	hook    ReportHook
	logger  zerolog.Logger

	slot    chan struct{}
	running atomic.Bool

	mu       sync.Mutex
	closed   bool
	closing  chan struct{}
	inflight sync.WaitGroup
	last     *SweepResult
}

// NewEngine creates an Engine. hook may be nil.
func NewEngine(runner *Runner, store participant.Store, fetcher Fetcher, hook ReportHook, log zerolog.Logger) *Engine {
	return &Engine{
		runner:  runner,
		store:   store,
		fetcher: fetcher,
		hook:    hook,
		slot:    make(chan struct{}, 1),
		closing: make(chan struct{}),
		logger:  logger.Component(log, "engine"),
	}
}

// ManualSweep runs a sweep immediately without reporting.
func (e *Engine) ManualSweep(ctx context.Context) (SweepResult, error) {
	return e.Run(ctx, TriggerManual)
}

// ScheduledSweep runs a sweep and reports it, waiting for a running sweep
// to finish first.
func (e *Engine) ScheduledSweep(ctx context.Context) (SweepResult, error) {
	return e.Run(ctx, TriggerScheduled)
}

// Run performs one sweep for trigger. It returns ErrSweepInProgress if a
// sweep is running and the trigger does not wait, and ErrEngineClosed after
// Close. Report hook failures are logged and do not fail the sweep.
func (e *Engine) Run(ctx context.Context, trigger Trigger) (SweepResult, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return SweepResult{}, ErrEngineClosed
	}
	e.inflight.Add(1)
	e.mu.Unlock()
	defer e.inflight.Done()

	if err := e.acquire(ctx, trigger.Wait); err != nil {
		return SweepResult{}, err
	}
	defer e.release()

	log := e.logger.With().Str("trigger", trigger.Name).Logger()
	result, err := e.runner.Run(ctx, e.store, e.fetcher)
	if result.ID != "" {
		e.remember(result)
	}
	if err != nil {
		log.Error().Err(err).Str(logger.KeySweepID, result.ID).Msg("sweep completed with errors")
	}
	if result.ID == "" {
		return result, err
	}

	if trigger.Report && e.hook != nil {
		start := time.Now()
		if hookErr := e.hook(ctx, result, e.store.All()); hookErr != nil {
			log.Error().Err(hookErr).Str(logger.KeySweepID, result.ID).Msg("report hook failed")
		} else {
			log.Debug().Str(logger.KeySweepID, result.ID).Dur(logger.KeyLatency, time.Since(start)).Msg("sweep reported")
		}
	}
	return result, err
}

func (e *Engine) remember(r SweepResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.last = &r
}

// LastResult returns the most recent sweep result, if any.
func (e *Engine) LastResult() (SweepResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return SweepResult{}, false
	}
	return *e.last, true
}

// acquire takes the sweep slot. A waiting caller gives up on ctx or Close.
func (e *Engine) acquire(ctx context.Context, wait bool) error {
	if wait {
		select {
		case e.slot <- struct{}{}:
		case <-e.closing:
			return ErrEngineClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	} else {
		select {
		case e.slot <- struct{}{}:
		default:
			return ErrSweepInProgress
		}
	}

	// Close may have won the race for the slot.
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		<-e.slot
		return ErrEngineClosed
	}
	e.running.Store(true)
	return nil
}

func (e *Engine) release() {
	e.running.Store(false)
	<-e.slot
}

// Running reports whether a sweep is in progress. It never contends with Run.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Close refuses new sweeps and waits for the in-flight one, or for ctx.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.closing)
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("tracking: sweep still running at shutdown"), ctx.Err())
	}
}
