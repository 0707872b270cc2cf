// Package scheduler fires the daily sweep at a fixed wall-clock minute in
// the reference zone.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/leetbuddy/challenge-tracker/pkg/logger"
	"github.com/leetbuddy/challenge-tracker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATE
// ══════════════════════════════════════════════════════════════════════════════

// State is the trigger lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateArmedWaiting
	StateFiring
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmedWaiting:
		return "armed_waiting"
	case StateFiring:
		return "firing"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ErrAlreadyStarted is returned by Start on a running trigger.
var ErrAlreadyStarted = errors.New("scheduler: already started")

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// SweepFunc runs one sweep. Its context is never cancelled by Stop.
type SweepFunc func(ctx context.Context) error

// Config configures a DailyTrigger. Hour:Minute is a wall time in Location.
// On a DST spring-forward day where it does not exist, the trigger fires
// once at the instant time.Date resolves it to; on a fall-back day it fires
// on one occurrence only.
type Config struct {
	Hour     int
	Minute   int
	Location *time.Location
	// TickInterval is how often the wall clock is checked. It must be at
	// most one minute or the trigger minute can be skipped.
	TickInterval time.Duration
}

// DefaultConfig fires at 21:30 UTC, checking every minute.
func DefaultConfig() Config {
	return Config{Hour: 21, Minute: 30, Location: time.UTC, TickInterval: time.Minute}
}

// Validate checks the trigger time and tick interval.
func (c Config) Validate() error {
	if c.Hour < 0 || c.Hour > 23 {
		return fmt.Errorf("scheduler: hour %d out of range", c.Hour)
	}
	if c.Minute < 0 || c.Minute > 59 {
		return fmt.Errorf("scheduler: minute %d out of range", c.Minute)
	}
	if c.TickInterval <= 0 || c.TickInterval > time.Minute {
		return fmt.Errorf("scheduler: tick interval %s must be in (0, 1m]", c.TickInterval)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DAILY TRIGGER
// ══════════════════════════════════════════════════════════════════════════════

// DailyTrigger calls its SweepFunc once per day when the local time reaches
// Hour:Minute. A firing flag keyed by the trigger minute prevents a second
// firing within the same minute, however often the clock is checked.
type DailyTrigger struct {
	cfg    Config
	sweep  SweepFunc
	clock  timeutil.Clock
	logger zerolog.Logger

	state atomic.Int32

	// tickMu serializes ticks so a slow sweep cannot overlap the next one.
	tickMu    sync.Mutex
	lastFired string

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option customizes a DailyTrigger.
type Option func(*DailyTrigger)

// WithClock overrides the wall clock.
func WithClock(c timeutil.Clock) Option {
	return func(d *DailyTrigger) { d.clock = c }
}

// New creates an idle trigger.
func New(cfg Config, sweep SweepFunc, log zerolog.Logger, opts ...Option) (*DailyTrigger, error) {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = DefaultConfig().TickInterval
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sweep == nil {
		return nil, errors.New("scheduler: nil sweep function")
	}

	d := &DailyTrigger{
		cfg:    cfg,
		sweep:  sweep,
		clock:  timeutil.SystemClock{},
		logger: logger.Component(log, "scheduler"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// State returns the current state.
func (d *DailyTrigger) State() State {
	return State(d.state.Load())
}

// NextFire returns the next instant at or after now when the trigger fires.
func (d *DailyTrigger) NextFire(now time.Time) time.Time {
	local := now.In(d.cfg.Location)
	next := time.Date(local.Year(), local.Month(), local.Day(), d.cfg.Hour, d.cfg.Minute, 0, 0, d.cfg.Location)
	if next.Before(local.Truncate(time.Minute)) || d.firedAt(next) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, d.cfg.Hour, d.cfg.Minute, 0, 0, d.cfg.Location)
	}
	return next
}

func (d *DailyTrigger) firedAt(t time.Time) bool {
	d.tickMu.Lock()
	defer d.tickMu.Unlock()
	return d.lastFired == timeutil.MinuteKey(t, d.cfg.Location)
}

// Start arms the trigger and begins checking the clock.
func (d *DailyTrigger) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return ErrAlreadyStarted
	}

	d.logger.Info().
		Str("at", fmt.Sprintf("%02d:%02d", d.cfg.Hour, d.cfg.Minute)).
		Str("zone", d.cfg.Location.String()).
		Time("next_fire", d.NextFire(d.clock.Now())).
		Msg("daily trigger armed")

	loopCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	d.state.Store(int32(StateArmedWaiting))

	go d.loop(loopCtx, d.done)
	return nil
}

func (d *DailyTrigger) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(d.cfg.TickInterval)
	defer ticker.Stop()

	d.Tick(ctx, d.clock.Now())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Tick(ctx, d.clock.Now())
		}
	}
}

// Tick checks now against the trigger time and runs the sweep when due. It
// reports whether the sweep was started. The sweep runs on a context that
// keeps ctx's values but not its cancellation, so a shutdown lets it finish
// and persist.
func (d *DailyTrigger) Tick(ctx context.Context, now time.Time) bool {
	d.tickMu.Lock()
	defer d.tickMu.Unlock()

	if !timeutil.IsAtMinute(now, d.cfg.Location, d.cfg.Hour, d.cfg.Minute) {
		return false
	}
	key := timeutil.MinuteKey(now, d.cfg.Location)
	if key == d.lastFired {
		return false
	}
	d.lastFired = key

	prev := d.state.Swap(int32(StateFiring))
	defer d.state.CompareAndSwap(int32(StateFiring), prev)

	log := d.logger.With().Str("minute", key).Logger()
	log.Info().Msg("daily trigger fired")

	start := time.Now()
	if err := d.sweep(context.WithoutCancel(ctx)); err != nil {
		log.Error().Err(err).Dur(logger.KeyLatency, time.Since(start)).Msg("scheduled sweep failed")
	} else {
		log.Info().Dur(logger.KeyLatency, time.Since(start)).Msg("scheduled sweep done")
	}
	return true
}

// Stop stops checking the clock and waits for an in-flight sweep, or for
// ctx to expire. The trigger returns to Idle and can be started again.
func (d *DailyTrigger) Stop(ctx context.Context) error {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		d.state.Store(int32(StateIdle))
		d.logger.Info().Msg("daily trigger stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler: waiting for sweep: %w", ctx.Err())
	}
}
