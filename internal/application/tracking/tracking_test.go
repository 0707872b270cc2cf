package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leetbuddy/challenge-tracker/internal/domain/participant"
	"github.com/leetbuddy/challenge-tracker/pkg/logger"
	"github.com/leetbuddy/challenge-tracker/pkg/timeutil"
)

var sweepTime = time.Date(2024, 6, 1, 16, 0, 0, 0, time.UTC)

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

type fakeFetcher struct {
	mu      sync.Mutex
	stats   map[string]participant.Stats
	errs    map[string]error
	calls   map[string]int
	gate    chan struct{}
	started chan string

	inFlight atomic.Int32
	peak     atomic.Int32
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		stats: make(map[string]participant.Stats),
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, username string) (participant.Stats, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if f.started != nil {
		f.started <- username
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return participant.Stats{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[username]++
	if err, ok := f.errs[username]; ok {
		return participant.Stats{}, err
	}
	return f.stats[username], nil
}

type countingBackend struct {
	writes  atomic.Int32
	failErr error
}

func (b *countingBackend) Name() string { return "counting" }

func (b *countingBackend) Read(context.Context) ([]participant.RawEntry, error) { return nil, nil }

func (b *countingBackend) Write(context.Context, []participant.Entry) error {
	b.writes.Add(1)
	return b.failErr
}

func seed(t *testing.T, store participant.Store, id, user string, solved int) participant.Record {
	t.Helper()
	r, err := participant.NewRecord(id, user, sweepTime.Add(-72*time.Hour), participant.Stats{
		TotalSolved: solved,
		Breakdown:   participant.Breakdown{Easy: solved},
	}, sweepTime.Add(-24*time.Hour))
	require.NoError(t, err)
	require.NoError(t, store.Upsert(id, r))
	return r
}

func newRunner(opts ...RunnerOption) *Runner {
	var n atomic.Int32
	base := []RunnerOption{
		WithRunnerClock(timeutil.FixedClock(sweepTime)),
		WithIDGenerator(func() (string, error) { return fmt.Sprintf("sweep-%d", n.Add(1)), nil }),
	}
	return NewRunner(RunnerConfig{MaxConcurrent: 2}, logger.Nop(), append(base, opts...)...)
}

// ─────────────────────────────────────────────────────────────────────────────
// Runner
// ─────────────────────────────────────────────────────────────────────────────

func TestRunner_ClassifiesIntoDisjointSets(t *testing.T) {
	backend := &countingBackend{}
	store := participant.NewMemoryStore(backend)
	seed(t, store, "A", "alice", 10)
	seed(t, store, "B", "bob", 20)
	untouched := seed(t, store, "C", "carol", 30)

	f := newFakeFetcher()
	f.stats["alice"] = participant.Stats{TotalSolved: 11, Breakdown: participant.Breakdown{Easy: 11}, CompletedToday: true}
	f.stats["bob"] = participant.Stats{TotalSolved: 20, Breakdown: participant.Breakdown{Easy: 20}}
	f.errs["carol"] = errors.New("unreachable")

	result, err := newRunner().Run(context.Background(), store, f)
	require.NoError(t, err)

	assert.Equal(t, "sweep-1", result.ID)
	assert.Equal(t, []string{"A"}, result.Completed)
	assert.Equal(t, []string{"B"}, result.Incomplete)
	assert.Equal(t, []string{"C"}, result.Failed)
	assert.Contains(t, result.Errors, "C")
	assert.Equal(t, 3, result.Total())
	assert.Equal(t, int32(1), backend.writes.Load(), "one persist per sweep")

	a, _ := store.Get("A")
	assert.Equal(t, 11, a.TotalSolved)
	assert.True(t, a.CompletedToday)
	require.NotNil(t, a.LastSweepAt)
	assert.True(t, sweepTime.Equal(*a.LastSweepAt))
	assert.True(t, sweepTime.Add(-72*time.Hour).Equal(a.RegisteredAt))

	c, _ := store.Get("C")
	assert.True(t, untouched.Equal(c), "failed participant must keep its old record")
}

func TestRunner_EmptyStore(t *testing.T) {
	backend := &countingBackend{}
	store := participant.NewMemoryStore(backend)

	result, err := newRunner().Run(context.Background(), store, newFakeFetcher())
	require.NoError(t, err)
	assert.True(t, result.Empty())
	assert.NotEmpty(t, result.ID)
	assert.Zero(t, backend.writes.Load())
}

func TestRunner_IdempotentForUnchangedRemote(t *testing.T) {
	store := participant.NewMemoryStore(nil)
	seed(t, store, "A", "alice", 5)
	f := newFakeFetcher()
	f.stats["alice"] = participant.Stats{TotalSolved: 6, Breakdown: participant.Breakdown{Easy: 6}}

	r := newRunner()
	_, err := r.Run(context.Background(), store, f)
	require.NoError(t, err)
	first := store.All()

	_, err = r.Run(context.Background(), store, f)
	require.NoError(t, err)
	second := store.All()

	require.Len(t, second, 1)
	assert.True(t, first[0].Record.Equal(second[0].Record))
}

func TestRunner_BoundedConcurrency(t *testing.T) {
	store := participant.NewMemoryStore(nil)
	for i := 0; i < 8; i++ {
		seed(t, store, fmt.Sprintf("p%d", i), fmt.Sprintf("user%d", i), i)
	}
	f := newFakeFetcher()

	_, err := newRunner().Run(context.Background(), store, f)
	require.NoError(t, err)
	assert.LessOrEqual(t, f.peak.Load(), int32(2))
	assert.Len(t, f.calls, 8)
}

func TestRunner_PersistFailureStillReturnsResult(t *testing.T) {
	backend := &countingBackend{failErr: errors.New("disk full")}
	store := participant.NewMemoryStore(backend)
	seed(t, store, "A", "alice", 1)
	f := newFakeFetcher()
	f.stats["alice"] = participant.Stats{TotalSolved: 2, CompletedToday: true}

	result, err := newRunner().Run(context.Background(), store, f)
	require.Error(t, err)
	var se *participant.StoreError
	assert.ErrorAs(t, err, &se)
	assert.Equal(t, []string{"A"}, result.Completed)
}

func TestRunner_OutputFollowsStoreOrder(t *testing.T) {
	store := participant.NewMemoryStore(nil)
	ids := []string{"z", "b", "m", "a"}
	f := newFakeFetcher()
	for _, id := range ids {
		seed(t, store, id, "u"+id, 0)
		f.stats["u"+id] = participant.Stats{CompletedToday: true}
	}

	result, err := newRunner().Run(context.Background(), store, f)
	require.NoError(t, err)
	assert.Equal(t, ids, result.Completed)
}

func TestRunner_SkipsParticipantRemovedDuringSweep(t *testing.T) {
	store := participant.NewMemoryStore(nil)
	seed(t, store, "A", "alice", 1)
	f := newFakeFetcher()
	f.gate = make(chan struct{})
	f.started = make(chan string, 1)
	f.stats["alice"] = participant.Stats{TotalSolved: 9}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := newRunner().Run(context.Background(), store, f)
		assert.NoError(t, err)
	}()

	<-f.started
	require.True(t, store.Remove("A"))
	close(f.gate)
	<-done

	_, ok := store.Get("A")
	assert.False(t, ok, "sweep must not resurrect an unregistered participant")
}

func TestRunner_RejectedRecordIsFailed(t *testing.T) {
	store := participant.NewMemoryStore(nil)
	before := seed(t, store, "A", "alice", 4)
	seed(t, store, "B", "bob", 1)
	f := newFakeFetcher()
	f.stats["alice"] = participant.Stats{TotalSolved: -1, CompletedToday: true}
	f.stats["bob"] = participant.Stats{TotalSolved: 2, CompletedToday: true}

	result, err := newRunner().Run(context.Background(), store, f)
	require.NoError(t, err)

	assert.Equal(t, []string{"A"}, result.Failed)
	assert.Equal(t, []string{"B"}, result.Completed)
	assert.Empty(t, result.Incomplete)
	assert.ErrorIs(t, result.Errors["A"], participant.ErrNegativeCount)

	a, _ := store.Get("A")
	assert.True(t, before.Equal(a))
	assert.False(t, a.CompletedToday)
}

// ─────────────────────────────────────────────────────────────────────────────
// Engine
// ─────────────────────────────────────────────────────────────────────────────

func TestEngine_RejectsConcurrentSweep(t *testing.T) {
	store := participant.NewMemoryStore(nil)
	seed(t, store, "A", "alice", 1)
	f := newFakeFetcher()
	f.gate = make(chan struct{})
	f.started = make(chan string, 1)

	e := NewEngine(newRunner(), store, f, nil, logger.Nop())

	done := make(chan error, 1)
	go func() {
		_, err := e.ManualSweep(context.Background())
		done <- err
	}()
	<-f.started
	assert.True(t, e.Running())

	_, err := e.ManualSweep(context.Background())
	assert.ErrorIs(t, err, ErrSweepInProgress)

	close(f.gate)
	require.NoError(t, <-done)
	assert.False(t, e.Running())

	last, ok := e.LastResult()
	require.True(t, ok)
	assert.Equal(t, []string{"A"}, last.Incomplete)
}

func TestEngine_HookOnlyForReportingTriggers(t *testing.T) {
	store := participant.NewMemoryStore(nil)
	seed(t, store, "A", "alice", 1)
	f := newFakeFetcher()
	f.stats["alice"] = participant.Stats{TotalSolved: 3, CompletedToday: true}

	var calls int
	var gotSnapshot []participant.Entry
	hook := func(_ context.Context, r SweepResult, snap []participant.Entry) error {
		calls++
		gotSnapshot = snap
		return errors.New("notifier down")
	}
	e := NewEngine(newRunner(), store, f, hook, logger.Nop())

	_, err := e.ManualSweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, calls)

	result, err := e.ScheduledSweep(context.Background())
	require.NoError(t, err, "hook failures are logged, not returned")
	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"A"}, result.Completed)
	require.Len(t, gotSnapshot, 1)
	assert.Equal(t, 3, gotSnapshot[0].Record.TotalSolved)
}

func TestEngine_CloseWaitsAndRefuses(t *testing.T) {
	store := participant.NewMemoryStore(nil)
	seed(t, store, "A", "alice", 1)
	f := newFakeFetcher()
	f.gate = make(chan struct{})
	f.started = make(chan string, 1)
	e := NewEngine(newRunner(), store, f, nil, logger.Nop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = e.ManualSweep(context.Background())
	}()
	<-f.started

	closed := make(chan error, 1)
	go func() { closed <- e.Close(context.Background()) }()

	select {
	case <-closed:
		t.Fatal("Close returned while a sweep was running")
	case <-time.After(20 * time.Millisecond):
	}

	close(f.gate)
	<-done
	require.NoError(t, <-closed)

	_, err := e.ManualSweep(context.Background())
	assert.ErrorIs(t, err, ErrEngineClosed)
}

func TestEngine_CloseTimeout(t *testing.T) {
	store := participant.NewMemoryStore(nil)
	seed(t, store, "A", "alice", 1)
	f := newFakeFetcher()
	f.gate = make(chan struct{})
	f.started = make(chan string, 1)
	e := NewEngine(newRunner(), store, f, nil, logger.Nop())

	go func() { _, _ = e.ManualSweep(context.Background()) }()
	<-f.started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.Close(ctx), context.DeadlineExceeded)
	close(f.gate)
}

func TestEngine_RunningDoesNotBlockSweeps(t *testing.T) {
	store := participant.NewMemoryStore(nil)
	seed(t, store, "A", "alice", 1)
	e := NewEngine(newRunner(), store, newFakeFetcher(), nil, logger.Nop())

	stop := make(chan struct{})
	polled := make(chan struct{})
	go func() {
		defer close(polled)
		for {
			select {
			case <-stop:
				return
			default:
				_ = e.Running()
			}
		}
	}()

	for i := 0; i < 2000; i++ {
		_, err := e.Run(context.Background(), TriggerManual)
		require.NoError(t, err, "run %d", i)
	}
	close(stop)
	<-polled
	assert.False(t, e.Running())
}

func TestEngine_ScheduledSweepWaitsForRunningSweep(t *testing.T) {
	store := participant.NewMemoryStore(nil)
	seed(t, store, "A", "alice", 1)
	f := newFakeFetcher()
	f.gate = make(chan struct{})
	f.started = make(chan string, 1)

	var reported atomic.Int32
	hook := func(context.Context, SweepResult, []participant.Entry) error {
		reported.Add(1)
		return nil
	}
	e := NewEngine(newRunner(), store, f, hook, logger.Nop())

	manual := make(chan error, 1)
	go func() {
		_, err := e.ManualSweep(context.Background())
		manual <- err
	}()
	<-f.started

	scheduled := make(chan error, 1)
	go func() {
		_, err := e.ScheduledSweep(context.Background())
		scheduled <- err
	}()

	select {
	case err := <-scheduled:
		t.Fatalf("scheduled sweep returned while another was running: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	close(f.gate)
	require.NoError(t, <-manual)
	require.NoError(t, <-scheduled)
	assert.Equal(t, int32(1), reported.Load())
}

func TestEngine_CloseAbandonsQueuedSweep(t *testing.T) {
	store := participant.NewMemoryStore(nil)
	seed(t, store, "A", "alice", 1)
	f := newFakeFetcher()
	f.gate = make(chan struct{})
	f.started = make(chan string, 1)
	e := NewEngine(newRunner(), store, f, nil, logger.Nop())

	go func() { _, _ = e.ManualSweep(context.Background()) }()
	<-f.started

	scheduled := make(chan error, 1)
	go func() {
		_, err := e.ScheduledSweep(context.Background())
		scheduled <- err
	}()
	time.Sleep(10 * time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- e.Close(context.Background()) }()

	assert.ErrorIs(t, <-scheduled, ErrEngineClosed)
	close(f.gate)
	require.NoError(t, <-closed)
}
