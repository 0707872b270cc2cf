package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leetbuddy/challenge-tracker/internal/domain/participant"
	"github.com/leetbuddy/challenge-tracker/internal/domain/sweep"
	"github.com/leetbuddy/challenge-tracker/pkg/logger"
)

func openTestDB(t *testing.T) (*sql.DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db", "tracker.db")
	db, err := Open(context.Background(), path, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, path
}

func record(t *testing.T, id, user string, solved int) participant.Record {
	t.Helper()
	at := time.Date(2024, 6, 1, 16, 0, 0, 0, time.UTC)
	r, err := participant.NewRecord(id, user, at.Add(-time.Hour), participant.Stats{
		TotalSolved: solved,
		Breakdown:   participant.Breakdown{Easy: solved},
	}, at)
	require.NoError(t, err)
	return r
}

func TestBackend_EmptyDatabaseLoadsEmpty(t *testing.T) {
	db, _ := openTestDB(t)
	s := participant.NewMemoryStore(NewBackend(db, logger.Nop()))

	require.NoError(t, s.Load(context.Background()))
	assert.Zero(t, s.Len())
}

func TestBackend_PersistAndReloadKeepsOrder(t *testing.T) {
	ctx := context.Background()
	db, path := openTestDB(t)
	s := participant.NewMemoryStore(NewBackend(db, logger.Nop()))

	for i, id := range []string{"z", "a", "m"} {
		require.NoError(t, s.Upsert(id, record(t, id, "user-"+id, i)))
	}
	require.NoError(t, s.Persist(ctx))

	// Overwrite with fewer rows to prove the replace is total.
	require.True(t, s.Remove("a"))
	require.NoError(t, s.Persist(ctx))
	require.NoError(t, db.Close())

	reopened, err := Open(ctx, path, logger.Nop())
	require.NoError(t, err)
	defer reopened.Close()

	again := participant.NewMemoryStore(NewBackend(reopened, logger.Nop()))
	require.NoError(t, again.Load(ctx))

	got := again.All()
	require.Len(t, got, 2)
	assert.Equal(t, "z", got[0].ID)
	assert.Equal(t, "m", got[1].ID)
	assert.Equal(t, 2, got[1].Record.TotalSolved)
	want, _ := s.Get("m")
	assert.True(t, want.Equal(got[1].Record))
}

func TestBackend_LegacyPayloadDecodes(t *testing.T) {
	ctx := context.Background()
	db, _ := openTestDB(t)
	_, err := db.ExecContext(ctx, `INSERT INTO participants (id, position, payload, updated_at) VALUES ('7', 0, '"alice"', 0)`)
	require.NoError(t, err)

	s := participant.NewMemoryStore(NewBackend(db, logger.Nop()))
	require.NoError(t, s.Load(ctx))

	r, ok := s.Get("7")
	require.True(t, ok)
	assert.Equal(t, "alice", r.TrackedUsername)
	assert.True(t, r.IsLegacy())
}

func TestBackend_CorruptPayload(t *testing.T) {
	ctx := context.Background()
	db, _ := openTestDB(t)
	_, err := db.ExecContext(ctx, `INSERT INTO participants (id, position, payload, updated_at) VALUES ('7', 0, '{"total_solved": 3}', 0)`)
	require.NoError(t, err)

	s := participant.NewMemoryStore(NewBackend(db, logger.Nop()))
	assert.ErrorIs(t, s.Load(ctx), participant.ErrCorrupt)
}

func TestBackend_SweepHistory(t *testing.T) {
	ctx := context.Background()
	db, _ := openTestDB(t)
	b := NewBackend(db, logger.Nop())
	start := time.Date(2024, 6, 1, 16, 0, 0, 0, time.UTC)

	first := sweep.Result{ID: "s1", StartedAt: start, FinishedAt: start.Add(time.Second), Completed: []string{"1"}}
	second := sweep.Result{ID: "s2", StartedAt: start.Add(24 * time.Hour), FinishedAt: start.Add(24*time.Hour + time.Second), Failed: []string{"1"}}
	require.NoError(t, b.Record(ctx, first))
	require.NoError(t, b.Record(ctx, second))
	require.NoError(t, b.Record(ctx, second))

	got, err := b.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "s2", got[0].ID)
	assert.Equal(t, []string{"1"}, got[0].Failed)
	assert.Equal(t, "s1", got[1].ID)
	assert.True(t, start.Equal(got[1].StartedAt))
}
