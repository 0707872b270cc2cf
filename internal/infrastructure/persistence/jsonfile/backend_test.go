package jsonfile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leetbuddy/challenge-tracker/internal/domain/participant"
	"github.com/leetbuddy/challenge-tracker/pkg/logger"
)

func newStore(t *testing.T, contents string) (*participant.MemoryStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "users.json")
	if contents != "" {
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	}
	return participant.NewMemoryStore(New(path, logger.Nop())), path
}

func record(t *testing.T, id, user string, solved int, done bool) participant.Record {
	t.Helper()
	at := time.Date(2024, 6, 1, 16, 0, 0, 0, time.UTC)
	r, err := participant.NewRecord(id, user, at.Add(-48*time.Hour), participant.Stats{
		TotalSolved:    solved,
		Breakdown:      participant.Breakdown{Easy: solved, Medium: 0, Hard: 0},
		CompletedToday: done,
	}, at)
	require.NoError(t, err)
	return r
}

func TestRead_MissingFileIsEmpty(t *testing.T) {
	s, _ := newStore(t, "")
	require.NoError(t, s.Load(context.Background()))
	assert.Zero(t, s.Len())
}

func TestRead_BlankFileIsEmpty(t *testing.T) {
	s, _ := newStore(t, "  \n")
	require.NoError(t, s.Load(context.Background()))
	assert.Zero(t, s.Len())
}

func TestRoundTripPreservesOrderAndFields(t *testing.T) {
	ctx := context.Background()
	s, path := newStore(t, "")

	ids := []string{"300", "10", "2000"}
	for i, id := range ids {
		require.NoError(t, s.Upsert(id, record(t, id, "user"+id, i*7, i%2 == 0)))
	}
	require.NoError(t, s.Persist(ctx))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(filePerms), info.Mode().Perm())

	reloaded := participant.NewMemoryStore(New(path, logger.Nop()))
	require.NoError(t, reloaded.Load(ctx))

	before, after := s.All(), reloaded.All()
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.True(t, before[i].Record.Equal(after[i].Record), "record %s changed", before[i].ID)
	}
}

func TestWrite_FileShape(t *testing.T) {
	ctx := context.Background()
	s, path := newStore(t, "")
	require.NoError(t, s.Upsert("7", record(t, "7", "neo", 12, true)))
	require.NoError(t, s.Persist(ctx))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.HasPrefix(text, "{\n  \"7\": {"))
	assert.Contains(t, text, `"leetcode_username": "neo"`)
	assert.Contains(t, text, `"total_solved": 12`)
	assert.Contains(t, text, `"last_status": true`)
	assert.Contains(t, text, `"registered_date": "2024-05-30T16:00:00Z"`)
}

func TestLegacyEntriesUpgradeOnPersist(t *testing.T) {
	ctx := context.Background()
	s, path := newStore(t, `{"1": "alice", "2": {"leetcode_username": "bob", "registered_date": "2024-05-01T10:00:00.123456", "total_solved": 3, "breakdown": [1, 1, 1], "last_status": false}}`)

	require.NoError(t, s.Load(ctx))
	legacy, ok := s.Get("1")
	require.True(t, ok)
	assert.Equal(t, "alice", legacy.TrackedUsername)
	assert.True(t, legacy.IsLegacy())
	assert.False(t, legacy.CompletedToday)

	require.NoError(t, s.Persist(ctx))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"1": "alice"`)
	assert.Contains(t, string(data), `"leetcode_username": "alice"`)

	reloaded := participant.NewMemoryStore(New(path, logger.Nop()))
	require.NoError(t, reloaded.Load(ctx))
	got := reloaded.All()
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "2", got[1].ID)
	assert.Equal(t, 3, got[1].Record.TotalSolved)
}

func TestRead_CorruptFile(t *testing.T) {
	cases := map[string]string{
		"truncated":      `{"1": {"leetcode_username": "a"`,
		"array":          `[1, 2]`,
		"trailing":       `{"1": "alice"} {}`,
		"number value":   `{"1": 5}`,
		"negative count": `{"1": {"leetcode_username": "a", "total_solved": -1, "breakdown": [0,0,0]}}`,
		"duplicate id":   `{"1": "alice", "1": "bob"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			s, _ := newStore(t, body)
			require.NoError(t, s.Upsert("9", record(t, "9", "keep", 1, false)))

			err := s.Load(context.Background())
			require.ErrorIs(t, err, participant.ErrCorrupt)

			var se *participant.StoreError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, "jsonfile", se.Backend)

			_, ok := s.Get("9")
			assert.True(t, ok, "in-memory state must survive a failed load")
		})
	}
}

func TestWrite_RespectsCancelledContext(t *testing.T) {
	s, path := newStore(t, "")
	require.NoError(t, s.Upsert("1", record(t, "1", "a", 1, false)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, s.Persist(ctx), context.Canceled)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
