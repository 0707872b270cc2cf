package participant

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Shapes(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		corrupt bool
		check   func(t *testing.T, r Record)
	}{
		{
			name:  "legacy string",
			value: `"  neo "`,
			check: func(t *testing.T, r Record) {
				assert.Equal(t, "neo", r.TrackedUsername)
				assert.Nil(t, r.LastSweepAt)
				assert.True(t, r.RegisteredAt.IsZero())
			},
		},
		{
			name:  "tracked_username alias",
			value: `{"tracked_username":"trin","total_solved":3,"breakdown":[1,1,1],"last_status":false}`,
			check: func(t *testing.T, r Record) {
				assert.Equal(t, "trin", r.TrackedUsername)
				assert.Equal(t, 3, r.TotalSolved)
			},
		},
		{
			name:  "short breakdown padded",
			value: `{"leetcode_username":"m","breakdown":[4]}`,
			check: func(t *testing.T, r Record) {
				assert.Equal(t, Breakdown{Easy: 4}, r.Breakdown)
			},
		},
		{
			name:  "date only",
			value: `{"leetcode_username":"m","registered_date":"2023-12-31"}`,
			check: func(t *testing.T, r Record) {
				assert.Equal(t, time.December, r.RegisteredAt.Month())
			},
		},
		{name: "empty legacy", value: `""`, corrupt: true},
		{name: "missing username", value: `{"total_solved":1}`, corrupt: true},
		{name: "negative", value: `{"leetcode_username":"x","total_solved":-4}`, corrupt: true},
		{name: "long breakdown", value: `{"leetcode_username":"x","breakdown":[1,2,3,4]}`, corrupt: true},
		{name: "bad date", value: `{"leetcode_username":"x","registered_date":"yesterday"}`, corrupt: true},
		{name: "number", value: `12`, corrupt: true},
		{name: "null", value: `null`, corrupt: true},
		{name: "broken object", value: `{"leetcode_username":`, corrupt: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Decode(RawEntry{ID: "id", Value: json.RawMessage(tt.value)})
			if tt.corrupt {
				assert.ErrorIs(t, err, ErrCorrupt)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "id", r.ParticipantID)
			tt.check(t, r)
		})
	}
}

func TestDecodeAll_RejectsDuplicates(t *testing.T) {
	_, err := DecodeAll([]RawEntry{
		{ID: "a", Value: json.RawMessage(`"x"`)},
		{ID: "a", Value: json.RawMessage(`"y"`)},
	})
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestEncodeDecode_PreservesRecord(t *testing.T) {
	at := time.Date(2024, 6, 1, 16, 0, 0, 0, time.UTC)
	r, err := NewRecord("99", "morpheus", at.Add(-time.Hour), Stats{
		TotalSolved:    321,
		Breakdown:      Breakdown{Easy: 200, Medium: 100, Hard: 21},
		CompletedToday: true,
	}, at)
	require.NoError(t, err)

	raw, err := Encode(r)
	require.NoError(t, err)

	back, err := Decode(RawEntry{ID: "99", Value: raw})
	require.NoError(t, err)
	assert.True(t, r.Equal(back))
}

func TestRecord_WithStatsKeepsIdentity(t *testing.T) {
	reg := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := Record{ParticipantID: "1", TrackedUsername: "u", RegisteredAt: reg}
	at := reg.Add(48 * time.Hour)

	out := r.WithStats(Stats{TotalSolved: 9, CompletedToday: true}, at)

	assert.Equal(t, "1", out.ParticipantID)
	assert.Equal(t, reg, out.RegisteredAt)
	assert.Equal(t, 9, out.TotalSolved)
	require.NotNil(t, out.LastSweepAt)
	assert.Equal(t, at, *out.LastSweepAt)
	assert.Nil(t, r.LastSweepAt)
}
