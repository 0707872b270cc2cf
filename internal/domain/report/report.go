// Package report turns store snapshots and sweep results into presentation
// data. Every function here is pure.
package report

import (
	"sort"
	"time"

	"github.com/leetbuddy/challenge-tracker/internal/domain/participant"
	"github.com/leetbuddy/challenge-tracker/internal/domain/sweep"
)

// DefaultLeaderboardSize matches the chat command's top-10 listing.
const DefaultLeaderboardSize = 10

// Standing is one leaderboard row.
type Standing struct {
	Rank           int                   `json:"rank"`
	ParticipantID  string                `json:"participant_id"`
	Username       string                `json:"username"`
	TotalSolved    int                   `json:"total_solved"`
	Breakdown      participant.Breakdown `json:"breakdown"`
	CompletedToday bool                  `json:"completed_today"`
}

// Leaderboard ranks participants by TotalSolved descending, breaking ties by
// participant id ascending. limit <= 0 returns everyone.
func Leaderboard(snapshot []participant.Entry, limit int) []Standing {
	sorted := make([]participant.Entry, len(snapshot))
	copy(sorted, snapshot)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Record, sorted[j].Record
		if a.TotalSolved != b.TotalSolved {
			return a.TotalSolved > b.TotalSolved
		}
		return sorted[i].ID < sorted[j].ID
	})

	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}

	out := make([]Standing, 0, len(sorted))
	for i, e := range sorted {
		out = append(out, Standing{
			Rank:           i + 1,
			ParticipantID:  e.ID,
			Username:       e.Record.TrackedUsername,
			TotalSolved:    e.Record.TotalSolved,
			Breakdown:      e.Record.Breakdown,
			CompletedToday: e.Record.CompletedToday,
		})
	}
	return out
}

// ProgressEntry is one participant's done/pending line.
type ProgressEntry struct {
	ParticipantID string `json:"participant_id"`
	Username      string `json:"username"`
	Completed     bool   `json:"completed"`
}

// ProgressSummary counts completed against total, as of the last sweep.
type ProgressSummary struct {
	Completed int             `json:"completed"`
	Total     int             `json:"total"`
	Entries   []ProgressEntry `json:"entries"`
}

// Progress lists every participant in store order.
func Progress(snapshot []participant.Entry) ProgressSummary {
	s := ProgressSummary{Total: len(snapshot), Entries: make([]ProgressEntry, 0, len(snapshot))}
	for _, e := range snapshot {
		if e.Record.CompletedToday {
			s.Completed++
		}
		s.Entries = append(s.Entries, ProgressEntry{
			ParticipantID: e.ID,
			Username:      e.Record.TrackedUsername,
			Completed:     e.Record.CompletedToday,
		})
	}
	return s
}

// AggregateStats are community-wide numbers from last known values.
type AggregateStats struct {
	Participants   int `json:"participants"`
	CombinedSolved int `json:"combined_solved"`
	ActiveToday    int `json:"active_today"`
}

// Aggregate sums the snapshot. An empty snapshot yields zeros.
func Aggregate(snapshot []participant.Entry) AggregateStats {
	var a AggregateStats
	for _, e := range snapshot {
		a.Participants++
		a.CombinedSolved += e.Record.TotalSolved
		if e.Record.CompletedToday {
			a.ActiveToday++
		}
	}
	return a
}

// Mention identifies a participant in a notification.
type Mention struct {
	ParticipantID string `json:"participant_id"`
	Username      string `json:"username,omitempty"`
}

// IncompleteReport is what the notifier renders after a sweep.
type IncompleteReport struct {
	SweepID    string    `json:"sweep_id"`
	CheckedAt  time.Time `json:"checked_at"`
	Incomplete []Mention `json:"incomplete"`
	// StatusUnknown lists participants whose fetch failed. They are never
	// counted as incomplete.
	StatusUnknown  []Mention `json:"status_unknown"`
	AllClear       bool      `json:"all_clear"`
	NoParticipants bool      `json:"no_participants"`
}

// Incomplete builds the post-sweep report. snapshot supplies usernames and
// may be nil.
func Incomplete(result sweep.Result, snapshot []participant.Entry) IncompleteReport {
	names := make(map[string]string, len(snapshot))
	for _, e := range snapshot {
		names[e.ID] = e.Record.TrackedUsername
	}
	mentions := func(ids []string) []Mention {
		out := make([]Mention, 0, len(ids))
		for _, id := range ids {
			out = append(out, Mention{ParticipantID: id, Username: names[id]})
		}
		return out
	}

	r := IncompleteReport{
		SweepID:       result.ID,
		CheckedAt:     result.FinishedAt,
		Incomplete:    mentions(result.Incomplete),
		StatusUnknown: mentions(result.Failed),
	}
	r.NoParticipants = result.Empty()
	r.AllClear = !r.NoParticipants && len(r.Incomplete) == 0 && len(r.StatusUnknown) == 0
	return r
}

// PersonalStatus answers "how am I doing".
type PersonalStatus struct {
	ParticipantID  string                `json:"participant_id"`
	Username       string                `json:"username"`
	CompletedToday bool                  `json:"completed_today"`
	TotalSolved    int                   `json:"total_solved"`
	Breakdown      participant.Breakdown `json:"breakdown"`
	RegisteredAt   *time.Time            `json:"registered_at,omitempty"`
	LastSweepAt    *time.Time            `json:"last_sweep_at,omitempty"`
}

// Personal projects one record.
func Personal(r participant.Record) PersonalStatus {
	r = r.Clone()
	p := PersonalStatus{
		ParticipantID:  r.ParticipantID,
		Username:       r.TrackedUsername,
		CompletedToday: r.CompletedToday,
		TotalSolved:    r.TotalSolved,
		Breakdown:      r.Breakdown,
		LastSweepAt:    r.LastSweepAt,
	}
	if !r.RegisteredAt.IsZero() {
		reg := r.RegisteredAt
		p.RegisteredAt = &reg
	}
	return p
}
