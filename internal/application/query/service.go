// Package query contains read operations over the participant registry.
// Every answer is computed from a store snapshot, so reads never block a
// running sweep.
package query

import (
	"context"
	"strings"

	"github.com/leetbuddy/challenge-tracker/internal/domain/participant"
	"github.com/leetbuddy/challenge-tracker/internal/domain/report"
	"github.com/leetbuddy/challenge-tracker/internal/domain/sweep"
)

// Service answers read-only questions.
type Service struct {
	store           participant.Store
	history         sweep.History
	leaderboardSize int
}

// NewService creates a Service. history may be nil.
func NewService(store participant.Store, history sweep.History, leaderboardSize int) *Service {
	if leaderboardSize <= 0 {
		leaderboardSize = report.DefaultLeaderboardSize
	}
	return &Service{store: store, history: history, leaderboardSize: leaderboardSize}
}

// Leaderboard returns the top limit participants. limit <= 0 uses the
// configured size.
func (s *Service) Leaderboard(limit int) []report.Standing {
	if limit <= 0 {
		limit = s.leaderboardSize
	}
	return report.Leaderboard(s.store.All(), limit)
}

// Progress lists done/pending as of the last sweep.
func (s *Service) Progress() report.ProgressSummary {
	return report.Progress(s.store.All())
}

// Stats returns community totals.
func (s *Service) Stats() report.AggregateStats {
	return report.Aggregate(s.store.All())
}

// PersonalStatus returns one participant's status or participant.ErrNotFound.
func (s *Service) PersonalStatus(participantID string) (report.PersonalStatus, error) {
	r, ok := s.store.Get(strings.TrimSpace(participantID))
	if !ok {
		return report.PersonalStatus{}, participant.ErrNotFound
	}
	return report.Personal(r), nil
}

// SweepHistory returns up to limit past sweeps, newest first.
func (s *Service) SweepHistory(ctx context.Context, limit int) ([]sweep.Summary, error) {
	if s.history == nil {
		return []sweep.Summary{}, nil
	}
	out, err := s.history.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []sweep.Summary{}
	}
	return out, nil
}

// Report builds the post-sweep report for result against the current
// registry.
func (s *Service) Report(result sweep.Result) report.IncompleteReport {
	return report.Incomplete(result, s.store.All())
}
