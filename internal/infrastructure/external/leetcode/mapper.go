package leetcode

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leetbuddy/challenge-tracker/internal/domain/participant"
	"github.com/leetbuddy/challenge-tracker/pkg/timeutil"
)

// toStats normalizes a decoded response. now and loc decide whether the most
// recent submission counts for today.
func toStats(username string, resp graphQLResponse, now time.Time, loc *time.Location) (participant.Stats, error) {
	for _, e := range resp.Errors {
		if strings.Contains(e.Message, noSuchUserMessage) {
			return participant.Stats{}, unknownIdentity(username, errors.New(e.Message))
		}
	}

	if resp.Data == nil {
		if len(resp.Errors) > 0 {
			return participant.Stats{}, malformed(username, fmt.Errorf("graphql: %s", resp.Errors[0].Message))
		}
		return participant.Stats{}, malformed(username, errors.New("missing data"))
	}
	if resp.Data.MatchedUser == nil {
		return participant.Stats{}, unknownIdentity(username, errors.New("matchedUser is null"))
	}
	if resp.Data.MatchedUser.SubmitStats == nil {
		return participant.Stats{}, malformed(username, errors.New("missing submitStats"))
	}

	var (
		stats    participant.Stats
		foundAll bool
	)
	for _, row := range resp.Data.MatchedUser.SubmitStats.ACSubmissionNum {
		if row.Count < 0 {
			return participant.Stats{}, malformed(username, fmt.Errorf("negative %s count %d", row.Difficulty, row.Count))
		}
		switch row.Difficulty {
		case labelAll:
			stats.TotalSolved = row.Count
			foundAll = true
		case labelEasy:
			stats.Breakdown.Easy = row.Count
		case labelMedium:
			stats.Breakdown.Medium = row.Count
		case labelHard:
			stats.Breakdown.Hard = row.Count
		}
	}
	if !foundAll {
		return participant.Stats{}, malformed(username, errors.New(`no "All" row in acSubmissionNum`))
	}

	if len(resp.Data.RecentSubmissionList) == 0 {
		return stats, nil
	}

	latest := resp.Data.RecentSubmissionList[0]
	secs, err := latest.Timestamp.Int64()
	if err != nil {
		return participant.Stats{}, malformed(username, fmt.Errorf("submission timestamp %q: %w", latest.Timestamp, err))
	}
	submittedAt := time.Unix(secs, 0).UTC()

	stats.LastSubmissionAt = &submittedAt
	stats.LastSubmissionStatus = latest.StatusDisplay
	stats.CompletedToday = latest.StatusDisplay == statusAccepted &&
		timeutil.IsSameLocalDay(submittedAt, now, loc)

	return stats, nil
}
