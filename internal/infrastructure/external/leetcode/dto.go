package leetcode

import (
	"encoding/json"
	"strconv"
	"strings"
)

// userStatsQuery asks for the accepted-count breakdown and the single most
// recent submission in one round trip.
const userStatsQuery = `query userStats($username: String!) {
  matchedUser(username: $username) {
    submitStats {
      acSubmissionNum {
        difficulty
        count
      }
    }
  }
  recentSubmissionList(username: $username, limit: 1) {
    title
    timestamp
    statusDisplay
  }
}`

// Labels used by the service.
const (
	labelAll       = "All"
	labelEasy      = "Easy"
	labelMedium    = "Medium"
	labelHard      = "Hard"
	statusAccepted = "Accepted"

	noSuchUserMessage = "That user does not exist."
)

type graphQLRequest struct {
	OperationName string         `json:"operationName"`
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   *userStatsDTO  `json:"data"`
	Errors []graphQLError `json:"errors,omitempty"`
}

type userStatsDTO struct {
	MatchedUser          *matchedUserDTO `json:"matchedUser"`
	RecentSubmissionList []submissionDTO `json:"recentSubmissionList"`
}

type matchedUserDTO struct {
	SubmitStats *submitStatsDTO `json:"submitStats"`
}

type submitStatsDTO struct {
	ACSubmissionNum []difficultyCountDTO `json:"acSubmissionNum"`
}

type difficultyCountDTO struct {
	Difficulty string `json:"difficulty"`
	Count      int    `json:"count"`
}

type submissionDTO struct {
	Title         string      `json:"title"`
	Timestamp     unixSeconds `json:"timestamp"`
	StatusDisplay string      `json:"statusDisplay"`
}

// unixSeconds accepts both "1717257600" and 1717257600. The raw text is
// kept so a bad value is reported by the mapper, not the decoder.
type unixSeconds string

func (u *unixSeconds) UnmarshalJSON(b []byte) error {
	var s string
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	} else {
		s = string(b)
	}
	*u = unixSeconds(strings.TrimSpace(s))
	return nil
}

func (u unixSeconds) Int64() (int64, error) {
	return strconv.ParseInt(string(u), 10, 64)
}
