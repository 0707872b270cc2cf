// Package sweep defines the outcome of one pass over every participant.
package sweep

import "time"

// Result classifies every participant seen by a sweep into exactly one of
// three sets. Lists follow store order.
type Result struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time

	Completed  []string
	Incomplete []string
	// Failed participants could not be fetched or their new stats could not
	// be stored; their status is unknown and their records were left
	// untouched.
	Failed []string
	// Errors holds the fetch or store error for each failed participant.
	Errors map[string]error
}

// Total is the number of participants the sweep looked at.
func (r Result) Total() int {
	return len(r.Completed) + len(r.Incomplete) + len(r.Failed)
}

// Empty reports whether there was nobody to sweep.
func (r Result) Empty() bool {
	return r.Total() == 0
}

// Duration is the wall time the sweep took.
func (r Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Summary is the serializable form of a Result.
type Summary struct {
	ID         string            `json:"id"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Completed  []string          `json:"completed"`
	Incomplete []string          `json:"incomplete"`
	Failed     []string          `json:"failed"`
	Errors     map[string]string `json:"errors,omitempty"`
}

// Summarize converts r for storage or transport.
func (r Result) Summarize() Summary {
	s := Summary{
		ID:         r.ID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Completed:  nonNil(r.Completed),
		Incomplete: nonNil(r.Incomplete),
		Failed:     nonNil(r.Failed),
	}
	if len(r.Errors) > 0 {
		s.Errors = make(map[string]string, len(r.Errors))
		for id, err := range r.Errors {
			s.Errors[id] = err.Error()
		}
	}
	return s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
