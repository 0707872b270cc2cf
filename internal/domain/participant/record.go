package participant

import (
	"strings"
	"time"
)

// Breakdown is the accepted-problem count per difficulty.
type Breakdown struct {
	Easy   int `json:"easy"`
	Medium int `json:"medium"`
	Hard   int `json:"hard"`
}

// Slice returns the breakdown as the ordered triple used on the wire.
func (b Breakdown) Slice() [3]int {
	return [3]int{b.Easy, b.Medium, b.Hard}
}

// Stats is one normalized lookup of a tracked username.
type Stats struct {
	TotalSolved    int
	Breakdown      Breakdown
	CompletedToday bool

	// Most recent submission, if any.
	LastSubmissionAt     *time.Time
	LastSubmissionStatus string
}

// Record is the tracked state of one participant.
type Record struct {
	ParticipantID   string
	TrackedUsername string
	// RegisteredAt is zero for records upgraded from the legacy shape.
	RegisteredAt time.Time

	TotalSolved    int
	Breakdown      Breakdown
	CompletedToday bool
	// LastSweepAt is nil until the first successful fetch.
	LastSweepAt *time.Time
}

// NewRecord validates identity fields and returns a record with stats
// applied as of at.
func NewRecord(id, username string, registeredAt time.Time, stats Stats, at time.Time) (Record, error) {
	r := Record{
		ParticipantID:   strings.TrimSpace(id),
		TrackedUsername: strings.TrimSpace(username),
		RegisteredAt:    registeredAt,
	}.WithStats(stats, at)

	if err := r.Validate(); err != nil {
		return Record{}, err
	}
	return r, nil
}

// WithStats returns a copy with the four mutable fields replaced together.
// Identity and registration time are preserved.
func (r Record) WithStats(s Stats, at time.Time) Record {
	out := r
	out.TotalSolved = s.TotalSolved
	out.Breakdown = s.Breakdown
	out.CompletedToday = s.CompletedToday
	ts := at
	out.LastSweepAt = &ts
	return out
}

// Validate checks the record invariants.
func (r Record) Validate() error {
	if r.ParticipantID == "" {
		return ErrInvalidParticipantID
	}
	if r.TrackedUsername == "" {
		return ErrEmptyUsername
	}
	b := r.Breakdown
	if r.TotalSolved < 0 || b.Easy < 0 || b.Medium < 0 || b.Hard < 0 {
		return ErrNegativeCount
	}
	return nil
}

// Clone returns a deep copy so callers never share the LastSweepAt pointer.
func (r Record) Clone() Record {
	if r.LastSweepAt != nil {
		ts := *r.LastSweepAt
		r.LastSweepAt = &ts
	}
	return r
}

// Equal reports field-wise equality, comparing instants with time.Equal.
func (r Record) Equal(o Record) bool {
	if r.ParticipantID != o.ParticipantID ||
		r.TrackedUsername != o.TrackedUsername ||
		!r.RegisteredAt.Equal(o.RegisteredAt) ||
		r.TotalSolved != o.TotalSolved ||
		r.Breakdown != o.Breakdown ||
		r.CompletedToday != o.CompletedToday {
		return false
	}
	switch {
	case r.LastSweepAt == nil && o.LastSweepAt == nil:
		return true
	case r.LastSweepAt == nil || o.LastSweepAt == nil:
		return false
	default:
		return r.LastSweepAt.Equal(*o.LastSweepAt)
	}
}

// IsLegacy reports whether the record came from the bare-username shape and
// has never been fetched since.
func (r Record) IsLegacy() bool {
	return r.RegisteredAt.IsZero() && r.LastSweepAt == nil
}

// Entry pairs a participant id with its record in store order.
type Entry struct {
	ID     string
	Record Record
}
