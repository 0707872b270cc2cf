package participant

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// RawEntry is one undecoded value read from a backend, in stored order.
type RawEntry struct {
	ID    string
	Value json.RawMessage
}

// Document is the persisted shape of a record. Field names are shared by
// every backend so a JSON file can be imported into SQL storage verbatim.
type Document struct {
	Username        string     `json:"leetcode_username,omitempty"`
	TrackedUsername string     `json:"tracked_username,omitempty"`
	RegisteredDate  string     `json:"registered_date,omitempty"`
	TotalSolved     int        `json:"total_solved"`
	Breakdown       []int      `json:"breakdown"`
	LastStatus      bool       `json:"last_status"`
	LastSweepAt     *time.Time `json:"last_sweep_at,omitempty"`
}

// Layouts accepted for registered_date. Older files carry naive ISO
// timestamps with microseconds and no offset.
var registeredLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02",
}

// Decode turns a stored value into a Record. It is the only place that
// understands the legacy bare-string shape: such a value becomes a record
// with zeroed stats, CompletedToday=false and no registration time.
func Decode(raw RawEntry) (Record, error) {
	id := strings.TrimSpace(raw.ID)
	if id == "" {
		return Record{}, Corruptf("entry with empty participant id")
	}

	value := bytes.TrimSpace(raw.Value)
	if len(value) == 0 {
		return Record{}, Corruptf("participant %s: empty value", id)
	}

	switch value[0] {
	case '"':
		var username string
		if err := json.Unmarshal(value, &username); err != nil {
			return Record{}, Corruptf("participant %s: %w", id, err)
		}
		username = strings.TrimSpace(username)
		if username == "" {
			return Record{}, Corruptf("participant %s: empty legacy username", id)
		}
		return Record{ParticipantID: id, TrackedUsername: username}, nil

	case '{':
		var doc Document
		if err := json.Unmarshal(value, &doc); err != nil {
			return Record{}, Corruptf("participant %s: %w", id, err)
		}
		return doc.toRecord(id)

	default:
		return Record{}, Corruptf("participant %s: unexpected value %.20s", id, value)
	}
}

func (d Document) toRecord(id string) (Record, error) {
	username := strings.TrimSpace(d.Username)
	if username == "" {
		username = strings.TrimSpace(d.TrackedUsername)
	}
	if username == "" {
		return Record{}, Corruptf("participant %s: missing username", id)
	}

	var registered time.Time
	if d.RegisteredDate != "" {
		t, ok := parseRegistered(d.RegisteredDate)
		if !ok {
			return Record{}, Corruptf("participant %s: bad registered_date %q", id, d.RegisteredDate)
		}
		registered = t
	}

	if len(d.Breakdown) > 3 {
		return Record{}, Corruptf("participant %s: breakdown has %d elements", id, len(d.Breakdown))
	}
	var b [3]int
	copy(b[:], d.Breakdown)

	r := Record{
		ParticipantID:   id,
		TrackedUsername: username,
		RegisteredAt:    registered,
		TotalSolved:     d.TotalSolved,
		Breakdown:       Breakdown{Easy: b[0], Medium: b[1], Hard: b[2]},
		CompletedToday:  d.LastStatus,
		LastSweepAt:     d.LastSweepAt,
	}
	if err := r.Validate(); err != nil {
		return Record{}, Corruptf("participant %s: %w", id, err)
	}
	return r, nil
}

func parseRegistered(s string) (time.Time, bool) {
	for _, layout := range registeredLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ToDocument converts a record to its persisted shape. Legacy records are
// always written as full documents.
func ToDocument(r Record) Document {
	d := Document{
		Username:    r.TrackedUsername,
		TotalSolved: r.TotalSolved,
		Breakdown:   []int{r.Breakdown.Easy, r.Breakdown.Medium, r.Breakdown.Hard},
		LastStatus:  r.CompletedToday,
		LastSweepAt: r.LastSweepAt,
	}
	if !r.RegisteredAt.IsZero() {
		d.RegisteredDate = r.RegisteredAt.Format(time.RFC3339Nano)
	}
	return d
}

// Encode marshals a record as its persisted document.
func Encode(r Record) (json.RawMessage, error) {
	return json.Marshal(ToDocument(r))
}

// DecodeAll decodes entries in order, rejecting duplicate ids.
func DecodeAll(raws []RawEntry) ([]Entry, error) {
	out := make([]Entry, 0, len(raws))
	seen := make(map[string]struct{}, len(raws))
	for _, raw := range raws {
		r, err := Decode(raw)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[r.ParticipantID]; dup {
			return nil, Corruptf("duplicate participant %s", r.ParticipantID)
		}
		seen[r.ParticipantID] = struct{}{}
		out = append(out, Entry{ID: r.ParticipantID, Record: r})
	}
	return out, nil
}
