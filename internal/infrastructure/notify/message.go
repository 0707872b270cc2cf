package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/leetbuddy/challenge-tracker/internal/domain/report"
	"github.com/leetbuddy/challenge-tracker/pkg/timeutil"
)

// Embed colors.
const (
	ColorAlert   = 0xff0000
	ColorSuccess = 0x00ff00
	ColorWarning = 0xffa500
)

// Message is a Discord-compatible webhook payload.
type Message struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

// Embed is one rich block of a Message.
type Embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
}

// EmbedField is a titled section of an Embed.
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// EmbedFooter is the small text under an Embed.
type EmbedFooter struct {
	Text string `json:"text"`
}

// BuildMessage renders a report. Participants whose status is unknown are
// listed separately and never as incomplete.
func BuildMessage(r report.IncompleteReport, loc *time.Location) Message {
	if r.NoParticipants {
		return Message{Content: "⚠️ No users registered in the database."}
	}

	footer := checkedAt(r.CheckedAt, loc)

	if r.AllClear {
		return Message{Embeds: []Embed{{
			Title:       "✅ All Clear!",
			Description: "🎉 Everyone has completed today's LeetCode challenge! Excellent work!",
			Color:       ColorSuccess,
			Footer:      footer,
		}}}
	}

	e := Embed{Color: ColorAlert, Footer: footer}
	if len(r.Incomplete) > 0 {
		e.Title = "🚨 Daily LeetCode Report"
		e.Description = fmt.Sprintf(
			"The following members have **NOT** completed today's challenge:\n\n%s\n\n**Hurry up! Time is ticking!** ⏳",
			mentions(r.Incomplete),
		)
	} else {
		e.Title = "⚠️ Daily LeetCode Report"
		e.Description = "Everyone we could check has completed today's challenge."
		e.Color = ColorWarning
	}
	if len(r.StatusUnknown) > 0 {
		e.Fields = append(e.Fields, EmbedField{
			Name:  "❔ Status unknown",
			Value: "Status unknown (fetch failed): " + mentions(r.StatusUnknown),
		})
	}
	return Message{Embeds: []Embed{e}}
}

func mentions(ms []report.Mention) string {
	parts := make([]string, 0, len(ms))
	for _, m := range ms {
		parts = append(parts, "<@"+m.ParticipantID+">")
	}
	return strings.Join(parts, " ")
}

func checkedAt(t time.Time, loc *time.Location) *EmbedFooter {
	if t.IsZero() {
		return nil
	}
	return &EmbedFooter{Text: "Checked at " + timeutil.FormatIn(t, loc, timeutil.FormatClock)}
}
