// Package notify delivers post-sweep reports to the community channel.
package notify

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/leetbuddy/challenge-tracker/internal/domain/report"
	"github.com/leetbuddy/challenge-tracker/pkg/logger"
)

// Notifier delivers one report. Delivery is at-most-once per call.
type Notifier interface {
	Notify(ctx context.Context, r report.IncompleteReport) error
}

// LogNotifier writes reports to the log. It is used when no webhook is
// configured.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Component(log, "notify")}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(_ context.Context, r report.IncompleteReport) error {
	ev := n.logger.Info().Str(logger.KeySweepID, r.SweepID)
	switch {
	case r.NoParticipants:
		ev.Msg("daily report: no users registered")
	case r.AllClear:
		ev.Msg("daily report: all clear")
	default:
		ev.Strs("incomplete", mentionIDs(r.Incomplete)).
			Strs("status_unknown", mentionIDs(r.StatusUnknown)).
			Msg("daily report: participants pending")
	}
	return nil
}

func mentionIDs(ms []report.Mention) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.ParticipantID)
	}
	return out
}

// Multi fans a report out to several notifiers and joins their errors.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, r report.IncompleteReport) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
