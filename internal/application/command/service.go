// Package command contains the write operations collaborators invoke on
// behalf of participants: registering and unregistering tracked usernames.
package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/leetbuddy/challenge-tracker/internal/application/tracking"
	"github.com/leetbuddy/challenge-tracker/internal/domain/participant"
	"github.com/leetbuddy/challenge-tracker/internal/domain/shared"
	"github.com/leetbuddy/challenge-tracker/pkg/logger"
	"github.com/leetbuddy/challenge-tracker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// ErrUsernameRequired is returned for a blank username.
var ErrUsernameRequired = shared.NewDomainError("command", "Register", shared.ErrEmptyValue, "leetcode username is required")

// VerificationError means the username could not be confirmed with one
// fetch. No record was created or changed.
type VerificationError struct {
	Username string
	Err      error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("could not verify leetcode user %q: %v", e.Username, e.Err)
}

func (e *VerificationError) Unwrap() error { return e.Err }

// IsVerificationError reports whether err is a *VerificationError.
func IsVerificationError(err error) bool {
	var ve *VerificationError
	return errors.As(err, &ve)
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVICE
// ══════════════════════════════════════════════════════════════════════════════

// Service changes the participant registry. Registry writes are serialized
// so each one is persisted in order.
type Service struct {
	store   participant.Store
	fetcher tracking.Fetcher
	clock   timeutil.Clock
	logger  zerolog.Logger

	mu sync.Mutex
}

// NewService creates a Service.
func NewService(store participant.Store, fetcher tracking.Fetcher, clock timeutil.Clock, log zerolog.Logger) *Service {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &Service{
		store:   store,
		fetcher: fetcher,
		clock:   clock,
		logger:  logger.Component(log, "command"),
	}
}

// Register links participantID to username after one verification fetch.
// Re-registering overwrites the username and stats but keeps the original
// registration time and position. If persisting fails the registry is
// restored and the error returned.
func (s *Service) Register(ctx context.Context, participantID, username string) (participant.Record, error) {
	participantID = strings.TrimSpace(participantID)
	username = strings.TrimSpace(username)
	if participantID == "" {
		return participant.Record{}, participant.ErrInvalidParticipantID
	}
	if username == "" {
		return participant.Record{}, ErrUsernameRequired
	}

	log := s.logger.With().
		Str(logger.KeyOperation, "register").
		Str(logger.KeyParticipantID, participantID).
		Str(logger.KeyUsername, username).
		Logger()

	stats, err := s.fetcher.Fetch(ctx, username)
	if err != nil {
		log.Info().Err(err).Msg("verification failed")
		return participant.Record{}, &VerificationError{Username: username, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	previous, existed := s.store.Get(participantID)
	registeredAt := now
	if existed && !previous.RegisteredAt.IsZero() {
		registeredAt = previous.RegisteredAt
	}

	record, err := participant.NewRecord(participantID, username, registeredAt, stats, now)
	if err != nil {
		return participant.Record{}, err
	}
	if err := s.store.Upsert(participantID, record); err != nil {
		return participant.Record{}, err
	}

	if err := s.store.Persist(ctx); err != nil {
		if existed {
			_ = s.store.Upsert(participantID, previous)
		} else {
			s.store.Remove(participantID)
		}
		log.Error().Err(err).Msg("failed to persist registration")
		return participant.Record{}, fmt.Errorf("register %s: %w", participantID, err)
	}

	log.Info().Bool("re_registered", existed).Int("total_solved", record.TotalSolved).Msg("participant registered")
	return record, nil
}

// Unregister removes participantID and reports whether it was registered.
// When persisting fails the participant stays removed in memory and the
// next successful persist saves the removal.
func (s *Service) Unregister(ctx context.Context, participantID string) (bool, error) {
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return false, participant.ErrInvalidParticipantID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.store.Remove(participantID) {
		return false, nil
	}

	log := s.logger.With().Str(logger.KeyOperation, "unregister").Str(logger.KeyParticipantID, participantID).Logger()
	if err := s.store.Persist(ctx); err != nil {
		log.Error().Err(err).Msg("failed to persist removal")
		return true, fmt.Errorf("unregister %s: %w", participantID, err)
	}
	log.Info().Msg("participant unregistered")
	return true, nil
}
