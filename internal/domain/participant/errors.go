package participant

import (
	"fmt"

	"github.com/leetbuddy/challenge-tracker/internal/domain/shared"
)

// Participant domain errors.
var (
	ErrNotFound             = shared.NewDomainError("participant", "Find", shared.ErrNotFound, "participant not found")
	ErrInvalidParticipantID = shared.NewDomainError("participant", "Validate", shared.ErrInvalidInput, "participant id is empty")
	ErrEmptyUsername        = shared.NewDomainError("participant", "Validate", shared.ErrEmptyValue, "tracked username is empty")
	ErrNegativeCount        = shared.NewDomainError("participant", "Validate", shared.ErrNegativeValue, "solved counts cannot be negative")
	ErrIDMismatch           = shared.NewDomainError("participant", "Upsert", shared.ErrInvalidInput, "record id does not match key")

	// ErrCorrupt means the backing store exists but cannot be decoded.
	ErrCorrupt = shared.NewDomainError("participant", "Load", shared.ErrInvalidFormat, "backing store is corrupt")
)

// StoreError reports a failed load or persist.
type StoreError struct {
	Op      string // "load" or "persist"
	Backend string
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("participant store %s (%s): %v", e.Op, e.Backend, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Corruptf builds an error that matches ErrCorrupt. The format may use %w.
func Corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrCorrupt}, args...)...)
}
