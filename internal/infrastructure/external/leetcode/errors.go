package leetcode

import (
	"fmt"

	"github.com/leetbuddy/challenge-tracker/internal/domain/shared"
)

// Kind classifies a failed lookup.
type Kind int

const (
	// KindUnreachable covers transport errors, timeouts, throttling, 5xx
	// responses and an open circuit. Only this kind is retried.
	KindUnreachable Kind = iota + 1
	// KindMalformed means the response parsed but lacked required fields.
	KindMalformed
	// KindUnknownIdentity means the service says the profile does not exist.
	KindUnknownIdentity
)

func (k Kind) String() string {
	switch k {
	case KindUnreachable:
		return "unreachable"
	case KindMalformed:
		return "malformed"
	case KindUnknownIdentity:
		return "unknown_identity"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is.
var (
	ErrUnreachable     = shared.NewDomainError("leetcode", "Fetch", shared.ErrServiceUnavailable, "service unreachable")
	ErrMalformed       = shared.NewDomainError("leetcode", "Parse", shared.ErrInvalidFormat, "malformed response")
	ErrUnknownIdentity = shared.NewDomainError("leetcode", "Fetch", shared.ErrNotFound, "no such profile")
)

func (k Kind) sentinel() error {
	switch k {
	case KindUnreachable:
		return ErrUnreachable
	case KindMalformed:
		return ErrMalformed
	default:
		return ErrUnknownIdentity
	}
}

// FetchError is returned by Client.Fetch for every failure.
type FetchError struct {
	Kind     Kind
	Username string
	Err      error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch %q: %s", e.Username, e.Kind)
	}
	return fmt.Sprintf("fetch %q: %s: %v", e.Username, e.Kind, e.Err)
}

// Unwrap exposes both the kind sentinel and the cause.
func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

func unreachable(username string, err error) *FetchError {
	return &FetchError{Kind: KindUnreachable, Username: username, Err: err}
}

func malformed(username string, err error) *FetchError {
	return &FetchError{Kind: KindMalformed, Username: username, Err: err}
}

func unknownIdentity(username string, err error) *FetchError {
	return &FetchError{Kind: KindUnknownIdentity, Username: username, Err: err}
}
