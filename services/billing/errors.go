package billing

import (
	"errors"
	"fmt"

	"danceportal_go/repository"
	"danceportal_go/services/processor"
)

// Error taxonomy. Every error returned by Service wraps exactly one of these.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("invalid state")
	ErrValidation        = errors.New("validation failed")
	ErrUpstreamProcessor = errors.New("payment processor error")
)

// ErrLockHeld is returned by a Locker when another holder owns the key.
var ErrLockHeld = fmt.Errorf("%w: operation already in progress", ErrInvalidState)

func notFound(what string, id uint) error {
	return fmt.Errorf("%w: %s %d", ErrNotFound, what, id)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func badState(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

// lookup translates a store miss into ErrNotFound for the named entity.
func lookup(what string, id uint, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(what, id)
	}
	return err
}

// upstream wraps a processor failure. The original *processor.Error stays
// reachable so callers can ask processor.IsRetryable.
func upstream(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUpstreamProcessor, op, err)
}

// IsRetryable reports whether err is a processor failure worth repeating.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUpstreamProcessor) && processor.IsRetryable(err)
}
