package services

import (
	"errors"
	"fmt"

	"danceportal_go/repository"
	"danceportal_go/services/billing"
)

// The facades share the billing error taxonomy so handlers map every
// failure through one table.
var (
	ErrNotFound     = billing.ErrNotFound
	ErrInvalidState = billing.ErrInvalidState
	ErrValidation   = billing.ErrValidation
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

// missing translates a store miss into ErrNotFound for the named entity.
func missing(what string, id uint, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s %d", ErrNotFound, what, id)
	}
	return err
}
