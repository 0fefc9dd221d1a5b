package scrapper

import (
	"errors"
	"fmt"
)

var (
	// Configuration errors.
	ErrNoStore         = errors.New("scrapper: no store configured")
	ErrNoBroker        = errors.New("scrapper: no broker configured")
	ErrInvalidConfig   = errors.New("scrapper: invalid config")
	ErrMigrationFailed = errors.New("scrapper: migration failed")

	// Infrastructure errors. Returned once bounded infrastructure retries
	// are exhausted or the circuit breaker is open.
	ErrStoreUnavailable  = errors.New("scrapper: store unavailable")
	ErrBrokerUnavailable = errors.New("scrapper: broker unavailable")

	// Not found errors.
	ErrJobNotFound      = errors.New("scrapper: job not found")
	ErrScheduleNotFound = errors.New("scrapper: schedule not found")

	// Conflict errors.
	ErrJobAlreadyExists  = errors.New("scrapper: job already exists")
	ErrDuplicateSchedule = errors.New("scrapper: duplicate schedule")
	ErrStateConflict     = errors.New("scrapper: job state changed concurrently")

	// State errors.
	ErrInvalidTransition = errors.New("scrapper: invalid state transition")
	ErrJobTerminal       = errors.New("scrapper: job is in a terminal state")

	// Submission errors.
	ErrValidation      = errors.New("scrapper: validation failed")
	ErrUnknownStrategy = errors.New("scrapper: unknown strategy")
)

// ValidationError describes a rejected submission. It matches ErrValidation
// with errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("scrapper: validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("scrapper: validation failed: %s: %s", e.Field, e.Reason)
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
