package strategy

import (
	"errors"
	"fmt"

	"github.com/rahulsharmaah/content-scrapper/job"
)

// Error is a classified strategy failure.
type Error struct {
	Kind    job.FailureKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return e.Message
	case e.Message == "":
		return e.Err.Error()
	default:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Recoverable wraps err as a failure worth retrying.
func Recoverable(msg string, err error) error {
	return &Error{Kind: job.KindRecoverable, Message: msg, Err: err}
}

// NonRecoverable wraps err as a failure that retrying cannot fix.
func NonRecoverable(msg string, err error) error {
	return &Error{Kind: job.KindNonRecoverable, Message: msg, Err: err}
}

// Classify maps err to a failure kind. Unclassified errors, deadlines and
// cancellations are recoverable.
func Classify(err error) job.FailureKind {
	var se *Error
	if errors.As(err, &se) && se.Kind != "" {
		return se.Kind
	}
	return job.KindRecoverable
}
