package job

import (
	"context"
	"fmt"
	"time"

	scrapper "github.com/rahulsharmaah/content-scrapper"
)

// Transition moves cur to state to, applying mutate to a copy first, and
// persists the result conditioned on cur's state and attempts. cur is left
// untouched; the persisted copy is returned.
func Transition(ctx context.Context, s Store, cur *Job, to State, mutate func(*Job)) (*Job, error) {
	if cur.State.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is %s", scrapper.ErrJobTerminal, cur.ID, cur.State)
	}
	if !CanTransition(cur.State, to) {
		return nil, fmt.Errorf("%w: %s → %s", scrapper.ErrInvalidTransition, cur.State, to)
	}

	next := cur.Clone()
	next.State = to
	if mutate != nil {
		mutate(next)
	}
	if next.Attempts > next.MaxAttempts {
		return nil, fmt.Errorf("%w: attempts %d exceed budget %d", scrapper.ErrInvalidTransition, next.Attempts, next.MaxAttempts)
	}
	next.UpdatedAt = time.Now().UTC()

	if err := s.UpdateJobIf(ctx, next, ExpectOf(cur)); err != nil {
		return nil, err
	}
	return next, nil
}
