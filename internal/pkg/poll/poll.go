// Package poll provides a deadline-bounded retry combinator for status checks.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned when the budget elapses before the check reports done.
var ErrTimeout = errors.New("poll: budget exhausted")

// Config bounds a polling loop.
type Config struct {
	// Interval is the fixed delay before every check.
	Interval time.Duration
	// Budget is the maximum wall-clock time spent waiting.
	Budget time.Duration
}

// CheckFunc reports whether the awaited condition holds. attempt starts at 1.
// A non-nil error is treated as transient unless wrapped with Permanent.
type CheckFunc func(ctx context.Context, attempt int) (done bool, err error)

// OnErrorFunc observes transient check errors.
type OnErrorFunc func(attempt int, err error)

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as terminal: Until stops and returns it unwrapped.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Until waits Interval, runs check, and repeats until check reports done, a permanent
// error occurs, parent is cancelled or Budget elapses. The context passed to check expires
// with the budget, so a stalled check is cut off at the deadline. A timeout returns
// after at least Budget and at most Budget+Interval, provided check honours its
// context. It returns the number of checks performed.
func Until(parent context.Context, cfg Config, check CheckFunc, onError OnErrorFunc) (int, error) {
	if cfg.Interval <= 0 {
		return 0, fmt.Errorf("poll: interval must be positive")
	}
	deadline := time.Now().Add(cfg.Budget)
	ctx, cancel := context.WithDeadline(parent, deadline)
	defer cancel()

	timer := time.NewTimer(cfg.Interval)
	defer timer.Stop()

	var lastErr error
	// expired maps a done ctx to the caller's error, or to ErrTimeout when only the
	// budget ran out.
	expired := func() error {
		if err := parent.Err(); err != nil {
			return err
		}
		if lastErr != nil {
			return fmt.Errorf("%w (last check error: %v)", ErrTimeout, lastErr)
		}
		return ErrTimeout
	}

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return attempt - 1, expired()
		case <-timer.C:
		}

		done, err := check(ctx, attempt)
		if err != nil {
			var perm *permanentError
			if errors.As(err, &perm) {
				return attempt, perm.err
			}
			if ctx.Err() != nil {
				lastErr = err
				return attempt, expired()
			}
			lastErr = err
			if onError != nil {
				onError(attempt, err)
			}
		} else {
			if done {
				return attempt, nil
			}
			lastErr = nil
		}

		if !time.Now().Before(deadline) {
			return attempt, expired()
		}
		timer.Reset(cfg.Interval)
	}
}
