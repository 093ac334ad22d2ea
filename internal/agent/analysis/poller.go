package analysis

import (
	"context"
	"math/rand"
	"time"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultMaxAttempts  = 60
)

// BackoffFunc returns the wait before the attempt following attempt (1-based).
type BackoffFunc func(attempt int) time.Duration

// ConstantBackoff waits the same interval between every attempt.
func ConstantBackoff(interval time.Duration) BackoffFunc {
	return func(int) time.Duration { return interval }
}

// ExponentialBackoff doubles the wait per attempt up to max and applies up
// to 20% random jitter. Total wait stays bounded by MaxAttempts * max.
func ExponentialBackoff(base, max time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		d := base
		for i := 1; i < attempt && d < max; i++ {
			d *= 2
		}
		if d > max {
			d = max
		}
		if jitter := int64(d) / 5; jitter > 0 {
			d -= time.Duration(rand.Int63n(jitter))
		}
		return d
	}
}

// WaitFunc suspends for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

func timerWait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InspectFunc queries an operation once.
type InspectFunc func(ctx context.Context) (*Observation, error)

// Poller drives one operation to a terminal state. A Poller holds no state
// between calls to Poll.
type Poller struct {
	MaxAttempts int
	Backoff     BackoffFunc
	Wait        WaitFunc
	// OnAttempt, if set, observes every inspected status.
	OnAttempt func(attempt int, obs *Observation)
}

// Poll inspects handle until it succeeds, fails, or MaxAttempts is reached.
// On success the terminal observation is returned.
func (p *Poller) Poll(ctx context.Context, handle Handle, inspect InspectFunc) (*Observation, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	backoff := p.Backoff
	if backoff == nil {
		backoff = ConstantBackoff(DefaultPollInterval)
	}
	wait := p.Wait
	if wait == nil {
		wait = timerWait
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, p.cancelled(handle, attempt-1, maxAttempts, err)
		}

		obs, err := inspect(ctx)
		if err != nil {
			ae := classify(ctx, StepPoll, KindPollingTransportFailed, err)
			ae.Step = StepPoll
			ae.Handle = handle
			ae.Attempts = attempt
			ae.MaxAttempts = maxAttempts
			return nil, ae
		}

		if p.OnAttempt != nil {
			p.OnAttempt(attempt, obs)
		}

		switch obs.Status {
		case StatusSucceeded:
			return obs, nil
		case StatusFailed:
			detail := obs.Error
			if len(detail) == 0 {
				detail = obs.Raw
			}
			return nil, &Error{
				Kind:        KindServerReportedFailure,
				Step:        StepPoll,
				Detail:      detail,
				Handle:      handle,
				Attempts:    attempt,
				MaxAttempts: maxAttempts,
			}
		}

		if attempt < maxAttempts {
			if err := wait(ctx, backoff(attempt)); err != nil {
				return nil, p.cancelled(handle, attempt, maxAttempts, err)
			}
		}
	}

	return nil, &Error{
		Kind:        KindPollingTimeout,
		Step:        StepPoll,
		Handle:      handle,
		Attempts:    maxAttempts,
		MaxAttempts: maxAttempts,
	}
}

func (p *Poller) cancelled(handle Handle, attempts, maxAttempts int, err error) *Error {
	return &Error{
		Kind:        KindCancelled,
		Step:        StepPoll,
		Handle:      handle,
		Attempts:    attempts,
		MaxAttempts: maxAttempts,
		Err:         err,
	}
}
