package retry

import (
	"context"
	"errors"
	"time"
)

// DelayHinter is implemented by errors that carry a provider-supplied retry
// delay, such as a 429 with a Retry-After header. The hint takes precedence
// over the policy's backoff function, bounded by MaxDelay.
type DelayHinter interface {
	RetryDelay() time.Duration
}

// Policy is a reusable retry strategy shared by the email and analysis
// paths: a bounded attempt count, a backoff function, and a predicate that
// decides which errors are worth retrying.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// Backoff returns the wait before the given retry (attempt starts at 1
	// for the first retry).
	Backoff func(attempt int) time.Duration
	// MaxDelay caps any single wait, including provider-supplied hints.
	MaxDelay time.Duration
	// Retryable reports whether the error is transient. A nil predicate
	// retries everything.
	Retryable func(err error) bool
	// Sleep is injectable for tests. Defaults to a context-aware wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

// ExponentialBackoff doubles the base wait on every retry: base, 2*base,
// 4*base, ...
func ExponentialBackoff(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return base << (attempt - 1)
	}
}

// Do runs op until it succeeds, exhausts the attempt budget, the error is
// not retryable, or the context ends. The last error is returned.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = waitCtx
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		if p.Retryable != nil && !p.Retryable(err) {
			break
		}
		if serr := sleep(ctx, p.delayFor(err, attempt)); serr != nil {
			return err
		}
	}
	return err
}

func (p Policy) delayFor(err error, attempt int) time.Duration {
	var d time.Duration
	var h DelayHinter
	if errors.As(err, &h) && h.RetryDelay() > 0 {
		d = h.RetryDelay()
	} else if p.Backoff != nil {
		d = p.Backoff(attempt)
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

func waitCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
