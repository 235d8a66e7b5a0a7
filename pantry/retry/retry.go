// retry/retry.go
package retry

import (
	"context"
	"errors"
	"time"
)

// Policy configures a bounded retry loop.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Default: 3.
	MaxAttempts int

	// Backoff returns the delay after the given failed attempt (1-based).
	// Default: Exponential(time.Second), i.e. 2s, 4s, 8s...
	Backoff func(attempt int) time.Duration

	// RetryIf reports whether err is worth another attempt.
	// Default: every error that is not Permanent.
	RetryIf func(err error) bool

	// MaxRetryAfter caps delays requested by the remote side through
	// RetryAfter errors. Default: 60 seconds.
	MaxRetryAfter time.Duration

	// OnRetry is called before each wait.
	OnRetry func(attempt int, err error, delay time.Duration)

	// Sleep waits for d or until ctx is done. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy returns three attempts with 2^attempt second backoff.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:   3,
		Backoff:       Exponential(time.Second),
		MaxRetryAfter: time.Minute,
	}
}

// Exponential returns a backoff of base * 2^attempt.
func Exponential(base time.Duration) func(attempt int) time.Duration {
	return func(attempt int) time.Duration {
		if attempt < 0 {
			attempt = 0
		}
		if attempt > 16 {
			attempt = 16
		}
		return base * time.Duration(1<<attempt)
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, or the
// attempts are used up. It returns the number of attempts made and the last
// error. A cancelled ctx stops the loop and returns the last error seen, or
// ctx.Err() if fn never ran.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) (int, error) {
	p = p.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return attempt - 1, lastErr
			}
			return attempt - 1, err
		}

		err := fn(ctx, attempt)
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		if !p.RetryIf(err) || attempt == p.MaxAttempts {
			return attempt, err
		}

		delay := p.Backoff(attempt)
		if hint, ok := RetryAfter(err); ok {
			delay = min(hint, p.MaxRetryAfter)
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}
		if err := p.Sleep(ctx, delay); err != nil {
			return attempt, lastErr
		}
	}
	return p.MaxAttempts, lastErr
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.Backoff == nil {
		p.Backoff = Exponential(time.Second)
	}
	if p.RetryIf == nil {
		p.RetryIf = func(err error) bool { return !IsPermanent(err) }
	}
	if p.MaxRetryAfter <= 0 {
		p.MaxRetryAfter = time.Minute
	}
	if p.Sleep == nil {
		p.Sleep = sleepContext
	}
	return p
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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

// Permanent marks an error that must not be retried.
type Permanent struct {
	Err error
}

func (p *Permanent) Error() string {
	if p.Err == nil {
		return "permanent error"
	}
	return p.Err.Error()
}

func (p *Permanent) Unwrap() error { return p.Err }

// PermanentError wraps err so Do stops immediately. nil stays nil.
func PermanentError(err error) error {
	if err == nil {
		return nil
	}
	return &Permanent{Err: err}
}

// IsPermanent reports whether err is (or wraps) a Permanent error.
func IsPermanent(err error) bool {
	var p *Permanent
	return errors.As(err, &p)
}

// AfterError carries a server-requested delay (HTTP Retry-After or a
// retry_after body field). Do waits for it instead of the backoff.
type AfterError struct {
	Err   error
	After time.Duration
}

func (e *AfterError) Error() string { return e.Err.Error() }

func (e *AfterError) Unwrap() error { return e.Err }

// WithRetryAfter attaches a delay hint to err. Non-positive hints are dropped.
func WithRetryAfter(err error, after time.Duration) error {
	if err == nil || after <= 0 {
		return err
	}
	return &AfterError{Err: err, After: after}
}

// RetryAfter extracts a delay hint from err.
func RetryAfter(err error) (time.Duration, bool) {
	var ae *AfterError
	if errors.As(err, &ae) && ae.After > 0 {
		return ae.After, true
	}
	return 0, false
}
