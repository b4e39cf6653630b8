package retry

import (
	"context"
	"time"

	"library-sync/core/errs"

	"github.com/cenkalti/backoff/v4"
)

const jitterFactor = 0.5

// Policy retries a fallible operation with exponential backoff, a bounded number of times.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	Jitter      bool
	// Retryable decides whether a failure is worth another attempt.
	// Defaults to errs.Retryable.
	Retryable func(error) bool
	// OnRetry is called before every wait with the failed attempt number.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// New builds a Policy from configuration, filling zero values with safe defaults.
func New(cfg Config) Policy {
	p := Policy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		Multiplier:  cfg.Multiplier,
		MaxDelay:    cfg.MaxDelay,
		Jitter:      cfg.Jitter,
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 100 * time.Millisecond
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// Do runs op until it succeeds, fails with a non-retryable error or the attempts run out.
// Exhaustion returns *errs.MaxRetriesExceeded wrapping the last failure.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	retryable := p.Retryable
	if retryable == nil {
		retryable = errs.Retryable
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var (
		attempts  int
		lastErr   error
		permanent bool
	)

	operation := func() error {
		attempts++
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) {
			permanent = true
			return backoff.Permanent(err)
		}
		return err
	}

	var notify backoff.Notify
	if p.OnRetry != nil {
		notify = func(err error, wait time.Duration) {
			p.OnRetry(attempts, err, wait)
		}
	}

	b := backoff.WithContext(backoff.WithMaxRetries(p.backOff(), uint64(maxAttempts-1)), ctx)
	err := backoff.RetryNotify(operation, b, notify)
	switch {
	case err == nil:
		return nil
	case permanent:
		return lastErr
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return &errs.MaxRetriesExceeded{Attempts: attempts, Cause: lastErr}
	}
}

func (p Policy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = p.Multiplier
	b.MaxInterval = p.MaxDelay
	b.MaxElapsedTime = 0
	b.RandomizationFactor = 0
	if p.Jitter {
		b.RandomizationFactor = jitterFactor
	}
	b.Reset()
	return b
}
