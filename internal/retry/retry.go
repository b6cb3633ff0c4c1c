// Package retry runs an operation under exponential backoff with additive jitter.
package retry

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy configures Do. A policy with MaxRetries n makes at most n+1 attempts.
// The delay before retry k (1-based) is BaseDelay*2^(k-1) plus a uniform
// jitter in [0, MaxJitter).
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxJitter  time.Duration
	// Retryable reports whether an error is worth another attempt. A nil
	// Retryable treats every error as retryable.
	Retryable func(error) bool
}

// DefaultPolicy is three retries from a one second base with up to one second
// of jitter.
var DefaultPolicy = Policy{MaxRetries: 3, BaseDelay: time.Second, MaxJitter: time.Second}

// IsZero reports whether no attempt or delay setting was given.
func (p Policy) IsZero() bool {
	return p.MaxRetries == 0 && p.BaseDelay == 0 && p.MaxJitter == 0
}

// Notify is called before each sleep with the error that caused the retry.
type Notify func(err error, delay time.Duration)

// Do calls op until it succeeds, fails with a non-retryable error, exhausts
// the policy, or ctx is done. The last error is returned unwrapped.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error), notify Notify) (T, error) {
	operation := func() (T, error) {
		v, err := op(ctx)
		if err != nil && p.Retryable != nil && !p.Retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	var b backoff.BackOff = &exponentialJitter{base: p.BaseDelay, jitter: p.MaxJitter}
	b = backoff.WithMaxRetries(b, uint64(max(p.MaxRetries, 0)))
	b = backoff.WithContext(b, ctx)

	return backoff.RetryNotifyWithData(operation, b, backoff.Notify(notify))
}

// Delay returns the backoff before retry k without jitter.
func (p Policy) Delay(k int) time.Duration {
	if k < 1 {
		return 0
	}
	return p.BaseDelay << (k - 1)
}

type exponentialJitter struct {
	base    time.Duration
	jitter  time.Duration
	attempt int
}

func (b *exponentialJitter) NextBackOff() time.Duration {
	b.attempt++
	d := b.base << (b.attempt - 1)
	if b.jitter > 0 {
		d += rand.N(b.jitter)
	}
	return d
}

func (b *exponentialJitter) Reset() {
	b.attempt = 0
}
