package scheduler

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrLockRetriesExhausted is recorded on a step whose project stayed locked
// for more re-dispatches than RetryConfig.MaxAttempts allows.
var ErrLockRetriesExhausted = errors.New("project still locked after the maximum number of re-dispatches")

// RetryConfig controls re-dispatch after a lock error.
//
// The zero value re-dispatches on the next poll, forever.
type RetryConfig struct {
	MaxAttempts         int           // re-dispatches allowed per step, 0 for unbounded
	InitialInterval     time.Duration // delay before the first re-dispatch, 0 for none
	MaxInterval         time.Duration // cap on the delay (default 5m)
	Multiplier          float64       // growth between re-dispatches (default 2.0)
	RandomizationFactor float64       // jitter, 0 for none
}

func (c *RetryConfig) defaults() {
	if c.MaxInterval == 0 {
		c.MaxInterval = 5 * time.Minute
	}
	if c.Multiplier == 0 {
		c.Multiplier = 2.0
	}
}

// newBackOff creates the per-step delay sequence.
func (c RetryConfig) newBackOff() backoff.BackOff {
	var b backoff.BackOff = &backoff.ZeroBackOff{}
	if c.InitialInterval > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = c.InitialInterval
		exp.MaxInterval = c.MaxInterval
		exp.Multiplier = c.Multiplier
		exp.RandomizationFactor = c.RandomizationFactor
		exp.MaxElapsedTime = 0
		exp.Reset()
		b = exp
	}
	if c.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(c.MaxAttempts))
	}
	return b
}

// nextRetry returns the delay before step may be dispatched again, or false
// when its retries are exhausted.
func (c RetryConfig) nextRetry(step *Step) (time.Duration, bool) {
	if step.retry == nil {
		step.retry = c.newBackOff()
	}
	d := step.retry.NextBackOff()
	if d == backoff.Stop {
		return 0, false
	}
	return d, true
}
