package backend

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/aristath/simcampaign/internal/log"
)

// BreakerConfig configures the circuit breaker placed around scheduler submissions.
// A scheduler that keeps rejecting submissions is left alone for OpenTimeout instead
// of being hammered on every poll.
type BreakerConfig struct {
	ConsecutiveFailures uint32        // failures that open the breaker (default 5)
	OpenTimeout         time.Duration // time spent open before probing again (default 30s)
	HalfOpenRequests    uint32        // submissions allowed while probing (default 1)
}

func (c *BreakerConfig) defaults() {
	if c.ConsecutiveFailures == 0 {
		c.ConsecutiveFailures = 5
	}
	if c.OpenTimeout == 0 {
		c.OpenTimeout = 30 * time.Second
	}
	if c.HalfOpenRequests == 0 {
		c.HalfOpenRequests = 1
	}
}

// ErrBreakerOpen is returned when a submission is refused because the breaker is open.
var ErrBreakerOpen = errors.New("cluster submissions suspended after repeated failures")

func newBreaker(name string, cfg BreakerConfig, logger log.Logger) *gobreaker.CircuitBreaker {
	cfg.defaults()
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warningf("circuit breaker %q: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			// Shutdown is not a scheduler failure.
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})
}

// throughBreaker runs fn under cb and maps the breaker's refusal errors to ErrBreakerOpen.
func throughBreaker[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	out, err := cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, errors.Join(ErrBreakerOpen, err)
		}
		if out != nil {
			return out.(T), err
		}
		return zero, err
	}
	return out.(T), nil
}
