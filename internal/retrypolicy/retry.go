// Package retrypolicy computes backoff schedules for failed tasks and
// failed work-item claims (spec.md §4.2/P2).
package retrypolicy

import (
	"math"
	"math/rand"
	"time"

	"github.com/delacruz/cliflow-go/internal/model"
)

// Policy defines the exponential-backoff-with-jitter retry behavior shared
// by task retries and work-item reschedules.
type Policy struct {
	InitialBackoff time.Duration // backoff applied after the first failure
	MaxBackoff     time.Duration // ceiling on any computed backoff
	BackoffFactor  float64       // multiplier applied per additional attempt
	JitterFactor   float64       // random jitter, 0.0 to 1.0
}

// Default returns the policy matching spec.md §6's defaults: a 30s base
// backoff doubling up to a 5 minute ceiling.
func Default() *Policy {
	return &Policy{
		InitialBackoff: 30 * time.Second,
		MaxBackoff:     5 * time.Minute,
		BackoffFactor:  2.0,
		JitterFactor:   0.1,
	}
}

// CalculateBackoff returns the backoff duration for the given 0-based
// attempt number (the number of prior failures).
func (p *Policy) CalculateBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		return p.InitialBackoff
	}

	backoff := float64(p.InitialBackoff) * math.Pow(p.BackoffFactor, float64(attempt))
	if backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}

	if p.JitterFactor > 0 {
		jitter := backoff * p.JitterFactor * (rand.Float64()*2 - 1)
		backoff += jitter
	}

	if backoff < 0 {
		backoff = float64(p.InitialBackoff)
	}

	return time.Duration(backoff)
}

// ShouldRetry reports whether a task has retry budget left.
func (p *Policy) ShouldRetry(t *model.TaskData) bool {
	return t.CanRetry()
}

// NextRetryTime computes when a failed task should be attempted again,
// relative to now.
func (p *Policy) NextRetryTime(now time.Time, t *model.TaskData) time.Time {
	return now.Add(p.CalculateBackoff(t.RetryCount))
}

// NextExecutionTime computes when a failed work item should next become
// due, relative to now, based on its consecutive-failure count.
func (p *Policy) NextExecutionTime(now time.Time, consecutiveFailures int) time.Time {
	return now.Add(p.CalculateBackoff(consecutiveFailures))
}

// Decision captures the outcome of evaluating a task failure against the
// policy.
type Decision struct {
	ShouldRetry  bool
	NextRetryAt  time.Time
	BackoffDelay time.Duration
	AttemptsLeft int
}

// Evaluate returns the full retry decision for a failed task at the given
// reference time.
func (p *Policy) Evaluate(now time.Time, t *model.TaskData) Decision {
	should := p.ShouldRetry(t)
	backoff := p.CalculateBackoff(t.RetryCount)

	return Decision{
		ShouldRetry:  should,
		NextRetryAt:  now.Add(backoff),
		BackoffDelay: backoff,
		AttemptsLeft: t.MaxRetries - t.RetryCount,
	}
}
