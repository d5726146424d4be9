package application

import (
	"time"

	"github.com/juju/retry"
)

// Retry defaults. A candidate gets its first attempt plus defaultMaxRetries.
const (
	defaultMaxRetries  = 3
	defaultMaxAttempts = defaultMaxRetries + 1
	defaultMinBackoff  = time.Minute
	defaultMaxBackoff  = 30 * time.Minute
	backoffFactor      = 2
)

// RetryPolicy bounds how often a failed candidate is attempted again and
// how long it waits between attempts. MaxAttempts counts the first attempt.
type RetryPolicy struct {
	MaxAttempts int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
}

// NewRetryPolicy builds a policy allowing maxRetries attempts after the first.
func NewRetryPolicy(maxRetries int, minBackoff, maxBackoff time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: max(maxRetries, 0) + 1,
		MinBackoff:  minBackoff,
		MaxBackoff:  maxBackoff,
	}
}

// DefaultRetryPolicy returns one attempt plus three retries with backoff
// from one to thirty minutes.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: defaultMaxAttempts,
		MinBackoff:  defaultMinBackoff,
		MaxBackoff:  defaultMaxBackoff,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.MinBackoff <= 0 {
		p.MinBackoff = d.MinBackoff
	}
	if p.MaxBackoff < p.MinBackoff {
		p.MaxBackoff = max(d.MaxBackoff, p.MinBackoff)
	}
	return p
}

// Exhausted reports whether attempts has used up the budget.
func (p RetryPolicy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}

// Backoff returns the wait after the given number of failed attempts.
func (p RetryPolicy) Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := retry.ExpBackoff(p.MinBackoff, p.MaxBackoff, backoffFactor, false)(0, attempts-1)
	return min(max(d, p.MinBackoff), p.MaxBackoff)
}

// NextAttemptAt returns when a candidate that has failed attempts times may
// be tried again.
func (p RetryPolicy) NextAttemptAt(now time.Time, attempts int) time.Time {
	return now.Add(p.Backoff(attempts))
}
