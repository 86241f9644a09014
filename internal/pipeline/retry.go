package pipeline

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds the attempts of one unit of work
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      float64
}

// DefaultRetryPolicy allows three attempts with 2s, 4s backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2,
	}
}

// CanRetry reports whether another attempt may follow the given one.
func (p RetryPolicy) CanRetry(attempt int) bool {
	return attempt < p.MaxAttempts
}

// Delay returns the wait before attempt number next (2 for the first retry).
func (p RetryPolicy) Delay(next int) time.Duration {
	if next <= 1 || p.BaseDelay <= 0 {
		return 0
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.RandomizationFactor = p.Jitter
	b.Multiplier = p.Multiplier
	if b.Multiplier < 1 {
		b.Multiplier = 1
	}
	b.MaxInterval = p.MaxDelay
	if b.MaxInterval < p.BaseDelay {
		b.MaxInterval = p.BaseDelay
	}
	b.MaxElapsedTime = 0
	b.Reset()

	var d time.Duration
	for i := 1; i < next; i++ {
		d = b.NextBackOff()
	}
	return d
}
