package worker

import (
	"context"
	"math"
	"time"
)

// RetryPolicy is an exponential backoff used by outbound deliveries (email).
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// Attempts is the total number of tries, never less than one.
func (r RetryPolicy) Attempts() int {
	if r.MaxRetries < 1 {
		return 1
	}
	return r.MaxRetries
}

// NextDelay returns the pause after the given failed attempt (1-based).
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = time.Second
	}
	if r.BackoffFactor <= 0 {
		r.BackoffFactor = 2
	}

	d := time.Duration(float64(r.InitialDelay) * math.Pow(r.BackoffFactor, float64(attempt-1)))
	if r.MaxDelay > 0 && d > r.MaxDelay {
		d = r.MaxDelay
	}
	if d <= 0 {
		d = time.Second
	}
	return d
}

// Do calls fn until it succeeds or attempts run out and returns the last error.
// Cancelling ctx while waiting between attempts returns ctx.Err().
func (r RetryPolicy) Do(ctx context.Context, fn func(attempt int) error) error {
	var err error
	attempts := r.Attempts()
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(r.NextDelay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
