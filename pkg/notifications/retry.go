package notifications

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes the delay before retry number attempt (1-based).
type Backoff interface {
	NextInterval(attempt int) time.Duration
}

// ExponentialBackoff grows Initial by Multiplier per attempt, spreads it by
// ±JitterFactor and caps it at Max.
type ExponentialBackoff struct {
	Initial      time.Duration
	Max          time.Duration
	Multiplier   float64
	JitterFactor float64
}

func (e ExponentialBackoff) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	initial := e.Initial
	if initial <= 0 {
		initial = 2 * time.Second
	}
	ceiling := e.Max
	if ceiling <= 0 {
		ceiling = 5 * time.Minute
	}
	mult := e.Multiplier
	if mult <= 0 {
		mult = 2
	}

	interval := float64(initial) * math.Pow(mult, float64(attempt-1))
	if e.JitterFactor > 0 {
		interval *= 1 + (rand.Float64()*2-1)*e.JitterFactor
	}
	if interval > float64(ceiling) {
		interval = float64(ceiling)
	}
	return time.Duration(interval)
}

// FixedBackoff waits Interval before every retry.
type FixedBackoff struct {
	Interval time.Duration
}

func (f FixedBackoff) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return f.Interval
}

// RetryPolicy bounds delivery retries for one channel attempt.
type RetryPolicy struct {
	// MaxAttempts counts sink calls, including the first.
	MaxAttempts int
	Backoff     Backoff
	// MaxDelay caps both computed delays and Retry-After hints.
	MaxDelay time.Duration
}

// DefaultRetryPolicy is 6 attempts, 2s base doubling with 20% jitter, 5m cap.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 6,
		Backoff: ExponentialBackoff{
			Initial:      2 * time.Second,
			Max:          5 * time.Minute,
			Multiplier:   2,
			JitterFactor: 0.2,
		},
		MaxDelay: 5 * time.Minute,
	}
}

// Exhausted reports whether no retry remains after attemptCount calls.
func (p RetryPolicy) Exhausted(attemptCount int) bool {
	return attemptCount >= max(p.MaxAttempts, 1)
}

// Delay returns the wait before the next call. A positive hint from the
// sink wins over the backoff when it is longer.
func (p RetryPolicy) Delay(attemptCount int, hint time.Duration) time.Duration {
	var d time.Duration
	if p.Backoff != nil {
		d = p.Backoff.NextInterval(attemptCount)
	}
	if hint > d {
		d = hint
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}
