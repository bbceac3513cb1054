package delivery

import "time"

// Decision is the outcome of evaluating a delivery attempt.
type Decision int

const (
	// Delivered means the attempt got a 2xx response.
	Delivered Decision = iota

	// Retry means another attempt should be made after Delay.
	Retry

	// GiveUp means the attempt budget is exhausted.
	GiveUp
)

func (d Decision) String() string {
	switch d {
	case Delivered:
		return "delivered"
	case Retry:
		return "retry"
	default:
		return "give_up"
	}
}

// Retrier decides what to do after a delivery attempt.
type Retrier struct {
	maxAttempts int
	base        time.Duration
}

// NewRetrier creates a retrier allowing maxAttempts attempts in total, the
// wait before attempt k+1 being base * 2^k.
func NewRetrier(maxAttempts int, base time.Duration) *Retrier {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Retrier{maxAttempts: maxAttempts, base: base}
}

// MaxAttempts returns the attempt budget.
func (r *Retrier) MaxAttempts() int { return r.maxAttempts }

// Decide determines what follows the given 1-based attempt. Every non-2xx
// outcome, including connection errors, is retried until the budget runs out.
func (r *Retrier) Decide(res Result, attempt int) Decision {
	if res.OK() {
		return Delivered
	}
	if attempt < r.maxAttempts {
		return Retry
	}
	return GiveUp
}

// Delay returns how long to wait after the given 1-based attempt.
func (r *Retrier) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return r.base << uint(attempt)
}
