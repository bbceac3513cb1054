package paysim

import "time"

// Config holds the configuration for an Engine.
type Config struct {
	// MaxAttempts is the number of delivery attempts per webhook and event.
	MaxAttempts int

	// RequestTimeout is the HTTP timeout per delivery attempt.
	RequestTimeout time.Duration

	// Debounce is waited before the first attempt of every scheduled event.
	// A negative value disables it.
	Debounce time.Duration

	// BackoffBase scales the wait between attempts: attempt k is followed by
	// a pause of BackoffBase * 2^k.
	BackoffBase time.Duration

	// DeliveryRPS paces the attempts sent to any single webhook. 0 leaves
	// deliveries unpaced.
	DeliveryRPS float64

	// DeliveryBurst is the number of attempts a webhook may receive back to
	// back before pacing applies.
	DeliveryBurst int

	// LogCapacity bounds the delivery log. 0 keeps every entry.
	LogCapacity int

	// SchedulerTick is the pause between background job evaluations.
	SchedulerTick time.Duration

	// HonorIntervals lets jobs with intervals shorter than SchedulerTick run
	// on time.
	HonorIntervals bool

	// DedupePeriods prevents metered billing from billing the same
	// subscription period twice.
	DedupePeriods bool

	// DisableJobs skips registering the default billing jobs.
	DisableJobs bool

	// ShutdownTimeout bounds how long Stop waits for in-flight deliveries.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     3,
		RequestTimeout:  30 * time.Second,
		Debounce:        1 * time.Second,
		BackoffBase:     1 * time.Second,
		LogCapacity:     0,
		SchedulerTick:   60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}
