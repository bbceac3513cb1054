package paysim

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/xraph/paysim/billing"
	"github.com/xraph/paysim/observability"
	"github.com/xraph/paysim/store"
)

// Option configures an Engine.
type Option func(*Engine) error

// WithStore sets the object store backend.
func WithStore(s store.Store) Option {
	return func(e *Engine) error {
		e.store = s
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		e.logger = logger
		return nil
	}
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(e *Engine) error {
		e.config = cfg
		return nil
	}
}

// WithMetrics records Prometheus metrics for deliveries and jobs.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) error {
		e.metrics = m
		return nil
	}
}

// WithTracer traces delivery attempts and job runs.
func WithTracer(t *observability.Tracer) Option {
	return func(e *Engine) error {
		e.tracer = t
		return nil
	}
}

// WithHTTPClient sets the client used for webhook delivery.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) error {
		e.httpClient = c
		return nil
	}
}

// WithClock sets the time source for timestamps and job due checks.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) error {
		e.now = now
		return nil
	}
}

// WithFinalizer replaces how the invoice job finalizes a draft invoice.
func WithFinalizer(f billing.Finalizer) Option {
	return func(e *Engine) error {
		e.finalizer = f
		return nil
	}
}

// WithMaxAttempts sets the number of delivery attempts per webhook.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) error {
		e.config.MaxAttempts = n
		return nil
	}
}

// WithRequestTimeout sets the HTTP timeout per delivery attempt.
func WithRequestTimeout(d time.Duration) Option {
	return func(e *Engine) error {
		e.config.RequestTimeout = d
		return nil
	}
}

// WithLogCapacity bounds the delivery log.
func WithLogCapacity(n int) Option {
	return func(e *Engine) error {
		e.config.LogCapacity = n
		return nil
	}
}

// WithShutdownTimeout sets the maximum time Stop waits for in-flight deliveries.
func WithShutdownTimeout(d time.Duration) Option {
	return func(e *Engine) error {
		e.config.ShutdownTimeout = d
		return nil
	}
}
