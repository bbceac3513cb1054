package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/xraph/paysim/id"
	"github.com/xraph/paysim/object"
	"github.com/xraph/paysim/observability"
	"github.com/xraph/paysim/ratelimit"
	"github.com/xraph/paysim/store"
	"github.com/xraph/paysim/webhook"
)

// Config holds dispatcher tuning.
type Config struct {
	// MaxAttempts bounds the attempts per (webhook, event) pair. Default 3.
	MaxAttempts int

	// RequestTimeout bounds a single attempt. Default 30s.
	RequestTimeout time.Duration

	// Debounce is waited once before the first attempt of each scheduled
	// event. Default 1s; negative disables it.
	Debounce time.Duration

	// BackoffBase scales the wait before attempt k+1 (base * 2^k). Default 1s.
	BackoffBase time.Duration

	// Pacer, when set, spaces the attempts sent to each webhook. Buckets
	// are keyed by webhook id.
	Pacer *ratelimit.Limiter

	HTTPClient *http.Client
	Metrics    *observability.Metrics
	Tracer     *observability.Tracer

	// Now is the clock used for log timestamps. Default time.Now.
	Now func() time.Time
}

func (c *Config) defaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.Debounce == 0 {
		c.Debounce = time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Dispatcher delivers events to the webhooks of a registry.
type Dispatcher struct {
	registry *webhook.Registry
	log      *Log
	store    store.Store
	sender   *Sender
	retrier  *Retrier
	cfg      Config
	logger   *slog.Logger

	mu     sync.Mutex
	active int
	idle   chan struct{} // closed while active == 0
}

// NewDispatcher creates a dispatcher. The store is only consulted by Retry
// and may be nil.
func NewDispatcher(registry *webhook.Registry, log *Log, s store.Store, cfg Config, logger *slog.Logger) *Dispatcher {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: registry,
		log:      log,
		store:    s,
		sender:   NewSender(cfg.HTTPClient, cfg.RequestTimeout),
		retrier:  NewRetrier(cfg.MaxAttempts, cfg.BackoffBase),
		cfg:      cfg,
		logger:   logger,
		idle:     closedChan(),
	}
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Log returns the delivery log the dispatcher writes to.
func (d *Dispatcher) Log() *Log { return d.log }

// Job tracks the deliveries started for one event.
type Job struct {
	done chan struct{}
}

// Done is closed once every matching webhook has finished.
func (j *Job) Done() <-chan struct{} { return j.done }

// Wait blocks until the job is done or ctx ends.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Schedule starts delivering evt in the background and returns immediately.
func (d *Dispatcher) Schedule(evt *object.Event) {
	d.Dispatch(evt)
}

// Dispatch starts delivering evt in the background and returns a handle to
// wait for completion.
func (d *Dispatcher) Dispatch(evt *object.Event) *Job {
	job := &Job{done: make(chan struct{})}
	snapshot := *evt

	d.acquire()
	go func() {
		defer d.release()
		defer close(job.done)
		d.run(&snapshot)
	}()
	return job
}

// Retry re-dispatches the event behind a logged attempt to every webhook
// that currently matches it.
func (d *Dispatcher) Retry(ctx context.Context, logID string) (*Job, error) {
	entry, err := d.log.Get(logID)
	if err != nil {
		return nil, err
	}
	if d.store == nil {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, entry.EventID)
	}

	evt, err := store.Load[*object.Event](ctx, d.store, object.KindEvent, entry.EventID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrEventNotFound, entry.EventID)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrEventNotFound, entry.EventID, err)
	}
	return d.Dispatch(evt), nil
}

// Wait blocks until no delivery is in flight or ctx ends. It may be called
// concurrently with Dispatch and again after an earlier call timed out.
func (d *Dispatcher) Wait(ctx context.Context) error {
	for {
		d.mu.Lock()
		if d.active == 0 {
			d.mu.Unlock()
			return nil
		}
		idle := d.idle
		d.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Forget drops the pacing state kept for a webhook.
func (d *Dispatcher) Forget(webhookID string) {
	if d.cfg.Pacer != nil {
		d.cfg.Pacer.Reset(webhookID)
	}
}

func (d *Dispatcher) acquire() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == 0 {
		d.idle = make(chan struct{})
	}
	d.active++
}

func (d *Dispatcher) release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active--
	if d.active == 0 {
		close(d.idle)
	}
}

func (d *Dispatcher) run(evt *object.Event) {
	payload, err := evt.Payload()
	if err != nil {
		d.logger.Error("webhook payload encoding failed", "event_id", evt.ID, "error", err)
		return
	}

	if d.cfg.Debounce > 0 {
		time.Sleep(d.cfg.Debounce)
	}

	var wg sync.WaitGroup
	for _, wh := range d.registry.List() {
		if !wh.Accepts(evt) {
			continue
		}
		wg.Add(1)
		go func(wh webhook.Webhook) {
			defer wg.Done()
			d.deliver(evt, wh, payload)
		}(wh)
	}
	wg.Wait()
}

// deliver runs the sequential attempts for one webhook.
func (d *Dispatcher) deliver(evt *object.Event, wh webhook.Webhook, payload []byte) {
	d.cfg.Metrics.DeliveryStarted()
	defer d.cfg.Metrics.DeliveryDone()

	for attempt := 1; ; attempt++ {
		if err := d.cfg.Pacer.Wait(context.Background(), wh.ID); err != nil {
			d.logger.Warn("webhook pacing failed", "webhook_id", wh.ID, "error", err)
		}

		entryID := d.log.Append(Entry{
			ID:          id.NewWebhookLogID(),
			WebhookID:   wh.ID,
			EventType:   evt.Type,
			EventID:     evt.ID,
			URL:         wh.URL,
			Attempt:     attempt,
			Created:     d.cfg.Now().Unix(),
			RequestData: payload,
			AccountID:   evt.AccountID,
		})

		ctx, span := d.cfg.Tracer.StartAttemptSpan(context.Background(), evt.ID, wh.ID, attempt)
		res := d.sender.Send(ctx, Request{
			URL:       wh.URL,
			Secret:    wh.Secret,
			Timestamp: evt.Created,
			Body:      payload,
		})
		errMsg := ""
		if res.Err != nil {
			errMsg = res.Err.Error()
		}
		observability.EndAttemptSpan(span, res.StatusCode, res.LatencyMs, errMsg)

		decision := d.retrier.Decide(res, attempt)
		var delay time.Duration
		if decision == Retry {
			delay = d.retrier.Delay(attempt)
		}
		d.log.Update(entryID, func(e *Entry) {
			e.complete(res)
			if decision == Retry {
				at := d.cfg.Now().Add(delay).Unix()
				e.RetryAt = &at
			}
		})

		outcome := "success"
		if decision != Delivered {
			outcome = "failure"
		}
		d.cfg.Metrics.RecordAttempt(outcome, float64(res.LatencyMs)/1000)

		switch decision {
		case Delivered:
			d.logger.Debug("webhook delivered",
				"event_id", evt.ID, "webhook_id", wh.ID, "attempt", attempt, "status", res.StatusCode)
			return
		case GiveUp:
			d.logger.Warn("webhook delivery failed",
				"event_id", evt.ID, "webhook_id", wh.ID, "attempts", attempt, "error", errMsg)
			return
		}

		d.logger.Info("webhook attempt failed, retrying",
			"event_id", evt.ID, "webhook_id", wh.ID, "attempt", attempt, "error", errMsg, "delay", delay)
		sleep(delay)
	}
}

func sleep(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	<-t.C
}
