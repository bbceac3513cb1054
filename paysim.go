package paysim

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/xraph/paysim/billing"
	"github.com/xraph/paysim/delivery"
	"github.com/xraph/paysim/id"
	"github.com/xraph/paysim/internal/entity"
	"github.com/xraph/paysim/object"
	"github.com/xraph/paysim/observability"
	"github.com/xraph/paysim/ratelimit"
	"github.com/xraph/paysim/scheduler"
	"github.com/xraph/paysim/store"
	"github.com/xraph/paysim/webhook"
)

// Engine owns the webhook registry, the delivery log, the dispatcher and the
// background job scheduler of one emulator instance.
type Engine struct {
	config     Config
	store      store.Store
	logger     *slog.Logger
	metrics    *observability.Metrics
	tracer     *observability.Tracer
	httpClient *http.Client
	now        func() time.Time
	finalizer  billing.Finalizer

	registry   *webhook.Registry
	log        *delivery.Log
	dispatcher *delivery.Dispatcher
	scheduler  *scheduler.Scheduler
}

// New creates an Engine with the given options. A store is required.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		config: DefaultConfig(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	if e.store == nil {
		return nil, ErrNoStore
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if err := e.wireServices(); err != nil {
		return nil, err
	}
	return e, nil
}

// wireServices initializes the internal services after options have been applied.
func (e *Engine) wireServices() error {
	e.registry = webhook.NewRegistry()
	e.log = delivery.NewLog(e.config.LogCapacity)

	var pacer *ratelimit.Limiter
	if e.config.DeliveryRPS > 0 {
		pacer = ratelimit.New(e.config.DeliveryRPS, e.config.DeliveryBurst)
	}

	e.dispatcher = delivery.NewDispatcher(e.registry, e.log, e.store, delivery.Config{
		MaxAttempts:    e.config.MaxAttempts,
		RequestTimeout: e.config.RequestTimeout,
		Debounce:       e.config.Debounce,
		BackoffBase:    e.config.BackoffBase,
		Pacer:          pacer,
		HTTPClient:     e.httpClient,
		Metrics:        e.metrics,
		Tracer:         e.tracer,
		Now:            e.now,
	}, e.logger.With("component", "delivery"))

	e.scheduler = scheduler.New(scheduler.Config{
		Tick:           e.config.SchedulerTick,
		HonorIntervals: e.config.HonorIntervals,
		Now:            e.now,
		Metrics:        e.metrics,
		Tracer:         e.tracer,
	}, e.logger.With("component", "scheduler"))

	if e.config.DisableJobs {
		return nil
	}

	jobLogger := e.logger.With("component", "billing")
	metered := billing.NewMeteredBilling(e.store, e, billing.MeteredConfig{
		DedupePeriods: e.config.DedupePeriods,
		Now:           e.now,
		Metrics:       e.metrics,
	}, jobLogger)
	finalizer := billing.NewInvoiceFinalizer(e.store, e.finalizer, e, e.now, e.metrics, jobLogger)

	if err := billing.RegisterDefaults(e.scheduler, metered, finalizer); err != nil {
		return fmt.Errorf("paysim: register jobs: %w", err)
	}
	return nil
}

// Start begins running the background jobs.
func (e *Engine) Start(ctx context.Context) {
	e.scheduler.Start(ctx)
}

// Stop halts the job scheduler and waits, bounded by ShutdownTimeout and
// ctx, for in-flight deliveries.
func (e *Engine) Stop(ctx context.Context) error {
	e.scheduler.Stop()

	if e.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.ShutdownTimeout)
		defer cancel()
	}
	if err := e.dispatcher.Wait(ctx); err != nil {
		e.logger.WarnContext(ctx, "shutdown with deliveries still in flight", "error", err)
		return err
	}
	return nil
}

// RegisterWebhook adds or replaces a webhook.
func (e *Engine) RegisterWebhook(w webhook.Webhook) {
	e.registry.Register(w)
	e.logger.Debug("webhook registered", "webhook_id", w.ID, "url", w.URL, "account", w.AccountID)
}

// UnregisterWebhook removes a webhook.
func (e *Engine) UnregisterWebhook(webhookID string) error {
	if err := e.registry.Unregister(webhookID); err != nil {
		return err
	}
	e.dispatcher.Forget(webhookID)
	return nil
}

// Webhooks returns a snapshot of the registered webhooks.
func (e *Engine) Webhooks() []webhook.Webhook {
	return e.registry.List()
}

// Schedule starts delivering evt to every matching webhook and returns
// immediately.
func (e *Engine) Schedule(evt *object.Event) {
	e.dispatcher.Schedule(evt)
}

// Publish stores evt, assigning an id and creation time when missing, and
// schedules its delivery. The returned job completes when every matching
// webhook has been attempted.
func (e *Engine) Publish(ctx context.Context, evt *object.Event) (*delivery.Job, error) {
	if evt.Type == "" {
		return nil, fmt.Errorf("%w: type is required", ErrInvalidEvent)
	}
	if evt.ID == "" {
		evt.ID = id.NewEventID().String()
	}
	if evt.Created == 0 {
		evt.Created = e.now().Unix()
	}

	if err := e.store.Set(ctx, evt); err != nil {
		return nil, fmt.Errorf("paysim: persist event: %w", err)
	}

	e.logger.DebugContext(ctx, "event published", "event_id", evt.ID, "type", evt.Type, "account", evt.AccountID)
	return e.dispatcher.Dispatch(evt), nil
}

// CreateEvent builds an event of the given type around data and publishes it.
func (e *Engine) CreateEvent(ctx context.Context, eventType string, data json.RawMessage, account string) (*object.Event, error) {
	evt := &object.Event{
		Entity: entity.New(e.now(), account),
		Type:   eventType,
		Data:   data,
	}
	if _, err := e.Publish(ctx, evt); err != nil {
		return nil, err
	}
	return evt, nil
}

// Emit publishes an event about obj, owned by obj's account. It lets the
// billing jobs report what they did.
func (e *Engine) Emit(ctx context.Context, eventType string, obj object.Object) error {
	data, err := object.Resource(obj)
	if err != nil {
		return err
	}
	_, err = e.CreateEvent(ctx, eventType, data, obj.Account())
	return err
}

// Logs returns a page of delivery log entries.
func (e *Engine) Logs(opts delivery.ListOpts) delivery.Page {
	return e.log.List(opts)
}

// RetryLog re-dispatches the event behind a delivery log entry.
func (e *Engine) RetryLog(ctx context.Context, logID string) (*delivery.Job, error) {
	return e.dispatcher.Retry(ctx, logID)
}

// RunJobs evaluates the background jobs once, synchronously.
func (e *Engine) RunJobs(ctx context.Context) error {
	return e.scheduler.RunOnce(ctx)
}

// Flush removes every object from the store.
func (e *Engine) Flush(ctx context.Context) error {
	if err := e.store.Clear(ctx); err != nil {
		return fmt.Errorf("paysim: flush store: %w", err)
	}
	e.logger.InfoContext(ctx, "store flushed")
	return nil
}

// Store returns the underlying object store.
func (e *Engine) Store() store.Store { return e.store }

// Registry returns the webhook registry.
func (e *Engine) Registry() *webhook.Registry { return e.registry }

// Scheduler returns the background job scheduler.
func (e *Engine) Scheduler() *scheduler.Scheduler { return e.scheduler }

// Dispatcher returns the webhook dispatcher.
func (e *Engine) Dispatcher() *delivery.Dispatcher { return e.dispatcher }

// Now returns the current time on the engine's clock.
func (e *Engine) Now() time.Time { return e.now() }

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.config }

var _ billing.EventEmitter = (*Engine)(nil)
