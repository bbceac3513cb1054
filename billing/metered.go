package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/xraph/paysim/id"
	"github.com/xraph/paysim/internal/entity"
	"github.com/xraph/paysim/object"
	"github.com/xraph/paysim/observability"
	"github.com/xraph/paysim/scope"
	"github.com/xraph/paysim/store"
)

const (
	defaultCurrency = "usd"

	// fallbackUnitAmount is charged per unit when a price has no unit amount.
	fallbackUnitAmount = 100
)

// MeteredConfig configures MeteredBilling.
type MeteredConfig struct {
	// DedupePeriods records each billed (subscription item, period) window
	// in the store and never bills a recorded window again.
	DedupePeriods bool

	Now     func() time.Time
	Metrics *observability.Metrics
}

// MeteredBilling turns the meter events of ended subscription periods into
// invoice items.
type MeteredBilling struct {
	store   store.Store
	emitter EventEmitter
	cfg     MeteredConfig
	logger  *slog.Logger
}

// NewMeteredBilling creates the job. A nil emitter emits nothing.
func NewMeteredBilling(s store.Store, emitter EventEmitter, cfg MeteredConfig, logger *slog.Logger) *MeteredBilling {
	if emitter == nil {
		emitter = nopEmitter{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MeteredBilling{store: s, emitter: emitter, cfg: cfg, logger: logger}
}

// Run scans every subscription once. Errors on one subscription are logged
// and do not stop the scan.
func (m *MeteredBilling) Run(ctx context.Context) error {
	now := m.cfg.Now()

	subs, err := store.List[*object.Subscription](ctx, m.store, object.KindSubscription)
	if err != nil {
		return fmt.Errorf("billing: list subscriptions: %w", err)
	}

	var usage []*object.BillingMeterEvent
	for _, sub := range subs {
		if !sub.Billable(now.Unix()) {
			continue
		}

		if usage == nil {
			usage, err = store.List[*object.BillingMeterEvent](ctx, m.store, object.KindMeterEvent)
			if err != nil {
				return fmt.Errorf("billing: list meter events: %w", err)
			}
		}

		subCtx := scope.WithAccount(ctx, sub.AccountID)
		if err := m.bill(subCtx, sub, usage, now); err != nil {
			m.logger.ErrorContext(subCtx, "metered billing failed for subscription",
				"subscription", sub.ID, "account", sub.AccountID, "error", err)
		}
	}
	return nil
}

func (m *MeteredBilling) bill(ctx context.Context, sub *object.Subscription, usage []*object.BillingMeterEvent, now time.Time) error {
	for _, item := range sub.Items.Data {
		if item.Price == "" {
			continue
		}

		price, err := loadVisible[*object.Price](ctx, m.store, object.KindPrice, item.Price)
		if err != nil {
			return fmt.Errorf("price %s: %w", item.Price, err)
		}
		if !price.Metered() || price.Meter == "" {
			continue
		}

		meter, err := loadVisible[*object.BillingMeter](ctx, m.store, object.KindMeter, price.Meter)
		if err != nil {
			m.logger.DebugContext(ctx, "skipping item with unresolvable meter",
				"subscription", sub.ID, "item", item.ID, "meter", price.Meter, "error", err)
			continue
		}

		period := object.Period{Start: sub.CurrentPeriodStart, End: sub.CurrentPeriodEnd}
		ledgerID := ledgerKey(sub.ID, item.ID, period)
		if m.cfg.DedupePeriods {
			billed, err := m.alreadyBilled(ctx, ledgerID)
			if err != nil {
				return err
			}
			if billed {
				continue
			}
		}

		total, n := aggregate(meter, periodEvents(usage, price.Meter, sub, period))
		if n == 0 || total <= 0 {
			continue
		}

		unit := int64(fallbackUnitAmount)
		if price.UnitAmount != nil {
			unit = *price.UnitAmount
		}
		currency := price.Currency
		if currency == "" {
			currency = defaultCurrency
		}

		ii := &object.InvoiceItem{
			Entity:       entity.New(now, sub.AccountID),
			ID:           id.NewInvoiceItemID().String(),
			Customer:     sub.Customer,
			Subscription: sub.ID,
			Amount:       int64(math.Round(total * float64(unit))),
			Currency:     currency,
			Description:  fmt.Sprintf("Metered usage: %s (%s units)", meter.DisplayName, formatUnits(total)),
			Quantity:     total,
			Period:       period,
		}
		if err := m.store.Set(ctx, ii); err != nil {
			return fmt.Errorf("store invoice item: %w", err)
		}
		m.cfg.Metrics.InvoiceItemCreated()

		if m.cfg.DedupePeriods {
			if err := m.store.Set(ctx, &object.MeteredPeriod{
				Entity:           entity.New(now, sub.AccountID),
				ID:               ledgerID,
				Subscription:     sub.ID,
				SubscriptionItem: item.ID,
				Period:           period,
				InvoiceItem:      ii.ID,
			}); err != nil {
				return fmt.Errorf("record billed period: %w", err)
			}
		}

		m.logger.InfoContext(ctx, "created invoice item for metered usage",
			"subscription", sub.ID, "invoice_item", ii.ID, "units", total, "meter", meter.DisplayName)

		if err := m.emitter.Emit(ctx, EventInvoiceItemCreated, ii); err != nil {
			m.logger.WarnContext(ctx, "emit event failed",
				"type", EventInvoiceItemCreated, "invoice_item", ii.ID, "error", err)
		}
	}
	return nil
}

func (m *MeteredBilling) alreadyBilled(ctx context.Context, ledgerID string) (bool, error) {
	_, err := m.store.Get(ctx, object.Key(object.KindMeteredPeriod, ledgerID))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("check billed period: %w", err)
	}
}

// periodEvents selects the usage reported against meter by the subscription's
// customer and account within [period.Start, period.End).
func periodEvents(usage []*object.BillingMeterEvent, meter string, sub *object.Subscription, period object.Period) []*object.BillingMeterEvent {
	var out []*object.BillingMeterEvent
	for _, ev := range usage {
		if ev.Meter != meter || ev.Customer != sub.Customer || ev.AccountID != sub.AccountID {
			continue
		}
		if ev.Timestamp < period.Start || ev.Timestamp >= period.End {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// aggregate applies the meter formula and returns the total and the number
// of events considered.
func aggregate(meter *object.BillingMeter, events []*object.BillingMeterEvent) (float64, int) {
	if meter.DefaultAggregation.Formula != object.FormulaSum {
		return float64(len(events)), len(events)
	}
	var total float64
	for _, ev := range events {
		total += ev.Value
	}
	return total, len(events)
}

func ledgerKey(sub, item string, p object.Period) string {
	return fmt.Sprintf("%s:%s:%d-%d", sub, item, p.Start, p.End)
}

func formatUnits(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// loadVisible loads an object and hides it when it belongs to an account
// other than the one ctx is scoped to.
func loadVisible[T object.Object](ctx context.Context, s store.Store, kind object.Kind, oid string) (T, error) {
	o, err := store.Load[T](ctx, s, kind, oid)
	if err != nil {
		return o, err
	}
	if !scope.Visible(ctx, o.Account()) {
		var zero T
		return zero, store.ErrNotFound
	}
	return o, nil
}
