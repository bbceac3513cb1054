package object

import "github.com/xraph/paysim/internal/entity"

// Subscription statuses the metered billing job acts on.
const (
	SubscriptionActive   = "active"
	SubscriptionTrialing = "trialing"
)

// UsageMetered marks a recurring price billed from meter events.
const UsageMetered = "metered"

// FormulaSum aggregates meter events by summing their values. Every other
// formula counts events.
const FormulaSum = "sum"

// Subscription is a customer's recurring subscription.
type Subscription struct {
	entity.Entity

	ID                 string           `json:"id"`
	Status             string           `json:"status"`
	Customer           string           `json:"customer"`
	CurrentPeriodStart int64            `json:"current_period_start"`
	CurrentPeriodEnd   int64            `json:"current_period_end"`
	Items              SubscriptionList `json:"items"`
}

// SubscriptionList holds the items of a subscription.
type SubscriptionList struct {
	Data []SubscriptionItem `json:"data"`
}

// SubscriptionItem links a subscription to a price.
type SubscriptionItem struct {
	ID    string `json:"id"`
	Price string `json:"price"`
}

func (s *Subscription) ObjectKind() Kind { return KindSubscription }
func (s *Subscription) ObjectID() string { return s.ID }

// Billable reports whether the subscription is active or trialing and its
// current period ended at or before now.
func (s *Subscription) Billable(now int64) bool {
	if s.Status != SubscriptionActive && s.Status != SubscriptionTrialing {
		return false
	}
	return s.CurrentPeriodEnd <= now
}

// Price is a billing price.
type Price struct {
	entity.Entity

	ID       string `json:"id"`
	Currency string `json:"currency,omitempty"`
	// UnitAmount is in the smallest currency unit. Nil means unset.
	UnitAmount *int64     `json:"unit_amount,omitempty"`
	Recurring  *Recurring `json:"recurring,omitempty"`
	// Meter is the billing meter id backing a metered price.
	Meter string `json:"meter,omitempty"`
}

// Recurring describes a recurring price.
type Recurring struct {
	Interval  string `json:"interval,omitempty"`
	UsageType string `json:"usage_type,omitempty"`
}

func (p *Price) ObjectKind() Kind { return KindPrice }
func (p *Price) ObjectID() string { return p.ID }

// Metered reports whether the price bills from usage.
func (p *Price) Metered() bool {
	return p.Recurring != nil && p.Recurring.UsageType == UsageMetered
}

// BillingMeter aggregates usage events.
type BillingMeter struct {
	entity.Entity

	ID                 string      `json:"id"`
	DisplayName        string      `json:"display_name"`
	EventName          string      `json:"event_name,omitempty"`
	DefaultAggregation Aggregation `json:"default_aggregation"`
}

// Aggregation selects how meter events are combined.
type Aggregation struct {
	Formula string `json:"formula"`
}

func (m *BillingMeter) ObjectKind() Kind { return KindMeter }
func (m *BillingMeter) ObjectID() string { return m.ID }

// BillingMeterEvent is one reported usage value.
type BillingMeterEvent struct {
	entity.Entity

	ID        string  `json:"identifier"`
	EventName string  `json:"event_name,omitempty"`
	Meter     string  `json:"meter"`
	Customer  string  `json:"customer"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
}

func (e *BillingMeterEvent) ObjectKind() Kind { return KindMeterEvent }
func (e *BillingMeterEvent) ObjectID() string { return e.ID }

// Invoice statuses.
const (
	InvoiceDraft = "draft"
	InvoiceOpen  = "open"
)

// Invoice is a customer invoice.
type Invoice struct {
	entity.Entity

	ID           string `json:"id"`
	Status       string `json:"status"`
	Customer     string `json:"customer,omitempty"`
	Subscription string `json:"subscription,omitempty"`
	PeriodStart  *int64 `json:"period_start,omitempty"`
	PeriodEnd    *int64 `json:"period_end,omitempty"`
	FinalizedAt  *int64 `json:"finalized_at,omitempty"`
}

func (i *Invoice) ObjectKind() Kind { return KindInvoice }
func (i *Invoice) ObjectID() string { return i.ID }

// AutoFinalizable reports whether the invoice is a subscription draft whose
// period ended at or before now. Invoices without a subscription never are.
func (i *Invoice) AutoFinalizable(now int64) bool {
	return i.Status == InvoiceDraft &&
		i.Subscription != "" &&
		i.PeriodEnd != nil && *i.PeriodEnd <= now
}

// InvoiceItem is a pending line item for a customer's next invoice.
type InvoiceItem struct {
	entity.Entity

	ID           string  `json:"id"`
	Customer     string  `json:"customer"`
	Subscription string  `json:"subscription,omitempty"`
	Amount       int64   `json:"amount"`
	Currency     string  `json:"currency"`
	Description  string  `json:"description"`
	Quantity     float64 `json:"quantity,omitempty"`
	Period       Period  `json:"period"`
}

// Period is a [Start, End) window in unix seconds.
type Period struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

func (i *InvoiceItem) ObjectKind() Kind { return KindInvoiceItem }
func (i *InvoiceItem) ObjectID() string { return i.ID }

// MeteredPeriod records that a subscription item's usage window was billed.
type MeteredPeriod struct {
	entity.Entity

	ID               string `json:"id"`
	Subscription     string `json:"subscription"`
	SubscriptionItem string `json:"subscription_item"`
	Period           Period `json:"period"`
	InvoiceItem      string `json:"invoice_item"`
}

func (m *MeteredPeriod) ObjectKind() Kind { return KindMeteredPeriod }
func (m *MeteredPeriod) ObjectID() string { return m.ID }
