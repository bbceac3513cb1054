// Package billing holds the periodic billing jobs run by the scheduler:
// aggregating metered usage into invoice items and finalizing subscription
// invoices whose period has ended.
package billing

import (
	"context"
	"time"

	"github.com/xraph/paysim/object"
	"github.com/xraph/paysim/scheduler"
)

// Task names and default intervals.
const (
	TaskMeteredBilling   = "process_metered_billing"
	TaskFinalizeInvoices = "finalize_pending_invoices"

	MeteredBillingInterval   = 60 * time.Second
	FinalizeInvoicesInterval = 30 * time.Second
)

// Event types emitted by the jobs.
const (
	EventInvoiceItemCreated = "invoiceitem.created"
	EventInvoiceFinalized   = "invoice.finalized"
)

// EventEmitter publishes a domain event about obj.
type EventEmitter interface {
	Emit(ctx context.Context, eventType string, obj object.Object) error
}

// EmitterFunc adapts a function to EventEmitter.
type EmitterFunc func(ctx context.Context, eventType string, obj object.Object) error

func (f EmitterFunc) Emit(ctx context.Context, eventType string, obj object.Object) error {
	return f(ctx, eventType, obj)
}

type nopEmitter struct{}

func (nopEmitter) Emit(context.Context, string, object.Object) error { return nil }

// RegisterDefaults registers both jobs on s with their default intervals.
func RegisterDefaults(s *scheduler.Scheduler, metered *MeteredBilling, finalizer *InvoiceFinalizer) error {
	if err := s.Register(TaskMeteredBilling, metered.Run, MeteredBillingInterval); err != nil {
		return err
	}
	return s.Register(TaskFinalizeInvoices, finalizer.Run, FinalizeInvoicesInterval)
}
