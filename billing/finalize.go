package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/paysim/object"
	"github.com/xraph/paysim/observability"
	"github.com/xraph/paysim/scope"
	"github.com/xraph/paysim/store"
)

// Finalizer moves a draft invoice to its finalized state.
type Finalizer interface {
	Finalize(ctx context.Context, inv *object.Invoice) error
}

// StoreFinalizer opens the invoice, stamps FinalizedAt, persists it and
// emits invoice.finalized.
type StoreFinalizer struct {
	Store   store.Store
	Emitter EventEmitter
	Now     func() time.Time
}

func (f *StoreFinalizer) Finalize(ctx context.Context, inv *object.Invoice) error {
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	at := now().Unix()

	inv.Status = object.InvoiceOpen
	inv.FinalizedAt = &at
	if err := f.Store.Set(ctx, inv); err != nil {
		return fmt.Errorf("billing: store invoice %s: %w", inv.ID, err)
	}

	if f.Emitter != nil {
		if err := f.Emitter.Emit(ctx, EventInvoiceFinalized, inv); err != nil {
			return fmt.Errorf("billing: emit %s for %s: %w", EventInvoiceFinalized, inv.ID, err)
		}
	}
	return nil
}

// InvoiceFinalizer finalizes subscription drafts whose period has ended.
// Invoices without a subscription are left alone.
type InvoiceFinalizer struct {
	store     store.Store
	finalizer Finalizer
	now       func() time.Time
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewInvoiceFinalizer creates the job. A nil finalizer uses a StoreFinalizer
// over s with emitter.
func NewInvoiceFinalizer(s store.Store, finalizer Finalizer, emitter EventEmitter, now func() time.Time, metrics *observability.Metrics, logger *slog.Logger) *InvoiceFinalizer {
	if now == nil {
		now = time.Now
	}
	if finalizer == nil {
		finalizer = &StoreFinalizer{Store: s, Emitter: emitter, Now: now}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &InvoiceFinalizer{store: s, finalizer: finalizer, now: now, metrics: metrics, logger: logger}
}

// Run scans every invoice once.
func (j *InvoiceFinalizer) Run(ctx context.Context) error {
	invoices, err := store.List[*object.Invoice](ctx, j.store, object.KindInvoice)
	if err != nil {
		return fmt.Errorf("billing: list invoices: %w", err)
	}

	now := j.now().Unix()
	for _, inv := range invoices {
		if !inv.AutoFinalizable(now) {
			continue
		}

		invCtx := scope.WithAccount(ctx, inv.AccountID)
		if err := j.finalizer.Finalize(invCtx, inv); err != nil {
			j.logger.ErrorContext(invCtx, "invoice finalization failed",
				"invoice", inv.ID, "account", inv.AccountID, "error", err)
			continue
		}
		j.metrics.InvoiceFinalized()
		j.logger.InfoContext(invCtx, "finalized invoice", "invoice", inv.ID)
	}
	return nil
}
