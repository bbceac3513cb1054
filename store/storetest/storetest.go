// Package storetest is a conformance suite run against every store backend.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/paysim/internal/entity"
	"github.com/xraph/paysim/object"
	"github.com/xraph/paysim/store"
)

// Run exercises s. The store must be empty and is cleared when Run returns.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	t.Cleanup(func() { _ = s.Clear(ctx) })

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	t.Run("GetMissing", func(t *testing.T) {
		if _, err := s.Get(ctx, "invoice:missing"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if err := s.Delete(ctx, "invoice:missing"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound on delete, got %v", err)
		}
	})

	t.Run("SetGetReplace", func(t *testing.T) {
		end := int64(1700000000)
		inv := &object.Invoice{
			Entity:       entity.Entity{Created: 1, AccountID: "acct_1"},
			ID:           "in_1",
			Status:       object.InvoiceDraft,
			Subscription: "sub_1",
			PeriodEnd:    &end,
		}
		if err := s.Set(ctx, inv); err != nil {
			t.Fatalf("set: %v", err)
		}

		got, err := store.Load[*object.Invoice](ctx, s, object.KindInvoice, "in_1")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if got.Status != object.InvoiceDraft || got.Account() != "acct_1" || *got.PeriodEnd != end {
			t.Fatalf("unexpected invoice %+v", got)
		}

		got.Status = object.InvoiceOpen
		if err := s.Set(ctx, got); err != nil {
			t.Fatalf("replace: %v", err)
		}
		again, err := store.Load[*object.Invoice](ctx, s, object.KindInvoice, "in_1")
		if err != nil {
			t.Fatalf("reload: %v", err)
		}
		if again.Status != object.InvoiceOpen {
			t.Fatalf("status = %q, want open", again.Status)
		}
	})

	t.Run("ItemsPrefixOrdered", func(t *testing.T) {
		for _, o := range []object.Object{
			&object.BillingMeterEvent{ID: "mev_b", Meter: "mtr_1", Value: 2},
			&object.BillingMeter{ID: "mtr_1", DisplayName: "API calls"},
			&object.BillingMeterEvent{ID: "mev_a", Meter: "mtr_1", Value: 3},
		} {
			if err := s.Set(ctx, o); err != nil {
				t.Fatalf("set %s: %v", object.KeyOf(o), err)
			}
		}

		evts, err := store.List[*object.BillingMeterEvent](ctx, s, object.KindMeterEvent)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(evts) != 2 || evts[0].ID != "mev_a" || evts[1].ID != "mev_b" {
			t.Fatalf("unexpected events %+v", evts)
		}

		meters, err := store.List[*object.BillingMeter](ctx, s, object.KindMeter)
		if err != nil {
			t.Fatalf("list meters: %v", err)
		}
		if len(meters) != 1 || meters[0].DisplayName != "API calls" {
			t.Fatalf("unexpected meters %+v", meters)
		}
	})

	t.Run("EmptyID", func(t *testing.T) {
		mev := &object.BillingMeterEvent{EventName: "api_calls", Meter: "mtr_1", Value: 1}
		if err := s.Set(ctx, mev); !errors.Is(err, store.ErrEmptyID) {
			t.Fatalf("expected ErrEmptyID, got %v", err)
		}
		items, err := s.Items(ctx, string(object.KindMeterEvent)+":")
		if err != nil {
			t.Fatalf("items after rejected set: %v", err)
		}
		if len(items) != 0 {
			t.Fatalf("rejected object was stored: %+v", items)
		}
	})

	t.Run("DeleteAndClear", func(t *testing.T) {
		if err := s.Delete(ctx, "billing.meter:mtr_1"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, err := s.Get(ctx, "billing.meter:mtr_1"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}

		if err := s.Clear(ctx); err != nil {
			t.Fatalf("clear: %v", err)
		}
		all, err := s.Items(ctx, "")
		if err != nil {
			t.Fatalf("items: %v", err)
		}
		if len(all) != 0 {
			t.Fatalf("expected empty store, got %d items", len(all))
		}
	})
}
