package object_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/xraph/paysim/internal/entity"
	"github.com/xraph/paysim/object"
)

func TestKeys(t *testing.T) {
	sub := &object.Subscription{ID: "sub_1"}
	if got := object.KeyOf(sub); got != "subscription:sub_1" {
		t.Errorf("KeyOf = %q", got)
	}

	kind, oid, ok := object.SplitKey("billing.meter_event:mev_1")
	if !ok || kind != object.KindMeterEvent || oid != "mev_1" {
		t.Errorf("SplitKey = %q %q %v", kind, oid, ok)
	}
	if _, _, ok := object.SplitKey("nokind"); ok {
		t.Error("expected malformed key")
	}

	// A meter prefix must not match meter events.
	if strings.HasPrefix(object.Key(object.KindMeterEvent, "x"), object.Prefix(object.KindMeter)) {
		t.Error("meter prefix matches meter event keys")
	}
}

func TestEventPayloadSortedAndIndented(t *testing.T) {
	evt := &object.Event{
		Entity: entity.Entity{Created: 1700000000},
		ID:     "evt_1",
		Type:   "charge.succeeded",
		Data:   json.RawMessage(`{"z":1,"a":{"y":"<b>","b":2.50}}`),
	}

	body, err := evt.Payload()
	if err != nil {
		t.Fatalf("payload: %v", err)
	}

	want := `{
  "created": 1700000000,
  "data": {
    "object": {
      "a": {
        "b": 2.50,
        "y": "<b>"
      },
      "z": 1
    }
  },
  "id": "evt_1",
  "livemode": false,
  "object": "event",
  "type": "charge.succeeded"
}`
	if string(body) != want {
		t.Errorf("payload =\n%s\nwant\n%s", body, want)
	}
}

func TestEventExportAccount(t *testing.T) {
	evt := &object.Event{Entity: entity.Entity{AccountID: "acct_1"}, ID: "evt_2", Type: "x.y"}
	exp, err := evt.Export()
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if exp["account"] != "acct_1" {
		t.Errorf("account = %v", exp["account"])
	}
	data, _ := exp["data"].(map[string]any)
	if data["object"] != nil {
		t.Errorf("empty payload should export null, got %v", data["object"])
	}
}

func TestDecode(t *testing.T) {
	raw := []byte(`{"id":"price_1","currency":"eur","unit_amount":25,"recurring":{"usage_type":"metered"},"meter":"mtr_1","account":"acct_1"}`)

	o, err := object.Decode(object.KindPrice, raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	p, ok := o.(*object.Price)
	if !ok {
		t.Fatalf("got %T", o)
	}
	if !p.Metered() || p.UnitAmount == nil || *p.UnitAmount != 25 || p.Account() != "acct_1" {
		t.Errorf("unexpected price %+v", p)
	}

	if _, err := object.Decode("customer", raw); !errors.Is(err, object.ErrUnknownKind) {
		t.Errorf("err = %v, want ErrUnknownKind", err)
	}
}

func TestSubscriptionBillable(t *testing.T) {
	tests := []struct {
		status string
		end    int64
		want   bool
	}{
		{"active", 100, true},
		{"trialing", 100, true},
		{"active", 101, false},
		{"canceled", 50, false},
	}
	for _, tt := range tests {
		s := &object.Subscription{Status: tt.status, CurrentPeriodEnd: tt.end}
		if got := s.Billable(100); got != tt.want {
			t.Errorf("Billable(%s, %d) = %v, want %v", tt.status, tt.end, got, tt.want)
		}
	}
}

func TestInvoiceAutoFinalizable(t *testing.T) {
	past, future := int64(50), int64(150)

	tests := []struct {
		name string
		inv  object.Invoice
		want bool
	}{
		{"due", object.Invoice{Status: "draft", Subscription: "sub_1", PeriodEnd: &past}, true},
		{"manual", object.Invoice{Status: "draft", PeriodEnd: &past}, false},
		{"future", object.Invoice{Status: "draft", Subscription: "sub_1", PeriodEnd: &future}, false},
		{"no period", object.Invoice{Status: "draft", Subscription: "sub_1"}, false},
		{"open", object.Invoice{Status: "open", Subscription: "sub_1", PeriodEnd: &past}, false},
	}
	for _, tt := range tests {
		if got := tt.inv.AutoFinalizable(100); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestResourceAddsObjectField(t *testing.T) {
	inv := &object.Invoice{ID: "in_1", Status: object.InvoiceOpen}
	raw, err := object.Resource(inv)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"created":0,"id":"in_1","object":"invoice","status":"open"}`
	if string(raw) != want {
		t.Errorf("resource = %s, want %s", raw, want)
	}
}

func TestEncodeRejectsEmptyID(t *testing.T) {
	_, err := object.Encode(&object.BillingMeterEvent{Meter: "mtr_1", Value: 1})
	if !errors.Is(err, object.ErrEmptyID) {
		t.Fatalf("expected ErrEmptyID, got %v", err)
	}
	if _, err := object.Encode(&object.BillingMeterEvent{ID: "mev_1"}); err != nil {
		t.Fatal(err)
	}
}

func TestIDField(t *testing.T) {
	if got := object.IDField(object.KindMeterEvent); got != "identifier" {
		t.Errorf("meter event id field = %q", got)
	}
	if got := object.IDField(object.KindInvoice); got != "id" {
		t.Errorf("invoice id field = %q", got)
	}

	// The field named by IDField must be the one that decodes into the id.
	o, err := object.Decode(object.KindMeterEvent, []byte(`{"identifier":"mev_1"}`))
	if err != nil {
		t.Fatal(err)
	}
	if o.ObjectID() != "mev_1" {
		t.Fatalf("ObjectID = %q, want mev_1", o.ObjectID())
	}
}
