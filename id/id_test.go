package id_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/xraph/paysim/id"
)

func TestNewHasPrefix(t *testing.T) {
	tests := []struct {
		gen    func() id.ID
		prefix id.Prefix
	}{
		{id.NewWebhookLogID, id.PrefixWebhookLog},
		{id.NewInvoiceItemID, id.PrefixInvoiceItem},
		{id.NewEventID, id.PrefixEvent},
		{id.NewAPILogID, id.PrefixAPILog},
	}

	for _, tt := range tests {
		got := tt.gen()
		if got.Prefix() != tt.prefix {
			t.Errorf("prefix = %q, want %q", got.Prefix(), tt.prefix)
		}
		if !strings.HasPrefix(got.String(), string(tt.prefix)+"_") {
			t.Errorf("string %q missing prefix %q", got.String(), tt.prefix)
		}
	}
}

func TestParseWithPrefix(t *testing.T) {
	whl := id.NewWebhookLogID()

	parsed, err := id.ParseWebhookLogID(whl.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.String() != whl.String() {
		t.Errorf("round trip = %q, want %q", parsed.String(), whl.String())
	}

	if _, err := id.ParseWebhookLogID(id.NewInvoiceItemID().String()); err == nil {
		t.Error("expected prefix mismatch error")
	}
	if _, err := id.Parse(""); err == nil {
		t.Error("expected error for empty string")
	}
}

func TestNilID(t *testing.T) {
	if !id.Nil.IsNil() {
		t.Error("Nil should report IsNil")
	}
	if id.Nil.String() != "" {
		t.Errorf("Nil string = %q", id.Nil.String())
	}
}

func TestJSON(t *testing.T) {
	type wrapper struct {
		ID id.ID `json:"id"`
	}

	in := wrapper{ID: id.NewWebhookLogID()}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out wrapper
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.ID.String() != in.ID.String() {
		t.Errorf("got %q, want %q", out.ID.String(), in.ID.String())
	}
}
