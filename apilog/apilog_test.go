package apilog

import (
	"fmt"
	"testing"
	"time"
)

func TestObjectFromPath(t *testing.T) {
	tests := []struct {
		method, path string
		wantType     string
		wantID       string
	}{
		{"GET", "/v1/customers/cus_1", "customer", "cus_1"},
		{"GET", "/v1/invoice_items/ii_1", "invoice_item", "ii_1"},
		{"GET", "/v1/widgets/w_1", "widget", "w_1"},
		{"POST", "/v1/charges", "charge", ""},
		{"GET", "/v1/charges", "", ""},
		{"GET", "/_config/webhooks", "", ""},
		{"GET", "/v1/customers/cus_1/sources/src_1", "", ""},
	}
	for _, tt := range tests {
		typ, oid := objectFromPath(tt.method, tt.path)
		if typ != tt.wantType || oid != tt.wantID {
			t.Errorf("objectFromPath(%s %s) = %q, %q; want %q, %q", tt.method, tt.path, typ, oid, tt.wantType, tt.wantID)
		}
	}
}

func TestBeginComplete(t *testing.T) {
	l := New(0)
	start := time.Unix(1700000000, 0)
	l.now = func() time.Time { return start }

	logID := l.Begin("POST", "/v1/customers", map[string]string{"expand": "x"}, map[string]any{"email": "a@b.c"})

	l.now = func() time.Time { return start.Add(25 * time.Millisecond) }
	l.Complete(logID, 200, map[string]any{"id": "cus_9", "object": "customer"}, nil)

	e, ok := l.Get(logID)
	if !ok {
		t.Fatal("entry not found")
	}
	if *e.StatusCode != 200 || *e.DurationMs != 25 || e.Created != 1700000000 {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if e.ObjectID == nil || *e.ObjectID != "cus_9" || *e.ObjectType != "customer" {
		t.Fatalf("created object not captured: %+v", e)
	}
}

func TestListFiltersAndPaging(t *testing.T) {
	l := New(0)
	for i := 0; i < 5; i++ {
		logID := l.Begin("GET", fmt.Sprintf("/v1/customers/cus_%d", i), nil, nil)
		l.Complete(logID, 200, nil, nil)
	}
	failed := l.Begin("POST", "/v1/charges", nil, nil)
	l.Complete(failed, 402, nil, map[string]any{"message": "card declined"})

	if p := l.List(Filter{}); p.TotalCount != 6 || len(p.Data) != 6 || p.Data[0].Method != "POST" {
		t.Fatalf("unexpected default page: total=%d first=%+v", p.TotalCount, p.Data[0])
	}
	if p := l.List(Filter{Method: "GET", Limit: 2}); p.TotalCount != 5 || len(p.Data) != 2 || !p.HasMore {
		t.Fatalf("unexpected GET page: %+v", p)
	}
	if p := l.List(Filter{StatusCode: 402}); p.TotalCount != 1 {
		t.Fatalf("status filter: total = %d", p.TotalCount)
	}
	if p := l.List(Filter{ObjectType: "customer", ObjectID: "cus_3"}); p.TotalCount != 1 {
		t.Fatalf("object filter: total = %d", p.TotalCount)
	}
	if p := l.List(Filter{Offset: 100}); len(p.Data) != 0 || p.Data == nil {
		t.Fatalf("offset past end should give an empty, non-nil page: %+v", p)
	}
}

func TestCapacityAndClear(t *testing.T) {
	l := New(2)
	first := l.Begin("GET", "/a", nil, nil)
	l.Begin("GET", "/b", nil, nil)
	l.Begin("GET", "/c", nil, nil)

	if _, ok := l.Get(first); ok {
		t.Fatal("oldest entry should be evicted")
	}
	// Completing an evicted entry is a no-op.
	l.Complete(first, 200, nil, nil)

	if p := l.List(Filter{}); p.TotalCount != 2 {
		t.Fatalf("total = %d, want 2", p.TotalCount)
	}
	l.Clear()
	if p := l.List(Filter{}); p.TotalCount != 0 {
		t.Fatal("Clear should empty the log")
	}
}
