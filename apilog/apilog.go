// Package apilog records recent API requests for inspection through the
// config surface.
package apilog

import (
	"strings"
	"sync"
	"time"

	"github.com/xraph/paysim/id"
	"github.com/xraph/paysim/internal/ring"
)

// DefaultCapacity is the number of requests kept when none is configured.
const DefaultCapacity = 1000

// DefaultLimit is the page size used when a listing does not set one.
const DefaultLimit = 100

// Entry is one recorded request.
type Entry struct {
	ID           id.ID             `json:"id"`
	Method       string            `json:"method"`
	Path         string            `json:"path"`
	QueryParams  map[string]string `json:"query_params"`
	RequestBody  any               `json:"request_body"`
	ResponseBody any               `json:"response_body"`
	StatusCode   *int              `json:"status_code"`
	DurationMs   *int64            `json:"duration_ms"`
	Created      int64             `json:"created"`
	Error        any               `json:"error"`
	ObjectID     *string           `json:"object_id"`
	ObjectType   *string           `json:"object_type"`

	started time.Time
}

// Log is a bounded, concurrency-safe request log.
type Log struct {
	mu      sync.RWMutex
	entries *ring.Ring[*Entry]
	byID    map[string]*Entry
	now     func() time.Time
}

// New returns a log keeping the last capacity requests. A non-positive
// capacity uses DefaultCapacity.
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		entries: ring.New[*Entry](capacity),
		byID:    make(map[string]*Entry),
		now:     time.Now,
	}
}

// Begin records the start of a request and returns the entry id.
func (l *Log) Begin(method, path string, query map[string]string, body any) string {
	now := l.now()
	e := &Entry{
		ID:          id.NewAPILogID(),
		Method:      method,
		Path:        path,
		QueryParams: query,
		RequestBody: body,
		Created:     now.Unix(),
		started:     now,
	}
	if e.QueryParams == nil {
		e.QueryParams = map[string]string{}
	}
	if typ, oid := objectFromPath(method, path); typ != "" {
		e.ObjectType = &typ
		if oid != "" {
			e.ObjectID = &oid
		}
	}

	key := e.ID.String()
	l.mu.Lock()
	defer l.mu.Unlock()
	if old, evicted := l.entries.Push(e); evicted {
		delete(l.byID, old.ID.String())
	}
	l.byID[key] = e
	return key
}

// Complete fills in the response of a request started with Begin. A created
// object reported in a 200/201 POST response body overrides the object
// derived from the path.
func (l *Log) Complete(entryID string, status int, body any, errInfo any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byID[entryID]
	if !ok {
		return
	}
	dur := l.now().Sub(e.started).Milliseconds()
	e.StatusCode = &status
	e.DurationMs = &dur
	e.ResponseBody = body
	e.Error = errInfo

	if e.Method != "POST" || (status != 200 && status != 201) {
		return
	}
	if m, ok := body.(map[string]any); ok {
		if v, ok := m["id"].(string); ok {
			e.ObjectID = &v
		}
		if v, ok := m["object"].(string); ok {
			e.ObjectType = &v
		}
	}
}

// Get returns a copy of the entry with id.
func (l *Log) Get(entryID string) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.byID[entryID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Clear drops every entry.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries.Reset()
	l.byID = make(map[string]*Entry)
}

// Filter selects entries in List. Zero fields do not filter.
type Filter struct {
	Limit      int
	Offset     int
	Method     string
	StatusCode int
	ObjectType string
	ObjectID   string
}

func (f Filter) match(e *Entry) bool {
	if f.Method != "" && e.Method != f.Method {
		return false
	}
	if f.StatusCode != 0 && (e.StatusCode == nil || *e.StatusCode != f.StatusCode) {
		return false
	}
	if f.ObjectType != "" && (e.ObjectType == nil || *e.ObjectType != f.ObjectType) {
		return false
	}
	if f.ObjectID != "" && (e.ObjectID == nil || *e.ObjectID != f.ObjectID) {
		return false
	}
	return true
}

// Page is one page of entries, newest first.
type Page struct {
	Object     string  `json:"object"`
	Data       []Entry `json:"data"`
	HasMore    bool    `json:"has_more"`
	TotalCount int     `json:"total_count"`
}

// List returns matching entries newest first.
func (l *Log) List(f Filter) Page {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}

	l.mu.RLock()
	var matched []Entry
	for i := l.entries.Len() - 1; i >= 0; i-- {
		if e := l.entries.At(i); f.match(e) {
			matched = append(matched, *e)
		}
	}
	l.mu.RUnlock()

	total := len(matched)
	start := min(max(f.Offset, 0), total)
	end := min(start+f.Limit, total)
	data := matched[start:end]
	if data == nil {
		data = []Entry{}
	}
	return Page{Object: "list", Data: data, HasMore: total > end, TotalCount: total}
}

var pluralTypes = map[string]string{
	"customers":            "customer",
	"charges":              "charge",
	"payment_intents":      "payment_intent",
	"subscriptions":        "subscription",
	"plans":                "plan",
	"invoices":             "invoice",
	"products":             "product",
	"coupons":              "coupon",
	"sources":              "source",
	"tokens":               "token",
	"events":               "event",
	"balance_transactions": "balance_transaction",
	"payouts":              "payout",
	"refunds":              "refund",
	"setup_intents":        "setup_intent",
	"tax_rates":            "tax_rate",
	"payment_methods":      "payment_method",
	"invoice_items":        "invoice_item",
	"subscription_items":   "subscription_item",
}

// objectFromPath derives the object type and id from "/v1/{plural}/{id}",
// or the type alone from a creating POST to "/v1/{plural}".
func objectFromPath(method, path string) (typ, oid string) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || parts[0] != "v1" {
		return "", ""
	}
	switch {
	case len(parts) == 3:
		return singular(parts[1]), parts[2]
	case len(parts) == 2 && method == "POST":
		return singular(parts[1]), ""
	}
	return "", ""
}

func singular(plural string) string {
	if s, ok := pluralTypes[plural]; ok {
		return s
	}
	return strings.TrimRight(plural, "s")
}
