package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xraph/paysim"
	"github.com/xraph/paysim/api"
	"github.com/xraph/paysim/apilog"
	"github.com/xraph/paysim/delivery"
	"github.com/xraph/paysim/object"
	"github.com/xraph/paysim/observability"
	"github.com/xraph/paysim/store"
	"github.com/xraph/paysim/store/memory"
	"github.com/xraph/paysim/webhook"
)

func init() { gin.SetMode(gin.TestMode) }

type testEnv struct {
	engine  *paysim.Engine
	store   *memory.Store
	handler *api.Handler
}

func setup(t *testing.T, opts api.Options) *testEnv {
	t.Helper()
	return setupWith(t, opts, nil)
}

// setupWith lets a test adjust the engine config and add engine options.
func setupWith(t *testing.T, opts api.Options, tune func(*paysim.Config), extra ...paysim.Option) *testEnv {
	t.Helper()
	s := memory.New()
	cfg := paysim.DefaultConfig()
	cfg.Debounce = -1
	cfg.BackoffBase = time.Millisecond
	cfg.RequestTimeout = 2 * time.Second
	cfg.DisableJobs = true
	if tune != nil {
		tune(&cfg)
	}

	e, err := paysim.New(append([]paysim.Option{paysim.WithStore(s), paysim.WithConfig(cfg)}, extra...)...)
	if err != nil {
		t.Fatal(err)
	}
	return &testEnv{engine: e, store: s, handler: api.NewHandler(e, opts, nil)}
}

func (env *testEnv) do(t *testing.T, method, path, contentType, body, account string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if account != "" {
		req.Header.Set("Stripe-Account", account)
	}
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := env.engine.Dispatcher().Wait(ctx); err != nil {
		t.Fatal(err)
	}
}

const form = "application/x-www-form-urlencoded"

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestRegisterWebhookForm(t *testing.T) {
	env := setup(t, api.Options{})

	vals := url.Values{}
	vals.Set("url", "http://localhost:9999/hook")
	vals.Set("secret", "whsec_test")
	vals.Set("events[1]", "invoice.paid")
	vals.Set("events[0]", "invoice.created")

	rec := env.do(t, http.MethodPost, "/_config/webhooks/wh_1", form, vals.Encode(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}

	wh, err := env.engine.Registry().Get("wh_1")
	if err != nil {
		t.Fatal(err)
	}
	if wh.URL != "http://localhost:9999/hook" || wh.Secret != "whsec_test" {
		t.Errorf("unexpected webhook %+v", wh)
	}
	if len(wh.Events) != 2 || wh.Events[0] != "invoice.created" || wh.Events[1] != "invoice.paid" {
		t.Errorf("events = %v", wh.Events)
	}
}

func TestRegisterWebhookJSONWithoutEvents(t *testing.T) {
	env := setup(t, api.Options{})

	rec := env.do(t, http.MethodPost, "/_config/webhooks/wh_1", "application/json",
		`{"url":"https://example.test/hook","secret":"s"}`, "acct_1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	wh, _ := env.engine.Registry().Get("wh_1")
	if wh.Events != nil {
		t.Errorf("expected nil events (all types), got %v", wh.Events)
	}
	if wh.AccountID != "acct_1" {
		t.Errorf("account = %q, want acct_1", wh.AccountID)
	}
}

func TestRegisterWebhookValidation(t *testing.T) {
	env := setup(t, api.Options{})

	cases := map[string]string{
		"missing secret": `{"url":"http://x"}`,
		"missing url":    `{"secret":"s"}`,
		"ftp url":        `{"url":"ftp://x","secret":"s"}`,
		"events string":  `{"url":"http://x","secret":"s","events":"invoice.paid"}`,
		"not an object":  `[1,2]`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/_config/webhooks/wh_1", "application/json", body, "")
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			got := decode[map[string]map[string]any](t, rec)
			if got["error"]["type"] != "invalid_request_error" {
				t.Errorf("error body = %v", got)
			}
		})
	}
	if env.engine.Registry().Len() != 0 {
		t.Error("invalid registrations must not be stored")
	}
}

func TestListWebhooksScopedByAccount(t *testing.T) {
	env := setup(t, api.Options{})
	env.engine.RegisterWebhook(webhook.Webhook{ID: "global", URL: "http://a", Secret: "s"})
	env.engine.RegisterWebhook(webhook.Webhook{ID: "mine", URL: "http://b", Secret: "s", AccountID: "acct_1"})
	env.engine.RegisterWebhook(webhook.Webhook{ID: "theirs", URL: "http://c", Secret: "s", AccountID: "acct_2"})

	got := decode[map[string]webhook.Webhook](t, env.do(t, http.MethodGet, "/_config/webhooks", "", "", "acct_1"))
	if len(got) != 2 {
		t.Fatalf("expected 2 webhooks, got %v", got)
	}
	if _, ok := got["theirs"]; ok {
		t.Error("webhook of another account is visible")
	}

	got = decode[map[string]webhook.Webhook](t, env.do(t, http.MethodGet, "/_config/webhooks", "", "", ""))
	if len(got) != 1 || got["global"].URL != "http://a" {
		t.Errorf("global requester sees %v", got)
	}
}

func TestDeleteWebhook(t *testing.T) {
	env := setup(t, api.Options{})
	if rec := env.do(t, http.MethodDelete, "/_config/webhooks/nope", "", "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	env.engine.RegisterWebhook(webhook.Webhook{ID: "wh_1", URL: "http://a", Secret: "s"})
	if rec := env.do(t, http.MethodDelete, "/_config/webhooks/wh_1", "", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if env.engine.Registry().Len() != 0 {
		t.Error("webhook still registered")
	}
}

func TestCreateEventDeliversAndLogs(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("Stripe-Signature") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"received":true}`))
	}))
	defer srv.Close()

	env := setup(t, api.Options{})
	env.engine.RegisterWebhook(webhook.Webhook{ID: "wh_1", URL: srv.URL, Secret: "whsec_test"})

	rec := env.do(t, http.MethodPost, "/_config/events", "application/json",
		`{"id":"evt_1","type":"invoice.paid","data":{"id":"in_1"}}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	exp := decode[map[string]any](t, rec)
	if exp["id"] != "evt_1" || exp["object"] != "event" {
		t.Errorf("export = %v", exp)
	}
	env.wait(t)

	if hits.Load() != 1 {
		t.Fatalf("expected 1 delivery, got %d", hits.Load())
	}

	page := decode[delivery.Page](t, env.do(t, http.MethodGet, "/_config/webhook_logs", "", "", ""))
	if page.TotalCount != 1 || len(page.Data) != 1 {
		t.Fatalf("logs = %+v", page)
	}
	entry := page.Data[0]
	if entry.EventID != "evt_1" || entry.StatusCode == nil || *entry.StatusCode != 200 {
		t.Errorf("entry = %+v", entry)
	}
}

func TestCreateEventRequiresType(t *testing.T) {
	env := setup(t, api.Options{})
	rec := env.do(t, http.MethodPost, "/_config/events", "application/json", `{"data":{}}`, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCreateEventAccountMismatch(t *testing.T) {
	env := setup(t, api.Options{})
	rec := env.do(t, http.MethodPost, "/_config/events", "application/json",
		`{"type":"invoice.paid","account":"acct_2"}`, "acct_1")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestWebhookLogsPagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()

	env := setup(t, api.Options{})
	env.engine.RegisterWebhook(webhook.Webhook{ID: "wh_1", URL: srv.URL, Secret: "s"})
	for range 3 {
		if _, err := env.engine.CreateEvent(context.Background(), "invoice.paid", nil, ""); err != nil {
			t.Fatal(err)
		}
	}
	env.wait(t)

	page := decode[delivery.Page](t, env.do(t, http.MethodGet, "/_config/webhook_logs?limit=2&offset=0", "", "", ""))
	if len(page.Data) != 2 || !page.HasMore || page.TotalCount != 3 {
		t.Errorf("page = %+v", page)
	}
	page = decode[delivery.Page](t, env.do(t, http.MethodGet, "/_config/webhook_logs?limit=2&offset=2", "", "", ""))
	if len(page.Data) != 1 || page.HasMore {
		t.Errorf("page = %+v", page)
	}

	if rec := env.do(t, http.MethodGet, "/_config/webhook_logs?limit=abc", "", "", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestWebhookLogsScopedByAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()

	env := setup(t, api.Options{})
	env.engine.RegisterWebhook(webhook.Webhook{ID: "wh_1", URL: srv.URL, Secret: "s"})
	ctx := context.Background()
	_, _ = env.engine.CreateEvent(ctx, "a", nil, "")
	_, _ = env.engine.CreateEvent(ctx, "b", nil, "acct_1")
	_, _ = env.engine.CreateEvent(ctx, "c", nil, "acct_2")
	env.wait(t)

	page := decode[delivery.Page](t, env.do(t, http.MethodGet, "/_config/webhook_logs", "", "", "acct_1"))
	if page.TotalCount != 2 {
		t.Errorf("acct_1 sees %d entries, want 2", page.TotalCount)
	}
	page = decode[delivery.Page](t, env.do(t, http.MethodGet, "/_config/webhook_logs", "", "", ""))
	if page.TotalCount != 1 {
		t.Errorf("global requester sees %d entries, want 1", page.TotalCount)
	}
}

func TestRetryWebhookLog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()

	env := setup(t, api.Options{})
	env.engine.RegisterWebhook(webhook.Webhook{ID: "wh_1", URL: srv.URL, Secret: "s"})

	if rec := env.do(t, http.MethodPost, "/_config/webhook_logs/whl_missing/retry", "", "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	if _, err := env.engine.CreateEvent(context.Background(), "invoice.paid", nil, ""); err != nil {
		t.Fatal(err)
	}
	env.wait(t)
	logID := env.engine.Logs(delivery.ListOpts{AllAccounts: true}).Data[0].ID.String()

	if rec := env.do(t, http.MethodPost, "/_config/webhook_logs/"+logID+"/retry", "", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	env.wait(t)
	if n := env.engine.Dispatcher().Log().Len(); n != 2 {
		t.Errorf("expected 2 log entries after retry, got %d", n)
	}

	// The event is gone after a flush.
	if rec := env.do(t, http.MethodDelete, "/_config/data", "", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("flush status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/_config/webhook_logs/"+logID+"/retry", "", "", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestObjectsSeedAndRead(t *testing.T) {
	env := setup(t, api.Options{})

	rec := env.do(t, http.MethodPut, "/_config/objects/invoice/in_1", "application/json",
		`{"status":"draft","auto_advance":true}`, "acct_1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	got := decode[map[string]any](t, rec)
	if got["object"] != "invoice" || got["id"] != "in_1" || got["account"] != "acct_1" {
		t.Errorf("resource = %v", got)
	}

	obj, err := env.store.Get(context.Background(), object.Key(object.KindInvoice, "in_1"))
	if err != nil {
		t.Fatal(err)
	}
	if obj.(*object.Invoice).Status != "draft" {
		t.Errorf("stored status = %q", obj.(*object.Invoice).Status)
	}

	if rec := env.do(t, http.MethodGet, "/_config/objects/invoice/in_1", "", "", "acct_1"); rec.Code != http.StatusOK {
		t.Errorf("owner read status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/_config/objects/invoice/in_1", "", "", "acct_2"); rec.Code != http.StatusNotFound {
		t.Errorf("foreign read status = %d, want 404", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/_config/objects/invoice/in_2", "", "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing read status = %d, want 404", rec.Code)
	}
}

func TestObjectsRejectBadInput(t *testing.T) {
	env := setup(t, api.Options{})

	cases := []struct{ path, body string }{
		{"/_config/objects/customer/cus_1", `{}`},
		{"/_config/objects/invoice/in_1", `{"id":"in_2"}`},
		{"/_config/objects/invoice/in_1", `not json`},
		{"/_config/objects/billing.meter_event/mev_1", `{"identifier":"mev_2"}`},
	}
	for _, tc := range cases {
		if rec := env.do(t, http.MethodPut, tc.path, "application/json", tc.body, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("PUT %s %s: status = %d, want 400", tc.path, tc.body, rec.Code)
		}
	}
}

func TestSeededMeterEventsAreBilled(t *testing.T) {
	const (
		periodStart = int64(1700000000)
		periodEnd   = int64(1700003600)
	)
	env := setupWith(t, api.Options{},
		func(cfg *paysim.Config) { cfg.DisableJobs = false },
		paysim.WithClock(func() time.Time { return time.Unix(periodEnd+60, 0) }),
	)

	seed := func(path, body string) map[string]any {
		t.Helper()
		rec := env.do(t, http.MethodPut, "/_config/objects/"+path, "application/json", body, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("PUT %s: status = %d body=%s", path, rec.Code, rec.Body)
		}
		return decode[map[string]any](t, rec)
	}
	seed("subscription/sub_1", `{"status":"active","customer":"cus_1",
		"current_period_start":1700000000,"current_period_end":1700003600,
		"items":{"data":[{"id":"si_1","price":"price_1"}]}}`)
	seed("price/price_1", `{"unit_amount":25,"recurring":{"interval":"month","usage_type":"metered"},"meter":"mtr_1"}`)
	seed("billing.meter/mtr_1", `{"display_name":"API calls","default_aggregation":{"formula":"sum"}}`)

	for i, value := range []int{2, 3, 5} {
		mevID := "mev_" + strconv.Itoa(i+1)
		body := `{"meter":"mtr_1","customer":"cus_1","value":` + strconv.Itoa(value) +
			`,"timestamp":` + strconv.FormatInt(periodStart+int64(i), 10) + `}`
		got := seed("billing.meter_event/"+mevID, body)
		if got["identifier"] != mevID || got["object"] != "billing.meter_event" {
			t.Fatalf("meter event resource = %v", got)
		}
	}

	if rec := env.do(t, http.MethodGet, "/_config/objects/billing.meter_event/mev_1", "", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("read meter event status = %d body=%s", rec.Code, rec.Body)
	}
	if _, err := env.store.Get(context.Background(), "billing.meter_event:"); err == nil {
		t.Fatal("meter event stored under an empty id")
	}

	if err := env.engine.RunJobs(context.Background()); err != nil {
		t.Fatalf("run jobs: %v", err)
	}
	env.wait(t)

	items, err := store.List[*object.InvoiceItem](context.Background(), env.store, object.KindInvoiceItem)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 invoice item, got %d", len(items))
	}
	if items[0].Amount != 250 || items[0].Subscription != "sub_1" {
		t.Errorf("invoice item = %+v", items[0])
	}
}

func TestAPILogsMountedRoute(t *testing.T) {
	env := setup(t, api.Options{})
	env.handler.Router().POST("/v1/charges", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": "ch_1", "object": "charge", "amount": 100})
	})

	rec := env.do(t, http.MethodPost, "/v1/charges", form, "amount=100", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}

	page := env.handler.APILog().List(apilog.Filter{ObjectID: "ch_1"})
	if page.TotalCount != 1 {
		t.Fatalf("expected the charge to be logged by its id, got %d entries", page.TotalCount)
	}
	e := page.Data[0]
	if e.ObjectType == nil || *e.ObjectType != "charge" {
		t.Errorf("object_type = %v, want charge", e.ObjectType)
	}
	if e.StatusCode == nil || *e.StatusCode != http.StatusOK {
		t.Errorf("status_code = %v, want 200", e.StatusCode)
	}
}

func TestAPILogsRecordAndFilter(t *testing.T) {
	env := setup(t, api.Options{})

	env.do(t, http.MethodGet, "/v1/customers/cus_1?expand=x", "", "", "")
	env.do(t, http.MethodPost, "/v1/charges", form, "amount=100", "")
	env.do(t, http.MethodGet, "/_config/webhooks", "", "", "")

	page := decode[map[string]any](t, env.do(t, http.MethodGet, "/_config/api_logs", "", "", ""))
	if page["total_count"].(float64) != 2 {
		t.Fatalf("expected 2 logged requests, got %v", page["total_count"])
	}

	page = decode[map[string]any](t, env.do(t, http.MethodGet, "/_config/api_logs?object_type=customer&object_id=cus_1", "", "", ""))
	data := page["data"].([]any)
	if len(data) != 1 {
		t.Fatalf("filtered = %v", data)
	}
	first := data[0].(map[string]any)
	if first["status_code"].(float64) != 404 || first["query_params"].(map[string]any)["expand"] != "x" {
		t.Errorf("entry = %v", first)
	}

	page = decode[map[string]any](t, env.do(t, http.MethodGet, "/_config/api_logs?method=POST", "", "", ""))
	data = page["data"].([]any)
	if len(data) != 1 || data[0].(map[string]any)["request_body"].(map[string]any)["amount"] != "100" {
		t.Errorf("POST entries = %v", data)
	}

	if rec := env.do(t, http.MethodGet, "/_config/api_logs?status_code=x", "", "", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	env.do(t, http.MethodDelete, "/_config/api_logs", "", "", "")
	if env.handler.APILog().List(apilog.Filter{}).TotalCount != 0 {
		t.Error("api log not cleared")
	}
}

func TestRateLimit(t *testing.T) {
	env := setup(t, api.Options{RateLimitRPS: 1, RateLimitBurst: 1})

	if rec := env.do(t, http.MethodGet, "/_config/webhooks", "", "", "acct_1"); rec.Code != http.StatusOK {
		t.Fatalf("first status = %d", rec.Code)
	}
	rec := env.do(t, http.MethodGet, "/_config/webhooks", "", "", "acct_1")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if rec := env.do(t, http.MethodGet, "/_config/webhooks", "", "", "acct_2"); rec.Code != http.StatusOK {
		t.Errorf("other account status = %d, want 200", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	env := setup(t, api.Options{})
	if rec := env.do(t, http.MethodGet, "/healthz", "", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	_ = env.store.Close()
	if rec := env.do(t, http.MethodGet, "/healthz", "", "", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	env := setup(t, api.Options{
		Metrics:        observability.NewMetrics(reg),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	env.do(t, http.MethodGet, "/_config/webhooks", "", "", "")
	rec := env.do(t, http.MethodGet, "/metrics", "", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `paysim_http_requests_total{method="GET",route="/_config/webhooks",status="200"} 1`) {
		t.Errorf("metrics output missing request counter:\n%s", rec.Body)
	}
}

func TestUnknownRoute(t *testing.T) {
	env := setup(t, api.Options{})
	rec := env.do(t, http.MethodGet, "/nope", "", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode[map[string]map[string]any](t, rec)
	if !strings.Contains(got["error"]["message"].(string), "/nope") {
		t.Errorf("error = %v", got)
	}
}
