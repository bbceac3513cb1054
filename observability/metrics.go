package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for paysim. All methods are safe on
// a nil *Metrics, which records nothing.
type Metrics struct {
	DeliveryAttempts   *prometheus.CounterVec
	DeliveryLatency    prometheus.Histogram
	DeliveriesInFlight prometheus.Gauge
	TaskRuns           *prometheus.CounterVec
	TaskDuration       *prometheus.HistogramVec
	InvoiceItems       prometheus.Counter
	InvoicesFinalized  prometheus.Counter
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DeliveryAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "paysim_delivery_attempts_total",
			Help: "Webhook delivery attempts by outcome.",
		}, []string{"outcome"}),
		DeliveryLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "paysim_delivery_latency_seconds",
			Help:    "Webhook delivery attempt latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		DeliveriesInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "paysim_deliveries_inflight",
			Help: "Webhook deliveries currently in progress (one per webhook and event).",
		}),
		TaskRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "paysim_task_runs_total",
			Help: "Scheduled task invocations by task and result.",
		}, []string{"task", "result"}),
		TaskDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "paysim_task_duration_seconds",
			Help:    "Scheduled task run duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"task"}),
		InvoiceItems: f.NewCounter(prometheus.CounterOpts{
			Name: "paysim_invoice_items_created_total",
			Help: "Invoice items created from metered usage.",
		}),
		InvoicesFinalized: f.NewCounter(prometheus.CounterOpts{
			Name: "paysim_invoices_finalized_total",
			Help: "Draft invoices finalized by the background job.",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "paysim_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "paysim_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// RecordAttempt records one delivery attempt. outcome is "success" or
// "failure".
func (m *Metrics) RecordAttempt(outcome string, latencySeconds float64) {
	if m == nil {
		return
	}
	m.DeliveryAttempts.WithLabelValues(outcome).Inc()
	m.DeliveryLatency.Observe(latencySeconds)
}

// DeliveryStarted and DeliveryDone track in-flight deliveries.
func (m *Metrics) DeliveryStarted() {
	if m != nil {
		m.DeliveriesInFlight.Inc()
	}
}

func (m *Metrics) DeliveryDone() {
	if m != nil {
		m.DeliveriesInFlight.Dec()
	}
}

// RecordTask records one task invocation.
func (m *Metrics) RecordTask(task string, ok bool, seconds float64) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "error"
	}
	m.TaskRuns.WithLabelValues(task, result).Inc()
	m.TaskDuration.WithLabelValues(task).Observe(seconds)
}

// InvoiceItemCreated counts an invoice item created from usage.
func (m *Metrics) InvoiceItemCreated() {
	if m != nil {
		m.InvoiceItems.Inc()
	}
}

// InvoiceFinalized counts a finalized invoice.
func (m *Metrics) InvoiceFinalized() {
	if m != nil {
		m.InvoicesFinalized.Inc()
	}
}

// RecordHTTP records one served request.
func (m *Metrics) RecordHTTP(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(seconds)
}
