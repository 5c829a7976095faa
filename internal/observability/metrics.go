package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/repaart/support-desk/internal/domain"
)

// Metrics holds the Prometheus collectors of the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	errors        *prometheus.CounterVec
	statusChanges *prometheus.CounterVec
	replies       *prometheus.CounterVec
	deletes       *prometheus.CounterVec
	readToggles   *prometheus.CounterVec
	sla           *prometheus.GaugeVec
	desks         prometheus.Gauge
}

// NewMetrics registers the collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "support_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "support_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "support_http_errors_total",
			Help: "HTTP errors by route, method and error code.",
		}, []string{"route", "method", "code"}),
		statusChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "support_ticket_status_changes_total",
			Help: "Ticket status changes by new status.",
		}, []string{"status"}),
		replies: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "support_ticket_replies_total",
			Help: "Replies by kind and outcome.",
		}, []string{"kind", "outcome"}),
		deletes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "support_deleted_documents_total",
			Help: "Deleted documents by collection.",
		}, []string{"collection"}),
		readToggles: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "support_read_toggles_total",
			Help: "Optimistic read toggles by outcome.",
		}, []string{"outcome"}),
		sla: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "support_tickets_sla",
			Help: "Recent tickets by SLA severity.",
		}, []string{"severity"}),
		desks: factory.NewGauge(prometheus.GaugeOpts{
			Name: "support_open_desks",
			Help: "Open desk sessions.",
		}),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(route, method, code).Inc()
}

func (m *Metrics) RecordStatusChange(status domain.TicketStatus) {
	if m == nil {
		return
	}
	m.statusChanges.WithLabelValues(string(status)).Inc()
}

// RecordReply counts a reply attempt; kind is "public" or "internal".
func (m *Metrics) RecordReply(kind, outcome string) {
	if m == nil {
		return
	}
	m.replies.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) RecordDeleted(tickets, messages, history int) {
	if m == nil {
		return
	}
	m.deletes.WithLabelValues("tickets").Add(float64(tickets))
	m.deletes.WithLabelValues("messages").Add(float64(messages))
	m.deletes.WithLabelValues("history").Add(float64(history))
}

func (m *Metrics) RecordReadToggle(outcome string) {
	if m == nil {
		return
	}
	m.readToggles.WithLabelValues(outcome).Inc()
}

// SetSLA publishes the latest severity distribution.
func (m *Metrics) SetSLA(counts map[domain.SLASeverity]int) {
	if m == nil {
		return
	}
	for _, severity := range []domain.SLASeverity{domain.SLAOk, domain.SLAWarning, domain.SLACritical} {
		m.sla.WithLabelValues(string(severity)).Set(float64(counts[severity]))
	}
}

func (m *Metrics) SetOpenDesks(n int) {
	if m == nil {
		return
	}
	m.desks.Set(float64(n))
}
