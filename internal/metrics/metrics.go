// Package metrics exposes handshake counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handshake outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeNoop     = "noop"
	OutcomeRejected = "rejected"
	OutcomeReplayed = "replayed"
	OutcomeError    = "error"
)

// Metrics holds the handshake collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	HandshakeTotal   *prometheus.CounterVec
	TokensIssued     *prometheus.CounterVec
	ScriptsRendered  *prometheus.CounterVec
	SSLProbes        *prometheus.CounterVec
	HTTPRequestTotal *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

// New creates and registers the collectors on registry.
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		HandshakeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdsso_handshake_total",
				Help: "Handshake legs handled, by action and outcome",
			},
			[]string{"action", "outcome"},
		),
		TokensIssued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdsso_tokens_issued_total",
				Help: "Auth tokens issued, by action they were issued for",
			},
			[]string{"action"},
		),
		ScriptsRendered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdsso_page_scripts_total",
				Help: "Bootstrap scripts injected into pages, by kind",
			},
			[]string{"kind"},
		),
		SSLProbes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdsso_ssl_probes_total",
				Help: "Server https probes, by result",
			},
			[]string{"result"},
		),
		HTTPRequestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdsso_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cdsso_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	registry.MustRegister(
		m.HandshakeTotal,
		m.TokensIssued,
		m.ScriptsRendered,
		m.SSLProbes,
		m.HTTPRequestTotal,
		m.HTTPDuration,
	)
	return m
}

// NewWithDefaults creates Metrics on a fresh registry that also carries the
// Go runtime and process collectors.
func NewWithDefaults() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return New(reg)
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Handshake(action, outcome string) {
	if m == nil {
		return
	}
	m.HandshakeTotal.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) TokenIssued(action string) {
	if m == nil {
		return
	}
	m.TokensIssued.WithLabelValues(action).Inc()
}

func (m *Metrics) ScriptRendered(kind string) {
	if m == nil {
		return
	}
	m.ScriptsRendered.WithLabelValues(kind).Inc()
}

func (m *Metrics) SSLProbe(supported bool) {
	if m == nil {
		return
	}
	result := "unsupported"
	if supported {
		result = "supported"
	}
	m.SSLProbes.WithLabelValues(result).Inc()
}

func (m *Metrics) HTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestTotal.WithLabelValues(method, route, statusClass(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
