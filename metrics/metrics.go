// Package metrics instruments the verification engine with Prometheus.
// Metrics implements events.Observer, so counting is driven by the same
// bus the audit sinks consume and no component carries metric calls of
// its own beyond the pipeline timings.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vineethsai/etdi-go/events"
)

const (
	namespace = "etdi"

	subsystemEvents   = "events"
	subsystemPipeline = "pipeline"
	subsystemHTTP     = "http"
)

// Metrics owns an isolated registry so tests and embedders never collide
// with the global default registry.
type Metrics struct {
	registry *prometheus.Registry

	eventsTotal        *prometheus.CounterVec
	violationsTotal    *prometheus.CounterVec
	verificationsTotal *prometheus.CounterVec
	verificationTime   *prometheus.HistogramVec

	httpRequestsTotal prometheus.Counter
	httpErrorsTotal   prometheus.Counter
}

// New builds a Metrics with process and Go runtime collectors registered.
func New() *Metrics {
	m := &Metrics{}

	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{
		Namespace: namespace,
	}))
	m.registry.MustRegister(collectors.NewGoCollector())

	m.eventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystemEvents,
		Name:      "total",
		Help:      "Security events published, by type and severity.",
	}, []string{"type", "severity"})
	m.registry.MustRegister(m.eventsTotal)

	m.violationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystemEvents,
		Name:      "violations_total",
		Help:      "Threat-bearing security events, by threat type.",
	}, []string{"threat_type"})
	m.registry.MustRegister(m.violationsTotal)

	m.verificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystemPipeline,
		Name:      "verifications_total",
		Help:      "Tool verifications, by security level and outcome.",
	}, []string{"level", "outcome"})
	m.registry.MustRegister(m.verificationsTotal)

	m.verificationTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystemPipeline,
		Name:      "verification_seconds",
		Help:      "Time to verify one tool definition.",
	}, []string{"level"})
	m.registry.MustRegister(m.verificationTime)

	m.httpRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystemHTTP,
		Name:      "requests_total",
		Help:      "The total number of http API requests.",
	})
	m.registry.MustRegister(m.httpRequestsTotal)

	m.httpErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystemHTTP,
		Name:      "errors_total",
		Help:      "The total number of http API errors.",
	})
	m.registry.MustRegister(m.httpErrorsTotal)

	return m
}

// Registry exposes the underlying registry for additional collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the scrape endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// OnEvent counts e. Events carrying a threat type also count as
// violations under that threat. Safe on a nil receiver so callers can
// run without metrics.
func (m *Metrics) OnEvent(_ context.Context, e events.Event) {
	if m == nil {
		return
	}
	m.eventsTotal.With(prometheus.Labels{
		"type":     e.Type.String(),
		"severity": e.Severity.String(),
	}).Inc()
	if e.ThreatType != "" {
		m.violationsTotal.With(prometheus.Labels{"threat_type": e.ThreatType}).Inc()
	}
}

// ObserveVerification records one pipeline verification outcome.
func (m *Metrics) ObserveVerification(level, outcome string, elapsedSeconds float64) {
	if m == nil {
		return
	}
	m.verificationsTotal.With(prometheus.Labels{"level": level, "outcome": outcome}).Inc()
	m.verificationTime.With(prometheus.Labels{"level": level}).Observe(elapsedSeconds)
}

// IncrementHTTPRequests counts one API request.
func (m *Metrics) IncrementHTTPRequests() {
	if m == nil {
		return
	}
	m.httpRequestsTotal.Inc()
}

// IncrementHTTPErrors counts one API request that failed.
func (m *Metrics) IncrementHTTPErrors() {
	if m == nil {
		return
	}
	m.httpErrorsTotal.Inc()
}
