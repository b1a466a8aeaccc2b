// Package metrics holds the Prometheus collectors shared by the bot process and the API.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "modbot"

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	WorkflowOutcomes  *prometheus.CounterVec
	WorkflowStarts    *prometheus.CounterVec
	ExpiryReversals   *prometheus.CounterVec
	PermissionDenials *prometheus.CounterVec
	ActiveSessions    prometheus.Gauge
}

// New registers the collectors on reg. A nil reg gets a fresh registry with the Go and
// process collectors.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		WorkflowOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "outcomes_total",
			Help:      "Terminal workflow outcomes by kind and status.",
		}, []string{"kind", "status"}),
		WorkflowStarts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "starts_total",
			Help:      "Workflow start attempts by kind and result (started, busy, error).",
		}, []string{"kind", "result"}),
		ExpiryReversals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "expiry",
			Name:      "reversals_total",
			Help:      "Temporary-action reversals by outcome.",
		}, []string{"outcome"}),
		PermissionDenials: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "denials_total",
			Help:      "Commands rejected by the permission gate.",
		}, []string{"command"}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Live entries in the session registry.",
		}),
	}
}

func (m *Metrics) Outcome(kind, status string) {
	if m == nil {
		return
	}
	m.WorkflowOutcomes.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) Start(kind, result string) {
	if m == nil {
		return
	}
	m.WorkflowStarts.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) Reversal(outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.ExpiryReversals.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) Denied(command string) {
	if m == nil {
		return
	}
	m.PermissionDenials.WithLabelValues(command).Inc()
}

func (m *Metrics) Sessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
