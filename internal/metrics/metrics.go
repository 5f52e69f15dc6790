// Package metrics exports security engine counters to Prometheus
package metrics

import (
	"net/http"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bastion"

// riskBuckets covers the 0-100 score range in steps of ten
var riskBuckets = prometheus.LinearBuckets(10, 10, 10)

// Collector counts security events and input threat findings
type Collector struct {
	registry *prometheus.Registry

	events      *prometheus.CounterVec
	riskScores  *prometheus.HistogramVec
	findings    *prometheus.CounterVec
	decisions   *prometheus.CounterVec
	trackedKeys *prometheus.GaugeVec
	sweeps      *prometheus.CounterVec
}

// New creates a Collector on its own registry, with the Go and process
// collectors registered alongside
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "security_events_total",
			Help:      "Security events emitted, by type.",
		}, []string{"type"}),
		riskScores: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "security_event_risk_score",
			Help:      "Risk score carried by security events.",
			Buckets:   riskBuckets,
		}, []string{"type"}),
		findings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "threat_findings_total",
			Help:      "Input threat findings, by threat type and severity.",
		}, []string{"threat", "severity"}),
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_decisions_total",
			Help:      "Input policy decisions that had findings, by action.",
		}, []string{"action"}),
		trackedKeys: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_keys",
			Help:      "Records held in the in-memory security stores.",
		}, []string{"store"}),
		sweeps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swept_records_total",
			Help:      "Stale records removed by the sweeper.",
		}, []string{"store"}),
	}
}

// Emit records event. Collector satisfies events.Sink.
func (c *Collector) Emit(event models.SecurityEvent) {
	t := string(event.Type)
	c.events.WithLabelValues(t).Inc()
	c.riskScores.WithLabelValues(t).Observe(float64(event.RiskScore))

	if event.Type != models.EventSuspiciousActivity {
		return
	}
	if action, ok := event.Metadata["action"].(string); ok {
		c.decisions.WithLabelValues(action).Inc()
	}
}

// ObserveFindings counts findings by type and severity
func (c *Collector) ObserveFindings(findings []models.ThreatFinding) {
	for _, f := range findings {
		c.findings.WithLabelValues(string(f.Type), f.Severity.String()).Inc()
	}
}

// SetTracked reports the current size of an in-memory store
func (c *Collector) SetTracked(store string, n int) {
	c.trackedKeys.WithLabelValues(store).Set(float64(n))
}

// AddSwept counts records removed from store
func (c *Collector) AddSwept(store string, n int) {
	c.sweeps.WithLabelValues(store).Add(float64(n))
}

// Registry returns the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
