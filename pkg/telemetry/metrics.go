package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the reconciliation pipeline.
// The zero value and a disabled instance are both safe no-ops, so call
// sites never need nil checks.
type Metrics struct {
	enabled bool

	plansComputed      prometheus.Counter
	planItems          *prometheus.CounterVec
	itemsApplied       *prometheus.CounterVec
	validationFailures prometheus.Counter
	discoverRuns       prometheus.Counter
	discoveredElements prometheus.Gauge
	applyDuration      prometheus.Histogram

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector. A disabled configuration
// returns a no-op instance.
func NewMetrics(cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return &Metrics{}
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "loom"
	}

	registry := prometheus.NewRegistry()
	m := &Metrics{
		enabled:  true,
		registry: registry,

		plansComputed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plans_computed_total",
			Help:      "Number of plans computed.",
		}),
		planItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plan_items_total",
			Help:      "Plan items produced, by action.",
		}, []string{"action"}),
		itemsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_applied_total",
			Help:      "Plan items executed, by action and result.",
		}, []string{"action", "result"}),
		validationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_failures_total",
			Help:      "Operations aborted by validation errors.",
		}),
		discoverRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discover_runs_total",
			Help:      "Completed discovery passes.",
		}),
		discoveredElements: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "discovered_elements",
			Help:      "Elements returned by the last discovery pass.",
		}),
		applyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "apply_duration_seconds",
			Help:      "Wall time of apply runs.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	registry.MustRegister(
		m.plansComputed,
		m.planItems,
		m.itemsApplied,
		m.validationFailures,
		m.discoverRuns,
		m.discoveredElements,
		m.applyDuration,
	)

	return m
}

// Handler returns the /metrics HTTP handler, or nil when disabled.
func (m *Metrics) Handler() http.Handler {
	if m == nil || !m.enabled {
		return nil
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// PlanComputed records one computed plan and its item actions.
func (m *Metrics) PlanComputed(add, modify, remove int) {
	if m == nil || !m.enabled {
		return
	}
	m.plansComputed.Inc()
	m.planItems.WithLabelValues("add").Add(float64(add))
	m.planItems.WithLabelValues("modify").Add(float64(modify))
	m.planItems.WithLabelValues("remove").Add(float64(remove))
}

// ItemApplied records the outcome of one executed plan item.
func (m *Metrics) ItemApplied(action, result string) {
	if m == nil || !m.enabled {
		return
	}
	m.itemsApplied.WithLabelValues(action, result).Inc()
}

// ValidationFailed records an operation aborted by validation.
func (m *Metrics) ValidationFailed() {
	if m == nil || !m.enabled {
		return
	}
	m.validationFailures.Inc()
}

// DiscoverCompleted records a finished discovery pass.
func (m *Metrics) DiscoverCompleted(elements int) {
	if m == nil || !m.enabled {
		return
	}
	m.discoverRuns.Inc()
	m.discoveredElements.Set(float64(elements))
}

// ObserveApplyDuration records the wall time of one apply run.
func (m *Metrics) ObserveApplyDuration(d time.Duration) {
	if m == nil || !m.enabled {
		return
	}
	m.applyDuration.Observe(d.Seconds())
}
